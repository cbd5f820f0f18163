// Package memlib is an in-process container library.
//
// It implements jsonffi.Foreign in pure Go with the same observable behavior
// as the WebAssembly and native libraries, and adds fault injection so the
// host marshaller can be exercised against a misbehaving foreign side:
//
//	lib := memlib.New(memlib.WithFaults(memlib.Faults{ShortWrite: 2}))
//	m := marshal.New(lib)
//	_, err := m.DecodeFromContainer(ctx, c, true) // foreign_call error
//
// Containers live in a resource.Table, so handles carry a generation and a
// released handle is rejected even after its slot is reused.
package memlib
