// Package jsonffi passes JSON documents across a foreign-function boundary.
//
// Two calling conventions are supported for the same payload:
//
//   - WireString: JSON text followed by a NUL terminator, handed to the
//     foreign side for the duration of a single call.
//   - Container: an opaque handle owned by the foreign library that wraps the
//     text. The host must release every container exactly once.
//
// # Architecture Overview
//
//	jsonffi/         Root package with Handle, Library and Exchanger
//	├── marshal/     Host-side marshaller, WireString and Container lifecycle
//	├── runtime/     Facade that opens a backend and wires the marshaller
//	├── engine/      WebAssembly backend running the guest library on wazero
//	├── guest/       Assembles the guest container library module
//	├── wasm/        Minimal core module encoder
//	├── native/      cgo backend with a C container library
//	├── memlib/      Pure Go backend with fault injection
//	├── resource/    Handle table used by backends
//	├── config/      TOML configuration
//	└── errors/      Structured error types
//
// # Quick Start
//
//	rt, err := runtime.New(ctx, config.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	m := rt.Marshaller()
//	c, err := m.EncodeToContainer(ctx, map[string]any{"scalar": 1})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	v, err := m.DecodeFromContainer(ctx, c, true) // releases c
//
// # Ownership
//
// A container is bound to exactly one logical owner. Using a container after
// it was released is a programming error and panics; the foreign side gives
// no safe way to inspect a dangling handle.
package jsonffi
