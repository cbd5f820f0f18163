// Package runtime provides the high-level API for exchanging JSON with a
// foreign container library.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, config.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	// Box a value into a container and read it back
//	v, err := rt.RoundTrip(ctx, map[string]any{"scalar": 1})
//
//	// Let the foreign side rewrite a container
//	v, err = rt.Transform(ctx, v)
//
//	// Decode a container the foreign side created
//	v, err = rt.Produce(ctx)
//
// # Backends
//
// config.Config.Backend selects the library:
//
//	wasm    - WebAssembly container library run by wazero (default)
//	native  - C container library linked with cgo
//	memory  - pure Go library, mainly for tests
//
// WithForeign bypasses the selection, for example to install a memlib
// library with faults.
//
// # Lower-Level Access
//
// Marshaller exposes the marshal.Marshaller for direct container handling.
// Every container obtained through it must be released exactly once.
package runtime
