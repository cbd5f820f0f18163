// Package engine runs container libraries compiled to WebAssembly.
//
// A container library is a core module exporting the entry points listed in
// guest.Signatures together with its linear memory. The engine wraps wazero
// and exposes an instantiated library as a jsonffi.Foreign.
//
// # Architecture
//
//	WazeroEngine   - Creates and manages the wazero runtime
//	WazeroModule   - A compiled library whose exports were checked
//	WazeroInstance - A running library implementing jsonffi.Foreign
//
// # Loading
//
//  1. WazeroEngine.LoadModule() compiles the binary and checks the ABI
//  2. WazeroModule.Instantiate() creates a WazeroInstance
//  3. WazeroInstance methods copy strings in and out of guest memory
//
// LoadModule reports absent entry points with errors.MissingExportsError and
// mistyped ones with a KindSignature error:
//
//	mod, err := eng.LoadModule(ctx, bin)
//	var missing *errors.MissingExportsError
//	if stderrors.As(err, &missing) {
//	    log.Fatalf("not a container library: %v", missing.Exports)
//	}
//
// # Memory
//
// Strings cross the boundary through buffers obtained from the guest's alloc
// export and returned with free once the call completes. Handles are guest
// addresses and always fit in 32 bits.
//
// # Thread Safety
//
// WazeroEngine and WazeroModule are safe for concurrent use. WazeroInstance
// serializes its calls with a mutex.
package engine
