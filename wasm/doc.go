// Package wasm provides a minimal WebAssembly core module encoder.
//
// It covers what a small, self-contained guest library needs: function
// types, functions, one linear memory, i32 globals, exports, active data
// segments, and an instruction emitter for the integer, control flow, memory
// and bulk memory (memory.copy) instructions.
//
// # Building a module
//
//	m := &wasm.Module{}
//	sig := m.AddType(wasm.FuncType{
//	    Params:  []wasm.ValType{wasm.ValI32},
//	    Results: []wasm.ValType{wasm.ValI32},
//	})
//
//	body := wasm.NewCode().LocalGet(0).I32Const(1).Op(wasm.OpI32Add)
//	fn := m.AddFunc(sig, nil, body)
//	m.Export("inc", wasm.KindFunc, fn)
//
//	bin := m.Encode()
//
// The encoder does not validate; the runtime that compiles the binary does.
package wasm
