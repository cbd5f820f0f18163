package wasm

import (
	"fmt"
	"strings"
)

// ValType is a core value type.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	default:
		return fmt.Sprintf("valtype(0x%02x)", byte(v))
	}
}

// Module is a core WebAssembly module under construction.
type Module struct {
	Types    []FuncType
	Funcs    []uint32 // type index per defined function
	Code     []FuncBody
	Memories []Limits
	Globals  []Global
	Exports  []Export
	Data     []DataSegment
}

// FuncType represents a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two signatures are identical.
func (f FuncType) Equal(o FuncType) bool {
	return valTypesEqual(f.Params, o.Params) && valTypesEqual(f.Results, o.Results)
}

func (f FuncType) String() string {
	return "(" + joinValTypes(f.Params) + ") -> (" + joinValTypes(f.Results) + ")"
}

func valTypesEqual(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func joinValTypes(vs []ValType) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

// Limits describes memory size bounds in pages.
type Limits struct {
	Max *uint32
	Min uint32
}

// Global is a global with a constant initializer.
type Global struct {
	Init    int32
	Type    ValType
	Mutable bool
}

// Export names a definition.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// LocalEntry declares Count locals of one type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// FuncBody holds locals and the encoded instruction sequence.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
}

// DataSegment is an active data segment for memory 0.
type DataSegment struct {
	Init   []byte
	Offset uint32
}

// AddType returns the index of sig, appending it when not already present.
func (m *Module) AddType(sig FuncType) uint32 {
	for i, t := range m.Types {
		if t.Equal(sig) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, sig)
	return uint32(len(m.Types) - 1)
}

// AddFunc defines a function and returns its index.
// The body is terminated with end if it is not already.
func (m *Module) AddFunc(typeIdx uint32, locals []LocalEntry, body *Code) uint32 {
	code := body.Bytes()
	if !body.terminated() {
		code = append(code, OpEnd)
	}
	m.Funcs = append(m.Funcs, typeIdx)
	m.Code = append(m.Code, FuncBody{Locals: locals, Code: code})
	return uint32(len(m.Funcs) - 1)
}

// AddMemory defines a linear memory and returns its index.
func (m *Module) AddMemory(l Limits) uint32 {
	m.Memories = append(m.Memories, l)
	return uint32(len(m.Memories) - 1)
}

// AddGlobal defines a global and returns its index.
func (m *Module) AddGlobal(g Global) uint32 {
	m.Globals = append(m.Globals, g)
	return uint32(len(m.Globals) - 1)
}

// AddData places init at offset in memory 0.
func (m *Module) AddData(offset uint32, init []byte) {
	m.Data = append(m.Data, DataSegment{Offset: offset, Init: init})
}

// Export exports a definition under name.
func (m *Module) Export(name string, kind byte, idx uint32) {
	m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Idx: idx})
}
