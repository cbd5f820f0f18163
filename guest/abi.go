package guest

import (
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/jsonffi/wasm"
)

// Export names of the container library ABI.
const (
	ExportMemory        = "memory"
	ExportLive          = "live_containers"
	ExportAlloc         = "alloc"
	ExportFree          = "free"
	ExportBox           = "box_string"
	ExportLength        = "string_length"
	ExportPopulate      = "populate_string"
	ExportRelease       = "release_container"
	ExportSendString    = "send_string"
	ExportSendContainer = "send_container"
	ExportProduce       = "produce_container"
)

// Signature declares one exported entry point.
type Signature struct {
	Name    string
	Params  []wit.Type
	Results []wit.Type
}

// Signatures lists every function the host calls.
var Signatures = []Signature{
	{Name: ExportAlloc, Params: []wit.Type{wit.U32{}}, Results: []wit.Type{wit.U32{}}},
	{Name: ExportFree, Params: []wit.Type{wit.U32{}, wit.U32{}}},
	{Name: ExportBox, Params: []wit.Type{wit.U32{}}, Results: []wit.Type{wit.U32{}}},
	{Name: ExportLength, Params: []wit.Type{wit.U32{}}, Results: []wit.Type{wit.S32{}}},
	{Name: ExportPopulate, Params: []wit.Type{wit.U32{}, wit.U32{}}, Results: []wit.Type{wit.S32{}}},
	{Name: ExportRelease, Params: []wit.Type{wit.U32{}}, Results: []wit.Type{wit.S32{}}},
	{Name: ExportSendString, Params: []wit.Type{wit.U32{}}, Results: []wit.Type{wit.S32{}}},
	{Name: ExportSendContainer, Params: []wit.Type{wit.U32{}}, Results: []wit.Type{wit.S32{}}},
	{Name: ExportProduce, Results: []wit.Type{wit.U32{}}},
}

// Lookup returns the signature of an entry point.
func Lookup(name string) (Signature, bool) {
	for _, s := range Signatures {
		if s.Name == name {
			return s, true
		}
	}
	return Signature{}, false
}

// CoreType flattens the signature to a core function type.
func (s Signature) CoreType() (wasm.FuncType, bool) {
	params, ok := flattenAll(s.Params)
	if !ok {
		return wasm.FuncType{}, false
	}
	results, ok := flattenAll(s.Results)
	if !ok {
		return wasm.FuncType{}, false
	}
	return wasm.FuncType{Params: params, Results: results}, true
}

func flattenAll(types []wit.Type) ([]wasm.ValType, bool) {
	var out []wasm.ValType
	for _, t := range types {
		flat, ok := Flatten(t)
		if !ok {
			return nil, false
		}
		out = append(out, flat...)
	}
	return out, true
}

// Flatten maps a WIT type to its core representation. Only scalar types and
// strings (pointer, length) are supported.
func Flatten(t wit.Type) ([]wasm.ValType, bool) {
	switch t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char:
		return []wasm.ValType{wasm.ValI32}, true
	case wit.U64, wit.S64:
		return []wasm.ValType{wasm.ValI64}, true
	case wit.F32:
		return []wasm.ValType{wasm.ValF32}, true
	case wit.F64:
		return []wasm.ValType{wasm.ValF64}, true
	case wit.String:
		return []wasm.ValType{wasm.ValI32, wasm.ValI32}, true
	default:
		return nil, false
	}
}
