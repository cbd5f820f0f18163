package engine

import (
	"sort"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/jsonffi/errors"
	"github.com/wippyai/jsonffi/guest"
	"github.com/wippyai/jsonffi/wasm"
)

// coreType converts a wazero function definition to a core function type.
func coreType(def api.FunctionDefinition) wasm.FuncType {
	return wasm.FuncType{
		Params:  valTypes(def.ParamTypes()),
		Results: valTypes(def.ResultTypes()),
	}
}

func valTypes(in []api.ValueType) []wasm.ValType {
	if len(in) == 0 {
		return nil
	}
	out := make([]wasm.ValType, len(in))
	for i, t := range in {
		out[i] = wasm.ValType(t)
	}
	return out
}

// checkExports verifies the container library ABI: every entry point in
// guest.Signatures with a matching core type, plus the linear memory.
func checkExports(module string, funcs map[string]api.FunctionDefinition, mems map[string]api.MemoryDefinition) error {
	var missing []string
	if _, ok := mems[guest.ExportMemory]; !ok {
		missing = append(missing, guest.ExportMemory)
	}
	for _, sig := range guest.Signatures {
		if _, ok := funcs[sig.Name]; !ok {
			missing = append(missing, sig.Name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.NewMissingExportsError(module, missing)
	}

	for _, sig := range guest.Signatures {
		want, ok := sig.CoreType()
		if !ok {
			return errors.Unsupported(errors.PhaseLoad, "signature of "+sig.Name)
		}
		got := coreType(funcs[sig.Name])
		if !got.Equal(want) {
			return errors.Signature(sig.Name, want.String(), got.String())
		}
	}
	return nil
}
