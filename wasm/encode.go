package wasm

import (
	"bytes"
	"encoding/binary"
)

// Encode encodes the module to WebAssembly binary format
func (m *Module) Encode() []byte {
	var w bytes.Buffer

	// Magic number and version
	writeU32LE(&w, Magic)
	writeU32LE(&w, Version)

	if len(m.Types) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.WriteByte(FuncTypeByte)
			writeValTypes(&sec, ft.Params)
			writeValTypes(&sec, ft.Results)
		}
		writeSection(&w, SectionType, sec.Bytes())
	}

	if len(m.Funcs) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Funcs)))
		for _, typeIdx := range m.Funcs {
			WriteLEB128u(&sec, typeIdx)
		}
		writeSection(&w, SectionFunction, sec.Bytes())
	}

	if len(m.Memories) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Memories)))
		for _, l := range m.Memories {
			writeLimits(&sec, l)
		}
		writeSection(&w, SectionMemory, sec.Bytes())
	}

	if len(m.Globals) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Globals)))
		for _, g := range m.Globals {
			sec.WriteByte(byte(g.Type))
			if g.Mutable {
				sec.WriteByte(1)
			} else {
				sec.WriteByte(0)
			}
			writeConstExpr(&sec, g.Init)
		}
		writeSection(&w, SectionGlobal, sec.Bytes())
	}

	if len(m.Exports) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Exports)))
		for _, exp := range m.Exports {
			writeName(&sec, exp.Name)
			sec.WriteByte(exp.Kind)
			WriteLEB128u(&sec, exp.Idx)
		}
		writeSection(&w, SectionExport, sec.Bytes())
	}

	if len(m.Code) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Code)))
		for _, body := range m.Code {
			var bodyBuf bytes.Buffer
			WriteLEB128u(&bodyBuf, uint32(len(body.Locals)))
			for _, local := range body.Locals {
				WriteLEB128u(&bodyBuf, local.Count)
				bodyBuf.WriteByte(byte(local.ValType))
			}
			bodyBuf.Write(body.Code)
			WriteLEB128u(&sec, uint32(bodyBuf.Len()))
			sec.Write(bodyBuf.Bytes())
		}
		writeSection(&w, SectionCode, sec.Bytes())
	}

	if len(m.Data) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Data)))
		for _, d := range m.Data {
			WriteLEB128u(&sec, 0) // active, memory 0
			writeConstExpr(&sec, int32(d.Offset))
			WriteLEB128u(&sec, uint32(len(d.Init)))
			sec.Write(d.Init)
		}
		writeSection(&w, SectionData, sec.Bytes())
	}

	return w.Bytes()
}

func writeSection(w *bytes.Buffer, id byte, data []byte) {
	w.WriteByte(id)
	WriteLEB128u(w, uint32(len(data)))
	w.Write(data)
}

func writeValTypes(w *bytes.Buffer, types []ValType) {
	WriteLEB128u(w, uint32(len(types)))
	for _, t := range types {
		w.WriteByte(byte(t))
	}
}

func writeLimits(w *bytes.Buffer, l Limits) {
	if l.Max != nil {
		w.WriteByte(LimitsHasMax)
		WriteLEB128u(w, l.Min)
		WriteLEB128u(w, *l.Max)
		return
	}
	w.WriteByte(LimitsNoMax)
	WriteLEB128u(w, l.Min)
}

func writeConstExpr(w *bytes.Buffer, v int32) {
	w.WriteByte(OpI32Const)
	WriteLEB128s(w, v)
	w.WriteByte(OpEnd)
}

func writeName(w *bytes.Buffer, s string) {
	WriteLEB128u(w, uint32(len(s)))
	w.WriteString(s)
}

func writeU32LE(w *bytes.Buffer, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.Write(buf[:])
}
