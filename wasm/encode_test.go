package wasm

import (
	"bytes"
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
)

func i32Sig(params, results int) FuncType {
	ft := FuncType{}
	for i := 0; i < params; i++ {
		ft.Params = append(ft.Params, ValI32)
	}
	for i := 0; i < results; i++ {
		ft.Results = append(ft.Results, ValI32)
	}
	return ft
}

func TestEncode_Header(t *testing.T) {
	bin := (&Module{}).Encode()
	want := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	if !bytes.Equal(bin, want) {
		t.Fatalf("empty module = %x, want %x", bin, want)
	}
}

func TestEncode_SectionOrder(t *testing.T) {
	m := &Module{}
	sig := m.AddType(i32Sig(0, 1))
	fn := m.AddFunc(sig, nil, NewCode().GlobalGet(0))
	m.AddMemory(Limits{Min: 1})
	m.AddGlobal(Global{Type: ValI32, Init: 7})
	m.Export("get", KindFunc, fn)
	m.AddData(16, []byte("hi"))

	bin := m.Encode()
	r := bytes.NewReader(bin[8:])
	var ids []byte
	for r.Len() > 0 {
		id, _ := r.ReadByte()
		size := sectionSize(t, r)
		ids = append(ids, id)
		r.Seek(int64(size), 1)
	}

	want := []byte{SectionType, SectionFunction, SectionMemory, SectionGlobal, SectionExport, SectionCode, SectionData}
	if !bytes.Equal(ids, want) {
		t.Errorf("section ids = %v, want %v", ids, want)
	}
}

func TestAddType_Dedup(t *testing.T) {
	m := &Module{}
	a := m.AddType(i32Sig(1, 1))
	b := m.AddType(i32Sig(2, 1))
	c := m.AddType(i32Sig(1, 1))
	if a != c || a == b {
		t.Errorf("indices a=%d b=%d c=%d", a, b, c)
	}
	if len(m.Types) != 2 {
		t.Errorf("len(Types) = %d, want 2", len(m.Types))
	}
}

func TestFuncType_String(t *testing.T) {
	got := FuncType{Params: []ValType{ValI32, ValI64}, Results: []ValType{ValF64}}.String()
	if got != "(i32, i64) -> (f64)" {
		t.Errorf("String() = %q", got)
	}
}

func TestCode_Terminate(t *testing.T) {
	c := NewCode().I32Const(1).If(BlockVoid).Op(OpNop).End()
	if c.terminated() {
		t.Fatal("closing an inner block must not terminate the body")
	}
	if c.Depth() != 0 {
		t.Fatalf("Depth() = %d, want 0", c.Depth())
	}
	c.End()
	if !c.terminated() {
		t.Fatal("end at depth zero must terminate the body")
	}
}

func TestEncode_Executes(t *testing.T) {
	ctx := context.Background()

	m := &Module{}
	unary := m.AddType(i32Sig(1, 1))
	m.AddMemory(Limits{Min: 1})
	m.AddData(32, []byte("abc"))

	// inc(x) = x + 1
	inc := m.AddFunc(unary, nil, NewCode().LocalGet(0).I32Const(1).Op(OpI32Add))

	// count(p): bytes before NUL starting at p
	count := m.AddFunc(unary, []LocalEntry{{Count: 1, ValType: ValI32}}, NewCode().
		Block(BlockVoid).
		Loop(BlockVoid).
		LocalGet(0).LocalGet(1).Op(OpI32Add).I32Load8U(0).
		Op(OpI32Eqz).BrIf(1).
		LocalGet(1).I32Const(1).Op(OpI32Add).LocalSet(1).
		Br(0).
		End().
		End().
		LocalGet(1))

	// dup(p): copy 3 bytes from p to p+8, return p+8
	dup := m.AddFunc(unary, nil, NewCode().
		LocalGet(0).I32Const(8).Op(OpI32Add).
		LocalGet(0).
		I32Const(3).
		MemoryCopy().
		LocalGet(0).I32Const(8).Op(OpI32Add))

	m.Export("inc", KindFunc, inc)
	m.Export("count", KindFunc, count)
	m.Export("dup", KindFunc, dup)
	m.Export("memory", KindMemory, 0)

	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	mod, err := rt.Instantiate(ctx, m.Encode())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	res, err := mod.ExportedFunction("inc").Call(ctx, 41)
	if err != nil {
		t.Fatalf("inc: %v", err)
	}
	if res[0] != 42 {
		t.Errorf("inc(41) = %d, want 42", res[0])
	}

	res, err = mod.ExportedFunction("count").Call(ctx, 32)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if res[0] != 3 {
		t.Errorf("count(32) = %d, want 3", res[0])
	}

	res, err = mod.ExportedFunction("dup").Call(ctx, 32)
	if err != nil {
		t.Fatalf("dup: %v", err)
	}
	got, ok := mod.Memory().Read(uint32(res[0]), 3)
	if !ok || string(got) != "abc" {
		t.Errorf("dup copied %q, want abc", got)
	}
}

// sectionSize reads the unsigned LEB128 length that follows a section id.
func sectionSize(t *testing.T, r *bytes.Reader) uint32 {
	t.Helper()
	var size uint32
	for shift := uint(0); shift < 35; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			t.Fatalf("section size: %v", err)
		}
		size |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return size
		}
	}
	t.Fatal("section size: LEB128 too long")
	return 0
}
