package guest

import (
	"fmt"
	"sync"

	"github.com/wippyai/jsonffi"
	"github.com/wippyai/jsonffi/wasm"
)

const (
	// DataBase is where the payload data segment starts.
	DataBase uint32 = 64

	// HeaderSize is the size of a container header.
	HeaderSize = 12

	// LiveMarker tags a header as a live container ("CONT").
	LiveMarker int32 = 0x434F4E54

	// InitialPages is the initial memory size.
	InitialPages uint32 = 2

	// BlockPrefix precedes every allocation: {size, next free block}.
	BlockPrefix = 8

	// MaxAlloc is the largest request alloc accepts.
	MaxAlloc = 0x7FFFFFF0
)

const (
	globalHeap uint32 = iota
	globalLive
	globalFree
)

// Layout records where the module placed its payloads.
type Layout struct {
	Produced uint32 // NUL-terminated ProducedDocument
	Prefix   uint32
	Suffix   uint32
	HeapBase uint32
}

// Payloads holds the texts the foreign side produces or wraps with.
type Payloads struct {
	Produced string
	Prefix   string
	Suffix   string
}

// DefaultPayloads returns the payloads shared by every backend.
func DefaultPayloads() Payloads {
	return Payloads{
		Produced: jsonffi.ProducedDocument,
		Prefix:   jsonffi.ModifiedPrefix,
		Suffix:   jsonffi.ModifiedSuffix,
	}
}

var (
	defaultOnce   sync.Once
	defaultModule []byte
	defaultLayout Layout
)

// Module returns the container library built with DefaultPayloads.
// The returned slice is shared and must not be modified.
func Module() []byte {
	defaultOnce.Do(func() {
		defaultModule, defaultLayout = Build(DefaultPayloads())
	})
	return defaultModule
}

// DefaultLayout returns the layout of Module.
func DefaultLayout() Layout {
	Module()
	return defaultLayout
}

type builder struct {
	m      *wasm.Module
	layout Layout
	p      Payloads
	funcs  map[string]uint32
}

// Build assembles the container library around the given payloads.
func Build(p Payloads) ([]byte, Layout) {
	b := &builder{
		m:     &wasm.Module{},
		p:     p,
		funcs: make(map[string]uint32),
	}
	b.data()
	b.m.AddMemory(wasm.Limits{Min: InitialPages})
	b.m.AddGlobal(wasm.Global{Type: wasm.ValI32, Mutable: true, Init: int32(b.layout.HeapBase)})
	b.m.AddGlobal(wasm.Global{Type: wasm.ValI32, Mutable: true})
	b.m.AddGlobal(wasm.Global{Type: wasm.ValI32, Mutable: true})

	b.strlen()
	b.alloc()
	b.free()
	b.valid()
	b.box()
	b.length()
	b.populate()
	b.release()
	b.sendString()
	b.sendContainer()
	b.produce()

	b.m.Export(ExportMemory, wasm.KindMemory, 0)
	b.m.Export(ExportLive, wasm.KindGlobal, globalLive)
	for _, s := range Signatures {
		b.m.Export(s.Name, wasm.KindFunc, b.funcs[s.Name])
	}
	return b.m.Encode(), b.layout
}

func (b *builder) data() {
	var seg []byte
	b.layout.Produced = DataBase
	seg = append(seg, b.p.Produced...)
	seg = append(seg, 0)
	b.layout.Prefix = DataBase + uint32(len(seg))
	seg = append(seg, b.p.Prefix...)
	b.layout.Suffix = DataBase + uint32(len(seg))
	seg = append(seg, b.p.Suffix...)
	b.layout.HeapBase = align8(DataBase + uint32(len(seg)))
	b.m.AddData(DataBase, seg)
}

func align8(v uint32) uint32 {
	return (v + 7) &^ 7
}

func (b *builder) define(name string, locals uint32, body *wasm.Code) {
	var sig wasm.FuncType
	if s, ok := Lookup(name); ok {
		ft, ok := s.CoreType()
		if !ok {
			panic(fmt.Sprintf("guest: signature of %s does not flatten", name))
		}
		sig = ft
	} else {
		// internal helpers take and return one i32
		sig = wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}
	}

	var decl []wasm.LocalEntry
	if locals > 0 {
		decl = []wasm.LocalEntry{{Count: locals, ValType: wasm.ValI32}}
	}
	b.funcs[name] = b.m.AddFunc(b.m.AddType(sig), decl, body)
}

// memBytes pushes the current memory size in bytes.
func memBytes(c *wasm.Code) *wasm.Code {
	return c.MemorySize().I32Const(16).Op(wasm.OpI32Shl)
}

// strlen(p) -> n
func (b *builder) strlen() {
	const p, n = 0, 1
	b.define("strlen", 1, wasm.NewCode().
		Block(wasm.BlockVoid).
		Loop(wasm.BlockVoid).
		LocalGet(p).LocalGet(n).Op(wasm.OpI32Add).I32Load8U(0).
		Op(wasm.OpI32Eqz).BrIf(1).
		LocalGet(n).I32Const(1).Op(wasm.OpI32Add).LocalSet(n).
		Br(0).
		End().
		End().
		LocalGet(n))
}

// alloc(size) -> ptr, 0 when memory cannot grow.
// The first free block large enough is reused; otherwise the heap is bumped.
func (b *builder) alloc() {
	const size, need, prev, cur, blk, next = 0, 1, 2, 3, 4, 5
	c := wasm.NewCode().
		LocalGet(size).I32Const(MaxAlloc).Op(wasm.OpI32GtU).ReturnI32If(0).
		LocalGet(size).I32Const(7).Op(wasm.OpI32Add).I32Const(-8).Op(wasm.OpI32And).LocalTee(need).
		Op(wasm.OpI32Eqz).
		If(wasm.BlockVoid).
		I32Const(8).LocalSet(need).
		End().
		GlobalGet(globalFree).LocalSet(cur).
		Block(wasm.BlockVoid).
		Loop(wasm.BlockVoid).
		LocalGet(cur).Op(wasm.OpI32Eqz).BrIf(1).
		LocalGet(cur).I32Load(0).LocalGet(need).Op(wasm.OpI32GeU).
		If(wasm.BlockVoid).
		LocalGet(prev).Op(wasm.OpI32Eqz).
		If(wasm.BlockVoid).
		LocalGet(cur).I32Load(4).GlobalSet(globalFree).
		Else().
		LocalGet(prev).LocalGet(cur).I32Load(4).I32Store(4).
		End().
		LocalGet(cur).I32Const(BlockPrefix).Op(wasm.OpI32Add).Return().
		End().
		LocalGet(cur).LocalSet(prev).
		LocalGet(cur).I32Load(4).LocalSet(cur).
		Br(0).
		End().
		End().
		GlobalGet(globalHeap).LocalSet(blk).
		LocalGet(blk).I32Const(BlockPrefix).Op(wasm.OpI32Add).LocalGet(need).Op(wasm.OpI32Add).LocalSet(next).
		LocalGet(next).LocalGet(blk).Op(wasm.OpI32LtU).ReturnI32If(0).
		LocalGet(next)
	memBytes(c).Op(wasm.OpI32GtU).
		If(wasm.BlockVoid).
		LocalGet(next)
	memBytes(c).Op(wasm.OpI32Sub).
		I32Const(0xFFFF).Op(wasm.OpI32Add).I32Const(16).Op(wasm.OpI32ShrU).
		MemoryGrow().I32Const(-1).Op(wasm.OpI32Eq).ReturnI32If(0).
		End().
		LocalGet(next).GlobalSet(globalHeap).
		LocalGet(blk).LocalGet(need).I32Store(0).
		LocalGet(blk).I32Const(BlockPrefix).Op(wasm.OpI32Add)
	b.define(ExportAlloc, 5, c)
}

// free(ptr, size) lowers the heap when ptr is the top block and otherwise
// pushes the block on the free list. The recorded block size is used.
func (b *builder) free() {
	const ptr, blk = 0, 2
	b.define(ExportFree, 1, wasm.NewCode().
		LocalGet(ptr).Op(wasm.OpI32Eqz).
		If(wasm.BlockVoid).
		Return().
		End().
		LocalGet(ptr).I32Const(BlockPrefix).Op(wasm.OpI32Sub).LocalSet(blk).
		LocalGet(ptr).LocalGet(blk).I32Load(0).Op(wasm.OpI32Add).GlobalGet(globalHeap).Op(wasm.OpI32Eq).
		If(wasm.BlockVoid).
		LocalGet(blk).GlobalSet(globalHeap).
		Return().
		End().
		LocalGet(blk).GlobalGet(globalFree).I32Store(4).
		LocalGet(blk).GlobalSet(globalFree))
}

// valid(h) -> 1 when h is a live container header
func (b *builder) valid() {
	const h = 0
	c := wasm.NewCode().
		LocalGet(h).Op(wasm.OpI32Eqz).ReturnI32If(0).
		LocalGet(h)
	memBytes(c).I32Const(HeaderSize).Op(wasm.OpI32Sub).Op(wasm.OpI32GtU).ReturnI32If(0).
		LocalGet(h).I32Load(8).I32Const(LiveMarker).Op(wasm.OpI32Eq)
	b.define("valid", 0, c)
}

// guard returns -1 unless local 0 is a live container.
func (b *builder) guard() *wasm.Code {
	return wasm.NewCode().
		LocalGet(0).Call(b.funcs["valid"]).Op(wasm.OpI32Eqz).ReturnI32If(-1)
}

// box_string(p) -> handle, 0 on failure
func (b *builder) box() {
	const p, n, hdr, data = 0, 1, 2, 3
	b.define(ExportBox, 3, wasm.NewCode().
		LocalGet(p).Op(wasm.OpI32Eqz).ReturnI32If(0).
		LocalGet(p).Call(b.funcs["strlen"]).LocalSet(n).
		I32Const(HeaderSize).Call(b.funcs[ExportAlloc]).LocalTee(hdr).Op(wasm.OpI32Eqz).ReturnI32If(0).
		LocalGet(n).Call(b.funcs[ExportAlloc]).LocalTee(data).Op(wasm.OpI32Eqz).
		If(wasm.BlockVoid).
		LocalGet(hdr).I32Const(HeaderSize).Call(b.funcs[ExportFree]).
		I32Const(0).Return().
		End().
		LocalGet(data).LocalGet(p).LocalGet(n).MemoryCopy().
		LocalGet(hdr).LocalGet(data).I32Store(0).
		LocalGet(hdr).LocalGet(n).I32Store(4).
		LocalGet(hdr).I32Const(LiveMarker).I32Store(8).
		GlobalGet(globalLive).I32Const(1).Op(wasm.OpI32Add).GlobalSet(globalLive).
		LocalGet(hdr))
}

// string_length(h) -> len, -1 for invalid handles
func (b *builder) length() {
	b.define(ExportLength, 0, b.guard().
		LocalGet(0).I32Load(4))
}

// populate_string(h, dst) -> written, -1 for invalid handles
func (b *builder) populate() {
	const h, dst = 0, 1
	b.define(ExportPopulate, 0, b.guard().
		LocalGet(dst).LocalGet(h).I32Load(0).LocalGet(h).I32Load(4).MemoryCopy().
		LocalGet(h).I32Load(4))
}

// release_container(h) -> 0, -1 for invalid or released handles.
// The payload and the header go back to the allocator.
func (b *builder) release() {
	const h = 0
	b.define(ExportRelease, 0, b.guard().
		LocalGet(h).I32Const(0).I32Store(8).
		LocalGet(h).I32Load(0).LocalGet(h).I32Load(4).Call(b.funcs[ExportFree]).
		LocalGet(h).I32Const(HeaderSize).Call(b.funcs[ExportFree]).
		GlobalGet(globalLive).I32Const(1).Op(wasm.OpI32Sub).GlobalSet(globalLive).
		I32Const(0))
}

// send_string(p) -> bytes before the terminator, -1 for null
func (b *builder) sendString() {
	const p = 0
	b.define(ExportSendString, 0, wasm.NewCode().
		LocalGet(p).Op(wasm.OpI32Eqz).ReturnI32If(-1).
		LocalGet(p).Call(b.funcs["strlen"]))
}

// send_container(h) -> 0, rewrites the payload to prefix + payload + suffix
func (b *builder) sendContainer() {
	const h, n, d, total = 0, 1, 2, 3
	plen := int32(len(b.p.Prefix))
	slen := int32(len(b.p.Suffix))
	b.define(ExportSendContainer, 3, b.guard().
		LocalGet(h).I32Load(4).LocalSet(n).
		I32Const(plen).LocalGet(n).Op(wasm.OpI32Add).I32Const(slen).Op(wasm.OpI32Add).LocalTee(total).
		Call(b.funcs[ExportAlloc]).LocalTee(d).Op(wasm.OpI32Eqz).ReturnI32If(-1).
		LocalGet(d).I32Const(int32(b.layout.Prefix)).I32Const(plen).MemoryCopy().
		LocalGet(d).I32Const(plen).Op(wasm.OpI32Add).LocalGet(h).I32Load(0).LocalGet(n).MemoryCopy().
		LocalGet(d).I32Const(plen).Op(wasm.OpI32Add).LocalGet(n).Op(wasm.OpI32Add).
		I32Const(int32(b.layout.Suffix)).I32Const(slen).MemoryCopy().
		LocalGet(h).I32Load(0).LocalGet(n).Call(b.funcs[ExportFree]).
		LocalGet(h).LocalGet(d).I32Store(0).
		LocalGet(h).LocalGet(total).I32Store(4).
		I32Const(0))
}

// produce_container() -> handle holding the produced document
func (b *builder) produce() {
	b.define(ExportProduce, 0, wasm.NewCode().
		I32Const(int32(b.layout.Produced)).Call(b.funcs[ExportBox]))
}
