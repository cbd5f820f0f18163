package wasm

// WebAssembly binary format magic number and version.
const (
	// Magic is the WebAssembly binary magic number ("\0asm" in little-endian).
	Magic uint32 = 0x6D736100

	// Version is the supported WebAssembly binary format version.
	Version uint32 = 0x01
)

// Section IDs. Sections must appear in increasing order by ID.
const (
	SectionType     byte = 1
	SectionFunction byte = 3
	SectionMemory   byte = 5
	SectionGlobal   byte = 6
	SectionExport   byte = 7
	SectionCode     byte = 10
	SectionData     byte = 11
)

// Export descriptor kinds.
const (
	KindFunc   byte = 0
	KindMemory byte = 2
	KindGlobal byte = 3
)

// Value type encodings.
const (
	ValI32 ValType = 0x7F
	ValI64 ValType = 0x7E
	ValF32 ValType = 0x7D
	ValF64 ValType = 0x7C
)

// FuncTypeByte prefixes every function type in the type section.
const FuncTypeByte byte = 0x60

// Limits flags
const (
	LimitsNoMax  byte = 0x00
	LimitsHasMax byte = 0x01
)

// PageSize is the size of one linear memory page.
const PageSize = 65536

// Block types
const (
	BlockVoid byte = 0x40
	BlockI32  byte = 0x7F
)

// Control flow opcodes
const (
	OpUnreachable byte = 0x00
	OpNop         byte = 0x01
	OpBlock       byte = 0x02
	OpLoop        byte = 0x03
	OpIf          byte = 0x04
	OpElse        byte = 0x05
	OpEnd         byte = 0x0B
	OpBr          byte = 0x0C
	OpBrIf        byte = 0x0D
	OpReturn      byte = 0x0F
	OpCall        byte = 0x10
)

// Parametric opcodes
const (
	OpDrop   byte = 0x1A
	OpSelect byte = 0x1B
)

// Variable access opcodes
const (
	OpLocalGet  byte = 0x20
	OpLocalSet  byte = 0x21
	OpLocalTee  byte = 0x22
	OpGlobalGet byte = 0x23
	OpGlobalSet byte = 0x24
)

// Memory opcodes
const (
	OpI32Load   byte = 0x28
	OpI32Load8U byte = 0x2D
	OpI32Store  byte = 0x36
	OpI32Store8 byte = 0x3A

	OpMemorySize byte = 0x3F
	OpMemoryGrow byte = 0x40
)

// i32 opcodes
const (
	OpI32Const byte = 0x41

	OpI32Eqz byte = 0x45
	OpI32Eq  byte = 0x46
	OpI32Ne  byte = 0x47
	OpI32LtS byte = 0x48
	OpI32LtU byte = 0x49
	OpI32GtS byte = 0x4A
	OpI32GtU byte = 0x4B
	OpI32LeU byte = 0x4D
	OpI32GeU byte = 0x4F

	OpI32Add  byte = 0x6A
	OpI32Sub  byte = 0x6B
	OpI32Mul  byte = 0x6C
	OpI32And  byte = 0x71
	OpI32Or   byte = 0x72
	OpI32Shl  byte = 0x74
	OpI32ShrU byte = 0x76
)

// Prefixed (0xFC) opcodes
const (
	OpPrefixMisc     byte   = 0xFC
	OpMiscMemoryCopy uint32 = 10
	OpMiscMemoryFill uint32 = 11
)
