package wasm

// Binary format header.
const (
	Magic   uint32 = 0x6D736100
	Version uint32 = 0x01
)

// Section IDs, in the order they must appear.
const (
	SectionCustom   byte = 0
	SectionType     byte = 1
	SectionImport   byte = 2
	SectionFunction byte = 3
	SectionTable    byte = 4
	SectionMemory   byte = 5
	SectionGlobal   byte = 6
	SectionExport   byte = 7
	SectionStart    byte = 8
	SectionElement  byte = 9
	SectionCode     byte = 10
	SectionData     byte = 11
)

// Import/export descriptor kinds.
const (
	KindFunc   byte = 0
	KindTable  byte = 1
	KindMemory byte = 2
	KindGlobal byte = 3
)

// Value types.
const (
	ValI32     ValType = 0x7F
	ValI64     ValType = 0x7E
	ValF32     ValType = 0x7D
	ValF64     ValType = 0x7C
	ValFuncRef ValType = 0x70
)

// Block types. Non-negative values are type indices.
const (
	BlockTypeVoid int32 = -64
	BlockTypeI32  int32 = -1
	BlockTypeI64  int32 = -2
	BlockTypeF32  int32 = -3
	BlockTypeF64  int32 = -4
)

const (
	FuncTypeByte byte = 0x60
	LimitsHasMax byte = 0x01
)

// Control
const (
	OpUnreachable  byte = 0x00
	OpNop          byte = 0x01
	OpBlock        byte = 0x02
	OpLoop         byte = 0x03
	OpIf           byte = 0x04
	OpElse         byte = 0x05
	OpEnd          byte = 0x0B
	OpBr           byte = 0x0C
	OpBrIf         byte = 0x0D
	OpBrTable      byte = 0x0E
	OpReturn       byte = 0x0F
	OpCall         byte = 0x10
	OpCallIndirect byte = 0x11
)

// Parametric and variable
const (
	OpDrop      byte = 0x1A
	OpSelect    byte = 0x1B
	OpLocalGet  byte = 0x20
	OpLocalSet  byte = 0x21
	OpLocalTee  byte = 0x22
	OpGlobalGet byte = 0x23
	OpGlobalSet byte = 0x24
)

// Memory
const (
	OpI32Load    byte = 0x28
	OpI64Load    byte = 0x29
	OpF32Load    byte = 0x2A
	OpF64Load    byte = 0x2B
	OpI32Load8S  byte = 0x2C
	OpI32Load8U  byte = 0x2D
	OpI32Load16S byte = 0x2E
	OpI32Load16U byte = 0x2F
	OpI64Load8U  byte = 0x31
	OpI64Load16U byte = 0x33
	OpI64Load32U byte = 0x35
	OpI32Store   byte = 0x36
	OpI64Store   byte = 0x37
	OpF32Store   byte = 0x38
	OpF64Store   byte = 0x39
	OpI32Store8  byte = 0x3A
	OpI32Store16 byte = 0x3B
	OpI64Store8  byte = 0x3C
	OpI64Store16 byte = 0x3D
	OpI64Store32 byte = 0x3E
	OpMemorySize byte = 0x3F
	OpMemoryGrow byte = 0x40
)

// Constants
const (
	OpI32Const byte = 0x41
	OpI64Const byte = 0x42
	OpF32Const byte = 0x43
	OpF64Const byte = 0x44
)

// Comparison
const (
	OpI32Eqz byte = 0x45
	OpI32Eq  byte = 0x46
	OpI32Ne  byte = 0x47
	OpI32LtS byte = 0x48
	OpI32LtU byte = 0x49
	OpI32GtS byte = 0x4A
	OpI32GtU byte = 0x4B
	OpI32LeS byte = 0x4C
	OpI32LeU byte = 0x4D
	OpI32GeS byte = 0x4E
	OpI32GeU byte = 0x4F
	OpI64Eqz byte = 0x50
	OpI64Eq  byte = 0x51
	OpI64Ne  byte = 0x52
	OpI64LtU byte = 0x54
	OpI64GtU byte = 0x56
	OpI64LeU byte = 0x58
	OpI64GeU byte = 0x5A
)

// Arithmetic
const (
	OpI32Add  byte = 0x6A
	OpI32Sub  byte = 0x6B
	OpI32Mul  byte = 0x6C
	OpI32DivU byte = 0x6E
	OpI32RemU byte = 0x70
	OpI32And  byte = 0x71
	OpI32Or   byte = 0x72
	OpI32Xor  byte = 0x73
	OpI32Shl  byte = 0x74
	OpI32ShrS byte = 0x75
	OpI32ShrU byte = 0x76
	OpI64Add  byte = 0x7C
	OpI64Sub  byte = 0x7D
	OpI64Mul  byte = 0x7E
	OpI64And  byte = 0x83
	OpI64Or   byte = 0x84
	OpI64Shl  byte = 0x86
	OpI64ShrU byte = 0x88
)

// Conversion
const (
	OpI32WrapI64        byte = 0xA7
	OpI64ExtendI32S     byte = 0xAC
	OpI64ExtendI32U     byte = 0xAD
	OpI32ReinterpretF32 byte = 0xBC
	OpI64ReinterpretF64 byte = 0xBD
	OpF32ReinterpretI32 byte = 0xBE
	OpF64ReinterpretI64 byte = 0xBF
	OpI32Extend8S       byte = 0xC0
	OpI32Extend16S      byte = 0xC1
)

// 0xFC prefix
const (
	OpPrefixMisc   byte   = 0xFC
	MiscMemoryCopy uint32 = 0x0A
	MiscMemoryFill uint32 = 0x0B
)

// memArgMultiMemBit marks a memarg that carries an explicit memory index.
const memArgMultiMemBit = 0x40
