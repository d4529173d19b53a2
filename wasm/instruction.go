package wasm

import "fmt"

// Instruction is one core instruction with its immediate.
type Instruction struct {
	Imm    any
	Opcode byte
}

// BlockImm holds the block type of block, loop and if.
type BlockImm struct {
	Type int32 // BlockType* constant or a type index
}

// BranchImm holds the relative depth of br and br_if.
type BranchImm struct {
	LabelIdx uint32
}

// BrTableImm holds the targets of br_table.
type BrTableImm struct {
	Labels  []uint32
	Default uint32
}

// CallImm holds the target of call.
type CallImm struct {
	FuncIdx uint32
}

// CallIndirectImm holds the signature and table of call_indirect.
type CallIndirectImm struct {
	TypeIdx  uint32
	TableIdx uint32
}

// LocalImm holds the local of local.get, local.set and local.tee.
type LocalImm struct {
	LocalIdx uint32
}

// GlobalImm holds the global of global.get and global.set.
type GlobalImm struct {
	GlobalIdx uint32
}

// MemoryImm is a memarg. A non-zero MemIdx is encoded with the
// multi-memory flag.
type MemoryImm struct {
	Offset uint64
	Align  uint32 // log2 of the alignment
	MemIdx uint32
}

// MemoryIdxImm holds the memory of memory.size and memory.grow.
type MemoryIdxImm struct {
	MemIdx uint32
}

// I32Imm is the value of i32.const.
type I32Imm struct {
	Value int32
}

// I64Imm is the value of i64.const.
type I64Imm struct {
	Value int64
}

// F32Imm is the value of f32.const.
type F32Imm struct {
	Value float32
}

// F64Imm is the value of f64.const.
type F64Imm struct {
	Value float64
}

// MiscImm holds a 0xFC sub-opcode and its index operands.
type MiscImm struct {
	Operands  []uint32
	SubOpcode uint32
}

// I32Const builds i32.const.
func I32Const(v int32) Instruction {
	return Instruction{Opcode: OpI32Const, Imm: I32Imm{Value: v}}
}

// I64Const builds i64.const.
func I64Const(v int64) Instruction {
	return Instruction{Opcode: OpI64Const, Imm: I64Imm{Value: v}}
}

// LocalGet builds local.get.
func LocalGet(idx uint32) Instruction {
	return Instruction{Opcode: OpLocalGet, Imm: LocalImm{LocalIdx: idx}}
}

// LocalSet builds local.set.
func LocalSet(idx uint32) Instruction {
	return Instruction{Opcode: OpLocalSet, Imm: LocalImm{LocalIdx: idx}}
}

// Call builds call.
func Call(funcIdx uint32) Instruction {
	return Instruction{Opcode: OpCall, Imm: CallImm{FuncIdx: funcIdx}}
}

// MemoryCopy builds memory.copy from src into dst.
func MemoryCopy(dst, src uint32) Instruction {
	return Instruction{Opcode: OpPrefixMisc, Imm: MiscImm{SubOpcode: MiscMemoryCopy, Operands: []uint32{dst, src}}}
}

// MemoryFill builds memory.fill.
func MemoryFill(mem uint32) Instruction {
	return Instruction{Opcode: OpPrefixMisc, Imm: MiscImm{SubOpcode: MiscMemoryFill, Operands: []uint32{mem}}}
}

// AppendInstruction appends the encoding of instr.
func AppendInstruction(buf []byte, instr Instruction) []byte {
	buf = append(buf, instr.Opcode)

	switch instr.Opcode {
	case OpBlock, OpLoop, OpIf:
		buf = AppendSLEB128(buf, int64(instr.Imm.(BlockImm).Type))

	case OpBr, OpBrIf:
		buf = AppendULEB128(buf, uint64(instr.Imm.(BranchImm).LabelIdx))

	case OpBrTable:
		imm := instr.Imm.(BrTableImm)
		buf = AppendULEB128(buf, uint64(len(imm.Labels)))
		for _, l := range imm.Labels {
			buf = AppendULEB128(buf, uint64(l))
		}
		buf = AppendULEB128(buf, uint64(imm.Default))

	case OpCall:
		buf = AppendULEB128(buf, uint64(instr.Imm.(CallImm).FuncIdx))

	case OpCallIndirect:
		imm := instr.Imm.(CallIndirectImm)
		buf = AppendULEB128(buf, uint64(imm.TypeIdx))
		buf = AppendULEB128(buf, uint64(imm.TableIdx))

	case OpLocalGet, OpLocalSet, OpLocalTee:
		buf = AppendULEB128(buf, uint64(instr.Imm.(LocalImm).LocalIdx))

	case OpGlobalGet, OpGlobalSet:
		buf = AppendULEB128(buf, uint64(instr.Imm.(GlobalImm).GlobalIdx))

	case OpI32Load, OpI64Load, OpF32Load, OpF64Load,
		OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U,
		OpI64Load8U, OpI64Load16U, OpI64Load32U,
		OpI32Store, OpI64Store, OpF32Store, OpF64Store,
		OpI32Store8, OpI32Store16, OpI64Store8, OpI64Store16, OpI64Store32:
		buf = appendMemArg(buf, instr.Imm.(MemoryImm))

	case OpMemorySize, OpMemoryGrow:
		buf = AppendULEB128(buf, uint64(instr.Imm.(MemoryIdxImm).MemIdx))

	case OpI32Const:
		buf = AppendSLEB128(buf, int64(instr.Imm.(I32Imm).Value))

	case OpI64Const:
		buf = AppendSLEB128(buf, instr.Imm.(I64Imm).Value)

	case OpF32Const:
		buf = AppendF32(buf, instr.Imm.(F32Imm).Value)

	case OpF64Const:
		buf = AppendF64(buf, instr.Imm.(F64Imm).Value)

	case OpPrefixMisc:
		imm := instr.Imm.(MiscImm)
		buf = AppendULEB128(buf, uint64(imm.SubOpcode))
		for _, op := range imm.Operands {
			buf = AppendULEB128(buf, uint64(op))
		}

	default:
		if instr.Imm != nil {
			panic(fmt.Sprintf("wasm: opcode %#x takes no immediate, got %T", instr.Opcode, instr.Imm))
		}
	}
	return buf
}

// EncodeInstructions encodes a sequence of instructions.
func EncodeInstructions(instrs []Instruction) []byte {
	buf := make([]byte, 0, len(instrs)*3)
	for _, instr := range instrs {
		buf = AppendInstruction(buf, instr)
	}
	return buf
}

func appendMemArg(buf []byte, imm MemoryImm) []byte {
	align := uint64(imm.Align)
	if imm.MemIdx != 0 {
		buf = AppendULEB128(buf, align|memArgMultiMemBit)
		buf = AppendULEB128(buf, uint64(imm.MemIdx))
	} else {
		buf = AppendULEB128(buf, align)
	}
	return AppendULEB128(buf, imm.Offset)
}
