package codegen

import (
	"fmt"

	"github.com/wippyai/wasm-adapter/errors"
	"github.com/wippyai/wasm-adapter/wasm"
)

// Local is a local variable index, parameters first.
type Local uint32

// Label is an open control frame that branches can target.
type Label struct {
	depth int
}

// FuncBuilder accumulates the body of one function. Branch targets are
// symbolic Labels converted to relative depths on emission.
type FuncBuilder struct {
	params []wasm.ValType
	locals []wasm.ValType
	code   []wasm.Instruction
	depth  int
	trap   uint32
}

// NewFuncBuilder starts a function with the given params. trap is the
// function index of the runtime trap import.
func NewFuncBuilder(params []wasm.ValType, trap uint32) *FuncBuilder {
	return &FuncBuilder{
		params: params,
		code:   make([]wasm.Instruction, 0, 64),
		trap:   trap,
	}
}

// Param returns the local holding parameter i.
func (b *FuncBuilder) Param(i int) Local {
	return Local(i)
}

// ParamCount returns the number of parameters.
func (b *FuncBuilder) ParamCount() int {
	return len(b.params)
}

// NewLocal declares a fresh local.
func (b *FuncBuilder) NewLocal(t wasm.ValType) Local {
	b.locals = append(b.locals, t)
	return Local(len(b.params) + len(b.locals) - 1)
}

// LocalType returns the type of l.
func (b *FuncBuilder) LocalType(l Local) wasm.ValType {
	if int(l) < len(b.params) {
		return b.params[l]
	}
	return b.locals[int(l)-len(b.params)]
}

// Emit appends raw instructions.
func (b *FuncBuilder) Emit(instrs ...wasm.Instruction) *FuncBuilder {
	b.code = append(b.code, instrs...)
	return b
}

// Op appends an instruction without immediates.
func (b *FuncBuilder) Op(op byte) *FuncBuilder {
	b.code = append(b.code, wasm.Instruction{Opcode: op})
	return b
}

func (b *FuncBuilder) Get(l Local) *FuncBuilder {
	return b.Emit(wasm.LocalGet(uint32(l)))
}

func (b *FuncBuilder) Set(l Local) *FuncBuilder {
	return b.Emit(wasm.LocalSet(uint32(l)))
}

func (b *FuncBuilder) Tee(l Local) *FuncBuilder {
	return b.Emit(wasm.Instruction{Opcode: wasm.OpLocalTee, Imm: wasm.LocalImm{LocalIdx: uint32(l)}})
}

func (b *FuncBuilder) GlobalGet(idx uint32) *FuncBuilder {
	return b.Emit(wasm.Instruction{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: idx}})
}

func (b *FuncBuilder) GlobalSet(idx uint32) *FuncBuilder {
	return b.Emit(wasm.Instruction{Opcode: wasm.OpGlobalSet, Imm: wasm.GlobalImm{GlobalIdx: idx}})
}

func (b *FuncBuilder) I32Const(v int32) *FuncBuilder {
	return b.Emit(wasm.I32Const(v))
}

func (b *FuncBuilder) U32Const(v uint32) *FuncBuilder {
	return b.Emit(wasm.I32Const(int32(v)))
}

func (b *FuncBuilder) I64Const(v int64) *FuncBuilder {
	return b.Emit(wasm.I64Const(v))
}

// Zero pushes the zero value of t.
func (b *FuncBuilder) Zero(t wasm.ValType) *FuncBuilder {
	switch t {
	case wasm.ValI64:
		return b.I64Const(0)
	case wasm.ValF32:
		return b.Emit(wasm.Instruction{Opcode: wasm.OpF32Const, Imm: wasm.F32Imm{}})
	case wasm.ValF64:
		return b.Emit(wasm.Instruction{Opcode: wasm.OpF64Const, Imm: wasm.F64Imm{}})
	default:
		return b.I32Const(0)
	}
}

func (b *FuncBuilder) Call(idx uint32) *FuncBuilder {
	return b.Emit(wasm.Call(idx))
}

func (b *FuncBuilder) open(op byte, bt int32) Label {
	l := Label{depth: b.depth}
	b.depth++
	b.Emit(wasm.Instruction{Opcode: op, Imm: wasm.BlockImm{Type: bt}})
	return l
}

// Block opens a block without results.
func (b *FuncBuilder) Block() Label {
	return b.open(wasm.OpBlock, wasm.BlockTypeVoid)
}

// Loop opens a loop; branching to its label continues the loop.
func (b *FuncBuilder) Loop() Label {
	return b.open(wasm.OpLoop, wasm.BlockTypeVoid)
}

// If pops an i32 condition and opens a then-branch.
func (b *FuncBuilder) If() Label {
	return b.open(wasm.OpIf, wasm.BlockTypeVoid)
}

// Else switches an open If to its else-branch.
func (b *FuncBuilder) Else() *FuncBuilder {
	return b.Op(wasm.OpElse)
}

// End closes the innermost frame.
func (b *FuncBuilder) End() *FuncBuilder {
	if b.depth == 0 {
		panic("codegen: End without open frame")
	}
	b.depth--
	return b.Op(wasm.OpEnd)
}

func (b *FuncBuilder) rel(l Label) uint32 {
	if l.depth >= b.depth {
		panic(fmt.Sprintf("codegen: branch to closed label at depth %d", l.depth))
	}
	return uint32(b.depth - 1 - l.depth)
}

func (b *FuncBuilder) Br(l Label) *FuncBuilder {
	return b.Emit(wasm.Instruction{Opcode: wasm.OpBr, Imm: wasm.BranchImm{LabelIdx: b.rel(l)}})
}

func (b *FuncBuilder) BrIf(l Label) *FuncBuilder {
	return b.Emit(wasm.Instruction{Opcode: wasm.OpBrIf, Imm: wasm.BranchImm{LabelIdx: b.rel(l)}})
}

// BrTable pops an index and branches to targets[index], or def when out
// of range.
func (b *FuncBuilder) BrTable(targets []Label, def Label) *FuncBuilder {
	imm := wasm.BrTableImm{Labels: make([]uint32, len(targets)), Default: b.rel(def)}
	for i, l := range targets {
		imm.Labels[i] = b.rel(l)
	}
	return b.Emit(wasm.Instruction{Opcode: wasm.OpBrTable, Imm: imm})
}

// Trap raises code through the runtime and never returns.
func (b *FuncBuilder) Trap(code errors.FaultCode) *FuncBuilder {
	return b.I32Const(int32(code)).Call(b.trap).Op(wasm.OpUnreachable)
}

// TrapIf pops an i32 condition and raises code when it is non-zero.
func (b *FuncBuilder) TrapIf(code errors.FaultCode) *FuncBuilder {
	b.If()
	b.Trap(code)
	return b.End()
}

// Len returns the number of instructions emitted so far.
func (b *FuncBuilder) Len() int {
	return len(b.code)
}

// Instructions returns the emitted instructions without the final end.
func (b *FuncBuilder) Instructions() []wasm.Instruction {
	return b.code
}

// Body finishes the function. All frames must be closed.
func (b *FuncBuilder) Body() wasm.FuncBody {
	if b.depth != 0 {
		panic(fmt.Sprintf("codegen: %d unclosed frames", b.depth))
	}

	var entries []wasm.LocalEntry
	for _, t := range b.locals {
		if n := len(entries); n > 0 && entries[n-1].ValType == t {
			entries[n-1].Count++
			continue
		}
		entries = append(entries, wasm.LocalEntry{Count: 1, ValType: t})
	}

	code := append(b.code[:len(b.code):len(b.code)], wasm.Instruction{Opcode: wasm.OpEnd})
	return wasm.FuncBody{Locals: entries, Code: wasm.EncodeInstructions(code)}
}
