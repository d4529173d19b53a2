package guest

import (
	"fmt"

	"github.com/wippyai/wasm-adapter/codegen"
	"github.com/wippyai/wasm-adapter/layout"
	"github.com/wippyai/wasm-adapter/types"
	"github.com/wippyai/wasm-adapter/wasm"
)

var storeOps = map[wasm.ValType]map[codegen.Width]byte{
	wasm.ValI32: {codegen.W8: wasm.OpI32Store8, codegen.W16: wasm.OpI32Store16, codegen.W32: wasm.OpI32Store},
	wasm.ValI64: {codegen.W8: wasm.OpI64Store8, codegen.W16: wasm.OpI64Store16, codegen.W32: wasm.OpI64Store32, codegen.W64: wasm.OpI64Store},
	wasm.ValF32: {codegen.W32: wasm.OpF32Store},
	wasm.ValF64: {codegen.W64: wasm.OpF64Store},
}

func alignOf(w codegen.Width) uint32 {
	switch w {
	case codegen.W16:
		return 1
	case codegen.W32:
		return 2
	case codegen.W64:
		return 3
	}
	return 0
}

// Identity returns its parameters unchanged.
func Identity(_ *Env, b *codegen.FuncBuilder) {
	for i := range b.ParamCount() {
		b.Get(b.Param(i))
	}
}

// Echo stores its parameters, the flattened form of id, at RetArea in the
// memory layout of id and returns RetArea. It turns a lifted parameter
// list into the indirect result of the same type.
func Echo(calc *layout.Calculator, id types.ID) Body {
	return func(_ *Env, b *codegen.FuncBuilder) {
		vals := make([]codegen.Local, b.ParamCount())
		for i := range vals {
			vals[i] = b.Param(i)
		}
		w := &writer{calc: calc, b: b}
		if rest := w.store(id, RetArea, vals); len(rest) != 0 {
			panic(fmt.Sprintf("guest: %d parameters left after storing %s", len(rest), calc.Graph().Describe(id)))
		}
		b.U32Const(RetArea)
	}
}

type writer struct {
	calc *layout.Calculator
	b    *codegen.FuncBuilder
}

// store writes the flat values of id at addr and returns the values it
// did not consume. Variant payloads are written per case, each value
// narrowed from its joined type to the case's own.
func (w *writer) store(id types.ID, addr uint32, vals []codegen.Local) []codegen.Local {
	g := w.calc.Graph()
	n := g.Node(id)
	info := w.calc.Info(id)

	switch {
	case n.Kind == types.KindString, n.Kind == types.KindList:
		w.scalar(vals[0], wasm.ValI32, addr, codegen.W32)
		w.scalar(vals[1], wasm.ValI32, addr+4, codegen.W32)
		return vals[2:]

	case n.Kind == types.KindRecord, n.Kind == types.KindTuple:
		offs := w.calc.FieldOffsets(id)
		for i, c := range g.Children(id) {
			vals = w.store(c, addr+offs[i], vals)
		}
		return vals

	case n.Kind.IsVariant():
		disc := vals[0]
		w.scalar(disc, wasm.ValI32, addr, codegen.WidthOf(w.calc.DiscriminantSize(id)))
		payload := vals[1:info.FlatCount()]
		off := w.calc.PayloadOffset(id)
		for i, c := range n.Cases {
			if c.Type == types.None {
				continue
			}
			w.b.Get(disc).U32Const(uint32(i)).Op(wasm.OpI32Eq)
			w.b.If()
			w.store(c.Type, addr+off, payload)
			w.b.End()
		}
		return vals[info.FlatCount():]
	}

	if len(info.Flat) == 0 {
		return vals
	}
	w.scalar(vals[0], info.Flat[0], addr, codegen.WidthOf(info.Size))
	return vals[1:]
}

// scalar stores v as a want value of width bytes at addr.
func (w *writer) scalar(v codegen.Local, want wasm.ValType, addr uint32, width codegen.Width) {
	b := w.b
	b.U32Const(addr).Get(v)
	switch have := b.LocalType(v); {
	case have == want:
	case have == wasm.ValI64 && want == wasm.ValI32:
		b.Op(wasm.OpI32WrapI64)
	case have == wasm.ValI32 && want == wasm.ValF32:
		b.Op(wasm.OpF32ReinterpretI32)
	case have == wasm.ValI64 && want == wasm.ValF32:
		b.Op(wasm.OpI32WrapI64).Op(wasm.OpF32ReinterpretI32)
	case have == wasm.ValI64 && want == wasm.ValF64:
		b.Op(wasm.OpF64ReinterpretI64)
	default:
		panic(fmt.Sprintf("guest: cannot narrow %s to %s", have, want))
	}
	op, ok := storeOps[want][width]
	if !ok {
		panic(fmt.Sprintf("guest: cannot store %s in %d bytes", want, width))
	}
	b.Emit(wasm.Instruction{Opcode: op, Imm: wasm.MemoryImm{Align: alignOf(width)}})
}

// Return writes words to RetArea and returns RetArea.
func Return(words ...uint32) Body {
	return func(e *Env, b *codegen.FuncBuilder) {
		for i, w := range words {
			b.U32Const(RetArea).U32Const(w)
			e.Mem.Store(b, codegen.W32, uint32(i)*4)
		}
		b.U32Const(RetArea)
	}
}

// ConstI32 returns v.
func ConstI32(v uint32) Body {
	return func(_ *Env, b *codegen.FuncBuilder) { b.U32Const(v) }
}

// ConstI64 returns v.
func ConstI64(v uint64) Body {
	return func(_ *Env, b *codegen.FuncBuilder) { b.I64Const(int64(v)) }
}

// Forward calls the function at idx with its parameters.
func Forward(idx uint32) Body {
	return func(e *Env, b *codegen.FuncBuilder) {
		Identity(e, b)
		b.Call(idx)
	}
}

// PostReturn counts its calls.
func PostReturn(e *Env, b *codegen.FuncBuilder) {
	b.GlobalGet(e.PostCalls).I32Const(1).Op(wasm.OpI32Add).GlobalSet(e.PostCalls)
}

// Destructor counts its calls and records the rep it receives.
func Destructor(e *Env, b *codegen.FuncBuilder) {
	b.GlobalGet(e.Drops).I32Const(1).Op(wasm.OpI32Add).GlobalSet(e.Drops)
	b.Get(b.Param(0)).GlobalSet(e.LastDrop)
}

// AddI32 returns its first parameter plus n.
func AddI32(n int32) Body {
	return func(_ *Env, b *codegen.FuncBuilder) {
		b.Get(b.Param(0)).I32Const(n).Op(wasm.OpI32Add)
	}
}
