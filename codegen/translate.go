package codegen

import (
	"github.com/wippyai/wasm-adapter/errors"
	"github.com/wippyai/wasm-adapter/handle"
	"github.com/wippyai/wasm-adapter/types"
	"github.com/wippyai/wasm-adapter/wasm"
)

// Place is a memory location: the address in Base plus a static Offset.
type Place struct {
	Base   Local
	Offset uint32
}

// At returns p moved forward by off bytes.
func (p Place) At(off uint32) Place {
	return Place{Base: p.Base, Offset: p.Offset + off}
}

// Flat translates a value of type id held in the src locals, in flat
// form, and returns the locals holding the dst flat form. Locals that
// need no change are returned as is.
func (t *Translator) Flat(id types.ID, src []Local) []Local {
	b := t.b
	n := t.graph().Node(id)

	switch n.Kind {
	case types.KindBool:
		b.Get(src[0]).I32Const(1).Op(wasm.OpI32GtU).TrapIf(errors.FaultInvalidBoolean)
		return src[:1]
	case types.KindU8:
		b.Get(src[0]).I32Const(^0xFF).Op(wasm.OpI32And).TrapIf(errors.FaultOutOfRangeInteger)
		return src[:1]
	case types.KindU16:
		b.Get(src[0]).I32Const(^0xFFFF).Op(wasm.OpI32And).TrapIf(errors.FaultOutOfRangeInteger)
		return src[:1]
	case types.KindS8:
		b.Get(src[0]).Get(src[0]).Op(wasm.OpI32Extend8S).Op(wasm.OpI32Ne).TrapIf(errors.FaultOutOfRangeInteger)
		return src[:1]
	case types.KindS16:
		b.Get(src[0]).Get(src[0]).Op(wasm.OpI32Extend16S).Op(wasm.OpI32Ne).TrapIf(errors.FaultOutOfRangeInteger)
		return src[:1]
	case types.KindU32, types.KindS32, types.KindU64, types.KindS64, types.KindF32, types.KindF64:
		return src[:1]
	case types.KindChar:
		t.checkChar(src[0])
		return src[:1]

	case types.KindString:
		p, l := t.transcode(src[0], src[1])
		return []Local{p, l}
	case types.KindList:
		p, l := t.list(n.Elem, src[0], src[1])
		return []Local{p, l}

	case types.KindRecord, types.KindTuple:
		var out []Local
		off := 0
		for _, child := range t.graph().Children(id) {
			k := t.env.Calc.Info(child).FlatCount()
			out = append(out, t.Flat(child, src[off:off+k])...)
			off += k
		}
		return out

	case types.KindFlags:
		if len(n.Flags) == 0 {
			return nil
		}
		t.checkFlags(len(n.Flags), src[0])
		return src[:1]

	case types.KindEnum, types.KindVariant, types.KindOption, types.KindResult:
		return t.flatVariant(id, n, src)

	case types.KindOwn, types.KindBorrow:
		return []Local{t.handle(n, src[0])}
	}
	panic("codegen: untranslatable kind " + n.Kind.String())
}

func (t *Translator) checkChar(v Local) {
	b := t.b
	b.Get(v).I32Const(0x110000).Op(wasm.OpI32GeU)
	b.Get(v).I32Const(-0x800).Op(wasm.OpI32And).I32Const(0xD800).Op(wasm.OpI32Eq)
	b.Op(wasm.OpI32Or).TrapIf(errors.FaultInvalidChar)
}

// checkFlags applies the flags policy to v, which holds count bits.
func (t *Translator) checkFlags(count int, v Local) {
	if count == 32 || count == 64 {
		return
	}
	b := t.b
	wide := count > 32
	mask := uint64(1)<<uint(count) - 1

	if t.env.Flags == Mask {
		if wide {
			b.Get(v).I64Const(int64(mask)).Op(wasm.OpI64And).Set(v)
		} else {
			b.Get(v).U32Const(uint32(mask)).Op(wasm.OpI32And).Set(v)
		}
		return
	}
	if wide {
		b.Get(v).I64Const(int64(^mask)).Op(wasm.OpI64And).I64Const(0).Op(wasm.OpI64Ne)
	} else {
		b.Get(v).U32Const(^uint32(mask)).Op(wasm.OpI32And)
	}
	b.TrapIf(errors.FaultOutOfRangeInteger)
}

// dispatch validates disc against count cases and runs each case body
// inside its own branch of a br_table.
func (t *Translator) dispatch(disc Local, count int, body func(i int)) {
	b := t.b
	done := b.Block()
	labels := make([]Label, count)
	for i := count - 1; i >= 0; i-- {
		labels[i] = b.Block()
	}
	bad := b.Block()
	b.Get(disc).BrTable(labels, bad)
	b.End()
	b.Trap(errors.FaultInvalidDiscriminant)
	for i := 0; i < count; i++ {
		b.End()
		body(i)
		if i < count-1 {
			b.Br(done)
		}
	}
	b.End()
}

func hasPayload(cases []types.Case) bool {
	for _, c := range cases {
		if c.Type != types.None {
			return true
		}
	}
	return false
}

func (t *Translator) flatVariant(id types.ID, n *types.Node, src []Local) []Local {
	b := t.b
	disc := src[0]
	if !hasPayload(n.Cases) {
		b.Get(disc).U32Const(uint32(len(n.Cases))).Op(wasm.OpI32GeU).TrapIf(errors.FaultInvalidDiscriminant)
		return src[:1]
	}

	joined := t.env.Calc.Info(id).Flat[1:]
	out := make([]Local, 1+len(joined))
	out[0] = disc
	for j, jt := range joined {
		out[1+j] = b.NewLocal(jt)
	}

	t.dispatch(disc, len(n.Cases), func(i int) {
		payload := t.env.Calc.Payload(id, i)
		if payload != nil {
			caseSrc := make([]Local, len(payload))
			for j, pt := range payload {
				caseSrc[j] = t.fromJoined(src[1+j], joined[j], pt)
			}
			res := t.Flat(n.Cases[i].Type, caseSrc)
			for j, pt := range payload {
				b.Get(res[j])
				toJoined(b, pt, joined[j])
				b.Set(out[1+j])
			}
		}
		for j := len(payload); j < len(joined); j++ {
			b.Zero(joined[j]).Set(out[1+j])
		}
	})
	return out
}

// fromJoined reinterprets a joined flat slot as the case's own type.
func (t *Translator) fromJoined(v Local, from, to wasm.ValType) Local {
	if from == to {
		return v
	}
	b := t.b
	out := b.NewLocal(to)
	b.Get(v)
	switch {
	case from == wasm.ValI32 && to == wasm.ValF32:
		b.Op(wasm.OpF32ReinterpretI32)
	case from == wasm.ValI64 && to == wasm.ValI32:
		b.Op(wasm.OpI32WrapI64)
	case from == wasm.ValI64 && to == wasm.ValF32:
		b.Op(wasm.OpI32WrapI64).Op(wasm.OpF32ReinterpretI32)
	case from == wasm.ValI64 && to == wasm.ValF64:
		b.Op(wasm.OpF64ReinterpretI64)
	default:
		panic("codegen: no coercion from " + from.String() + " to " + to.String())
	}
	b.Set(out)
	return out
}

// toJoined converts the case value on the stack to the joined slot type.
func toJoined(b *FuncBuilder, from, to wasm.ValType) {
	switch {
	case from == to:
	case from == wasm.ValF32 && to == wasm.ValI32:
		b.Op(wasm.OpI32ReinterpretF32)
	case from == wasm.ValI32 && to == wasm.ValI64:
		b.Op(wasm.OpI64ExtendI32U)
	case from == wasm.ValF32 && to == wasm.ValI64:
		b.Op(wasm.OpI32ReinterpretF32).Op(wasm.OpI64ExtendI32U)
	case from == wasm.ValF64 && to == wasm.ValI64:
		b.Op(wasm.OpI64ReinterpretF64)
	default:
		panic("codegen: no coercion from " + from.String() + " to " + to.String())
	}
}

// handle moves a handle through the runtime handle table. The owner of a
// resource sees reps; the other side sees table indices.
func (t *Translator) handle(n *types.Node, v Local) Local {
	b := t.b
	rt := t.env.Runtime
	toOwner := t.env.Owners[n.Resource] == t.dst.ID
	out := b.NewLocal(wasm.ValI32)

	b.U32Const(uint32(n.Resource)).Get(v)
	switch {
	case n.Kind == types.KindOwn && toOwner:
		b.Call(rt.HandleTake)
	case n.Kind == types.KindOwn:
		b.I32Const(int32(handle.Own)).Call(rt.HandleNew)
	case toOwner:
		b.Call(rt.HandleLend)
	default:
		b.I32Const(int32(handle.Borrow)).Call(rt.HandleNew)
	}
	b.Set(out)
	return out
}

// Mem translates a value of type id stored at src in the source memory
// into dst in the destination memory.
func (t *Translator) Mem(id types.ID, src, dst Place) {
	n := t.graph().Node(id)
	calc := t.env.Calc
	sm, dm := t.src.Mem, t.dst.Mem

	switch n.Kind {
	case types.KindBool:
		v := t.load(sm, src.Base, src.Offset, W8)
		t.b.Get(v).I32Const(1).Op(wasm.OpI32GtU).TrapIf(errors.FaultInvalidBoolean)
		t.store(dm, dst.Base, dst.Offset, W8, v)

	case types.KindU8, types.KindS8, types.KindU16, types.KindS16,
		types.KindU32, types.KindS32, types.KindU64, types.KindS64,
		types.KindF32, types.KindF64:
		w := WidthOf(calc.Info(id).Size)
		v := t.load(sm, src.Base, src.Offset, w)
		t.store(dm, dst.Base, dst.Offset, w, v)

	case types.KindChar:
		v := t.load(sm, src.Base, src.Offset, W32)
		t.checkChar(v)
		t.store(dm, dst.Base, dst.Offset, W32, v)

	case types.KindString, types.KindList:
		ptr := t.load(sm, src.Base, src.Offset, W32)
		length := t.load(sm, src.Base, src.Offset+4, W32)
		var p, l Local
		if n.Kind == types.KindString {
			p, l = t.transcode(ptr, length)
		} else {
			p, l = t.list(n.Elem, ptr, length)
		}
		t.store(dm, dst.Base, dst.Offset, W32, p)
		t.store(dm, dst.Base, dst.Offset+4, W32, l)

	case types.KindRecord, types.KindTuple:
		offsets := calc.FieldOffsets(id)
		for i, child := range t.graph().Children(id) {
			t.Mem(child, src.At(offsets[i]), dst.At(offsets[i]))
		}

	case types.KindFlags:
		if len(n.Flags) == 0 {
			return
		}
		w := WidthOf(calc.Info(id).Size)
		v := t.load(sm, src.Base, src.Offset, w)
		t.checkFlags(len(n.Flags), v)
		t.store(dm, dst.Base, dst.Offset, w, v)

	case types.KindEnum, types.KindVariant, types.KindOption, types.KindResult:
		w := WidthOf(calc.DiscriminantSize(id))
		disc := t.load(sm, src.Base, src.Offset, w)
		if !hasPayload(n.Cases) {
			t.b.Get(disc).U32Const(uint32(len(n.Cases))).Op(wasm.OpI32GeU).TrapIf(errors.FaultInvalidDiscriminant)
			t.store(dm, dst.Base, dst.Offset, w, disc)
			return
		}
		payload := calc.PayloadOffset(id)
		t.dispatch(disc, len(n.Cases), func(i int) {
			t.store(dm, dst.Base, dst.Offset, w, disc)
			if c := n.Cases[i]; c.Type != types.None {
				t.Mem(c.Type, src.At(payload), dst.At(payload))
			}
		})

	case types.KindOwn, types.KindBorrow:
		v := t.load(sm, src.Base, src.Offset, W32)
		out := t.handle(n, v)
		t.store(dm, dst.Base, dst.Offset, W32, out)

	default:
		panic("codegen: untranslatable kind " + n.Kind.String())
	}
}

// list copies a list of elem from (ptr, n) in the source memory into a
// fresh allocation in the destination memory.
func (t *Translator) list(elem types.ID, ptr, n Local) (Local, Local) {
	b := t.b
	info := t.env.Calc.Info(elem)
	out := b.NewLocal(wasm.ValI32)
	b.I32Const(0).Set(out)
	if info.Size == 0 {
		return out, n
	}

	t.CheckSpan(t.src.Mem, ptr, info.Align, func() {
		b.Get(n).Op(wasm.OpI64ExtendI32U).I64Const(int64(info.Size)).Op(wasm.OpI64Mul)
	})

	b.Get(n)
	b.If()
	size := b.NewLocal(wasm.ValI32)
	b.Get(n).U32Const(info.Size).Op(wasm.OpI32Mul).Set(size)
	p := t.alloc(size, info.Align)
	b.Get(p).Set(out)

	if t.env.Calc.Plain(elem) {
		b.Get(out).Get(ptr).Get(size)
		t.env.Copier.Copy(b, t.dst.Mem, t.src.Mem)
	} else {
		i := b.NewLocal(wasm.ValI32)
		se := b.NewLocal(wasm.ValI32)
		de := b.NewLocal(wasm.ValI32)
		b.I32Const(0).Set(i)
		done := b.Block()
		top := b.Loop()
		b.Get(i).Get(n).Op(wasm.OpI32GeU).BrIf(done)
		b.Get(i).U32Const(info.Size).Op(wasm.OpI32Mul).Tee(se).Get(ptr).Op(wasm.OpI32Add).Set(se)
		b.Get(se).Get(ptr).Op(wasm.OpI32Sub).Get(out).Op(wasm.OpI32Add).Set(de)
		t.Mem(elem, Place{Base: se}, Place{Base: de})
		b.Get(i).I32Const(1).Op(wasm.OpI32Add).Set(i)
		b.Br(top)
		b.End()
		b.End()
	}
	t.record(out, size, info.Align)
	b.End()
	return out, n
}
