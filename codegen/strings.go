package codegen

import (
	"github.com/wippyai/wasm-adapter/errors"
	"github.com/wippyai/wasm-adapter/wasm"
)

// transcode copies the string (ptr, n) from the source encoding to the
// destination encoding. n counts code units of the source encoding and
// the returned length counts code units of the destination encoding.
func (t *Translator) transcode(ptr, n Local) (Local, Local) {
	b := t.b
	from, to := t.src.Encoding, t.dst.Encoding
	unit := from.CodeUnit()

	t.CheckSpan(t.src.Mem, ptr, unit, func() {
		b.Get(n).Op(wasm.OpI64ExtendI32U)
		if unit > 1 {
			b.I64Const(int64(unit)).Op(wasm.OpI64Mul)
		}
	})

	out := b.NewLocal(wasm.ValI32)
	outLen := b.NewLocal(wasm.ValI32)
	b.I32Const(0).Set(out).I32Const(0).Set(outLen)

	b.Get(n)
	b.If()
	switch {
	case from == to:
		t.validate(ptr, n)
		size := b.NewLocal(wasm.ValI32)
		b.Get(n).U32Const(unit).Op(wasm.OpI32Mul).Set(size)
		b.Get(t.alloc(size, unit)).Set(out)
		b.Get(out).Get(ptr).Get(size)
		t.env.Copier.Copy(b, t.dst.Mem, t.src.Mem)
		b.Get(n).Set(outLen)
		t.record(out, size, unit)

	case from == UTF8:
		// every byte yields at most one UTF-16 unit
		t.transcodeInto(ptr, n, out, outLen, 2, 2, t.decodeUTF8, t.encodeUTF16)

	default:
		// every unit yields at most three UTF-8 bytes
		t.transcodeInto(ptr, n, out, outLen, 3, 1, t.decodeUTF16, t.encodeUTF8)
	}
	b.End()
	return out, outLen
}

type decoder func(ptr, n Local, emit func(cp Local))

type encoder func(out, count, cp Local)

// transcodeInto allocates n*factor bytes, converts, then shrinks the
// allocation to the bytes written.
func (t *Translator) transcodeInto(ptr, n, out, outLen Local, factor, align uint32, dec decoder, enc encoder) {
	b := t.b
	// a worst case beyond 32 bits cannot be allocated
	b.Get(n).Op(wasm.OpI64ExtendI32U).I64Const(int64(factor)).Op(wasm.OpI64Mul)
	b.I64Const(0xFFFFFFFF).Op(wasm.OpI64GtU).TrapIf(errors.FaultAllocationFailure)

	worst := b.NewLocal(wasm.ValI32)
	b.Get(n).U32Const(factor).Op(wasm.OpI32Mul).Set(worst)
	b.Get(t.alloc(worst, align)).Set(out)

	b.I32Const(0).Set(outLen)
	dec(ptr, n, func(cp Local) { enc(out, outLen, cp) })

	size := b.NewLocal(wasm.ValI32)
	b.Get(outLen)
	if align == 2 {
		b.I32Const(1).Op(wasm.OpI32Shl)
	}
	b.Set(size)
	t.shrink(out, worst, size, align)
	t.record(out, size, align)
}

// validate checks a string in the shared encoding without converting it.
func (t *Translator) validate(ptr, n Local) {
	if t.src.Encoding == UTF16 {
		t.decodeUTF16(ptr, n, nil)
	} else {
		t.decodeUTF8(ptr, n, nil)
	}
}

// decodeUTF8 walks n bytes at ptr in the source memory, trapping with
// DecodeError on overlong forms, surrogates, values above U+10FFFF and
// truncated sequences.
func (t *Translator) decodeUTF8(ptr, n Local, emit func(cp Local)) {
	b := t.b
	mem := t.src.Mem
	i := b.NewLocal(wasm.ValI32)
	addr := b.NewLocal(wasm.ValI32)
	b0 := b.NewLocal(wasm.ValI32)
	c := b.NewLocal(wasm.ValI32)
	cp := b.NewLocal(wasm.ValI32)
	step := b.NewLocal(wasm.ValI32)

	need := func(k int32) {
		b.Get(i).I32Const(k).Op(wasm.OpI32Add).Get(n).Op(wasm.OpI32GtU).TrapIf(errors.FaultDecodeError)
	}
	cont := func(k uint32) {
		b.Get(addr)
		mem.Load(b, W8, k)
		b.Tee(c).I32Const(0xC0).Op(wasm.OpI32And).I32Const(0x80).Op(wasm.OpI32Ne).TrapIf(errors.FaultDecodeError)
		b.Get(cp).I32Const(6).Op(wasm.OpI32Shl).Get(c).I32Const(0x3F).Op(wasm.OpI32And).Op(wasm.OpI32Or).Set(cp)
	}
	lead := func(k int32, mask int32) {
		b.I32Const(k).Set(step)
		need(k)
		b.Get(b0).I32Const(mask).Op(wasm.OpI32And).Set(cp)
		for j := uint32(1); j < uint32(k); j++ {
			cont(j)
		}
	}
	below := func(limit int32) {
		b.Get(cp).I32Const(limit).Op(wasm.OpI32LtU).TrapIf(errors.FaultDecodeError)
	}

	b.I32Const(0).Set(i)
	done := b.Block()
	top := b.Loop()
	b.Get(i).Get(n).Op(wasm.OpI32GeU).BrIf(done)
	b.Get(ptr).Get(i).Op(wasm.OpI32Add).Set(addr)
	b.Get(addr)
	mem.Load(b, W8, 0)
	b.Set(b0)

	b.Get(b0).I32Const(0x80).Op(wasm.OpI32LtU)
	b.If()
	b.Get(b0).Set(cp).I32Const(1).Set(step)
	b.Else()
	// continuation bytes, C0/C1 overlong leads and F5..FF are never valid
	b.Get(b0).I32Const(0xC2).Op(wasm.OpI32LtU).TrapIf(errors.FaultDecodeError)
	b.Get(b0).I32Const(0xF4).Op(wasm.OpI32GtU).TrapIf(errors.FaultDecodeError)
	b.Get(b0).I32Const(0xE0).Op(wasm.OpI32LtU)
	b.If()
	lead(2, 0x1F)
	b.Else()
	b.Get(b0).I32Const(0xF0).Op(wasm.OpI32LtU)
	b.If()
	lead(3, 0x0F)
	below(0x800)
	b.Get(cp).I32Const(-0x800).Op(wasm.OpI32And).I32Const(0xD800).Op(wasm.OpI32Eq).TrapIf(errors.FaultDecodeError)
	b.Else()
	lead(4, 0x07)
	below(0x10000)
	b.Get(cp).I32Const(0x10FFFF).Op(wasm.OpI32GtU).TrapIf(errors.FaultDecodeError)
	b.End()
	b.End()
	b.End()

	if emit != nil {
		emit(cp)
	}
	b.Get(i).Get(step).Op(wasm.OpI32Add).Set(i)
	b.Br(top)
	b.End()
	b.End()
}

// decodeUTF16 walks n code units at ptr in the source memory, trapping
// with DecodeError on unpaired surrogates.
func (t *Translator) decodeUTF16(ptr, n Local, emit func(cp Local)) {
	b := t.b
	mem := t.src.Mem
	i := b.NewLocal(wasm.ValI32)
	u := b.NewLocal(wasm.ValI32)
	lo := b.NewLocal(wasm.ValI32)
	cp := b.NewLocal(wasm.ValI32)

	unitAt := func() {
		b.Get(i).I32Const(1).Op(wasm.OpI32Shl).Get(ptr).Op(wasm.OpI32Add)
		mem.Load(b, W16, 0)
		b.Get(i).I32Const(1).Op(wasm.OpI32Add).Set(i)
	}

	b.I32Const(0).Set(i)
	done := b.Block()
	top := b.Loop()
	b.Get(i).Get(n).Op(wasm.OpI32GeU).BrIf(done)
	unitAt()
	b.Tee(u).I32Const(0xF800).Op(wasm.OpI32And).I32Const(0xD800).Op(wasm.OpI32Ne)
	b.If()
	b.Get(u).Set(cp)
	b.Else()
	b.Get(u).I32Const(0xDC00).Op(wasm.OpI32GeU).TrapIf(errors.FaultDecodeError)
	b.Get(i).Get(n).Op(wasm.OpI32GeU).TrapIf(errors.FaultDecodeError)
	unitAt()
	b.Tee(lo).I32Const(0xFC00).Op(wasm.OpI32And).I32Const(0xDC00).Op(wasm.OpI32Ne).TrapIf(errors.FaultDecodeError)
	b.Get(u).I32Const(0xD800).Op(wasm.OpI32Sub).I32Const(10).Op(wasm.OpI32Shl)
	b.Get(lo).I32Const(0xDC00).Op(wasm.OpI32Sub).Op(wasm.OpI32Add)
	b.I32Const(0x10000).Op(wasm.OpI32Add).Set(cp)
	b.End()

	if emit != nil {
		emit(cp)
	}
	b.Br(top)
	b.End()
	b.End()
}

// encodeUTF16 appends cp to the destination at out, counting units.
func (t *Translator) encodeUTF16(out, count, cp Local) {
	b := t.b
	mem := t.dst.Mem
	addr := b.NewLocal(wasm.ValI32)
	c := b.NewLocal(wasm.ValI32)

	b.Get(count).I32Const(1).Op(wasm.OpI32Shl).Get(out).Op(wasm.OpI32Add).Set(addr)
	b.Get(cp).I32Const(0x10000).Op(wasm.OpI32LtU)
	b.If()
	b.Get(addr).Get(cp)
	mem.Store(b, W16, 0)
	b.Get(count).I32Const(1).Op(wasm.OpI32Add).Set(count)
	b.Else()
	b.Get(cp).I32Const(0x10000).Op(wasm.OpI32Sub).Set(c)
	b.Get(addr).Get(c).I32Const(10).Op(wasm.OpI32ShrU).I32Const(0xD800).Op(wasm.OpI32Or)
	mem.Store(b, W16, 0)
	b.Get(addr).Get(c).I32Const(0x3FF).Op(wasm.OpI32And).I32Const(0xDC00).Op(wasm.OpI32Or)
	mem.Store(b, W16, 2)
	b.Get(count).I32Const(2).Op(wasm.OpI32Add).Set(count)
	b.End()
}

// encodeUTF8 appends cp to the destination at out, counting bytes.
func (t *Translator) encodeUTF8(out, count, cp Local) {
	b := t.b
	mem := t.dst.Mem
	addr := b.NewLocal(wasm.ValI32)

	// byte k of an n-byte sequence: lead | (cp >> shift) & 0x3F
	put := func(off uint32, shift int32, lead int32, mask int32) {
		b.Get(addr).Get(cp)
		if shift > 0 {
			b.I32Const(shift).Op(wasm.OpI32ShrU)
		}
		b.I32Const(mask).Op(wasm.OpI32And).I32Const(lead).Op(wasm.OpI32Or)
		mem.Store(b, W8, off)
	}
	advance := func(k int32) {
		b.Get(count).I32Const(k).Op(wasm.OpI32Add).Set(count)
	}

	b.Get(out).Get(count).Op(wasm.OpI32Add).Set(addr)
	b.Get(cp).I32Const(0x80).Op(wasm.OpI32LtU)
	b.If()
	put(0, 0, 0, 0x7F)
	advance(1)
	b.Else()
	b.Get(cp).I32Const(0x800).Op(wasm.OpI32LtU)
	b.If()
	put(0, 6, 0xC0, 0x1F)
	put(1, 0, 0x80, 0x3F)
	advance(2)
	b.Else()
	b.Get(cp).I32Const(0x10000).Op(wasm.OpI32LtU)
	b.If()
	put(0, 12, 0xE0, 0x0F)
	put(1, 6, 0x80, 0x3F)
	put(2, 0, 0x80, 0x3F)
	advance(3)
	b.Else()
	put(0, 18, 0xF0, 0x07)
	put(1, 12, 0x80, 0x3F)
	put(2, 6, 0x80, 0x3F)
	put(3, 0, 0x80, 0x3F)
	advance(4)
	b.End()
	b.End()
	b.End()
}
