package codegen

import (
	"github.com/wippyai/wasm-adapter/errors"
	"github.com/wippyai/wasm-adapter/layout"
	"github.com/wippyai/wasm-adapter/types"
	"github.com/wippyai/wasm-adapter/wasm"
)

// Side is one module as seen from generated code.
type Side struct {
	Mem      Memory
	Realloc  uint32 // function index of the imported realloc
	Order    ReallocOrder
	Encoding Encoding
	ID       uint8
}

// Env is the configuration shared by every translator of one adapter.
type Env struct {
	Calc    *layout.Calculator
	Owners  map[types.ResourceID]uint8 // resource to owning side ID
	Runtime Runtime
	Copier  Copier
	Flags   FlagsPolicy
}

// Log is the transient allocation log kept in the adapter's own memory.
// Entries are 12 bytes: ptr, size and align. Len is the global holding the
// entry count.
type Log struct {
	Mem Direct
	Len uint32
}

const logEntrySize = 12

// Append records an allocation of size bytes at ptr.
func (l *Log) Append(b *FuncBuilder, ptr, size Local, align uint32) {
	// grow by a page when the next entry would not fit
	b.GlobalGet(l.Len).I32Const(1).Op(wasm.OpI32Add).I32Const(logEntrySize).Op(wasm.OpI32Mul)
	l.Mem.Pages(b)
	b.I32Const(16).Op(wasm.OpI32Shl).Op(wasm.OpI32GtU)
	b.If()
	b.I32Const(1)
	l.Mem.Grow(b)
	b.I32Const(-1).Op(wasm.OpI32Eq).TrapIf(errors.FaultAllocationFailure)
	b.End()

	addr := b.NewLocal(wasm.ValI32)
	b.GlobalGet(l.Len).I32Const(logEntrySize).Op(wasm.OpI32Mul).Set(addr)
	b.Get(addr).Get(ptr)
	l.Mem.Store(b, W32, 0)
	b.Get(addr).Get(size)
	l.Mem.Store(b, W32, 4)
	b.Get(addr).U32Const(align)
	l.Mem.Store(b, W32, 8)
	b.GlobalGet(l.Len).I32Const(1).Op(wasm.OpI32Add).GlobalSet(l.Len)
}

// Mark stores the current log length in a new local.
func (l *Log) Mark(b *FuncBuilder) Local {
	mark := b.NewLocal(wasm.ValI32)
	b.GlobalGet(l.Len).Set(mark)
	return mark
}

// Unwind frees every entry above mark, newest first, through s's realloc.
func (l *Log) Unwind(b *FuncBuilder, mark Local, s *Side) {
	addr := b.NewLocal(wasm.ValI32)
	done := b.Block()
	top := b.Loop()
	b.GlobalGet(l.Len).Get(mark).Op(wasm.OpI32LeU).BrIf(done)
	b.GlobalGet(l.Len).I32Const(1).Op(wasm.OpI32Sub).GlobalSet(l.Len)
	b.GlobalGet(l.Len).I32Const(logEntrySize).Op(wasm.OpI32Mul).Set(addr)

	field := func(off uint32) func() {
		return func() {
			b.Get(addr)
			l.Mem.Load(b, W32, off)
		}
	}
	callRealloc(b, s, field(0), field(4), field(8), func() { b.I32Const(0) })
	b.Op(wasm.OpDrop)
	b.Br(top)
	b.End()
	b.End()
}

// callRealloc pushes the realloc arguments in s's order and calls it,
// leaving the new pointer on the stack.
func callRealloc(b *FuncBuilder, s *Side, oldPtr, oldSize, align, newSize func()) {
	oldPtr()
	oldSize()
	if s.Order == SizeAlign {
		newSize()
		align()
	} else {
		align()
		newSize()
	}
	b.Call(s.Realloc)
}

// Translator emits the code that moves values of interface types from
// src to dst inside one function.
type Translator struct {
	b   *FuncBuilder
	env *Env
	src *Side
	dst *Side
	log *Log
}

// NewTranslator creates a translator from src to dst.
func NewTranslator(b *FuncBuilder, env *Env, src, dst *Side) *Translator {
	return &Translator{b: b, env: env, src: src, dst: dst}
}

// WithLog makes every allocation in dst transient: it is recorded in l
// and freed when the enclosing function unwinds the log.
func (t *Translator) WithLog(l *Log) *Translator {
	c := *t
	c.log = l
	return &c
}

// Reverse returns a translator in the opposite direction with no log.
func (t *Translator) Reverse() *Translator {
	return &Translator{b: t.b, env: t.env, src: t.dst, dst: t.src}
}

func (t *Translator) graph() *types.Graph {
	return t.env.Calc.Graph()
}

// CheckSpan traps unless [ptr, ptr+len) lies inside mem and ptr is
// aligned. pushLen pushes the byte length as an i64.
func (t *Translator) CheckSpan(mem Memory, ptr Local, align uint32, pushLen func()) {
	b := t.b
	if align > 1 {
		b.Get(ptr).U32Const(align - 1).Op(wasm.OpI32And).TrapIf(errors.FaultUnalignedPointer)
	}
	b.Get(ptr).Op(wasm.OpI64ExtendI32U)
	pushLen()
	b.Op(wasm.OpI64Add)
	mem.Pages(b)
	b.Op(wasm.OpI64ExtendI32U).I64Const(16).Op(wasm.OpI64Shl)
	b.Op(wasm.OpI64GtU).TrapIf(errors.FaultDecodeError)
}

// CheckPointer checks a fixed-size block at ptr in the source memory.
func (t *Translator) CheckPointer(ptr Local, size, align uint32) {
	t.CheckSpan(t.src.Mem, ptr, align, func() { t.b.I64Const(int64(size)) })
}

// CheckDestPointer checks a fixed-size block at ptr in the destination
// memory.
func (t *Translator) CheckDestPointer(ptr Local, size, align uint32) {
	t.CheckSpan(t.dst.Mem, ptr, align, func() { t.b.I64Const(int64(size)) })
}

// alloc requests size bytes from dst and checks the result.
func (t *Translator) alloc(size Local, align uint32) Local {
	b := t.b
	ptr := b.NewLocal(wasm.ValI32)
	callRealloc(b, t.dst,
		func() { b.I32Const(0) },
		func() { b.I32Const(0) },
		func() { b.U32Const(align) },
		func() { b.Get(size) })
	b.Tee(ptr).Op(wasm.OpI32Eqz).TrapIf(errors.FaultAllocationFailure)
	t.CheckSpan(t.dst.Mem, ptr, align, func() { b.Get(size).Op(wasm.OpI64ExtendI32U) })
	return ptr
}

// shrink reallocates ptr from old to size bytes in dst, storing the new
// pointer back into ptr.
func (t *Translator) shrink(ptr, old, size Local, align uint32) {
	b := t.b
	b.Get(size).Get(old).Op(wasm.OpI32Ne)
	b.If()
	callRealloc(b, t.dst,
		func() { b.Get(ptr) },
		func() { b.Get(old) },
		func() { b.U32Const(align) },
		func() { b.Get(size) })
	b.Tee(ptr).Op(wasm.OpI32Eqz).TrapIf(errors.FaultAllocationFailure)
	b.End()
}

func (t *Translator) record(ptr, size Local, align uint32) {
	if t.log != nil {
		t.log.Append(t.b, ptr, size, align)
	}
}

// AllocBlock allocates a fixed-size block in dst, recording it when the
// translator logs.
func (t *Translator) AllocBlock(size, align uint32) Local {
	n := t.b.NewLocal(wasm.ValI32)
	t.b.U32Const(size).Set(n)
	ptr := t.alloc(n, align)
	t.record(ptr, n, align)
	return ptr
}

func (t *Translator) load(mem Memory, addr Local, offset uint32, w Width) Local {
	v := t.b.NewLocal(w.ValType())
	t.b.Get(addr)
	mem.Load(t.b, w, offset)
	t.b.Set(v)
	return v
}

func (t *Translator) store(mem Memory, addr Local, offset uint32, w Width, v Local) {
	t.b.Get(addr).Get(v)
	mem.Store(t.b, w, offset)
}
