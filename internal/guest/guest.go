// Package guest builds small core modules that play the two sides of an
// adapter in tests. Every guest exports a memory, a bump allocator and a
// few counters:
//
//	live        bytes currently allocated through cabi_realloc
//	fail        set non-zero to make every allocation return 0
//	post_calls  number of post-return calls
//	drops       number of destructor calls
//	last_drop   rep passed to the last destructor call
package guest

import (
	"github.com/wippyai/wasm-adapter/codegen"
	"github.com/wippyai/wasm-adapter/wasm"
)

// Export names of the guest counters.
const (
	LiveGlobal      = "live"
	FailGlobal      = "fail"
	PostCallsGlobal = "post_calls"
	DropsGlobal     = "drops"
	LastDropGlobal  = "last_drop"
)

// RetArea is the static block results are written to. The heap starts
// above it.
const (
	RetArea  uint32 = 16
	HeapBase uint32 = 1024
)

var (
	i32 = wasm.ValI32
	i64 = wasm.ValI64
)

// Env exposes the guest's indices to function bodies.
type Env struct {
	Mem       codegen.Direct
	Realloc   uint32
	Live      uint32
	Fail      uint32
	PostCalls uint32
	Drops     uint32
	LastDrop  uint32
	heap      uint32
}

// Body emits a function body.
type Body func(e *Env, b *codegen.FuncBuilder)

type def struct {
	name string
	ft   wasm.FuncType
	body Body
}

type imp struct {
	module, name string
	ft           wasm.FuncType
}

// Option configures a Guest.
type Option func(*Guest)

// WithReallocOrder sets the allocator's parameter order.
func WithReallocOrder(o codegen.ReallocOrder) Option {
	return func(g *Guest) { g.order = o }
}

// WithoutRealloc omits cabi_realloc.
func WithoutRealloc() Option {
	return func(g *Guest) { g.noRealloc = true }
}

// WithMemoryName exports the memory under name.
func WithMemoryName(name string) Option {
	return func(g *Guest) { g.memory = name }
}

// Guest collects imports and functions; Build assembles them.
type Guest struct {
	imports   []imp
	funcs     []def
	memory    string
	order     codegen.ReallocOrder
	noRealloc bool
}

func New(opts ...Option) *Guest {
	g := &Guest{memory: "memory"}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Import declares a function import and returns its function index.
func (g *Guest) Import(module, name string, ft wasm.FuncType) uint32 {
	g.imports = append(g.imports, imp{module, name, ft})
	return uint32(len(g.imports) - 1)
}

// Func adds an exported function.
func (g *Guest) Func(name string, ft wasm.FuncType, body Body) *Guest {
	g.funcs = append(g.funcs, def{name, ft, body})
	return g
}

// Build encodes the module.
func (g *Guest) Build() []byte {
	m := &wasm.Module{}
	for _, im := range g.imports {
		m.ImportFunc(im.module, im.name, im.ft)
	}
	mem := m.AddMemory(1)
	m.Export(g.memory, wasm.KindMemory, mem)

	counter := func(name string, init int32) uint32 {
		idx := m.AddGlobal(wasm.GlobalType{ValType: i32, Mutable: true}, wasm.ConstI32(init))
		if name != "" {
			m.Export(name, wasm.KindGlobal, idx)
		}
		return idx
	}
	e := &Env{
		Mem:       codegen.Direct{Index: mem},
		Live:      counter(LiveGlobal, 0),
		Fail:      counter(FailGlobal, 0),
		PostCalls: counter(PostCallsGlobal, 0),
		Drops:     counter(DropsGlobal, 0),
		LastDrop:  counter(LastDropGlobal, 0),
		heap:      counter("", int32(HeapBase)),
	}

	if !g.noRealloc {
		ft := wasm.FuncType{Params: []wasm.ValType{i32, i32, i32, i32}, Results: []wasm.ValType{i32}}
		e.Realloc = uint32(len(g.imports))
		m.Export("cabi_realloc", wasm.KindFunc, m.AddFunc(ft, g.realloc(e)))
	}
	for _, d := range g.funcs {
		b := codegen.NewFuncBuilder(d.ft.Params, 0)
		d.body(e, b)
		m.Export(d.name, wasm.KindFunc, m.AddFunc(d.ft, b.Body()))
	}
	return m.Encode()
}

// realloc is a bump allocator. Freeing (new size 0) only updates the live
// counter; growing copies the old block.
func (g *Guest) realloc(e *Env) wasm.FuncBody {
	b := codegen.NewFuncBuilder([]wasm.ValType{i32, i32, i32, i32}, 0)
	oldPtr, oldSize := b.Param(0), b.Param(1)
	align, newSize := b.Param(2), b.Param(3)
	if g.order == codegen.SizeAlign {
		align, newSize = newSize, align
	}
	ptr := b.NewLocal(i32)

	b.Get(newSize).Op(wasm.OpI32Eqz)
	b.If()
	b.GlobalGet(e.Live).Get(oldSize).Op(wasm.OpI32Sub).GlobalSet(e.Live)
	b.I32Const(0).Op(wasm.OpReturn)
	b.End()

	b.GlobalGet(e.Fail)
	b.If()
	b.I32Const(0).Op(wasm.OpReturn)
	b.End()

	// ptr = (heap + align - 1) & -align
	b.GlobalGet(e.heap).Get(align).Op(wasm.OpI32Add).I32Const(1).Op(wasm.OpI32Sub)
	b.I32Const(0).Get(align).Op(wasm.OpI32Sub).Op(wasm.OpI32And).Set(ptr)
	b.Get(ptr).Get(newSize).Op(wasm.OpI32Add).GlobalSet(e.heap)

	done := b.Block()
	grow := b.Loop()
	b.GlobalGet(e.heap)
	e.Mem.Pages(b)
	b.I32Const(16).Op(wasm.OpI32Shl).Op(wasm.OpI32LeU).BrIf(done)
	b.I32Const(1)
	e.Mem.Grow(b)
	b.I32Const(-1).Op(wasm.OpI32Eq)
	b.If()
	b.I32Const(0).Op(wasm.OpReturn)
	b.End()
	b.Br(grow)
	b.End()
	b.End()

	b.Get(oldPtr)
	b.If()
	b.Get(ptr).Get(oldPtr)
	b.Get(oldSize).Get(newSize).Get(oldSize).Get(newSize).Op(wasm.OpI32LtU).Op(wasm.OpSelect)
	b.Emit(wasm.MemoryCopy(e.Mem.Index, e.Mem.Index))
	b.End()

	b.GlobalGet(e.Live).Get(newSize).Op(wasm.OpI32Add).Get(oldSize).Op(wasm.OpI32Sub).GlobalSet(e.Live)
	b.Get(ptr)
	return b.Body()
}
