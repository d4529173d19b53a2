package codegen

import (
	"fmt"
	"strconv"

	"github.com/wippyai/wasm-adapter/wasm"
)

// Width is the byte width of a memory access. Accesses of 1, 2 and 4
// bytes produce and consume i32 values; 8-byte accesses use i64.
type Width uint32

const (
	W8  Width = 1
	W16 Width = 2
	W32 Width = 4
	W64 Width = 8
)

// ValType is the core type carried by an access of width w.
func (w Width) ValType() wasm.ValType {
	if w == W64 {
		return wasm.ValI64
	}
	return wasm.ValI32
}

func (w Width) log2() uint32 {
	switch w {
	case W16:
		return 1
	case W32:
		return 2
	case W64:
		return 3
	}
	return 0
}

// WidthOf returns the access width for a scalar of size bytes.
func WidthOf(size uint32) Width {
	switch size {
	case 1, 2, 4, 8:
		return Width(size)
	}
	panic(fmt.Sprintf("codegen: no access width for %d bytes", size))
}

// Memory is the way generated code reaches one linear memory.
type Memory interface {
	// Load pops an address and pushes the zero-extended value at
	// address+offset.
	Load(b *FuncBuilder, w Width, offset uint32)
	// Store pops an address and a value and writes the value at
	// address+offset.
	Store(b *FuncBuilder, w Width, offset uint32)
	// Pages pushes the memory size in 64KiB pages as an i32.
	Pages(b *FuncBuilder)
}

// Direct accesses a memory of the adapter module with native instructions.
// A non-zero index requires multi-memory support in the host.
type Direct struct {
	Index uint32
}

var (
	directLoads  = map[Width]byte{W8: wasm.OpI32Load8U, W16: wasm.OpI32Load16U, W32: wasm.OpI32Load, W64: wasm.OpI64Load}
	directStores = map[Width]byte{W8: wasm.OpI32Store8, W16: wasm.OpI32Store16, W32: wasm.OpI32Store, W64: wasm.OpI64Store}
)

func (d Direct) memarg(w Width, offset uint32) wasm.MemoryImm {
	return wasm.MemoryImm{Offset: uint64(offset), Align: w.log2(), MemIdx: d.Index}
}

func (d Direct) Load(b *FuncBuilder, w Width, offset uint32) {
	b.Emit(wasm.Instruction{Opcode: directLoads[w], Imm: d.memarg(w, offset)})
}

func (d Direct) Store(b *FuncBuilder, w Width, offset uint32) {
	b.Emit(wasm.Instruction{Opcode: directStores[w], Imm: d.memarg(w, offset)})
}

func (d Direct) Pages(b *FuncBuilder) {
	b.Emit(wasm.Instruction{Opcode: wasm.OpMemorySize, Imm: wasm.MemoryIdxImm{MemIdx: d.Index}})
}

// Grow pops a page delta and pushes the previous size, or -1.
func (d Direct) Grow(b *FuncBuilder) {
	b.Emit(wasm.Instruction{Opcode: wasm.OpMemoryGrow, Imm: wasm.MemoryIdxImm{MemIdx: d.Index}})
}

// ShimModule is the import module of memory accessor functions.
const ShimModule = "shim"

// Shim accessor operations. Each is imported once per memory as
// "<op>_<id>"; ShimCopy is imported once.
const (
	ShimLoad8   = "load8_u"
	ShimLoad16  = "load16_u"
	ShimLoad32  = "load32"
	ShimLoad64  = "load64"
	ShimStore8  = "store8"
	ShimStore16 = "store16"
	ShimStore32 = "store32"
	ShimStore64 = "store64"
	ShimSize    = "size"
	ShimCopy    = "copy"
)

// ShimName returns the import name of op for memory id.
func ShimName(op string, id uint32) string {
	return op + "_" + strconv.FormatUint(uint64(id), 10)
}

var (
	i32 = wasm.ValI32
	i64 = wasm.ValI64
)

// ShimTypes lists the core signature of every accessor operation.
var ShimTypes = map[string]wasm.FuncType{
	ShimLoad8:   {Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i32}},
	ShimLoad16:  {Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i32}},
	ShimLoad32:  {Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i32}},
	ShimLoad64:  {Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i64}},
	ShimStore8:  {Params: []wasm.ValType{i32, i32, i32}},
	ShimStore16: {Params: []wasm.ValType{i32, i32, i32}},
	ShimStore32: {Params: []wasm.ValType{i32, i32, i32}},
	ShimStore64: {Params: []wasm.ValType{i32, i64, i32}},
	ShimSize:    {Results: []wasm.ValType{i32}},
	ShimCopy:    {Params: []wasm.ValType{i32, i32, i32, i32, i32}},
}

var shimOps = []string{
	ShimLoad8, ShimLoad16, ShimLoad32, ShimLoad64,
	ShimStore8, ShimStore16, ShimStore32, ShimStore64,
	ShimSize,
}

// Shim reaches a memory outside the adapter through imported host
// accessors, for engines without multi-memory.
type Shim struct {
	loads  map[Width]uint32
	stores map[Width]uint32
	size   uint32
	ID     uint32 // memory id passed to the copy accessor
}

// ImportShim adds the accessor imports for memory id to m.
func ImportShim(m *wasm.Module, id uint32) *Shim {
	idx := make(map[string]uint32, len(shimOps))
	for _, op := range shimOps {
		idx[op] = m.ImportFunc(ShimModule, ShimName(op, id), ShimTypes[op])
	}
	return &Shim{
		loads:  map[Width]uint32{W8: idx[ShimLoad8], W16: idx[ShimLoad16], W32: idx[ShimLoad32], W64: idx[ShimLoad64]},
		stores: map[Width]uint32{W8: idx[ShimStore8], W16: idx[ShimStore16], W32: idx[ShimStore32], W64: idx[ShimStore64]},
		size:   idx[ShimSize],
		ID:     id,
	}
}

func (s *Shim) Load(b *FuncBuilder, w Width, offset uint32) {
	b.U32Const(offset).Call(s.loads[w])
}

func (s *Shim) Store(b *FuncBuilder, w Width, offset uint32) {
	b.U32Const(offset).Call(s.stores[w])
}

func (s *Shim) Pages(b *FuncBuilder) {
	b.Call(s.size)
}

// Copier copies bytes between two memories.
type Copier struct {
	shimCopy uint32
	shim     bool
}

// DirectCopier copies with memory.copy.
func DirectCopier() Copier {
	return Copier{}
}

// ImportShimCopy adds the cross-memory copy import to m.
func ImportShimCopy(m *wasm.Module) Copier {
	return Copier{shim: true, shimCopy: m.ImportFunc(ShimModule, ShimCopy, ShimTypes[ShimCopy])}
}

// Copy pops dst, src and a byte count.
func (c Copier) Copy(b *FuncBuilder, dst, src Memory) {
	if c.shim {
		ds, ok1 := dst.(*Shim)
		ss, ok2 := src.(*Shim)
		if !ok1 || !ok2 {
			panic("codegen: shim copy between non-shim memories")
		}
		b.U32Const(ds.ID).U32Const(ss.ID).Call(c.shimCopy)
		return
	}
	dd, ok1 := dst.(Direct)
	sd, ok2 := src.(Direct)
	if !ok1 || !ok2 {
		panic("codegen: memory.copy between non-direct memories")
	}
	b.Emit(wasm.MemoryCopy(dd.Index, sd.Index))
}
