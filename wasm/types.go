package wasm

import "strings"

// Module is an in-memory core module ready for encoding. Index spaces follow
// the binary format: imported functions, tables, memories and globals come
// before the ones the module defines.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // type indices of defined functions
	Tables   []TableType
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Start    *uint32
	Elements []Element
	Code     []FuncBody
	Data     []DataSegment
}

// FuncType is a core function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two signatures are identical.
func (f FuncType) Equal(o FuncType) bool {
	return valTypesEqual(f.Params, o.Params) && valTypesEqual(f.Results, o.Results)
}

// String renders the signature as "(i32 i32) -> (i32)".
func (f FuncType) String() string {
	var b strings.Builder
	writeValTypeList(&b, f.Params)
	b.WriteString(" -> ")
	writeValTypeList(&b, f.Results)
	return b.String()
}

func writeValTypeList(b *strings.Builder, types []ValType) {
	b.WriteByte('(')
	for i, t := range types {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.String())
	}
	b.WriteByte(')')
}

func valTypesEqual(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ValType is a core value type.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValFuncRef:
		return "funcref"
	default:
		return "unknown"
	}
}

// BlockType returns the single-result block type for v.
func (v ValType) BlockType() int32 {
	switch v {
	case ValI64:
		return BlockTypeI64
	case ValF32:
		return BlockTypeF32
	case ValF64:
		return BlockTypeF64
	default:
		return BlockTypeI32
	}
}

// Import is an imported function, table, memory or global.
type Import struct {
	Desc   ImportDesc
	Module string
	Name   string
}

// ImportDesc describes an imported item. Kind is one of the Kind* constants.
type ImportDesc struct {
	Table   *TableType
	Memory  *MemoryType
	Global  *GlobalType
	TypeIdx uint32
	Kind    byte
}

// TableType describes a table of references.
type TableType struct {
	Limits   Limits
	ElemType ValType
}

// MemoryType describes a linear memory.
type MemoryType struct {
	Limits Limits
}

// Limits bounds a table or memory.
type Limits struct {
	Max *uint64
	Min uint64
}

// GlobalType describes a global's type and mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global is a defined global with its constant init expression.
type Global struct {
	Init []byte // encoded constant expression including end
	Type GlobalType
}

// Export is an exported item.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Element is an active segment of function indices written into a table at
// instantiation.
type Element struct {
	Offset   []byte // encoded constant expression including end
	FuncIdxs []uint32
	TableIdx uint32
}

// FuncBody holds a defined function's locals and code.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte // encoded instructions including the final end
}

// LocalEntry declares Count locals of one type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// DataSegment is an active data segment.
type DataSegment struct {
	Offset []byte
	Init   []byte
	MemIdx uint32
}

// ConstI32 encodes an i32.const constant expression.
func ConstI32(v int32) []byte {
	return EncodeInstructions([]Instruction{I32Const(v), {Opcode: OpEnd}})
}

// ConstI64 encodes an i64.const constant expression.
func ConstI64(v int64) []byte {
	return EncodeInstructions([]Instruction{I64Const(v), {Opcode: OpEnd}})
}

// NumImported returns the number of imports of the given kind.
func (m *Module) NumImported(kind byte) int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == kind {
			count++
		}
	}
	return count
}

// AddType adds a function type and returns its index, reusing an equal one.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// FuncType returns the signature of the function at funcIdx.
func (m *Module) FuncType(funcIdx uint32) (FuncType, bool) {
	n := uint32(0)
	for _, imp := range m.Imports {
		if imp.Desc.Kind != KindFunc {
			continue
		}
		if n == funcIdx {
			return m.Types[imp.Desc.TypeIdx], true
		}
		n++
	}
	local := funcIdx - n
	if int(local) >= len(m.Funcs) {
		return FuncType{}, false
	}
	return m.Types[m.Funcs[local]], true
}

// ImportFunc appends a function import and returns its function index.
// All function imports must be added before any function is defined.
func (m *Module) ImportFunc(module, name string, ft FuncType) uint32 {
	if len(m.Funcs) > 0 {
		panic("wasm: function import added after function definitions")
	}
	idx := uint32(m.NumImported(KindFunc))
	m.Imports = append(m.Imports, Import{
		Module: module,
		Name:   name,
		Desc:   ImportDesc{Kind: KindFunc, TypeIdx: m.AddType(ft)},
	})
	return idx
}

// ImportMemory appends a memory import and returns its memory index.
func (m *Module) ImportMemory(module, name string, min uint64) uint32 {
	if len(m.Memories) > 0 {
		panic("wasm: memory import added after memory definitions")
	}
	idx := uint32(m.NumImported(KindMemory))
	m.Imports = append(m.Imports, Import{
		Module: module,
		Name:   name,
		Desc:   ImportDesc{Kind: KindMemory, Memory: &MemoryType{Limits: Limits{Min: min}}},
	})
	return idx
}

// ImportTable appends a funcref table import and returns its table index.
func (m *Module) ImportTable(module, name string, min uint64) uint32 {
	if len(m.Tables) > 0 {
		panic("wasm: table import added after table definitions")
	}
	idx := uint32(m.NumImported(KindTable))
	m.Imports = append(m.Imports, Import{
		Module: module,
		Name:   name,
		Desc:   ImportDesc{Kind: KindTable, Table: &TableType{ElemType: ValFuncRef, Limits: Limits{Min: min}}},
	})
	return idx
}

// AddFunc defines a function and returns its function index.
func (m *Module) AddFunc(ft FuncType, body FuncBody) uint32 {
	idx := uint32(m.NumImported(KindFunc) + len(m.Funcs))
	m.Funcs = append(m.Funcs, m.AddType(ft))
	m.Code = append(m.Code, body)
	return idx
}

// AddMemory defines a memory and returns its memory index.
func (m *Module) AddMemory(min uint64) uint32 {
	idx := uint32(m.NumImported(KindMemory) + len(m.Memories))
	m.Memories = append(m.Memories, MemoryType{Limits: Limits{Min: min}})
	return idx
}

// AddTable defines a funcref table and returns its table index.
func (m *Module) AddTable(min uint64) uint32 {
	idx := uint32(m.NumImported(KindTable) + len(m.Tables))
	max := min
	m.Tables = append(m.Tables, TableType{ElemType: ValFuncRef, Limits: Limits{Min: min, Max: &max}})
	return idx
}

// AddGlobal defines a global and returns its global index.
func (m *Module) AddGlobal(t GlobalType, init []byte) uint32 {
	idx := uint32(m.NumImported(KindGlobal) + len(m.Globals))
	m.Globals = append(m.Globals, Global{Type: t, Init: init})
	return idx
}

// Export adds an export entry.
func (m *Module) Export(name string, kind byte, idx uint32) {
	m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Idx: idx})
}

// FindExport returns the export with the given name.
func (m *Module) FindExport(name string) (Export, bool) {
	for _, e := range m.Exports {
		if e.Name == name {
			return e, true
		}
	}
	return Export{}, false
}
