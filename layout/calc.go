package layout

import (
	"github.com/wippyai/wasm-adapter/types"
	"github.com/wippyai/wasm-adapter/wasm"
)

// Info is the layout of one interface type.
type Info struct {
	Flat  []wasm.ValType // core values when passed on the stack
	Size  uint32
	Align uint32
}

// FlatCount is the number of core values the type flattens to.
func (i Info) FlatCount() int {
	return len(i.Flat)
}

type entry struct {
	offsets []uint32 // record and tuple fields
	info    Info
	payload uint32 // variant payload offset
	disc    uint32 // variant discriminant size
}

// Calculator computes layouts, memoized per type ID.
type Calculator struct {
	graph *types.Graph
	cache map[types.ID]*entry
}

// NewCalculator creates a calculator over g.
func NewCalculator(g *types.Graph) *Calculator {
	return &Calculator{
		graph: g,
		cache: make(map[types.ID]*entry),
	}
}

// Graph returns the type graph the calculator reads.
func (c *Calculator) Graph() *types.Graph {
	return c.graph
}

// Info returns the layout of id.
func (c *Calculator) Info(id types.ID) Info {
	return c.get(id).info
}

// FieldOffsets returns the byte offset of each record field or tuple
// element.
func (c *Calculator) FieldOffsets(id types.ID) []uint32 {
	return c.get(id).offsets
}

// PayloadOffset returns the offset of a variant's payload area.
func (c *Calculator) PayloadOffset(id types.ID) uint32 {
	return c.get(id).payload
}

// DiscriminantSize returns the byte width of a variant's discriminant.
func (c *Calculator) DiscriminantSize(id types.ID) uint32 {
	return c.get(id).disc
}

// Cached reports how many distinct types have been laid out.
func (c *Calculator) Cached() int {
	return len(c.cache)
}

func (c *Calculator) get(id types.ID) *entry {
	if e, ok := c.cache[id]; ok {
		return e
	}
	e := c.compute(id)
	c.cache[id] = e
	return e
}

func scalar(size uint32, flat wasm.ValType) *entry {
	return &entry{info: Info{Size: size, Align: size, Flat: []wasm.ValType{flat}}}
}

func (c *Calculator) compute(id types.ID) *entry {
	n := c.graph.Node(id)
	switch n.Kind {
	case types.KindBool, types.KindU8, types.KindS8:
		return scalar(1, wasm.ValI32)
	case types.KindU16, types.KindS16:
		return scalar(2, wasm.ValI32)
	case types.KindU32, types.KindS32, types.KindChar, types.KindOwn, types.KindBorrow:
		return scalar(4, wasm.ValI32)
	case types.KindF32:
		return scalar(4, wasm.ValF32)
	case types.KindU64, types.KindS64:
		return scalar(8, wasm.ValI64)
	case types.KindF64:
		return scalar(8, wasm.ValF64)
	case types.KindString, types.KindList:
		return &entry{info: Info{Size: 8, Align: 4, Flat: []wasm.ValType{wasm.ValI32, wasm.ValI32}}}
	case types.KindRecord:
		ids := make([]types.ID, len(n.Fields))
		for i, f := range n.Fields {
			ids[i] = f.Type
		}
		info, offsets := c.Sequence(ids)
		return &entry{info: info, offsets: offsets}
	case types.KindTuple:
		info, offsets := c.Sequence(n.Types)
		return &entry{info: info, offsets: offsets}
	case types.KindFlags:
		return flagsEntry(len(n.Flags))
	case types.KindVariant, types.KindOption, types.KindResult, types.KindEnum:
		return c.variant(n.Cases)
	}
	return &entry{info: Info{Align: 1}}
}

// Sequence lays out ids as consecutive fields, as for a record or tuple.
// Parameter and result lists passed through memory use this layout.
func (c *Calculator) Sequence(ids []types.ID) (Info, []uint32) {
	offsets := make([]uint32, len(ids))
	align := uint32(1)
	offset := uint32(0)
	var flat []wasm.ValType

	for i, id := range ids {
		fl := c.Info(id)
		offset = AlignTo(offset, fl.Align)
		offsets[i] = offset
		offset += fl.Size
		if fl.Align > align {
			align = fl.Align
		}
		flat = append(flat, fl.Flat...)
	}

	return Info{Size: AlignTo(offset, align), Align: align, Flat: flat}, offsets
}

func flagsEntry(n int) *entry {
	switch {
	case n == 0:
		return &entry{info: Info{Align: 1}}
	case n <= 8:
		return scalar(1, wasm.ValI32)
	case n <= 16:
		return scalar(2, wasm.ValI32)
	case n <= 32:
		return scalar(4, wasm.ValI32)
	default:
		return scalar(8, wasm.ValI64)
	}
}

func (c *Calculator) variant(cases []types.Case) *entry {
	disc := DiscriminantSize(len(cases))
	align := disc
	var maxSize uint32
	var joined []wasm.ValType

	for _, cs := range cases {
		if cs.Type == types.None {
			continue
		}
		fl := c.Info(cs.Type)
		if fl.Align > align {
			align = fl.Align
		}
		if fl.Size > maxSize {
			maxSize = fl.Size
		}
		for i, t := range fl.Flat {
			if i < len(joined) {
				joined[i] = Join(joined[i], t)
			} else {
				joined = append(joined, t)
			}
		}
	}

	payload := AlignTo(disc, align)
	flat := append([]wasm.ValType{wasm.ValI32}, joined...)
	return &entry{
		info:    Info{Size: AlignTo(payload+maxSize, align), Align: align, Flat: flat},
		payload: payload,
		disc:    disc,
	}
}

// Payload returns the flat types of case i of variant id, or nil if the
// case carries no payload.
func (c *Calculator) Payload(id types.ID, i int) []wasm.ValType {
	cs := c.graph.Node(id).Cases[i]
	if cs.Type == types.None {
		return nil
	}
	return c.Info(cs.Type).Flat
}

// Join merges two flat slot types of different variant cases.
func Join(a, b wasm.ValType) wasm.ValType {
	if a == b {
		return a
	}
	if (a == wasm.ValI32 && b == wasm.ValF32) || (a == wasm.ValF32 && b == wasm.ValI32) {
		return wasm.ValI32
	}
	return wasm.ValI64
}

// DiscriminantSize returns the smallest unsigned width covering n cases.
func DiscriminantSize(n int) uint32 {
	switch {
	case n <= 1<<8:
		return 1
	case n <= 1<<16:
		return 2
	default:
		return 4
	}
}

// AlignTo rounds offset up to a multiple of align.
func AlignTo(offset, align uint32) uint32 {
	if align <= 1 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// Plain reports whether memory values of id can be copied byte for byte
// between memories: no pointers, handles or bit patterns needing checks.
func (c *Calculator) Plain(id types.ID) bool {
	n := c.graph.Node(id)
	switch n.Kind {
	case types.KindU8, types.KindS8, types.KindU16, types.KindS16,
		types.KindU32, types.KindS32, types.KindU64, types.KindS64,
		types.KindF32, types.KindF64:
		return true
	case types.KindRecord:
		for _, f := range n.Fields {
			if !c.Plain(f.Type) {
				return false
			}
		}
		return true
	case types.KindTuple:
		for _, t := range n.Types {
			if !c.Plain(t) {
				return false
			}
		}
		return true
	}
	return false
}
