package value

import (
	wasmadapter "github.com/wippyai/wasm-adapter"
	"github.com/wippyai/wasm-adapter/errors"
	"github.com/wippyai/wasm-adapter/types"
)

type (
	Memory    = wasmadapter.Memory
	Allocator = wasmadapter.Allocator
)

func allocate(alloc Allocator, size, align uint32) (uint32, error) {
	if alloc == nil {
		return 0, errors.NotInitialized(errors.PhaseEncode, "allocator")
	}
	ptr, err := alloc.Alloc(size, align)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseEncode, size, align, err)
	}
	if ptr == 0 {
		return 0, errors.NewFault(errors.FaultAllocationFailure, "allocator returned null for %d bytes", size)
	}
	return ptr, nil
}

// readSpan checks alignment and bounds of [ptr, ptr+size) and returns a
// copy of the bytes.
func readSpan(mem Memory, ptr uint32, size uint64, align uint32, path []string) ([]byte, error) {
	if align > 1 && ptr%align != 0 {
		return nil, errors.FaultAt(errors.NewFault(errors.FaultUnalignedPointer, "pointer %#x not aligned to %d", ptr, align), path...)
	}
	if err := checkBounds(mem, ptr, size, path); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	data, err := mem.Read(ptr, uint32(size))
	if err != nil {
		return nil, errors.FaultAt(&errors.Fault{Code: errors.FaultDecodeError, Cause: err}, path...)
	}
	return append([]byte(nil), data...), nil
}

func checkBounds(mem Memory, ptr uint32, size uint64, path []string) error {
	end := uint64(ptr) + size
	if s, ok := mem.(wasmadapter.MemorySizer); ok && end > uint64(s.Size()) {
		return errors.FaultAt(errors.NewFault(errors.FaultDecodeError,
			"span [%#x, %#x) outside memory of %d bytes", ptr, end, s.Size()), path...)
	}
	if end > 1<<32 {
		return errors.FaultAt(errors.NewFault(errors.FaultDecodeError, "span [%#x, %#x) overflows", ptr, end), path...)
	}
	return nil
}

func readWidth(mem Memory, addr, size uint32) (uint64, error) {
	switch size {
	case 1:
		v, err := mem.ReadU8(addr)
		return uint64(v), err
	case 2:
		v, err := mem.ReadU16(addr)
		return uint64(v), err
	case 4:
		v, err := mem.ReadU32(addr)
		return uint64(v), err
	case 8:
		return mem.ReadU64(addr)
	}
	return 0, nil
}

func writeWidth(mem Memory, addr, size uint32, v uint64) error {
	switch size {
	case 1:
		return mem.WriteU8(addr, uint8(v))
	case 2:
		return mem.WriteU16(addr, uint16(v))
	case 4:
		return mem.WriteU32(addr, uint32(v))
	case 8:
		return mem.WriteU64(addr, v)
	}
	return nil
}

func readFault(err error, path []string) error {
	return errors.FaultAt(&errors.Fault{Code: errors.FaultDecodeError, Cause: err}, path...)
}

func writeErr(err error, path []string) error {
	return errors.New(errors.PhaseEncode, errors.KindOutOfBounds).Path(path...).Cause(err).Build()
}

// Store writes v as a value of type id at addr, allocating lists and
// strings through alloc.
func (c *Codec) Store(mem Memory, alloc Allocator, id types.ID, addr uint32, v any) error {
	return c.store(mem, alloc, id, addr, v, nil)
}

func (c *Codec) store(mem Memory, alloc Allocator, id types.ID, addr uint32, v any, path []string) error {
	n := c.graph.Node(id)
	info := c.calc.Info(id)

	switch {
	case isScalar(n.Kind):
		raw, err := c.scalarBits(id, v, path)
		if err != nil {
			return err
		}
		if err := writeWidth(mem, addr, info.Size, raw); err != nil {
			return writeErr(err, path)
		}
		return nil

	case n.Kind == types.KindString:
		s, ok := v.(string)
		if !ok {
			return c.mismatch(errors.PhaseEncode, path, v, id)
		}
		ptr, l, err := c.storeString(mem, alloc, s, path)
		if err != nil {
			return err
		}
		return c.storePair(mem, addr, ptr, l, path)

	case n.Kind == types.KindList:
		items, ok := v.([]any)
		if !ok {
			return c.mismatch(errors.PhaseEncode, path, v, id)
		}
		ptr, err := c.storeList(mem, alloc, n.Elem, items, path)
		if err != nil {
			return err
		}
		return c.storePair(mem, addr, ptr, uint32(len(items)), path)

	case n.Kind == types.KindRecord:
		fields, ok := v.(map[string]any)
		if !ok {
			return c.mismatch(errors.PhaseEncode, path, v, id)
		}
		offs := c.calc.FieldOffsets(id)
		for i, f := range n.Fields {
			fv, ok := fields[f.Name]
			if !ok {
				return errors.FieldMissing(errors.PhaseEncode, path, f.Name)
			}
			if err := c.store(mem, alloc, f.Type, addr+offs[i], fv, sub(path, f.Name)); err != nil {
				return err
			}
		}
		return nil

	case n.Kind == types.KindTuple:
		items, ok := v.([]any)
		if !ok || len(items) != len(n.Types) {
			return c.mismatch(errors.PhaseEncode, path, v, id)
		}
		offs := c.calc.FieldOffsets(id)
		for i, t := range n.Types {
			if err := c.store(mem, alloc, t, addr+offs[i], items[i], indexPath(path, i)); err != nil {
				return err
			}
		}
		return nil

	case n.Kind.IsVariant():
		vv, err := c.variant(id, v, path)
		if err != nil {
			return err
		}
		if err := writeWidth(mem, addr, c.calc.DiscriminantSize(id), uint64(vv.Case)); err != nil {
			return writeErr(err, path)
		}
		if t := n.Cases[vv.Case].Type; t != types.None {
			return c.store(mem, alloc, t, addr+c.calc.PayloadOffset(id), vv.Payload, casePath(path, vv.Case))
		}
		return nil
	}
	return errors.Unsupported(errors.PhaseEncode, c.graph.Describe(id))
}

func (c *Codec) storePair(mem Memory, addr, ptr, n uint32, path []string) error {
	if err := mem.WriteU32(addr, ptr); err != nil {
		return writeErr(err, path)
	}
	if err := mem.WriteU32(addr+4, n); err != nil {
		return writeErr(err, path)
	}
	return nil
}

// storeList allocates the element array and stores each element.
func (c *Codec) storeList(mem Memory, alloc Allocator, elem types.ID, items []any, path []string) (uint32, error) {
	if len(items) == 0 {
		return 0, nil
	}
	info := c.calc.Info(elem)
	total := uint64(info.Size) * uint64(len(items))
	if total > 1<<32-1 {
		return 0, errors.Overflow(errors.PhaseEncode, path, len(items), "list length")
	}
	if total == 0 {
		return 0, nil
	}
	ptr, err := allocate(alloc, uint32(total), info.Align)
	if err != nil {
		return 0, err
	}
	for i, item := range items {
		if err := c.store(mem, alloc, elem, ptr+uint32(i)*info.Size, item, indexPath(path, i)); err != nil {
			return 0, err
		}
	}
	return ptr, nil
}

// variant checks that v selects a valid case of id.
func (c *Codec) variant(id types.ID, v any, path []string) (Variant, error) {
	vv, ok := v.(Variant)
	if !ok {
		return Variant{}, c.mismatch(errors.PhaseEncode, path, v, id)
	}
	cases := c.graph.Node(id).Cases
	if vv.Case >= uint32(len(cases)) {
		return Variant{}, errors.InvalidDiscriminant(path, vv.Case, uint32(len(cases)))
	}
	if cases[vv.Case].Type == types.None && vv.Payload != nil {
		return Variant{}, errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
			Path(casePath(path, vv.Case)...).Detail("case %q has no payload", cases[vv.Case].Name).Build()
	}
	return vv, nil
}

// Load reads a value of type id at addr, validating it.
func (c *Codec) Load(mem Memory, id types.ID, addr uint32) (any, error) {
	return c.load(mem, id, addr, nil)
}

func (c *Codec) load(mem Memory, id types.ID, addr uint32, path []string) (any, error) {
	n := c.graph.Node(id)
	info := c.calc.Info(id)

	switch {
	case isScalar(n.Kind):
		raw, err := readWidth(mem, addr, info.Size)
		if err != nil {
			return nil, readFault(err, path)
		}
		return c.scalarValue(id, fromMemory(n.Kind, raw), path)

	case n.Kind == types.KindString:
		ptr, l, err := loadPair(mem, addr, path)
		if err != nil {
			return nil, err
		}
		return c.loadString(mem, ptr, l, path)

	case n.Kind == types.KindList:
		ptr, l, err := loadPair(mem, addr, path)
		if err != nil {
			return nil, err
		}
		return c.loadList(mem, n.Elem, ptr, l, path)

	case n.Kind == types.KindRecord:
		offs := c.calc.FieldOffsets(id)
		out := make(map[string]any, len(n.Fields))
		for i, f := range n.Fields {
			fv, err := c.load(mem, f.Type, addr+offs[i], sub(path, f.Name))
			if err != nil {
				return nil, err
			}
			out[f.Name] = fv
		}
		return out, nil

	case n.Kind == types.KindTuple:
		offs := c.calc.FieldOffsets(id)
		out := make([]any, len(n.Types))
		for i, t := range n.Types {
			ev, err := c.load(mem, t, addr+offs[i], indexPath(path, i))
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil

	case n.Kind.IsVariant():
		raw, err := readWidth(mem, addr, c.calc.DiscriminantSize(id))
		if err != nil {
			return nil, readFault(err, path)
		}
		disc := uint32(raw)
		if disc >= uint32(len(n.Cases)) {
			return nil, errors.InvalidDiscriminant(path, disc, uint32(len(n.Cases)))
		}
		out := Variant{Case: disc}
		if t := n.Cases[disc].Type; t != types.None {
			if out.Payload, err = c.load(mem, t, addr+c.calc.PayloadOffset(id), casePath(path, disc)); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return nil, errors.Unsupported(errors.PhaseDecode, c.graph.Describe(id))
}

func loadPair(mem Memory, addr uint32, path []string) (uint32, uint32, error) {
	ptr, err := mem.ReadU32(addr)
	if err != nil {
		return 0, 0, readFault(err, path)
	}
	n, err := mem.ReadU32(addr + 4)
	if err != nil {
		return 0, 0, readFault(err, path)
	}
	return ptr, n, nil
}

func (c *Codec) loadList(mem Memory, elem types.ID, ptr, n uint32, path []string) ([]any, error) {
	info := c.calc.Info(elem)
	if _, err := readSpan(mem, ptr, 0, info.Align, path); err != nil {
		return nil, err
	}
	if err := checkBounds(mem, ptr, uint64(n)*uint64(info.Size), path); err != nil {
		return nil, err
	}
	out := make([]any, n)
	for i := range out {
		ev, err := c.load(mem, elem, ptr+uint32(i)*info.Size, indexPath(path, i))
		if err != nil {
			return nil, err
		}
		out[i] = ev
	}
	return out, nil
}

// Free releases the lists and strings owned by the value of type id at
// addr. The value itself is not freed.
func (c *Codec) Free(mem Memory, alloc Allocator, id types.ID, addr uint32) error {
	if !c.owns(id) {
		return nil
	}
	n := c.graph.Node(id)
	switch n.Kind {
	case types.KindString:
		ptr, l, err := loadPair(mem, addr, nil)
		if err != nil {
			return err
		}
		if l != 0 {
			unit := c.encoding.CodeUnit()
			alloc.Free(ptr, l*unit, unit)
		}
	case types.KindList:
		ptr, l, err := loadPair(mem, addr, nil)
		if err != nil || l == 0 {
			return err
		}
		info := c.calc.Info(n.Elem)
		for i := uint32(0); i < l; i++ {
			if err := c.Free(mem, alloc, n.Elem, ptr+i*info.Size); err != nil {
				return err
			}
		}
		if info.Size != 0 {
			alloc.Free(ptr, l*info.Size, info.Align)
		}
	case types.KindRecord, types.KindTuple:
		offs := c.calc.FieldOffsets(id)
		for i, t := range c.graph.Children(id) {
			if err := c.Free(mem, alloc, t, addr+offs[i]); err != nil {
				return err
			}
		}
	case types.KindVariant, types.KindOption, types.KindResult:
		raw, err := readWidth(mem, addr, c.calc.DiscriminantSize(id))
		if err != nil {
			return readFault(err, nil)
		}
		if raw >= uint64(len(n.Cases)) {
			return errors.InvalidDiscriminant(nil, uint32(raw), uint32(len(n.Cases)))
		}
		if t := n.Cases[raw].Type; t != types.None {
			return c.Free(mem, alloc, t, addr+c.calc.PayloadOffset(id))
		}
	}
	return nil
}

// owns reports whether values of id hold memory of their own.
func (c *Codec) owns(id types.ID) bool {
	return c.graph.Contains(id, func(k types.Kind) bool {
		return k == types.KindString || k == types.KindList
	})
}
