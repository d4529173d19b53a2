package value

import (
	"github.com/wippyai/wasm-adapter/errors"
	"github.com/wippyai/wasm-adapter/types"
)

// Lower flattens v into core values. Strings and lists are stored in mem
// and passed as (ptr, len).
func (c *Codec) Lower(mem Memory, alloc Allocator, id types.ID, v any) ([]uint64, error) {
	out := make([]uint64, 0, c.calc.Info(id).FlatCount())
	return c.lower(mem, alloc, id, v, out, nil)
}

func (c *Codec) lower(mem Memory, alloc Allocator, id types.ID, v any, out []uint64, path []string) ([]uint64, error) {
	n := c.graph.Node(id)

	switch {
	case isScalar(n.Kind):
		if len(c.calc.Info(id).Flat) == 0 {
			// zero-name flags
			_, err := c.scalarBits(id, v, path)
			return out, err
		}
		raw, err := c.scalarBits(id, v, path)
		if err != nil {
			return nil, err
		}
		return append(out, raw), nil

	case n.Kind == types.KindString:
		s, ok := v.(string)
		if !ok {
			return nil, c.mismatch(errors.PhaseEncode, path, v, id)
		}
		ptr, l, err := c.storeString(mem, alloc, s, path)
		if err != nil {
			return nil, err
		}
		return append(out, uint64(ptr), uint64(l)), nil

	case n.Kind == types.KindList:
		items, ok := v.([]any)
		if !ok {
			return nil, c.mismatch(errors.PhaseEncode, path, v, id)
		}
		ptr, err := c.storeList(mem, alloc, n.Elem, items, path)
		if err != nil {
			return nil, err
		}
		return append(out, uint64(ptr), uint64(len(items))), nil

	case n.Kind == types.KindRecord:
		fields, ok := v.(map[string]any)
		if !ok {
			return nil, c.mismatch(errors.PhaseEncode, path, v, id)
		}
		var err error
		for _, f := range n.Fields {
			fv, ok := fields[f.Name]
			if !ok {
				return nil, errors.FieldMissing(errors.PhaseEncode, path, f.Name)
			}
			if out, err = c.lower(mem, alloc, f.Type, fv, out, sub(path, f.Name)); err != nil {
				return nil, err
			}
		}
		return out, nil

	case n.Kind == types.KindTuple:
		items, ok := v.([]any)
		if !ok || len(items) != len(n.Types) {
			return nil, c.mismatch(errors.PhaseEncode, path, v, id)
		}
		var err error
		for i, t := range n.Types {
			if out, err = c.lower(mem, alloc, t, items[i], out, indexPath(path, i)); err != nil {
				return nil, err
			}
		}
		return out, nil

	case n.Kind.IsVariant():
		vv, err := c.variant(id, v, path)
		if err != nil {
			return nil, err
		}
		out = append(out, uint64(vv.Case))
		start := len(out)
		if t := n.Cases[vv.Case].Type; t != types.None {
			if out, err = c.lower(mem, alloc, t, vv.Payload, out, casePath(path, vv.Case)); err != nil {
				return nil, err
			}
		}
		// Payload bits are kept zero-extended, so widening to the joined
		// slot type leaves them unchanged. Unused slots stay zero.
		for len(out) < start+len(c.calc.Info(id).Flat)-1 {
			out = append(out, 0)
		}
		return out, nil
	}
	return nil, errors.Unsupported(errors.PhaseEncode, c.graph.Describe(id))
}

// Lift rebuilds a value of type id from its core values, reading strings
// and lists from mem. flat must hold exactly the type's flat count.
func (c *Codec) Lift(mem Memory, id types.ID, flat []uint64) (any, error) {
	want := c.calc.Info(id).FlatCount()
	if len(flat) != want {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			WitType(c.graph.Describe(id)).Detail("expected %d core values, got %d", want, len(flat)).Build()
	}
	v, _, err := c.lift(mem, id, flat, nil)
	return v, err
}

// lift consumes the leading core values of flat and returns the rest.
func (c *Codec) lift(mem Memory, id types.ID, flat []uint64, path []string) (any, []uint64, error) {
	n := c.graph.Node(id)

	switch {
	case isScalar(n.Kind):
		if len(c.calc.Info(id).Flat) == 0 {
			return uint64(0), flat, nil
		}
		v, err := c.scalarValue(id, flat[0], path)
		return v, flat[1:], err

	case n.Kind == types.KindString:
		s, err := c.loadString(mem, uint32(flat[0]), uint32(flat[1]), path)
		return s, flat[2:], err

	case n.Kind == types.KindList:
		items, err := c.loadList(mem, n.Elem, uint32(flat[0]), uint32(flat[1]), path)
		return items, flat[2:], err

	case n.Kind == types.KindRecord:
		out := make(map[string]any, len(n.Fields))
		for _, f := range n.Fields {
			fv, rest, err := c.lift(mem, f.Type, flat, sub(path, f.Name))
			if err != nil {
				return nil, nil, err
			}
			out[f.Name] = fv
			flat = rest
		}
		return out, flat, nil

	case n.Kind == types.KindTuple:
		out := make([]any, len(n.Types))
		for i, t := range n.Types {
			ev, rest, err := c.lift(mem, t, flat, indexPath(path, i))
			if err != nil {
				return nil, nil, err
			}
			out[i] = ev
			flat = rest
		}
		return out, flat, nil

	case n.Kind.IsVariant():
		disc := uint32(flat[0])
		if disc >= uint32(len(n.Cases)) {
			return nil, nil, errors.InvalidDiscriminant(path, disc, uint32(len(n.Cases)))
		}
		slots := len(c.calc.Info(id).Flat) - 1
		payload := flat[1 : 1+slots]
		out := Variant{Case: disc}
		if t := n.Cases[disc].Type; t != types.None {
			// Narrowing from the joined slot keeps the low bits, which
			// scalarValue does for every i32 and f32 kind.
			v, _, err := c.lift(mem, t, payload, casePath(path, disc))
			if err != nil {
				return nil, nil, err
			}
			out.Payload = v
		}
		return out, flat[1+slots:], nil
	}
	return nil, nil, errors.Unsupported(errors.PhaseDecode, c.graph.Describe(id))
}

// FreeFlat releases the lists and strings owned by a value held in core
// values, the counterpart of Free for results returned on the stack.
func (c *Codec) FreeFlat(mem Memory, alloc Allocator, id types.ID, flat []uint64) error {
	if !c.owns(id) {
		return nil
	}
	_, err := c.freeFlat(mem, alloc, id, flat)
	return err
}

func (c *Codec) freeFlat(mem Memory, alloc Allocator, id types.ID, flat []uint64) ([]uint64, error) {
	n := c.graph.Node(id)
	width := len(c.calc.Info(id).Flat)
	if !c.owns(id) {
		return flat[width:], nil
	}

	switch {
	case n.Kind == types.KindString, n.Kind == types.KindList:
		ptr, l := uint32(flat[0]), uint32(flat[1])
		if l != 0 {
			unit := c.encoding.CodeUnit()
			if n.Kind == types.KindList {
				info := c.calc.Info(n.Elem)
				for i := uint32(0); i < l; i++ {
					if err := c.Free(mem, alloc, n.Elem, ptr+i*info.Size); err != nil {
						return nil, err
					}
				}
				if info.Size != 0 {
					alloc.Free(ptr, l*info.Size, info.Align)
				}
			} else {
				alloc.Free(ptr, l*unit, unit)
			}
		}
		return flat[2:], nil

	case n.Kind == types.KindRecord, n.Kind == types.KindTuple:
		for _, t := range c.graph.Children(id) {
			rest, err := c.freeFlat(mem, alloc, t, flat)
			if err != nil {
				return nil, err
			}
			flat = rest
		}
		return flat, nil

	case n.Kind.IsVariant():
		disc := flat[0]
		if disc >= uint64(len(n.Cases)) {
			return nil, errors.InvalidDiscriminant(nil, uint32(disc), uint32(len(n.Cases)))
		}
		if t := n.Cases[disc].Type; t != types.None {
			if _, err := c.freeFlat(mem, alloc, t, flat[1:width]); err != nil {
				return nil, err
			}
		}
		return flat[width:], nil
	}
	return flat[width:], nil
}
