package value

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/wippyai/wasm-adapter/codegen"
	"github.com/wippyai/wasm-adapter/errors"
	"github.com/wippyai/wasm-adapter/layout"
	"github.com/wippyai/wasm-adapter/types"
)

// Codec converts values of the types in one graph. It is safe for
// concurrent use once built, provided the calculator is not shared with
// code that lays out new types at the same time.
type Codec struct {
	calc     *layout.Calculator
	graph    *types.Graph
	encoding codegen.Encoding
	flags    codegen.FlagsPolicy
}

// Option configures a Codec.
type Option func(*Codec)

// WithEncoding sets the string encoding of the memory side. UTF-8 is the
// default.
func WithEncoding(e codegen.Encoding) Option {
	return func(c *Codec) { c.encoding = e }
}

// WithFlags sets how undeclared flag bits are treated.
func WithFlags(p codegen.FlagsPolicy) Option {
	return func(c *Codec) { c.flags = p }
}

// NewCodec creates a codec over calc's graph.
func NewCodec(calc *layout.Calculator, opts ...Option) *Codec {
	c := &Codec{calc: calc, graph: calc.Graph()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Calculator returns the layout calculator the codec uses.
func (c *Codec) Calculator() *layout.Calculator {
	return c.calc
}

// Encoding returns the string encoding.
func (c *Codec) Encoding() codegen.Encoding {
	return c.encoding
}

func (c *Codec) mismatch(phase errors.Phase, path []string, v any, id types.ID) error {
	return errors.TypeMismatch(phase, path, fmt.Sprintf("%T", v), c.graph.Describe(id))
}

// scalarBits converts a Go scalar to its core value, zero-extended to 64
// bits. Narrow signed integers are sign-extended to 32 bits first.
func (c *Codec) scalarBits(id types.ID, v any, path []string) (uint64, error) {
	n := c.graph.Node(id)
	bad := func() (uint64, error) { return 0, c.mismatch(errors.PhaseEncode, path, v, id) }

	switch n.Kind {
	case types.KindBool:
		b, ok := v.(bool)
		if !ok {
			return bad()
		}
		if b {
			return 1, nil
		}
		return 0, nil
	case types.KindU8:
		x, ok := v.(uint8)
		if !ok {
			return bad()
		}
		return uint64(x), nil
	case types.KindS8:
		x, ok := v.(int8)
		if !ok {
			return bad()
		}
		return uint64(uint32(int32(x))), nil
	case types.KindU16:
		x, ok := v.(uint16)
		if !ok {
			return bad()
		}
		return uint64(x), nil
	case types.KindS16:
		x, ok := v.(int16)
		if !ok {
			return bad()
		}
		return uint64(uint32(int32(x))), nil
	case types.KindU32:
		x, ok := v.(uint32)
		if !ok {
			return bad()
		}
		return uint64(x), nil
	case types.KindS32:
		x, ok := v.(int32)
		if !ok {
			return bad()
		}
		return uint64(uint32(x)), nil
	case types.KindU64:
		x, ok := v.(uint64)
		if !ok {
			return bad()
		}
		return x, nil
	case types.KindS64:
		x, ok := v.(int64)
		if !ok {
			return bad()
		}
		return uint64(x), nil
	case types.KindF32:
		x, ok := v.(float32)
		if !ok {
			return bad()
		}
		return uint64(math.Float32bits(x)), nil
	case types.KindF64:
		x, ok := v.(float64)
		if !ok {
			return bad()
		}
		return math.Float64bits(x), nil
	case types.KindChar:
		r, ok := v.(rune)
		if !ok {
			return bad()
		}
		if !validChar(uint32(r)) {
			return 0, errors.InvalidChar(path, uint32(r))
		}
		return uint64(uint32(r)), nil
	case types.KindFlags:
		x, ok := v.(uint64)
		if !ok {
			return bad()
		}
		return c.checkFlags(len(n.Flags), x, path)
	case types.KindOwn, types.KindBorrow:
		h, ok := v.(Handle)
		if !ok {
			return bad()
		}
		return uint64(h), nil
	}
	return bad()
}

// scalarValue converts a core value back to Go, validating it. For i32
// kinds only the low 32 bits are significant.
func (c *Codec) scalarValue(id types.ID, raw uint64, path []string) (any, error) {
	n := c.graph.Node(id)
	w := uint32(raw)
	switch n.Kind {
	case types.KindBool:
		if w > 1 {
			return nil, errors.FaultAt(errors.NewFault(errors.FaultInvalidBoolean, "bool value %d", w), path...)
		}
		return w == 1, nil
	case types.KindU8:
		if w > math.MaxUint8 {
			return nil, outOfRange(path, int64(w), "u8")
		}
		return uint8(w), nil
	case types.KindS8:
		s := int32(w)
		if s < math.MinInt8 || s > math.MaxInt8 {
			return nil, outOfRange(path, int64(s), "s8")
		}
		return int8(s), nil
	case types.KindU16:
		if w > math.MaxUint16 {
			return nil, outOfRange(path, int64(w), "u16")
		}
		return uint16(w), nil
	case types.KindS16:
		s := int32(w)
		if s < math.MinInt16 || s > math.MaxInt16 {
			return nil, outOfRange(path, int64(s), "s16")
		}
		return int16(s), nil
	case types.KindU32:
		return w, nil
	case types.KindS32:
		return int32(w), nil
	case types.KindU64:
		return raw, nil
	case types.KindS64:
		return int64(raw), nil
	case types.KindF32:
		return math.Float32frombits(w), nil
	case types.KindF64:
		return math.Float64frombits(raw), nil
	case types.KindChar:
		if !validChar(w) {
			return nil, errors.InvalidChar(path, w)
		}
		return rune(w), nil
	case types.KindFlags:
		if len(n.Flags) <= 32 {
			raw = uint64(w)
		}
		return c.checkFlags(len(n.Flags), raw, path)
	case types.KindOwn, types.KindBorrow:
		return Handle(w), nil
	}
	return nil, errors.Unsupported(errors.PhaseDecode, c.graph.Describe(id))
}

// fromMemory extends a narrow memory read to the flat form scalarValue
// expects.
func fromMemory(k types.Kind, raw uint64) uint64 {
	switch k {
	case types.KindS8:
		return uint64(uint32(int32(int8(raw))))
	case types.KindS16:
		return uint64(uint32(int32(int16(raw))))
	}
	return raw
}

func (c *Codec) checkFlags(count int, v uint64, path []string) (uint64, error) {
	if count >= 64 {
		return v, nil
	}
	mask := uint64(1)<<count - 1
	if v&^mask == 0 {
		return v, nil
	}
	if c.flags == codegen.Mask {
		return v & mask, nil
	}
	return 0, errors.FaultAt(errors.NewFault(errors.FaultOutOfRangeInteger,
		"flag bit %d set but only %d flags declared", bits.Len64(v)-1, count), path...)
}

func outOfRange(path []string, v int64, typ string) error {
	return errors.FaultAt(errors.NewFault(errors.FaultOutOfRangeInteger, "%d out of range for %s", v, typ), path...)
}

func validChar(cp uint32) bool {
	return cp < 0xD800 || (cp > 0xDFFF && cp <= 0x10FFFF)
}

func isScalar(k types.Kind) bool {
	return k.IsPrimitive() || k == types.KindFlags || k.IsHandle()
}

func sub(path []string, elem string) []string {
	return append(path[:len(path):len(path)], elem)
}

func casePath(path []string, i uint32) []string {
	return sub(path, fmt.Sprintf("case%d", i))
}

func indexPath(path []string, i int) []string {
	return sub(path, fmt.Sprintf("[%d]", i))
}
