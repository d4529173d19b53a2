package value

import (
	"math"
	"testing"

	"github.com/go-quicktest/qt"
	"github.com/wippyai/wasm-adapter/codegen"
	"github.com/wippyai/wasm-adapter/errors"
	"github.com/wippyai/wasm-adapter/layout"
	"github.com/wippyai/wasm-adapter/types"
)

type fixture struct {
	g     *types.Graph
	codec *Codec
	mem   *sliceMemory
	alloc *bumpAllocator
}

func newFixture(opts ...Option) *fixture {
	g := types.NewGraph()
	return &fixture{
		g:     g,
		codec: NewCodec(layout.NewCalculator(g), opts...),
		mem:   newSliceMemory(64 * 1024),
		alloc: newBumpAllocator(),
	}
}

func qtFault(t *testing.T, err error, code errors.FaultCode) {
	t.Helper()
	f, ok := errors.AsFault(err)
	qt.Assert(t, qt.IsTrue(ok), qt.Commentf("error %v", err))
	qt.Assert(t, qt.Equals(f.Code, code))
}

func TestCodec_StoreLoad(t *testing.T) {
	f := newFixture()
	g := f.g
	point := types.Must(g.Record(
		types.Field{Name: "x", Type: g.S32()},
		types.Field{Name: "y", Type: g.F64()},
		types.Field{Name: "tag", Type: g.Char()},
	))
	shape := types.Must(g.Variant(
		types.Case{Name: "empty"},
		types.Case{Name: "point", Type: point},
		types.Case{Name: "label", Type: g.StringType()},
	))

	tests := []struct {
		name string
		id   types.ID
		v    any
	}{
		{"bool", g.Bool(), true},
		{"u8", g.U8(), uint8(255)},
		{"s8", g.S8(), int8(-128)},
		{"u16", g.U16(), uint16(65535)},
		{"s16", g.S16(), int16(-32768)},
		{"u32", g.U32(), uint32(math.MaxUint32)},
		{"s64", g.S64(), int64(math.MinInt64)},
		{"f32 inf", g.F32(), float32(math.Inf(-1))},
		{"char", g.Char(), '⚑'},
		{"empty string", g.StringType(), ""},
		{"string", g.StringType(), "hello ⚑ world"},
		{"empty list", types.Must(g.List(g.U32())), []any{}},
		{"list", types.Must(g.List(g.U32())), []any{uint32(1), uint32(2), uint32(3), uint32(4), uint32(5)}},
		{"list of strings", types.Must(g.List(g.StringType())), []any{"a", "", "bc"}},
		{"record", point, map[string]any{"x": int32(-7), "y": 2.5, "tag": 'z'}},
		{"tuple", types.Must(g.Tuple(g.U8(), g.StringType(), g.U64())), []any{uint8(1), "two", uint64(3)}},
		{"variant empty", shape, Variant{Case: 0}},
		{"variant record", shape, Variant{Case: 1, Payload: map[string]any{"x": int32(1), "y": 0.0, "tag": 'a'}}},
		{"variant string", shape, Variant{Case: 2, Payload: "label"}},
		{"option none", types.Must(g.Option(g.StringType())), None()},
		{"option some", types.Must(g.Option(g.StringType())), Some("x")},
		{"result err", types.Must(g.Result(types.None, g.U16())), Err(uint16(9))},
		{"result ok", types.Must(g.Result(types.None, g.U16())), Ok(nil)},
		{"enum", types.Must(g.Enum("a", "b", "c")), Enum(2)},
		{"flags", types.Must(g.Flags("r", "w", "x")), uint64(5)},
		{"wide flags", types.Must(g.Flags(names(40)...)), uint64(1) << 39},
		{"handle", types.Must(g.Own(g.Resource("file"))), Handle(3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := uint32(64)
			err := f.codec.Store(f.mem, f.alloc, tt.id, addr, tt.v)
			qt.Assert(t, qt.IsNil(err))
			got, err := f.codec.Load(f.mem, tt.id, addr)
			qt.Assert(t, qt.IsNil(err))
			qt.Assert(t, qt.DeepEquals(got, tt.v))
		})
	}
}

func names(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune('a'+i%26)) + string(rune('a'+i/26))
	}
	return out
}

func TestCodec_LowerLift(t *testing.T) {
	f := newFixture()
	g := f.g
	res := types.Must(g.Result(g.F32(), g.U64()))
	small := types.Must(g.Record(
		types.Field{Name: "a", Type: g.U8()},
		types.Field{Name: "b", Type: g.StringType()},
	))

	tests := []struct {
		name string
		id   types.ID
		v    any
		flat []uint64
	}{
		{"s8", g.S8(), int8(-1), []uint64{0xFFFFFFFF}},
		{"f32", g.F32(), float32(1.5), []uint64{uint64(math.Float32bits(1.5))}},
		{"f64 -inf", g.F64(), math.Inf(-1), []uint64{math.Float64bits(math.Inf(-1))}},
		{"result ok", res, Ok(float32(2)), []uint64{0, uint64(math.Float32bits(2))}},
		{"result err", res, Err(uint64(math.MaxUint64)), []uint64{1, math.MaxUint64}},
		{"option none pads", types.Must(g.Option(g.U64())), None(), []uint64{0, 0}},
		{"record", small, map[string]any{"a": uint8(4), "b": ""}, []uint64{4, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flat, err := f.codec.Lower(f.mem, f.alloc, tt.id, tt.v)
			qt.Assert(t, qt.IsNil(err))
			qt.Assert(t, qt.DeepEquals(flat, tt.flat))
			got, err := f.codec.Lift(f.mem, tt.id, flat)
			qt.Assert(t, qt.IsNil(err))
			qt.Assert(t, qt.DeepEquals(got, tt.v))
		})
	}

	t.Run("nan", func(t *testing.T) {
		nan := math.Float32frombits(0x7FC00001)
		flat, err := f.codec.Lower(f.mem, f.alloc, g.F32(), nan)
		qt.Assert(t, qt.IsNil(err))
		got, err := f.codec.Lift(f.mem, g.F32(), flat)
		qt.Assert(t, qt.IsNil(err))
		qt.Assert(t, qt.Equals(math.Float32bits(got.(float32)), 0x7FC00001))
	})

	t.Run("string", func(t *testing.T) {
		flat, err := f.codec.Lower(f.mem, f.alloc, g.StringType(), "hello ⚑ world")
		qt.Assert(t, qt.IsNil(err))
		qt.Assert(t, qt.HasLen(flat, 2))
		got, err := f.codec.Lift(f.mem, g.StringType(), flat)
		qt.Assert(t, qt.IsNil(err))
		qt.Assert(t, qt.Equals(got.(string), "hello ⚑ world"))
	})

	t.Run("wrong count", func(t *testing.T) {
		_, err := f.codec.Lift(f.mem, g.StringType(), []uint64{1})
		qt.Assert(t, qt.ErrorIs(err, error(&errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindInvalidData})))
	})
}

func TestCodec_LiftFaults(t *testing.T) {
	f := newFixture()
	g := f.g
	tests := []struct {
		name string
		id   types.ID
		flat []uint64
		code errors.FaultCode
	}{
		{"bool", g.Bool(), []uint64{2}, errors.FaultInvalidBoolean},
		{"u8", g.U8(), []uint64{256}, errors.FaultOutOfRangeInteger},
		{"s8", g.S8(), []uint64{128}, errors.FaultOutOfRangeInteger},
		{"u16", g.U16(), []uint64{1 << 16}, errors.FaultOutOfRangeInteger},
		{"char surrogate", g.Char(), []uint64{0xD800}, errors.FaultInvalidChar},
		{"char too large", g.Char(), []uint64{0x110000}, errors.FaultInvalidChar},
		{"enum", types.Must(g.Enum("a", "b")), []uint64{2}, errors.FaultInvalidDiscriminant},
		{"flags", types.Must(g.Flags("a")), []uint64{2}, errors.FaultOutOfRangeInteger},
		{"string bounds", g.StringType(), []uint64{65530, 10}, errors.FaultDecodeError},
		{"list alignment", types.Must(g.List(g.U32())), []uint64{66, 1}, errors.FaultUnalignedPointer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.codec.Lift(f.mem, tt.id, tt.flat)
			qtFault(t, err, tt.code)
		})
	}
}

func TestCodec_LoadFaults(t *testing.T) {
	f := newFixture()
	g := f.g
	str := g.StringType()

	f.mem.WriteU8(0, 2)
	_, err := f.codec.Load(f.mem, g.Bool(), 0)
	qtFault(t, err, errors.FaultInvalidBoolean)

	f.mem.WriteU32(0, 0xDFFF)
	_, err = f.codec.Load(f.mem, g.Char(), 0)
	qtFault(t, err, errors.FaultInvalidChar)

	opt := types.Must(g.Option(g.U8()))
	f.mem.WriteU8(0, 2)
	_, err = f.codec.Load(f.mem, opt, 0)
	qtFault(t, err, errors.FaultInvalidDiscriminant)

	for _, bad := range [][]byte{{0xC0, 0x80}, {0xED, 0xA0, 0x80}, {'a', 0xE2}} {
		f.mem.Write(100, bad)
		f.mem.WriteU32(0, 100)
		f.mem.WriteU32(4, uint32(len(bad)))
		_, err = f.codec.Load(f.mem, str, 0)
		qtFault(t, err, errors.FaultDecodeError)
	}
}

func TestCodec_Flags(t *testing.T) {
	for _, tt := range []struct {
		policy codegen.FlagsPolicy
		want   uint64
		fault  bool
	}{
		{codegen.Reject, 0, true},
		{codegen.Mask, 3, false},
	} {
		f := newFixture(WithFlags(tt.policy))
		flags := types.Must(f.g.Flags("a", "b"))
		_, err := f.codec.Lower(f.mem, f.alloc, flags, uint64(0xFF))
		if tt.fault {
			qtFault(t, err, errors.FaultOutOfRangeInteger)
			continue
		}
		qt.Assert(t, qt.IsNil(err))
		got, err := f.codec.Lift(f.mem, flags, []uint64{0xFF})
		qt.Assert(t, qt.IsNil(err))
		qt.Assert(t, qt.Equals(got.(uint64), tt.want))
	}
}

func TestCodec_UTF16(t *testing.T) {
	f := newFixture(WithEncoding(codegen.UTF16))
	str := f.g.StringType()

	for _, s := range []string{"", "hello ⚑ world", "𝄞"} {
		flat, err := f.codec.Lower(f.mem, f.alloc, str, s)
		qt.Assert(t, qt.IsNil(err))
		got, err := f.codec.Lift(f.mem, str, flat)
		qt.Assert(t, qt.IsNil(err))
		qt.Assert(t, qt.Equals(got.(string), s))
	}

	flat, err := f.codec.Lower(f.mem, f.alloc, str, "𝄞")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(flat[1], uint64(2)), qt.Commentf("length counts code units"))

	f.mem.Write(200, []byte{0x34, 0xD8, 'a', 0})
	_, err = f.codec.Lift(f.mem, str, []uint64{200, 2})
	qtFault(t, err, errors.FaultDecodeError)

	_, err = f.codec.Lift(f.mem, str, []uint64{201, 1})
	qtFault(t, err, errors.FaultUnalignedPointer)
}

func TestCodec_StoreErrors(t *testing.T) {
	f := newFixture()
	g := f.g
	rec := types.Must(g.Record(types.Field{Name: "a", Type: g.U8()}))

	err := f.codec.Store(f.mem, f.alloc, g.U8(), 0, 300)
	qt.Assert(t, qt.ErrorIs(err, error(&errors.Error{Phase: errors.PhaseEncode, Kind: errors.KindTypeMismatch})))

	err = f.codec.Store(f.mem, f.alloc, rec, 0, map[string]any{})
	qt.Assert(t, qt.ErrorIs(err, error(&errors.Error{Phase: errors.PhaseEncode, Kind: errors.KindFieldMissing})))

	err = f.codec.Store(f.mem, f.alloc, g.Char(), 0, rune(0xD800))
	qt.Assert(t, qt.ErrorIs(err, error(errors.ErrInvalidChar)))

	err = f.codec.Store(f.mem, f.alloc, types.Must(g.Enum("a")), 0, Enum(1))
	qt.Assert(t, qt.ErrorIs(err, error(errors.ErrInvalidDiscriminant)))

	f.alloc.fail = true
	err = f.codec.Store(f.mem, f.alloc, g.StringType(), 0, "x")
	qt.Assert(t, qt.ErrorIs(err, error(errors.ErrAllocationFailure)))
}

func TestCodec_FreeBalance(t *testing.T) {
	f := newFixture()
	g := f.g
	inner := types.Must(g.Record(
		types.Field{Name: "name", Type: g.StringType()},
		types.Field{Name: "tags", Type: types.Must(g.List(g.StringType()))},
	))
	id := types.Must(g.List(types.Must(g.Option(inner))))
	v := []any{
		Some(map[string]any{"name": "a", "tags": []any{"x", "yz"}}),
		None(),
		Some(map[string]any{"name": "", "tags": []any{}}),
	}

	for i := 0; i < 100; i++ {
		qt.Assert(t, qt.IsNil(f.codec.Store(f.mem, f.alloc, id, 16, v)))
		qt.Assert(t, qt.IsNil(f.codec.Free(f.mem, f.alloc, id, 16)))
	}
	qt.Assert(t, qt.Equals(f.alloc.liveBytes(), uint32(0)))
}

func TestCodec_FreeFlat(t *testing.T) {
	f := newFixture()
	g := f.g
	id := types.Must(g.Tuple(
		g.U32(),
		types.Must(g.Result(types.Must(g.List(g.StringType())), g.U8())),
		g.StringType(),
	))
	v := []any{uint32(7), Ok([]any{"a", "bc"}), "tail"}

	for i := 0; i < 10; i++ {
		flat, err := f.codec.Lower(f.mem, f.alloc, id, v)
		qt.Assert(t, qt.IsNil(err))
		qt.Assert(t, qt.IsNil(f.codec.FreeFlat(f.mem, f.alloc, id, flat)))
	}
	qt.Assert(t, qt.Equals(f.alloc.liveBytes(), uint32(0)))
}

func TestAllocations(t *testing.T) {
	f := newFixture()
	tr := Track(f.alloc)
	defer tr.Release()

	_, err := f.codec.Lower(f.mem, tr, types.Must(f.g.List(f.g.StringType())), []any{"one", "two"})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(tr.Count(), 3))
	qt.Assert(t, qt.Equals(tr.List()[0].Size, uint32(16)))

	tr.FreeAll()
	qt.Assert(t, qt.Equals(tr.Count(), 0))
	qt.Assert(t, qt.Equals(f.alloc.liveBytes(), uint32(0)))
}
