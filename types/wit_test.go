package types

import (
	stderrors "errors"
	"testing"

	"github.com/wippyai/wasm-adapter/errors"
	"go.bytecodealliance.org/wit"
)

func TestFromWIT_Primitives(t *testing.T) {
	g := NewGraph()
	tests := []struct {
		in   wit.Type
		want ID
	}{
		{wit.Bool{}, g.Bool()},
		{wit.U8{}, g.U8()},
		{wit.S16{}, g.S16()},
		{wit.U32{}, g.U32()},
		{wit.S64{}, g.S64()},
		{wit.F32{}, g.F32()},
		{wit.F64{}, g.F64()},
		{wit.Char{}, g.Char()},
		{wit.String{}, g.StringType()},
	}
	for _, tt := range tests {
		got, err := g.FromWIT(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("FromWIT(%T) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}
}

func TestFromWIT_Compound(t *testing.T) {
	g := NewGraph()
	point := &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{
		{Name: "x", Type: wit.S32{}},
		{Name: "y", Type: wit.S32{}},
	}}}
	shape := &wit.TypeDef{Kind: &wit.Variant{Cases: []wit.Case{
		{Name: "dot", Type: point},
		{Name: "line", Type: &wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{point, point}}}},
		{Name: "empty"},
	}}}
	list := &wit.TypeDef{Kind: &wit.List{Type: shape}}

	id, err := g.FromWIT(list)
	if err != nil {
		t.Fatalf("FromWIT: %v", err)
	}
	want := "list<variant{dot(record{x: s32, y: s32}), line(tuple<record{x: s32, y: s32}, record{x: s32, y: s32}>), empty}>"
	if got := g.Describe(id); got != want {
		t.Errorf("Describe = %q\nwant %q", got, want)
	}

	before := g.Len()
	again, err := g.FromWIT(list)
	if err != nil || again != id || g.Len() != before {
		t.Errorf("second compile should be memoized: %d vs %d, len %d vs %d", again, id, g.Len(), before)
	}
}

func TestFromWIT_OptionResultEnumFlags(t *testing.T) {
	g := NewGraph()
	tests := []struct {
		def  *wit.TypeDef
		want string
	}{
		{&wit.TypeDef{Kind: &wit.Option{Type: wit.String{}}}, "option<string>"},
		{&wit.TypeDef{Kind: &wit.Result{OK: wit.U32{}, Err: wit.String{}}}, "result<u32, string>"},
		{&wit.TypeDef{Kind: &wit.Result{}}, "result<_, _>"},
		{&wit.TypeDef{Kind: &wit.Enum{Cases: []wit.EnumCase{{Name: "a"}, {Name: "b"}}}}, "enum{a, b}"},
		{&wit.TypeDef{Kind: &wit.Flags{Flags: []wit.Flag{{Name: "r"}, {Name: "w"}}}}, "flags{r, w}"},
	}
	for _, tt := range tests {
		id, err := g.FromWIT(tt.def)
		if err != nil {
			t.Errorf("FromWIT(%s): %v", tt.want, err)
			continue
		}
		if got := g.Describe(id); got != tt.want {
			t.Errorf("Describe = %q, want %q", got, tt.want)
		}
	}
}

func TestFromWIT_Resources(t *testing.T) {
	g := NewGraph()
	resDef := &wit.TypeDef{Kind: &wit.Resource{}}
	own := &wit.TypeDef{Kind: &wit.Own{Type: resDef}}

	_, err := g.FromWIT(own)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseCompile, Kind: errors.KindNotFound}) {
		t.Fatalf("unbound resource err = %v", err)
	}

	r := g.Resource("counter")
	if err := g.BindResource(resDef, r); err != nil {
		t.Fatalf("BindResource: %v", err)
	}
	id, err := g.FromWIT(own)
	if err != nil {
		t.Fatalf("FromWIT(own): %v", err)
	}
	if got := g.Describe(id); got != "own<counter>" {
		t.Errorf("Describe = %q", got)
	}

	borrow := &wit.TypeDef{Kind: &wit.Borrow{Type: resDef}}
	id, err = g.FromWIT(borrow)
	if err != nil || g.Kind(id) != KindBorrow {
		t.Errorf("FromWIT(borrow) = %v, %v", id, err)
	}

	if err := g.BindResource(&wit.TypeDef{Kind: &wit.Record{}}, r); err == nil {
		t.Error("binding a non-resource should fail")
	}
	if _, err := g.FromWIT(resDef); err == nil {
		t.Error("a bare resource is not a value type")
	}
}

func TestFromWIT_ErrorPath(t *testing.T) {
	g := NewGraph()
	bad := &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{
		{Name: "inner", Type: &wit.TypeDef{Kind: &wit.Record{}}},
	}}}
	_, err := g.FromWIT(bad)
	var e *errors.Error
	if !stderrors.As(err, &e) || len(e.Path) == 0 || e.Path[0] != "inner" {
		t.Errorf("err = %v, want path starting at inner", err)
	}
}
