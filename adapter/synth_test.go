package adapter

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tetratelabs/wazero"
	"github.com/wippyai/wasm-adapter/errors"
	"github.com/wippyai/wasm-adapter/layout"
	"github.com/wippyai/wasm-adapter/types"
	"github.com/wippyai/wasm-adapter/wasm"
	"go.uber.org/multierr"
)

var i64 = wasm.ValI64

type fixture struct {
	iface   *types.Interface
	counter types.ResourceID
}

// newFixture declares:
//
//	echo: func(s: string) -> string
//	add: func(a: u32, b: u64) -> u64
//	wide: func(r: record of 20 u32 fields) -> u32
//	make: func(n: u32) -> own<counter>
//	peek: func(c: borrow<counter>) -> u32
func newFixture() *fixture {
	g := types.NewGraph()
	counter := g.Resource("counter")
	fields := make([]types.Field, 20)
	for i := range fields {
		fields[i] = types.Field{Name: "f" + string(rune('a'+i)), Type: g.U32()}
	}
	wide := types.Must(g.Record(fields...))
	own := types.Must(g.Own(counter))
	borrow := types.Must(g.Borrow(counter))
	return &fixture{
		counter: counter,
		iface: &types.Interface{
			Graph: g,
			Name:  "test:pkg/api",
			Funcs: []types.Func{
				{Name: "echo", Params: []types.Param{{Name: "s", Type: g.StringType()}}, Results: []types.Param{{Type: g.StringType()}}},
				{Name: "add", Params: []types.Param{{Name: "a", Type: g.U32()}, {Name: "b", Type: g.U64()}}, Results: []types.Param{{Type: g.U64()}}},
				{Name: "wide", Params: []types.Param{{Name: "r", Type: wide}}, Results: []types.Param{{Type: g.U32()}}},
				{Name: "make", Params: []types.Param{{Name: "n", Type: g.U32()}}, Results: []types.Param{{Type: own}}},
				{Name: "peek", Params: []types.Param{{Name: "c", Type: borrow}}, Results: []types.Param{{Type: g.U32()}}},
			},
		},
	}
}

// config binds funcs with A calling B and fills in B's exports with the
// expected lifted signatures.
func (f *fixture) config(funcs ...string) Config {
	calc := layout.NewCalculator(f.iface.Graph)
	cfg := Config{
		Iface:   f.iface,
		A:       Side{Name: "a", Exports: map[string]wasm.FuncType{DefaultRealloc: reallocType}},
		B:       Side{Name: "b", Exports: map[string]wasm.FuncType{DefaultRealloc: reallocType}},
		Options: DefaultOptions(),
	}
	for _, name := range funcs {
		fn, _ := f.iface.Func(name)
		cfg.B.Exports[name] = calc.Signature(fn, layout.Lift, cfg.Options.Limits()).Core
		cfg.Bindings = append(cfg.Bindings, Binding{Func: name, Caller: A})
	}
	return cfg
}

type importKey struct {
	Module, Name string
	Kind         byte
}

func imports(m *wasm.Module) []importKey {
	out := make([]importKey, len(m.Imports))
	for i, imp := range m.Imports {
		out[i] = importKey{imp.Module, imp.Name, imp.Desc.Kind}
	}
	return out
}

func exportNames(m *wasm.Module) []string {
	out := make([]string, len(m.Exports))
	for i, e := range m.Exports {
		out[i] = e.Name
	}
	return out
}

func TestSynthesize_MultiMemoryShape(t *testing.T) {
	f := newFixture()
	cfg := f.config("echo", "add")
	cfg.B.Exports[PostReturnName("echo")] = wasm.FuncType{Params: []wasm.ValType{i32}}

	out, err := Synthesize(cfg)
	if err != nil {
		t.Fatal(err)
	}

	want := []importKey{
		{"rt", "trap", wasm.KindFunc},
		{"rt", "handle_new", wasm.KindFunc},
		{"rt", "handle_take", wasm.KindFunc},
		{"rt", "handle_lend", wasm.KindFunc},
		{"rt", "handle_drop", wasm.KindFunc},
		{"rt", "call_begin", wasm.KindFunc},
		{"rt", "call_end", wasm.KindFunc},
		{"a", "cabi_realloc", wasm.KindFunc},
		{"b", "cabi_realloc", wasm.KindFunc},
		{"b", "echo", wasm.KindFunc},
		{"b", "add", wasm.KindFunc},
		{"b", "cabi_post_echo", wasm.KindFunc},
		{"a", "memory", wasm.KindMemory},
		{"b", "memory", wasm.KindMemory},
	}
	if diff := cmp.Diff(want, imports(out.Adapter)); diff != "" {
		t.Errorf("adapter imports (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{LogLenExport, "echo", "add"}, exportNames(out.Adapter)); diff != "" {
		t.Errorf("adapter exports (-want +got):\n%s", diff)
	}
	if len(out.Adapter.Memories) != 1 {
		t.Errorf("adapter defines %d memories, want the log memory only", len(out.Adapter.Memories))
	}

	echo, ok := out.Function("echo")
	if !ok || !echo.PostReturn || echo.Borrows {
		t.Errorf("echo = %+v", echo)
	}
	got, _ := out.ExportType("echo")
	if diff := cmp.Diff(wasm.FuncType{Params: []wasm.ValType{i32, i32, i32}}, got); diff != "" {
		t.Errorf("echo lowered type (-want +got):\n%s", diff)
	}
	got, _ = out.ExportType("add")
	if diff := cmp.Diff(wasm.FuncType{Params: []wasm.ValType{i32, i64}, Results: []wasm.ValType{i64}}, got); diff != "" {
		t.Errorf("add lowered type (-want +got):\n%s", diff)
	}

	if out.StubName != "test:pkg/api" || out.AdapterName != "test:pkg/api$adapter" {
		t.Errorf("names = %q, %q", out.StubName, out.AdapterName)
	}
	if diff := cmp.Diff([]string{StubTableExport, "echo", "add"}, exportNames(out.Stub)); diff != "" {
		t.Errorf("stub exports (-want +got):\n%s", diff)
	}
	wantFixup := []importKey{
		{out.AdapterName, "echo", wasm.KindFunc},
		{out.AdapterName, "add", wasm.KindFunc},
		{out.StubName, StubTableExport, wasm.KindTable},
	}
	if diff := cmp.Diff(wantFixup, imports(out.Fixup)); diff != "" {
		t.Errorf("fixup imports (-want +got):\n%s", diff)
	}
	if len(out.Fixup.Elements) != 1 || len(out.Fixup.Elements[0].FuncIdxs) != 2 {
		t.Errorf("fixup elements = %+v", out.Fixup.Elements)
	}
}

func TestSynthesize_ShimModulesValidate(t *testing.T) {
	f := newFixture()
	cfg := f.config("echo", "add", "wide", "make", "peek")
	cfg.Options.Memory = ShimMemory
	cfg.Options.B.TransientParams = true
	cfg.B.Exports["drop_counter"] = dtorType
	cfg.Resources = []Resource{{Type: f.counter, Owner: B, Destructor: "drop_counter"}}

	out, err := Synthesize(cfg)
	if err != nil {
		t.Fatal(err)
	}
	for _, imp := range out.Adapter.Imports {
		if imp.Desc.Kind == wasm.KindMemory {
			t.Errorf("shim adapter imports memory %s.%s", imp.Module, imp.Name)
		}
	}
	var shims int
	for _, imp := range out.Adapter.Imports {
		if imp.Module == "shim" {
			shims++
		}
	}
	// nine accessors per memory plus copy
	if shims != 19 {
		t.Errorf("shim imports = %d, want 19", shims)
	}

	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)
	for name, m := range map[string]*wasm.Module{"adapter": out.Adapter, "stub": out.Stub, "fixup": out.Fixup} {
		if _, err := r.CompileModule(ctx, m.Encode()); err != nil {
			t.Errorf("%s does not validate: %v", name, err)
		}
	}
}

func TestSynthesize_Signatures(t *testing.T) {
	f := newFixture()
	cfg := f.config("wide", "make", "peek")
	cfg.Resources = []Resource{{Type: f.counter, Owner: B}}
	out, err := Synthesize(cfg)
	if err != nil {
		t.Fatal(err)
	}

	wide, _ := out.Function("wide")
	if !wide.Lift.IndirectParams || !wide.Lower.IndirectParams {
		t.Errorf("wide should pass its parameters indirectly")
	}
	if diff := cmp.Diff(wasm.FuncType{Params: []wasm.ValType{i32}, Results: []wasm.ValType{i32}}, wide.Lift.Core); diff != "" {
		t.Errorf("wide lifted type (-want +got):\n%s", diff)
	}
	peek, _ := out.Function("peek")
	if !peek.Borrows {
		t.Error("peek should open a call scope")
	}

	d, ok := out.Drop(f.counter)
	if !ok || d.Name != "[resource-drop]counter" || d.Destructor {
		t.Errorf("drop = %+v", d)
	}
	got, _ := out.ExportType(d.Name)
	if diff := cmp.Diff(wasm.FuncType{Params: []wasm.ValType{i32}}, got); diff != "" {
		t.Errorf("drop type (-want +got):\n%s", diff)
	}
}

func TestSynthesize_ContractErrors(t *testing.T) {
	tests := []struct {
		name   string
		funcs  []string
		modify func(f *fixture, c *Config)
		want   []*errors.Error
	}{
		{
			name:   "missing export",
			funcs:  []string{"add"},
			modify: func(_ *fixture, c *Config) { delete(c.B.Exports, "add") },
			want:   []*errors.Error{{Phase: errors.PhaseLinking, Kind: errors.KindMissingExport}},
		},
		{
			name:  "wrong export type",
			funcs: []string{"add"},
			modify: func(_ *fixture, c *Config) {
				c.B.Exports["add"] = wasm.FuncType{Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i32}}
			},
			want: []*errors.Error{{Phase: errors.PhaseLinking, Kind: errors.KindTypeMismatch}},
		},
		{
			name:  "wrong caller import",
			funcs: []string{"add"},
			modify: func(_ *fixture, c *Config) {
				c.A.Imports = map[string]wasm.FuncType{"add": {Params: []wasm.ValType{i32}}}
			},
			want: []*errors.Error{{Phase: errors.PhaseLinking, Kind: errors.KindTypeMismatch}},
		},
		{
			name:   "missing allocator",
			funcs:  []string{"echo"},
			modify: func(_ *fixture, c *Config) { delete(c.B.Exports, DefaultRealloc) },
			want:   []*errors.Error{{Phase: errors.PhaseLinking, Kind: errors.KindMissingImport}},
		},
		{
			name:  "wrong allocator and post-return",
			funcs: []string{"echo"},
			modify: func(_ *fixture, c *Config) {
				c.A.Exports[DefaultRealloc] = wasm.FuncType{Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i32}}
				c.B.Exports[PostReturnName("echo")] = wasm.FuncType{}
			},
			want: []*errors.Error{
				{Phase: errors.PhaseLinking, Kind: errors.KindTypeMismatch},
				{Phase: errors.PhaseLinking, Kind: errors.KindTypeMismatch},
			},
		},
		{
			name:  "every violation reported",
			funcs: []string{"echo", "add"},
			modify: func(_ *fixture, c *Config) {
				delete(c.B.Exports, "add")
				delete(c.A.Exports, DefaultRealloc)
			},
			want: []*errors.Error{
				{Phase: errors.PhaseLinking, Kind: errors.KindMissingExport},
				{Phase: errors.PhaseLinking, Kind: errors.KindMissingImport},
			},
		},
		{
			name:   "unknown function",
			modify: func(_ *fixture, c *Config) { c.Bindings = []Binding{{Func: "nope"}} },
			want:   []*errors.Error{{Phase: errors.PhaseSynth, Kind: errors.KindNotFound}},
		},
		{
			name:   "duplicate binding",
			funcs:  []string{"add"},
			modify: func(_ *fixture, c *Config) { c.Bindings = append(c.Bindings, c.Bindings[0]) },
			want:   []*errors.Error{{Phase: errors.PhaseSynth, Kind: errors.KindDuplicate}},
		},
		{
			name:  "unowned resource",
			funcs: []string{"make"},
			want:  []*errors.Error{{Phase: errors.PhaseSynth, Kind: errors.KindNotFound}},
		},
		{
			name:  "missing destructor",
			funcs: []string{"make"},
			modify: func(f *fixture, c *Config) {
				c.Resources = []Resource{{Type: f.counter, Owner: B, Destructor: "drop_counter"}}
			},
			want: []*errors.Error{{Phase: errors.PhaseLinking, Kind: errors.KindMissingExport}},
		},
		{
			name:  "resource owned twice",
			funcs: []string{"make"},
			modify: func(f *fixture, c *Config) {
				c.Resources = []Resource{{Type: f.counter, Owner: B}, {Type: f.counter, Owner: A}}
			},
			want: []*errors.Error{{Phase: errors.PhaseSynth, Kind: errors.KindDuplicate}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			cfg := f.config(tt.funcs...)
			if tt.modify != nil {
				tt.modify(f, &cfg)
			}
			_, err := Synthesize(cfg)
			if err == nil {
				t.Fatal("expected an error")
			}
			errs := multierr.Errors(err)
			if len(errs) != len(tt.want) {
				t.Fatalf("got %d errors, want %d: %v", len(errs), len(tt.want), err)
			}
			for i, want := range tt.want {
				if !errors.Is(errs[i], want) {
					t.Errorf("error %d = %v, want %s/%s", i, errs[i], want.Phase, want.Kind)
				}
			}
		})
	}
}

func TestSynthesize_InvalidInput(t *testing.T) {
	if _, err := Synthesize(Config{}); !errors.Is(err, &errors.Error{Phase: errors.PhaseSynth, Kind: errors.KindNotInitialized}) {
		t.Errorf("nil interface: %v", err)
	}

	f := newFixture()
	cfg := f.config("add")
	cfg.Options.MaxFlatParams = 0
	if _, err := Synthesize(cfg); !errors.Is(err, &errors.Error{Phase: errors.PhaseParse, Kind: errors.KindInvalidInput}) {
		t.Errorf("zero flat params: %v", err)
	}

	f.iface.Funcs = append(f.iface.Funcs, types.Func{Name: "add"})
	if _, err := Synthesize(f.config()); !errors.Is(err, &errors.Error{Phase: errors.PhaseCompile, Kind: errors.KindDuplicate}) {
		t.Errorf("duplicate function: %v", err)
	}
}
