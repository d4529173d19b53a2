package guest

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/wippyai/wasm-adapter/codegen"
	"github.com/wippyai/wasm-adapter/layout"
	"github.com/wippyai/wasm-adapter/types"
	"github.com/wippyai/wasm-adapter/wasm"
)

func instantiate(t *testing.T, g *Guest) (context.Context, api.Module) {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { r.Close(ctx) })
	mod, err := r.Instantiate(ctx, g.Build())
	if err != nil {
		t.Fatal(err)
	}
	return ctx, mod
}

func call(t *testing.T, ctx context.Context, mod api.Module, name string, args ...uint64) uint32 {
	t.Helper()
	res, err := mod.ExportedFunction(name).Call(ctx, args...)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return uint32(res[0])
}

func global(mod api.Module, name string) uint32 {
	return uint32(mod.ExportedGlobal(name).Get())
}

func TestRealloc(t *testing.T) {
	ctx, mod := instantiate(t, New())

	if p := call(t, ctx, mod, "cabi_realloc", 0, 0, 8, 10); p != HeapBase {
		t.Errorf("first block at %d, want %d", p, HeapBase)
	}
	if p := call(t, ctx, mod, "cabi_realloc", 0, 0, 4, 3); p != HeapBase+12 {
		t.Errorf("second block at %d, want %d", p, HeapBase+12)
	}
	if got := global(mod, LiveGlobal); got != 13 {
		t.Errorf("live = %d, want 13", got)
	}

	mod.Memory().WriteUint32Le(HeapBase, 0xCAFEBABE)
	p := call(t, ctx, mod, "cabi_realloc", uint64(HeapBase), 10, 8, 20)
	if v, _ := mod.Memory().ReadUint32Le(p); v != 0xCAFEBABE {
		t.Errorf("grown block holds %#x", v)
	}
	if got := global(mod, LiveGlobal); got != 23 {
		t.Errorf("live after grow = %d, want 23", got)
	}

	call(t, ctx, mod, "cabi_realloc", uint64(p), 20, 8, 0)
	call(t, ctx, mod, "cabi_realloc", uint64(HeapBase+12), 3, 4, 0)
	if got := global(mod, LiveGlobal); got != 0 {
		t.Errorf("live after free = %d, want 0", got)
	}

	big := call(t, ctx, mod, "cabi_realloc", 0, 0, 1, 200000)
	if mod.Memory().Size() < big+200000 {
		t.Errorf("memory not grown: size %d, block end %d", mod.Memory().Size(), big+200000)
	}

	mod.ExportedGlobal(FailGlobal).(api.MutableGlobal).Set(1)
	if p := call(t, ctx, mod, "cabi_realloc", 0, 0, 1, 1); p != 0 {
		t.Errorf("failing allocator returned %d", p)
	}
}

func TestRealloc_SizeAlign(t *testing.T) {
	ctx, mod := instantiate(t, New(WithReallocOrder(codegen.SizeAlign)))
	call(t, ctx, mod, "cabi_realloc", 0, 0, 1, 1)
	if p := call(t, ctx, mod, "cabi_realloc", 0, 0, 4, 8); p != HeapBase+8 {
		t.Errorf("block at %d, want %d", p, HeapBase+8)
	}
}

func TestEcho(t *testing.T) {
	g := types.NewGraph()
	calc := layout.NewCalculator(g)
	id := types.Must(g.Tuple(g.U8(), g.U64()))
	ft := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI64}, Results: []wasm.ValType{wasm.ValI32}}
	ctx, mod := instantiate(t, New().Func("echo", ft, Echo(calc, id)))

	p := call(t, ctx, mod, "echo", 0x1FF, 1<<40)
	b, _ := mod.Memory().ReadByte(p)
	v, _ := mod.Memory().ReadUint64Le(p + 8)
	if b != 0xFF || v != 1<<40 {
		t.Errorf("echo wrote %#x, %#x", b, v)
	}
}

func TestEcho_Record(t *testing.T) {
	g := types.NewGraph()
	calc := layout.NewCalculator(g)
	id := types.Must(g.Record(
		types.Field{Name: "a", Type: g.U8()},
		types.Field{Name: "b", Type: g.StringType()},
		types.Field{Name: "c", Type: types.Must(g.Option(g.U16()))},
	))
	ft := wasm.FuncType{Params: calc.Info(id).Flat, Results: []wasm.ValType{wasm.ValI32}}
	ctx, mod := instantiate(t, New().Func("echo", ft, Echo(calc, id)))

	p := call(t, ctx, mod, "echo", 7, 2048, 5, 1, 0xBEEF)
	mem := mod.Memory()
	a, _ := mem.ReadByte(p)
	ptr, _ := mem.ReadUint32Le(p + 4)
	n, _ := mem.ReadUint32Le(p + 8)
	disc, _ := mem.ReadByte(p + 12)
	c, _ := mem.ReadUint16Le(p + 14)
	if diff := cmp.Diff([]uint32{7, 2048, 5, 1, 0xBEEF}, []uint32{uint32(a), ptr, n, uint32(disc), uint32(c)}); diff != "" {
		t.Errorf("record (-want +got):\n%s", diff)
	}
}

func TestEcho_JoinedVariant(t *testing.T) {
	g := types.NewGraph()
	calc := layout.NewCalculator(g)
	id := types.Must(g.Variant(
		types.Case{Name: "big", Type: g.U64()},
		types.Case{Name: "small", Type: g.F32()},
		types.Case{Name: "pair", Type: types.Must(g.Tuple(g.F32(), g.U32()))},
		types.Case{Name: "none"},
	))
	flat := calc.Info(id).Flat
	if diff := cmp.Diff([]wasm.ValType{wasm.ValI32, wasm.ValI64, wasm.ValI32}, flat); diff != "" {
		t.Fatalf("flat (-want +got):\n%s", diff)
	}
	ft := wasm.FuncType{Params: flat, Results: []wasm.ValType{wasm.ValI32}}
	ctx, mod := instantiate(t, New().Func("echo", ft, Echo(calc, id)))
	mem := mod.Memory()

	p := call(t, ctx, mod, "echo", 0, 1<<40, 0)
	if v, _ := mem.ReadUint64Le(p + 8); v != 1<<40 {
		t.Errorf("big payload = %#x", v)
	}

	mem.WriteUint32Le(p+12, 0xFFFFFFFF)
	p = call(t, ctx, mod, "echo", 1, uint64(math.Float32bits(-1.5)), 0)
	if d, _ := mem.ReadByte(p); d != 1 {
		t.Errorf("discriminant = %d", d)
	}
	if f, _ := mem.ReadFloat32Le(p + 8); f != -1.5 {
		t.Errorf("small payload = %v", f)
	}
	if v, _ := mem.ReadUint32Le(p + 12); v != 0xFFFFFFFF {
		t.Errorf("f32 case wrote past its payload: %#x", v)
	}

	p = call(t, ctx, mod, "echo", 2, uint64(math.Float32bits(2.5)), 7)
	f, _ := mem.ReadFloat32Le(p + 8)
	u, _ := mem.ReadUint32Le(p + 12)
	if f != 2.5 || u != 7 {
		t.Errorf("pair payload = (%v, %d)", f, u)
	}
}
