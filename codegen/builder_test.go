package codegen

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/wippyai/wasm-adapter/errors"
	"github.com/wippyai/wasm-adapter/wasm"
)

func TestFuncBuilder_Locals(t *testing.T) {
	b := NewFuncBuilder([]wasm.ValType{wasm.ValI32, wasm.ValF64}, 0)

	if b.Param(1) != 1 {
		t.Fatalf("Param(1) = %d", b.Param(1))
	}
	a := b.NewLocal(wasm.ValI32)
	b.NewLocal(wasm.ValI32)
	c := b.NewLocal(wasm.ValI64)
	b.NewLocal(wasm.ValI32)

	if a != 2 || c != 4 {
		t.Errorf("local indices = %d, %d", a, c)
	}
	if b.LocalType(1) != wasm.ValF64 || b.LocalType(c) != wasm.ValI64 {
		t.Error("LocalType mismatch")
	}

	body := b.Body()
	want := []wasm.LocalEntry{
		{Count: 2, ValType: wasm.ValI32},
		{Count: 1, ValType: wasm.ValI64},
		{Count: 1, ValType: wasm.ValI32},
	}
	if diff := cmp.Diff(want, body.Locals); diff != "" {
		t.Errorf("locals (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte{wasm.OpEnd}, body.Code); diff != "" {
		t.Errorf("code (-want +got):\n%s", diff)
	}
}

func TestFuncBuilder_LabelDepths(t *testing.T) {
	b := NewFuncBuilder(nil, 0)
	outer := b.Block()
	loop := b.Loop()
	b.I32Const(1)
	b.If()
	b.Br(outer)
	b.Else()
	b.Br(loop)
	b.End()
	b.BrIf(outer)
	b.End()
	b.End()

	var depths []uint32
	for _, in := range b.Instructions() {
		switch in.Opcode {
		case wasm.OpBr, wasm.OpBrIf:
			depths = append(depths, in.Imm.(wasm.BranchImm).LabelIdx)
		}
	}
	if diff := cmp.Diff([]uint32{2, 1, 1}, depths); diff != "" {
		t.Errorf("branch depths (-want +got):\n%s", diff)
	}
}

func TestFuncBuilder_BrTable(t *testing.T) {
	b := NewFuncBuilder([]wasm.ValType{wasm.ValI32}, 0)
	done := b.Block()
	c1 := b.Block()
	c0 := b.Block()
	b.Get(0).BrTable([]Label{c0, c1}, done)
	b.End()
	b.End()
	b.End()

	imm := b.Instructions()[4].Imm.(wasm.BrTableImm)
	if diff := cmp.Diff(wasm.BrTableImm{Labels: []uint32{0, 1}, Default: 2}, imm); diff != "" {
		t.Errorf("br_table (-want +got):\n%s", diff)
	}
}

func TestFuncBuilder_Trap(t *testing.T) {
	b := NewFuncBuilder(nil, 7)
	b.Trap(errors.FaultInvalidChar)

	want := []wasm.Instruction{
		wasm.I32Const(int32(errors.FaultInvalidChar)),
		wasm.Call(7),
		{Opcode: wasm.OpUnreachable},
	}
	if diff := cmp.Diff(want, b.Instructions()); diff != "" {
		t.Errorf("trap (-want +got):\n%s", diff)
	}
}

func TestFuncBuilder_Unbalanced(t *testing.T) {
	assertPanics := func(name string, fn func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Errorf("%s: expected panic", name)
			}
		}()
		fn()
	}

	assertPanics("unclosed", func() {
		b := NewFuncBuilder(nil, 0)
		b.Block()
		b.Body()
	})
	assertPanics("extra end", func() {
		NewFuncBuilder(nil, 0).End()
	})
	assertPanics("closed label", func() {
		b := NewFuncBuilder(nil, 0)
		l := b.Block()
		b.End()
		b.Br(l)
	})
}

func TestMemory_Direct(t *testing.T) {
	b := NewFuncBuilder(nil, 0)
	Direct{Index: 1}.Load(b, W16, 8)
	Direct{Index: 0}.Store(b, W64, 0)
	Direct{Index: 2}.Pages(b)

	want := []wasm.Instruction{
		{Opcode: wasm.OpI32Load16U, Imm: wasm.MemoryImm{Offset: 8, Align: 1, MemIdx: 1}},
		{Opcode: wasm.OpI64Store, Imm: wasm.MemoryImm{Offset: 0, Align: 3, MemIdx: 0}},
		{Opcode: wasm.OpMemorySize, Imm: wasm.MemoryIdxImm{MemIdx: 2}},
	}
	if diff := cmp.Diff(want, b.Instructions()); diff != "" {
		t.Errorf("direct access (-want +got):\n%s", diff)
	}
}

func TestMemory_Shim(t *testing.T) {
	m := &wasm.Module{}
	s := ImportShim(m, 1)
	c := ImportShimCopy(m)

	if got := m.NumImported(wasm.KindFunc); got != 10 {
		t.Fatalf("imports = %d, want 10", got)
	}
	if m.Imports[0].Name != "load8_u_1" || m.Imports[9].Name != "copy" {
		t.Errorf("import names = %s, %s", m.Imports[0].Name, m.Imports[9].Name)
	}

	b := NewFuncBuilder(nil, 0)
	s.Load(b, W32, 12)
	c.Copy(b, s, s)
	want := []wasm.Instruction{
		wasm.I32Const(12), wasm.Call(2),
		wasm.I32Const(1), wasm.I32Const(1), wasm.Call(9),
	}
	if diff := cmp.Diff(want, b.Instructions()); diff != "" {
		t.Errorf("shim access (-want +got):\n%s", diff)
	}
}

func TestPolicies_Text(t *testing.T) {
	var e Encoding
	if err := e.UnmarshalText([]byte("utf-16")); err != nil || e != UTF16 {
		t.Errorf("encoding: %v %v", e, err)
	}
	var o ReallocOrder
	if err := o.UnmarshalText([]byte("size-align")); err != nil || o != SizeAlign {
		t.Errorf("order: %v %v", o, err)
	}
	var f FlagsPolicy
	if err := f.UnmarshalText([]byte("mask")); err != nil || f != Mask {
		t.Errorf("flags: %v %v", f, err)
	}
	if err := f.UnmarshalText([]byte("ignore")); err == nil {
		t.Error("expected error for unknown flags policy")
	}
}
