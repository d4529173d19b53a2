package adapter

import (
	"github.com/wippyai/wasm-adapter/codegen"
	"github.com/wippyai/wasm-adapter/wasm"
)

// dispatchExports lists the adapter exports reachable through the stub,
// in table order.
func (s *synth) dispatchExports() []wasm.Export {
	var out []wasm.Export
	for _, e := range s.out.Adapter.Exports {
		if e.Kind == wasm.KindFunc {
			out = append(out, e)
		}
	}
	return out
}

// buildStub emits the module both sides import interface functions from.
// Every export forwards through call_indirect into a table that is empty
// until the fixup module runs, which breaks the cycle between the sides
// and the adapter that imports them.
func (s *synth) buildStub() {
	exports := s.dispatchExports()
	m := &wasm.Module{}
	table := m.AddTable(uint64(len(exports)))
	m.Export(StubTableExport, wasm.KindTable, table)

	for i, e := range exports {
		ft, _ := s.out.Adapter.FuncType(e.Idx)
		b := codegen.NewFuncBuilder(ft.Params, 0)
		for p := range ft.Params {
			b.Get(b.Param(p))
		}
		b.I32Const(int32(i))
		b.Emit(wasm.Instruction{
			Opcode: wasm.OpCallIndirect,
			Imm:    wasm.CallIndirectImm{TypeIdx: m.AddType(ft), TableIdx: table},
		})
		m.Export(e.Name, wasm.KindFunc, m.AddFunc(ft, b.Body()))
	}
	s.out.Stub = m
}

// buildFixup emits the module that fills the stub's table with the
// adapter's exports.
func (s *synth) buildFixup() {
	exports := s.dispatchExports()
	m := &wasm.Module{}
	funcs := make([]uint32, len(exports))
	for i, e := range exports {
		ft, _ := s.out.Adapter.FuncType(e.Idx)
		funcs[i] = m.ImportFunc(s.out.AdapterName, e.Name, ft)
	}
	table := m.ImportTable(s.out.StubName, StubTableExport, uint64(len(exports)))
	m.Elements = append(m.Elements, wasm.Element{
		TableIdx: table,
		Offset:   wasm.ConstI32(0),
		FuncIdxs: funcs,
	})
	s.out.Fixup = m
}
