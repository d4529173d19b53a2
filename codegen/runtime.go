package codegen

import (
	"github.com/wippyai/wasm-adapter/wasm"
)

// RuntimeModule is the import module of the adapter runtime.
const RuntimeModule = "rt"

// Runtime import names.
const (
	RuntimeTrap       = "trap"
	RuntimeHandleNew  = "handle_new"
	RuntimeHandleTake = "handle_take"
	RuntimeHandleLend = "handle_lend"
	RuntimeHandleDrop = "handle_drop"
	RuntimeCallBegin  = "call_begin"
	RuntimeCallEnd    = "call_end"
)

// RuntimeTypes lists the core signature of every runtime import.
var RuntimeTypes = map[string]wasm.FuncType{
	RuntimeTrap:       {Params: []wasm.ValType{i32}},
	RuntimeHandleNew:  {Params: []wasm.ValType{i32, i32, i32}, Results: []wasm.ValType{i32}},
	RuntimeHandleTake: {Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i32}},
	RuntimeHandleLend: {Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i32}},
	RuntimeHandleDrop: {Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i32}},
	RuntimeCallBegin:  {},
	RuntimeCallEnd:    {},
}

// RuntimeNames lists the runtime imports in import order.
var RuntimeNames = []string{
	RuntimeTrap,
	RuntimeHandleNew, RuntimeHandleTake, RuntimeHandleLend, RuntimeHandleDrop,
	RuntimeCallBegin, RuntimeCallEnd,
}

// Runtime holds the function indices of the runtime imports.
type Runtime struct {
	Trap       uint32
	HandleNew  uint32
	HandleTake uint32
	HandleLend uint32
	HandleDrop uint32
	CallBegin  uint32
	CallEnd    uint32
}

// ImportRuntime adds the runtime imports to m.
func ImportRuntime(m *wasm.Module) Runtime {
	idx := make(map[string]uint32, len(RuntimeNames))
	for _, name := range RuntimeNames {
		idx[name] = m.ImportFunc(RuntimeModule, name, RuntimeTypes[name])
	}
	return Runtime{
		Trap:       idx[RuntimeTrap],
		HandleNew:  idx[RuntimeHandleNew],
		HandleTake: idx[RuntimeHandleTake],
		HandleLend: idx[RuntimeHandleLend],
		HandleDrop: idx[RuntimeHandleDrop],
		CallBegin:  idx[RuntimeCallBegin],
		CallEnd:    idx[RuntimeCallEnd],
	}
}
