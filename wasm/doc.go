// Package wasm provides the core WebAssembly module model used to emit
// adapter, stub and fixup modules.
//
// The model covers what generated code needs: function types, imports of
// functions, memories and tables, defined memories, tables and mutable
// globals, active element and data segments, and the instruction subset
// used by lowering and lifting, including multi-memory memargs and the bulk
// memory instructions.
//
// Build a module and encode it:
//
//	m := &wasm.Module{}
//	mem := m.AddMemory(1)
//	add := m.AddFunc(wasm.FuncType{
//	    Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32},
//	    Results: []wasm.ValType{wasm.ValI32},
//	}, wasm.FuncBody{Code: wasm.EncodeInstructions([]wasm.Instruction{
//	    wasm.LocalGet(0), wasm.LocalGet(1),
//	    {Opcode: wasm.OpI32Add},
//	    {Opcode: wasm.OpEnd},
//	})})
//	m.Export("memory", wasm.KindMemory, mem)
//	m.Export("add", wasm.KindFunc, add)
//	bin := m.Encode()
//
// Function imports must be added before functions are defined so that
// returned indices stay stable.
package wasm
