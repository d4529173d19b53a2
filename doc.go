// Package wasmadapter generates Canonical ABI adapter modules that connect
// two independently compiled WebAssembly modules through an interface
// description.
//
// Two core modules agree on an interface (functions over strings, lists,
// records, variants, flags and resource handles) but not on a calling
// convention: each has its own linear memory and allocator. The adapter
// module synthesized here sits between them, lowering values out of the
// caller, copying them into memory allocated in the callee, and lifting
// results back, while validating every encoding it reads and tracking
// resource handle ownership.
//
// # Architecture Overview
//
//	wasmadapter/       Root package with the Memory and Allocator interfaces
//	├── types/         Interface type graph (arena) and WIT compilation
//	├── layout/        Size, alignment and flattening of interface types
//	├── value/         Host-side Go value codecs for the same layouts
//	├── handle/        Resource handle tables and call scopes
//	├── codegen/       Instruction synthesis for lowering and lifting
//	├── adapter/       Adapter module synthesis and options
//	├── linker/        Instantiation of adapter graphs on wazero
//	├── wasm/          Core module model and binary encoder
//	└── errors/        Structured errors and the fault taxonomy
//
// # Quick Start
//
//	g := types.NewGraph()
//	iface := &types.Interface{Name: "echo"}
//	iface.Funcs = append(iface.Funcs, types.Func{
//	    Name:    "echo",
//	    Params:  []types.Param{{Name: "s", Type: g.String()}},
//	    Results: []types.Param{{Type: g.String()}},
//	})
//
//	l := linker.New(rt, adapter.DefaultOptions())
//	inst, err := l.Link(ctx, linker.LinkConfig{
//	    Graph:  g,
//	    Iface:  iface,
//	    Caller: linker.Module{Compiled: callerWasm},
//	    Callee: linker.Module{Compiled: calleeWasm},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	out, err := inst.Call(ctx, "echo", "hello ⚑ world")
//
// # Faults
//
// Generated code traps on malformed input. The trap reaches the host as an
// *errors.Fault carrying one of the fault codes (InvalidDiscriminant,
// InvalidBoolean, OutOfRangeInteger, InvalidChar, DecodeError, InvalidHandle,
// BorrowViolation, AllocationFailure, UnalignedPointer).
//
// # Thread Safety
//
// Synthesis is a pure function of its inputs and safe to run concurrently.
// A linked Instance is NOT thread-safe unless it was linked with
// LinkConfig.Concurrent, which guards its handle tables with a mutex.
package wasmadapter
