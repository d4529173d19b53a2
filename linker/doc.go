// Package linker runs generated adapters on wazero.
//
// Link compiles two modules, reads their boundary contracts from the
// compiled exports and imports, synthesizes an adapter for the interface
// and instantiates, in order:
//
//  1. the "rt" runtime module over a fresh handle store, and the "shim"
//     memory accessors in shim mode
//  2. the stub the caller imports the interface from
//  3. caller and callee
//  4. the adapter
//  5. the fixup, which fills the stub's table
//
// # Thread Safety
//
// Linker is safe for concurrent use. Instance is NOT safe for concurrent
// use; LinkConfig.Concurrent only makes the handle store lock.
//
// # Example
//
//	l := linker.NewWithDefaults(runtime)
//	inst, err := l.Link(ctx, linker.LinkConfig{
//		Iface:  iface,
//		Caller: linker.Module{Name: "app", Binary: app},
//		Callee: linker.Module{Name: "lib", Binary: lib},
//	})
//	if err != nil {
//		return err
//	}
//	defer inst.Close(ctx)
//	out, err := inst.Call(ctx, "greet", "world")
package linker
