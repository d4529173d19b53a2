// Package codegen emits the core WebAssembly that moves interface values
// between two modules.
//
// A FuncBuilder accumulates one function body with symbolic labels. A
// Translator walks an interface type and emits the matching lift/lower
// sequence from a source Side to a destination Side:
//
//	tr := codegen.NewTranslator(b, env, caller, callee)
//	out := tr.Flat(id, b.Params...)          // stack form to stack form
//	tr.Mem(id, codegen.Place{Base: p}, dst)  // memory to memory
//
// Representation checks run before anything is written to the destination.
// A failed check calls the runtime trap import with an errors.FaultCode and
// executes unreachable.
//
// # Memory Access
//
// Direct memories use native loads and stores; memories other than index 0
// need multi-memory in the host. Shim memories go through imported
// accessor functions (see ShimModule) so the adapter can run on engines
// that only support one memory per module.
package codegen
