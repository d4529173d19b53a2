// Package adapter synthesizes the core modules that connect two modules
// through an interface.
//
// Synthesize takes an interface, the core contracts of two sides and a set
// of bindings, and emits three modules:
//
//   - the adapter, one export per bound function plus a [resource-drop]
//     export per resource, importing the callee functions, both allocators
//     and the "rt" runtime
//   - the stub, which the callers import from: each export forwards through
//     call_indirect into a funcref table
//   - the fixup, which fills that table with the adapter's exports
//
// Instantiating stub, sides, adapter and fixup in that order resolves the
// cycle between callers that import from the adapter and an adapter that
// imports from the callees.
//
// # Options
//
// Options can be loaded from YAML:
//
//	max_flat_params: 16
//	max_flat_results: 1
//	memory: shim          # multi | shim
//	flags: reject         # reject | mask
//	handle_reuse: retire  # retire | reuse
//	a:
//	  string_encoding: utf8
//	  realloc_order: canonical
//	b:
//	  string_encoding: utf16
//	  transient_params: true
package adapter
