// Package types models interface types as an arena-backed graph.
//
// Every type is a node in a Graph and is referenced by ID. Structurally
// identical types intern to the same ID, so a record used by several
// variants is one node and per-ID memoization in the layout calculator is
// exact. Option, result and enum are stored with normalized cases
// (none/some, ok/err, payload-less names) so code that walks variants
// handles all four kinds the same way.
//
// Types can be built directly:
//
//	g := types.NewGraph()
//	point := types.Must(g.Record(
//	    types.Field{Name: "x", Type: g.S32()},
//	    types.Field{Name: "y", Type: g.S32()},
//	))
//	shapes := types.Must(g.List(point))
//
// or compiled from a resolved WIT type graph with FromWIT. Resources are
// registered by name; own and borrow handles refer to them by ResourceID.
package types
