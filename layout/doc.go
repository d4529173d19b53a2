// Package layout computes the Canonical ABI representation of interface
// types: byte size, alignment and the flattened core value types used when
// a value travels on the call stack.
//
// Records and tuples place fields left to right, each aligned to its own
// alignment; the aggregate aligns to its widest field. Variants (and
// option, result, enum) store the smallest covering discriminant first and
// the payload area after it, aligned to the widest case. Flattened variants
// carry the discriminant followed by the per-slot join of every case's
// flat types.
//
// The Calculator memoizes per type ID:
//
//	calc := layout.NewCalculator(g)
//	info := calc.Info(recordID)          // Size, Align, Flat
//	offs := calc.FieldOffsets(recordID)  // one offset per field
//
// Signature turns an interface function into its core signature for the
// caller (Lower) or callee (Lift) side, applying the flattening limits.
package layout
