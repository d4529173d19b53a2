// Package value converts Go values to and from the Canonical ABI
// representations computed by package layout.
//
// # Go Representations
//
//	bool               bool
//	u8..u64, s8..s64   uint8..uint64, int8..int64
//	f32, f64           float32, float64
//	char               rune
//	string             string
//	list, tuple        []any
//	record             map[string]any keyed by field name
//	variant, enum      Variant
//	option             Variant (None or Some)
//	result             Variant (Ok or Err)
//	flags              uint64, bit i set for name i
//	own, borrow        Handle
//
// # Memory and Flat Forms
//
// Store and Load move a value between Go and linear memory. Lower and Lift
// use the flattened form, one uint64 per core value. Lists and strings are
// allocated through the supplied Allocator; wrap it with Track to record
// the allocations of one call so they can be released if the call fails.
//
// Load and Lift validate every value they read and report malformed data
// as *errors.Fault with the same codes generated adapter code traps with.
package value
