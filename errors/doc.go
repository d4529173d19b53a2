// Package errors provides structured error types for the adapter engine.
//
// Two families live here. Error values describe problems found while
// building types, synthesizing adapters or linking modules; they are
// categorized by Phase (where the error occurred) and Kind (error category)
// and carry a field path and cause chain:
//
//	err := errors.New(errors.PhaseLinking, errors.KindTypeMismatch).
//		Path("callee", "echo").
//		Detail("core signature (i32) -> (), want (i32 i32) -> (i32)").
//		Build()
//
// Fault values are traps raised while a call is running: a discriminant out
// of range, a surrogate char, a dropped handle. Each has a FaultCode that
// generated code hands to the runtime trap import, so the same code comes
// back to the host:
//
//	if errors.Is(err, errors.ErrInvalidHandle) { ... }
//	if f, ok := errors.AsFault(err); ok { log(f.Code) }
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
