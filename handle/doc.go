// Package handle tracks resource handles passed across an adapter.
//
// Every resource type gets one Table per adapter instance. A table maps the
// indices seen by the non-owning side to the owner's representation and an
// ownership mode:
//
//	own    - unique; removed exactly once by a drop or an ownership transfer
//	borrow - valid only inside the call that created it
//
// # Call Scopes
//
// Store keeps a stack of call scopes. Borrow handles created inside a
// scope, and own handles lent to a call, are recorded and released by
// EndCall:
//
//	s := handle.NewStore()
//	s.BeginCall()
//	idx, _ := s.New(res, rep, handle.Borrow)
//	_ = s.EndCall() // idx is now a tombstone
//	_, err := s.Rep(res, idx) // BorrowViolation
//
// # Index Reuse
//
// With RetireFreed, the default, a removed index is never issued again and
// its tombstone distinguishes a dropped handle (InvalidHandle) from an
// expired borrow (BorrowViolation). ReuseFreed reissues indices LIFO.
//
// Failures are returned as *errors.Fault so the runtime can trap with the
// matching code.
package handle
