package handle

import (
	"github.com/wippyai/wasm-adapter/errors"
)

type state uint8

const (
	stateLive state = iota + 1
	stateDropped
	stateTransferred
	stateScopeEnded
)

type slot struct {
	entry Entry
	state state
}

// Table maps indices to the handles of one resource type. Index 0 is never
// issued. A Table is not safe for concurrent use; Store serializes access
// when built with locking.
type Table struct {
	slots    []slot
	freeList []uint32
	live     int
	policy   Policy
}

// NewTable creates an empty table.
func NewTable(policy Policy) *Table {
	return &Table{
		slots:  make([]slot, 0, 16),
		policy: policy,
	}
}

// Insert adds an entry and returns its index.
func (t *Table) Insert(rep uint32, mode Mode) uint32 {
	s := slot{entry: Entry{Rep: rep, Mode: mode}, state: stateLive}
	t.live++

	if t.policy == ReuseFreed && len(t.freeList) > 0 {
		idx := t.freeList[len(t.freeList)-1]
		t.freeList = t.freeList[:len(t.freeList)-1]
		t.slots[idx-1] = s
		return idx
	}

	t.slots = append(t.slots, s)
	return uint32(len(t.slots))
}

func (t *Table) lookup(idx uint32) (*slot, *errors.Fault) {
	if idx == 0 || int(idx) > len(t.slots) {
		return nil, errors.NewFault(errors.FaultInvalidHandle, "handle %d was never issued", idx)
	}
	s := &t.slots[idx-1]
	switch s.state {
	case stateLive:
		return s, nil
	case stateScopeEnded:
		return nil, errors.NewFault(errors.FaultBorrowViolation, "borrowed handle %d used after its call returned", idx)
	case stateTransferred:
		return nil, errors.NewFault(errors.FaultInvalidHandle, "handle %d was transferred", idx)
	default:
		return nil, errors.NewFault(errors.FaultInvalidHandle, "handle %d was dropped", idx)
	}
}

// Get returns the live entry at idx.
func (t *Table) Get(idx uint32) (Entry, error) {
	s, f := t.lookup(idx)
	if f != nil {
		return Entry{}, f
	}
	return s.entry, nil
}

// Remove takes an own entry out of the table. Borrow entries and own
// entries lent to an active call cannot be removed.
func (t *Table) Remove(idx uint32) (Entry, error) {
	return t.remove(idx, stateDropped)
}

func (t *Table) remove(idx uint32, why state) (Entry, error) {
	s, f := t.lookup(idx)
	if f != nil {
		return Entry{}, f
	}
	if s.entry.Mode == Borrow {
		return Entry{}, errors.NewFault(errors.FaultBorrowViolation, "borrowed handle %d cannot be dropped by its borrower", idx)
	}
	if s.entry.Lent > 0 {
		return Entry{}, errors.NewFault(errors.FaultBorrowViolation, "handle %d is lent to an active call", idx)
	}
	e := s.entry
	t.free(idx, why)
	return e, nil
}

// release ends a borrow entry. Only its owning call scope does this.
func (t *Table) release(idx uint32) (Entry, bool) {
	if idx == 0 || int(idx) > len(t.slots) {
		return Entry{}, false
	}
	s := &t.slots[idx-1]
	if s.state != stateLive || s.entry.Mode != Borrow {
		return Entry{}, false
	}
	e := s.entry
	t.free(idx, stateScopeEnded)
	return e, true
}

func (t *Table) free(idx uint32, why state) {
	t.slots[idx-1] = slot{state: why}
	t.live--
	if t.policy == ReuseFreed {
		t.freeList = append(t.freeList, idx)
	}
}

// Lend pins an own entry for the duration of a borrowing call.
func (t *Table) Lend(idx uint32) (Entry, error) {
	s, f := t.lookup(idx)
	if f != nil {
		return Entry{}, f
	}
	if s.entry.Mode == Own {
		s.entry.Lent++
	}
	return s.entry, nil
}

// Unlend releases one pin taken by Lend.
func (t *Table) Unlend(idx uint32) error {
	s, f := t.lookup(idx)
	if f != nil {
		return f
	}
	if s.entry.Mode == Own && s.entry.Lent > 0 {
		s.entry.Lent--
	}
	return nil
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	return t.live
}
