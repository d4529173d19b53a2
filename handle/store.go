package handle

import (
	"sync"

	"github.com/wippyai/wasm-adapter/errors"
	"github.com/wippyai/wasm-adapter/types"
)

type ref struct {
	res types.ResourceID
	idx uint32
}

type scope struct {
	borrows []ref
	lends   []ref
}

// Store holds the handle tables of one adapter instance and its stack of
// call scopes.
type Store struct {
	tables    map[types.ResourceID]*Table
	scopes    []scope
	observers []Observer
	dropper   Dropper
	mu        sync.Mutex
	policy    Policy
	locking   bool
}

// Option configures a Store.
type Option func(*Store)

// WithPolicy sets the index reuse policy of every table.
func WithPolicy(p Policy) Option {
	return func(s *Store) { s.policy = p }
}

// WithLocking serializes every operation on the store with a mutex.
func WithLocking() Option {
	return func(s *Store) { s.locking = true }
}

// WithObserver registers an observer for lifecycle events.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observers = append(s.observers, o) }
}

// WithDropper registers d to run whenever an own handle is dropped. Handles
// whose ownership is transferred do not reach it.
func WithDropper(d Dropper) Option {
	return func(s *Store) { s.dropper = d }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{tables: make(map[types.ResourceID]*Table)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) lock() {
	if s.locking {
		s.mu.Lock()
	}
}

func (s *Store) unlock() {
	if s.locking {
		s.mu.Unlock()
	}
}

func (s *Store) table(res types.ResourceID) *Table {
	t, ok := s.tables[res]
	if !ok {
		t = NewTable(s.policy)
		s.tables[res] = t
	}
	return t
}

// New inserts a handle for rep. Borrow handles belong to the innermost
// call scope and are removed when it ends.
func (s *Store) New(res types.ResourceID, rep uint32, mode Mode) (uint32, error) {
	s.lock()
	if mode == Borrow && len(s.scopes) == 0 {
		s.unlock()
		return 0, errors.NewFault(errors.FaultBorrowViolation, "borrow of rep %d outside a call", rep)
	}
	idx := s.table(res).Insert(rep, mode)
	if mode == Borrow {
		top := &s.scopes[len(s.scopes)-1]
		top.borrows = append(top.borrows, ref{res, idx})
	}
	s.unlock()

	s.notify(Event{Type: EventCreated, Resource: res, Index: idx, Rep: rep, Mode: mode})
	return idx, nil
}

// Rep returns the representation behind idx.
func (s *Store) Rep(res types.ResourceID, idx uint32) (uint32, error) {
	s.lock()
	defer s.unlock()
	e, err := s.table(res).Get(idx)
	if err != nil {
		return 0, err
	}
	return e.Rep, nil
}

// Take removes an own handle whose ownership moves back to the resource's
// owner.
func (s *Store) Take(res types.ResourceID, idx uint32) (uint32, error) {
	return s.remove(res, idx, EventTransferred, stateTransferred)
}

// Drop removes an own handle that is being destroyed and hands its rep to
// the store's Dropper.
func (s *Store) Drop(res types.ResourceID, idx uint32) (uint32, error) {
	rep, err := s.remove(res, idx, EventDropped, stateDropped)
	if err == nil && s.dropper != nil {
		s.dropper.DropRep(res, rep)
	}
	return rep, err
}

func (s *Store) remove(res types.ResourceID, idx uint32, ev EventType, why state) (uint32, error) {
	s.lock()
	e, err := s.table(res).remove(idx, why)
	s.unlock()
	if err != nil {
		return 0, err
	}
	s.notify(Event{Type: ev, Resource: res, Index: idx, Rep: e.Rep, Mode: e.Mode})
	return e.Rep, nil
}

// Lend borrows idx for the innermost call scope.
func (s *Store) Lend(res types.ResourceID, idx uint32) (uint32, error) {
	s.lock()
	if len(s.scopes) == 0 {
		s.unlock()
		return 0, errors.NewFault(errors.FaultBorrowViolation, "borrow of handle %d outside a call", idx)
	}
	e, err := s.table(res).Lend(idx)
	if err != nil {
		s.unlock()
		return 0, err
	}
	top := &s.scopes[len(s.scopes)-1]
	top.lends = append(top.lends, ref{res, idx})
	s.unlock()

	s.notify(Event{Type: EventLent, Resource: res, Index: idx, Rep: e.Rep, Mode: e.Mode})
	return e.Rep, nil
}

// BeginCall opens a call scope.
func (s *Store) BeginCall() {
	s.lock()
	s.scopes = append(s.scopes, scope{})
	s.unlock()
}

// EndCall closes the innermost call scope, removing the borrow handles it
// issued and returning the handles it lent.
func (s *Store) EndCall() error {
	s.lock()
	if len(s.scopes) == 0 {
		s.unlock()
		return errors.NotInitialized(errors.PhaseRuntime, "call scope")
	}
	top := s.scopes[len(s.scopes)-1]
	s.scopes = s.scopes[:len(s.scopes)-1]
	events := s.closeScope(top)
	s.unlock()

	for _, e := range events {
		s.notify(e)
	}
	return nil
}

func (s *Store) closeScope(sc scope) []Event {
	var events []Event
	for i := len(sc.lends) - 1; i >= 0; i-- {
		r := sc.lends[i]
		if s.table(r.res).Unlend(r.idx) == nil {
			events = append(events, Event{Type: EventReturned, Resource: r.res, Index: r.idx})
		}
	}
	for _, r := range sc.borrows {
		if e, ok := s.table(r.res).release(r.idx); ok {
			events = append(events, Event{Type: EventScopeEnded, Resource: r.res, Index: r.idx, Rep: e.Rep, Mode: Borrow})
		}
	}
	return events
}

// Depth returns the number of open call scopes.
func (s *Store) Depth() int {
	s.lock()
	defer s.unlock()
	return len(s.scopes)
}

// Unwind closes scopes until depth remain. It recovers the store after a
// call trapped before its scope was closed.
func (s *Store) Unwind(depth int) {
	s.lock()
	var events []Event
	for len(s.scopes) > depth {
		top := s.scopes[len(s.scopes)-1]
		s.scopes = s.scopes[:len(s.scopes)-1]
		events = append(events, s.closeScope(top)...)
	}
	s.unlock()

	for _, e := range events {
		s.notify(e)
	}
}

// Len returns the number of live handles of res.
func (s *Store) Len(res types.ResourceID) int {
	s.lock()
	defer s.unlock()
	if t, ok := s.tables[res]; ok {
		return t.Len()
	}
	return 0
}

func (s *Store) notify(e Event) {
	for _, o := range s.observers {
		o.OnHandleEvent(e)
	}
}
