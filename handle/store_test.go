package handle

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/wippyai/wasm-adapter/errors"
	"github.com/wippyai/wasm-adapter/types"
)

const (
	resA types.ResourceID = 1
	resB types.ResourceID = 2
)

type recorder struct {
	events []EventType
}

func (r *recorder) OnHandleEvent(e Event) {
	r.events = append(r.events, e.Type)
}

func TestStore_OwnLifecycle(t *testing.T) {
	rec := &recorder{}
	s := NewStore(WithObserver(rec))

	idx, err := s.New(resA, 42, Own)
	if err != nil {
		t.Fatal(err)
	}
	if rep, err := s.Rep(resA, idx); err != nil || rep != 42 {
		t.Fatalf("Rep = %d, %v", rep, err)
	}
	if rep, err := s.Drop(resA, idx); err != nil || rep != 42 {
		t.Fatalf("Drop = %d, %v", rep, err)
	}

	_, err = s.Rep(resA, idx)
	if !errors.Is(err, errors.ErrInvalidHandle) {
		t.Errorf("use after drop: %v", err)
	}
	_, err = s.Drop(resA, idx)
	if !errors.Is(err, errors.ErrInvalidHandle) {
		t.Errorf("double drop: %v", err)
	}

	if diff := cmp.Diff([]EventType{EventCreated, EventDropped}, rec.events); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestStore_TablesAreIndependent(t *testing.T) {
	s := NewStore()
	a, _ := s.New(resA, 1, Own)
	b, _ := s.New(resB, 2, Own)
	if a != 1 || b != 1 {
		t.Fatalf("per-resource indices = %d, %d", a, b)
	}
	if _, err := s.Take(resA, a); err != nil {
		t.Fatal(err)
	}
	if s.Len(resA) != 0 || s.Len(resB) != 1 {
		t.Errorf("Len = %d, %d", s.Len(resA), s.Len(resB))
	}
}

func TestStore_BorrowScope(t *testing.T) {
	rec := &recorder{}
	s := NewStore(WithObserver(rec))

	if _, err := s.New(resA, 5, Borrow); !errors.Is(err, errors.ErrBorrowViolation) {
		t.Fatalf("borrow outside scope: %v", err)
	}

	s.BeginCall()
	idx, err := s.New(resA, 5, Borrow)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Drop(resA, idx); !errors.Is(err, errors.ErrBorrowViolation) {
		t.Errorf("borrower drop: %v", err)
	}
	if err := s.EndCall(); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Rep(resA, idx); !errors.Is(err, errors.ErrBorrowViolation) {
		t.Errorf("retained borrow: %v", err)
	}
	if s.Len(resA) != 0 {
		t.Errorf("Len = %d after scope", s.Len(resA))
	}
	if diff := cmp.Diff([]EventType{EventCreated, EventScopeEnded}, rec.events); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestStore_LendPinsUntilEndCall(t *testing.T) {
	s := NewStore()
	idx, _ := s.New(resA, 8, Own)

	s.BeginCall()
	rep, err := s.Lend(resA, idx)
	if err != nil || rep != 8 {
		t.Fatalf("Lend = %d, %v", rep, err)
	}
	if _, err := s.Drop(resA, idx); !errors.Is(err, errors.ErrBorrowViolation) {
		t.Errorf("drop while lent: %v", err)
	}
	if err := s.EndCall(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Drop(resA, idx); err != nil {
		t.Errorf("drop after call: %v", err)
	}
}

func TestStore_Dropper(t *testing.T) {
	type drop struct {
		Res types.ResourceID
		Rep uint32
	}
	var got []drop
	s := NewStore(WithDropper(DropperFunc(func(res types.ResourceID, rep uint32) {
		got = append(got, drop{res, rep})
	})))

	a, _ := s.New(resA, 10, Own)
	b, _ := s.New(resB, 20, Own)
	moved, _ := s.New(resA, 30, Own)

	s.BeginCall()
	if _, err := s.Lend(resA, a); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Drop(resA, a); !errors.Is(err, errors.ErrBorrowViolation) {
		t.Errorf("drop while lent: %v", err)
	}
	borrowed, _ := s.New(resB, 40, Borrow)
	if _, err := s.Drop(resB, borrowed); !errors.Is(err, errors.ErrBorrowViolation) {
		t.Errorf("drop of a borrow: %v", err)
	}
	if err := s.EndCall(); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Take(resA, moved); err != nil {
		t.Fatal(err)
	}
	for _, h := range []struct {
		res types.ResourceID
		idx uint32
	}{{resA, a}, {resB, b}} {
		if _, err := s.Drop(h.res, h.idx); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Drop(resA, a); !errors.Is(err, errors.ErrInvalidHandle) {
		t.Errorf("double drop: %v", err)
	}

	want := []drop{{resA, 10}, {resB, 20}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dropped reps (-want +got):\n%s", diff)
	}
}

func TestStore_NestedScopes(t *testing.T) {
	s := NewStore()
	s.BeginCall()
	outer, _ := s.New(resA, 1, Borrow)
	s.BeginCall()
	inner, _ := s.New(resA, 2, Borrow)
	if s.Depth() != 2 {
		t.Fatalf("Depth = %d", s.Depth())
	}
	s.EndCall()

	if _, err := s.Rep(resA, inner); err == nil {
		t.Error("inner borrow should have expired")
	}
	if _, err := s.Rep(resA, outer); err != nil {
		t.Errorf("outer borrow expired early: %v", err)
	}
	s.EndCall()

	if err := s.EndCall(); !errors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindNotInitialized}) {
		t.Errorf("unbalanced EndCall: %v", err)
	}
}

func TestStore_Unwind(t *testing.T) {
	s := NewStore()
	idx, _ := s.New(resA, 3, Own)
	s.BeginCall()
	s.Lend(resA, idx)
	s.BeginCall()
	s.Unwind(0)

	if s.Depth() != 0 {
		t.Fatalf("Depth = %d after Unwind", s.Depth())
	}
	if _, err := s.Drop(resA, idx); err != nil {
		t.Errorf("lend not released by Unwind: %v", err)
	}
}

func TestStore_Locking(t *testing.T) {
	s := NewStore(WithLocking(), WithPolicy(ReuseFreed))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(rep uint32) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				idx, err := s.New(resA, rep, Own)
				if err != nil {
					t.Error(err)
					return
				}
				if _, err := s.Drop(resA, idx); err != nil {
					t.Error(err)
					return
				}
			}
		}(uint32(i))
	}
	wg.Wait()
	if s.Len(resA) != 0 {
		t.Errorf("Len = %d", s.Len(resA))
	}
}

func TestObserverFunc(t *testing.T) {
	var got []Event
	s := NewStore(WithObserver(ObserverFunc(func(e Event) { got = append(got, e) })))
	idx, _ := s.New(resB, 11, Own)
	s.Take(resB, idx)

	want := []Event{
		{Type: EventCreated, Resource: resB, Index: idx, Rep: 11, Mode: Own},
		{Type: EventTransferred, Resource: resB, Index: idx, Rep: 11, Mode: Own},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
	if EventTransferred.String() != "transferred" {
		t.Errorf("EventType String = %s", EventTransferred)
	}
}
