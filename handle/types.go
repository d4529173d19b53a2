package handle

import (
	"fmt"

	"github.com/wippyai/wasm-adapter/types"
)

// Mode is the ownership mode of a table entry.
type Mode uint8

const (
	Own Mode = iota
	Borrow
)

func (m Mode) String() string {
	if m == Borrow {
		return "borrow"
	}
	return "own"
}

// Policy decides what happens to an index once its entry is removed.
type Policy uint8

const (
	// RetireFreed never reissues a removed index within a table's lifetime.
	RetireFreed Policy = iota
	// ReuseFreed reissues removed indices, most recently freed first.
	ReuseFreed
)

func (p Policy) String() string {
	if p == ReuseFreed {
		return "reuse"
	}
	return "retire"
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(b []byte) error {
	switch string(b) {
	case "retire", "":
		*p = RetireFreed
	case "reuse":
		*p = ReuseFreed
	default:
		return fmt.Errorf("unknown handle reuse policy %q", b)
	}
	return nil
}

// Entry is a live table slot.
type Entry struct {
	Rep  uint32
	Lent int // active borrows of an own entry
	Mode Mode
}

// EventType identifies a handle lifecycle event.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
	EventTransferred
	EventLent
	EventReturned
	EventScopeEnded
)

var eventNames = [...]string{"created", "dropped", "transferred", "lent", "returned", "scope_ended"}

func (e EventType) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return "unknown"
}

// Event is a handle lifecycle notification.
type Event struct {
	Resource types.ResourceID
	Index    uint32
	Rep      uint32
	Mode     Mode
	Type     EventType
}

// Observer receives handle lifecycle events.
type Observer interface {
	OnHandleEvent(Event)
}

// Dropper is told the rep of every own handle dropped through a store, so
// the owner's side of the resource can be released.
type Dropper interface {
	DropRep(res types.ResourceID, rep uint32)
}

// DropperFunc adapts a function to Dropper.
type DropperFunc func(res types.ResourceID, rep uint32)

func (f DropperFunc) DropRep(res types.ResourceID, rep uint32) { f(res, rep) }

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnHandleEvent(e Event) { f(e) }
