package resource

import "errors"

var (
	ErrClosed = errors.New("resource table closed")
	ErrFull   = errors.New("resource table full")
)

// Handle is an opaque reference to a value in a table.
// The low 32 bits hold the slot index plus one, the high 32 bits the slot
// generation. Handle 0 is reserved and always invalid.
type Handle uint64

func makeHandle(slot int, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(slot+1))
}

func (h Handle) slot() int {
	return int(uint32(h)) - 1
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

// EventType identifies a lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventReleased
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Event represents a lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Type   EventType
}

// Observer receives notifications about lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) {
	f(e)
}

// Dropper is optionally implemented by values that need cleanup when the
// table is closed with the value still present.
type Dropper interface {
	Drop()
}
