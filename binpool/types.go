package binpool

import "fmt"

// Ref is an opaque handle to a pooled binary. The low 32 bits are the slot
// index plus one and the high 32 bits the slot generation. Ref 0 is reserved
// and always invalid.
type Ref uint64

func makeRef(slot, gen uint32) Ref {
	return Ref(uint64(gen)<<32 | uint64(slot+1))
}

func (r Ref) slot() (uint32, bool) {
	idx := uint32(r)
	if idx == 0 {
		return 0, false
	}
	return idx - 1, true
}

func (r Ref) gen() uint32 { return uint32(r >> 32) }

func (r Ref) String() string {
	return fmt.Sprintf("bin#%d.%d", uint32(r), r.gen())
}

// EventType identifies a pool lifecycle event.
type EventType uint8

const (
	EventPublished EventType = iota
	EventFreed
)

func (t EventType) String() string {
	switch t {
	case EventPublished:
		return "published"
	case EventFreed:
		return "freed"
	}
	return "unknown"
}

// Event describes a pool lifecycle change.
type Event struct {
	Ref  Ref
	Size int
	Type EventType
}

// Observer receives pool lifecycle notifications. Observers are called
// synchronously from the goroutine that caused the event.
type Observer interface {
	OnPoolEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnPoolEvent(e Event) { f(e) }
