package realm

import (
	"time"

	"github.com/wippyai/realm-runtime/term"
)

// Status is a process's lifecycle state.
type Status uint32

const (
	StatusRunnable Status = iota
	StatusWaiting
	StatusRunning
	StatusExiting
	StatusExited
)

func (s Status) String() string {
	switch s {
	case StatusRunnable:
		return "runnable"
	case StatusWaiting:
		return "waiting"
	case StatusRunning:
		return "running"
	case StatusExiting:
		return "exiting"
	case StatusExited:
		return "exited"
	}
	return "unknown"
}

// Priority is a scheduling band. Higher bands are preferred, lower bands
// still get a turn every few slices.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh

	numPriorities = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	}
	return "unknown"
}

// ParsePriority maps a band name to its Priority.
func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "low":
		return PriorityLow, true
	case "normal", "":
		return PriorityNormal, true
	case "high":
		return PriorityHigh, true
	}
	return 0, false
}

// Infinity makes Receive wait without a timeout.
const Infinity time.Duration = -1

// ReceiveStatus is the result of Process.Receive.
type ReceiveStatus uint8

const (
	// Received: a message matched.
	Received ReceiveStatus = iota
	// Pending: nothing matched yet. The code must return Block and call
	// Receive again with the same arguments when resumed.
	Pending
	// TimedOut: the timeout elapsed without a match.
	TimedOut
)

func (s ReceiveStatus) String() string {
	switch s {
	case Received:
		return "received"
	case Pending:
		return "pending"
	case TimedOut:
		return "timed_out"
	}
	return "unknown"
}

// Info is a point-in-time snapshot of a process.
type Info struct {
	Spawned     time.Time
	Links       []term.PID
	PID         term.PID
	Reductions  int64
	Slices      int64
	HeapWords   int64
	Collections int64
	Messages    int
	Monitors    int
	Watching    int
	Status      Status
	Priority    Priority
	TrapExit    bool
}

// Stats are realm-wide counters.
type Stats struct {
	Spawned     int64
	Exited      int64
	Slices      int64
	Steals      int64
	BinaryBytes int64
	Processes   int
	Binaries    int
	GlobalQueue int
	Workers     int
}

// EventType identifies a process lifecycle event.
type EventType uint8

const (
	EventSpawned EventType = iota
	EventExited
)

func (t EventType) String() string {
	switch t {
	case EventSpawned:
		return "spawned"
	case EventExited:
		return "exited"
	}
	return "unknown"
}

// Event describes a process lifecycle change. Reason is set for exits.
type Event struct {
	Reason any
	PID    term.PID
	Type   EventType
}

// Observer receives process lifecycle notifications. Observers are called
// synchronously from the worker that caused the event and must not block.
type Observer interface {
	OnProcessEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnProcessEvent(e Event) { f(e) }
