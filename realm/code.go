package realm

import (
	"github.com/wippyai/realm-runtime/term"
)

// Code is a process's executable unit. The scheduler calls Resume once per
// slice with the reduction budget for that slice; the collector calls
// TraceRoots to find the heap values held in the suspended state.
//
// Resume runs on whichever worker holds the process, never concurrently
// with itself. Values held across slices must be reachable from TraceRoots
// because any allocation may move them. If Code also implements io.Closer,
// Close is called once when the process exits.
type Code interface {
	Resume(p *Process, budget int) Result
	TraceRoots(visit func(*term.Value))
}

// CodeFunc adapts a function to Code. It suits process code that keeps no
// heap values between slices.
type CodeFunc func(p *Process, budget int) Result

func (f CodeFunc) Resume(p *Process, budget int) Result { return f(p, budget) }

func (CodeFunc) TraceRoots(func(*term.Value)) {}

// Outcome is how a slice ended.
type Outcome uint8

const (
	// Yielded: the process is still runnable and goes to the back of its
	// run queue.
	Yielded Outcome = iota
	// Blocked: the process waits for a message or a receive timeout.
	Blocked
	// Exited: the process is done.
	Exited
)

func (o Outcome) String() string {
	switch o {
	case Yielded:
		return "yielded"
	case Blocked:
		return "blocked"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}

// Result is returned by Code.Resume.
type Result struct {
	Reason   any
	Outcome  Outcome
	Consumed int
}

// Yield ends the slice and keeps the process runnable.
func Yield(consumed int) Result {
	return Result{Outcome: Yielded, Consumed: consumed}
}

// Block ends the slice until a message arrives or a receive times out.
func Block(consumed int) Result {
	return Result{Outcome: Blocked, Consumed: consumed}
}

// Exit ends the process with reason, a Go-side term.
func Exit(reason any, consumed int) Result {
	return Result{Outcome: Exited, Reason: reason, Consumed: consumed}
}

// Fail ends the process with the reason derived from err.
func Fail(err error, consumed int) Result {
	return Exit(ErrorReason(err), consumed)
}
