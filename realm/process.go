package realm

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wippyai/realm-runtime/heap"
	"github.com/wippyai/realm-runtime/mailbox"
	"github.com/wippyai/realm-runtime/term"
)

// Process is a lightweight process. Its heap and mailbox belong to it alone;
// the methods below are meant to be called by its Code during Resume.
type Process struct {
	spawned  time.Time
	realm    *Realm
	code     Code
	heap     *heap.Heap
	mailbox  *mailbox.Mailbox
	pid      term.PID
	priority Priority

	state       atomic.Uint32
	trapExit    atomic.Bool
	reductions  atomic.Int64
	slices      atomic.Int64
	heapWords   atomic.Int64
	collections atomic.Int64
	fired       atomic.Uint64

	// mu guards the link and monitor tables and the exited flag.
	mu       sync.Mutex
	links    map[term.PID]struct{}
	monitors map[term.Ref]term.PID // ref -> observer watching us
	watching map[term.Ref]term.PID // ref -> target we watch
	exited   bool

	// Owned by the worker running the process.
	worker     *worker
	exitReason any
	timer      *time.Timer
	waitGen    uint64
	timerGen   uint64
	waiting    bool
	dying      bool
}

// Self returns the process identifier.
func (p *Process) Self() term.PID { return p.pid }

// Realm returns the realm the process runs in.
func (p *Process) Realm() *Realm { return p.realm }

// Heap returns the process heap.
func (p *Process) Heap() *heap.Heap { return p.heap }

// Priority returns the scheduling band.
func (p *Process) Priority() Priority { return p.priority }

// Status returns the lifecycle state.
func (p *Process) Status() Status { return Status(p.state.Load()) }

// TrapExit sets whether exit signals become messages and returns the
// previous setting.
func (p *Process) TrapExit(trap bool) bool { return p.trapExit.Swap(trap) }

// Send copies v into to's mailbox. Sending to a process that does not exist
// or has exited silently drops the message.
func (p *Process) Send(to term.PID, v term.Value) error {
	f, err := p.heap.Export(v)
	if err != nil {
		return err
	}
	p.realm.deliver(to, mailbox.NewMessage(p.pid, f), p.worker)
	return nil
}

// SendTerm builds t directly as a message to to, bypassing the sender's heap.
func (p *Process) SendTerm(to term.PID, t any) error {
	f, err := heap.NewFragment(p.heap.Config(), p.realm.provider, p.realm.pool, t)
	if err != nil {
		return err
	}
	p.realm.deliver(to, mailbox.NewMessage(p.pid, f), p.worker)
	return nil
}

// Receive returns the oldest message matching one of preds (any message
// when preds is empty). With no match it returns Pending, and the code must
// end its slice with Block; the process is resumed when a message arrives
// or timeout elapses, and calls Receive again. timeout 0 polls; Infinity
// waits forever.
func (p *Process) Receive(timeout time.Duration, preds ...mailbox.Predicate) (mailbox.Message, ReceiveStatus) {
	p.drain()
	if m, ok := p.mailbox.Receive(preds...); ok {
		p.endWait()
		return m, Received
	}
	if p.dying {
		return mailbox.Message{}, Pending
	}
	if timeout == 0 || p.timedOut() {
		p.endWait()
		return mailbox.Message{}, TimedOut
	}
	if !p.waiting {
		p.waiting = true
		if timeout > 0 {
			p.arm(timeout)
		}
	}
	return mailbox.Message{}, Pending
}

// Messages returns the number of queued messages.
func (p *Process) Messages() int { return p.mailbox.Len() }

// Spawn starts a new process on the caller's worker.
func (p *Process) Spawn(code Code, opts ...SpawnOption) (term.PID, error) {
	return p.realm.spawn(code, p.worker, opts)
}

// Link links the process with pid. Linking to a process that does not
// exist fails with a noproc error.
func (p *Process) Link(pid term.PID) error { return p.realm.link(p.pid, pid) }

// Unlink removes a link. It is a no-op when no link exists.
func (p *Process) Unlink(pid term.PID) { p.realm.unlink(p.pid, pid) }

// Monitor subscribes to pid's exit. A [:DOWN ref pid reason] message is
// delivered when it exits, immediately with reason :noproc if it already has.
func (p *Process) Monitor(pid term.PID) (term.Ref, error) {
	return p.realm.monitor(p.pid, pid, p.worker)
}

// Demonitor cancels a monitor. It reports whether the monitor was active.
func (p *Process) Demonitor(ref term.Ref) bool { return p.realm.demonitor(p.pid, ref) }

// Exit sends an exit signal to pid as if the process had exited with reason.
// :kill cannot be trapped and terminates the target with :killed.
func (p *Process) Exit(pid term.PID, reason any) {
	p.realm.deliver(pid, mailbox.NewExit(p.pid, normalizeReason(reason), term.IsKill(reason)), p.worker)
}

func (p *Process) drain() {
	p.mailbox.Drain(p.onSignal)
}

func (p *Process) onSignal(s mailbox.Signal) (term.Value, bool) {
	if p.dying {
		return term.Nil, false
	}
	switch {
	case s.Kill:
		if term.IsKill(s.Reason) {
			p.die(ReasonKilled)
		} else {
			p.die(s.Reason)
		}
	case p.trapExit.Load():
		v, err := p.heap.Put(term.Tuple{term.Keyword("EXIT"), s.From, s.Reason})
		if err != nil {
			p.die(ErrorReason(err))
			return term.Nil, false
		}
		return v, true
	case !term.IsNormal(s.Reason):
		p.die(s.Reason)
	}
	return term.Nil, false
}

func (p *Process) die(reason any) {
	p.dying = true
	p.exitReason = reason
}

func (p *Process) arm(timeout time.Duration) {
	p.waitGen++
	gen := p.waitGen
	p.timerGen = gen
	p.timer = time.AfterFunc(timeout, func() {
		p.fired.Store(gen)
		p.realm.wake(p, nil)
	})
}

func (p *Process) timedOut() bool {
	return p.timerGen != 0 && p.fired.Load() == p.timerGen
}

func (p *Process) endWait() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.timerGen = 0
	p.waiting = false
}
