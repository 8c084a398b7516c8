package realm

import (
	"context"
	"math/rand/v2"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/realm-runtime/errors"
	"github.com/wippyai/realm-runtime/sched"
)

// worker runs processes from its own run queues, the global queue and,
// when both are empty, its peers' queues.
type worker struct {
	realm  *Realm
	log    *zap.Logger
	rng    *rand.Rand
	wake   chan struct{}
	bands  [numPriorities]*sched.Deque[Process]
	tick   uint64
	id     int
	parked atomic.Bool
}

func newWorker(r *Realm, id int) *worker {
	w := &worker{
		realm: r,
		log:   r.log.With(zap.Int("worker", id)),
		rng:   rand.New(rand.NewPCG(uint64(id), rand.Uint64())),
		wake:  make(chan struct{}, 1),
		id:    id,
	}
	for i := range w.bands {
		w.bands[i] = sched.NewDeque[Process](r.cfg.RunQueueSize)
	}
	return w
}

func (w *worker) run(ctx context.Context) error {
	w.log.Debug("worker started")
	defer w.log.Debug("worker stopped")
	for ctx.Err() == nil {
		p := w.next()
		if p == nil {
			w.park(ctx)
			continue
		}
		if err := w.execute(p); err != nil {
			w.log.Error("fatal fault, stopping realm",
				zap.Stringer("pid", p.pid),
				zap.Error(err))
			return err
		}
	}
	return nil
}

// next picks the process to run. The global queue is polled first every
// GlobalQueueInterval ticks, then the local bands, then the global queue
// again, then peers.
func (w *worker) next() *Process {
	cfg := &w.realm.cfg
	w.tick++
	if w.tick%uint64(cfg.GlobalQueueInterval) == 0 {
		if p := w.pollGlobal(); p != nil {
			return p
		}
	}
	if p := w.local(); p != nil {
		return p
	}
	if p := w.pollGlobal(); p != nil {
		return p
	}
	return w.steal()
}

// local scans the bands from high to low. Every FairnessInterval ticks the
// scan starts at a rotating band instead, so a busy high band cannot starve
// the others.
func (w *worker) local() *Process {
	fair := uint64(w.realm.cfg.FairnessInterval)
	start := numPriorities - 1
	if w.tick%fair == 0 {
		start = int(w.tick/fair) % numPriorities
	}
	for i := range numPriorities {
		b := (start - i + numPriorities) % numPriorities
		if p := w.bands[b].Pop(); p != nil {
			return p
		}
	}
	return nil
}

// pollGlobal takes one process from the global queue to run and moves this
// worker's share of the rest into the local bands.
func (w *worker) pollGlobal() *Process {
	r := w.realm
	if r.global.Len() == 0 {
		return nil
	}
	p := r.global.Pop()
	if p == nil {
		return nil
	}
	n := min(r.global.Len()/len(r.workers)+1, w.bands[0].Cap()/2)
	for range n {
		q := r.global.Pop()
		if q == nil {
			break
		}
		w.bands[q.priority].PushOverflow(q, r.global)
	}
	return p
}

func (w *worker) steal() *Process {
	r := w.realm
	n := len(r.workers)
	if n == 1 {
		return nil
	}
	for range r.cfg.StealAttempts {
		off := w.rng.IntN(n)
		for i := range n {
			peer := r.workers[(off+i)%n]
			if peer == w {
				continue
			}
			for b := numPriorities - 1; b >= 0; b-- {
				if p := w.bands[b].Steal(peer.bands[b]); p != nil {
					r.steals.Add(1)
					return p
				}
			}
		}
	}
	return nil
}

// park sleeps until notify hands this worker new work or ctx ends. The
// parked flag is published before the final check for work, so a
// concurrent enqueue either sees it or is seen.
func (w *worker) park(ctx context.Context) {
	r := w.realm
	w.parked.Store(true)
	r.parked.Add(1)
	if r.hasWork() && w.unpark() {
		return
	}
	select {
	case <-w.wake:
	case <-ctx.Done():
		w.unpark()
	}
}

func (w *worker) unpark() bool {
	if w.parked.CompareAndSwap(true, false) {
		w.realm.parked.Add(-1)
		return true
	}
	return false
}

// execute runs one slice of p. The returned error is a fatal fault.
func (w *worker) execute(p *Process) error {
	r := w.realm
	if st := Status(p.state.Load()); st != StatusRunnable {
		return errors.Corrupt(errors.PhaseSchedule, "process %v dequeued while %v", p.pid, st)
	}
	p.state.Store(uint32(StatusRunning))
	p.worker = w

	p.drain()
	res := Result{Outcome: Yielded}
	if !p.dying {
		res = w.resume(p)
		p.reductions.Add(int64(res.Consumed))
		p.slices.Add(1)
		r.slices.Add(1)
	}

	if fault := p.heap.Fault(); fault != nil {
		if errors.IsFatal(fault) {
			return fault
		}
		if !p.dying {
			p.die(ErrorReason(fault))
		}
	}
	st := p.heap.Stats()
	p.heapWords.Store(int64(st.Capacity))
	p.collections.Store(int64(st.Collections))

	switch {
	case p.dying:
		return w.exit(p, p.exitReason)
	case res.Outcome == Exited:
		return w.exit(p, res.Reason)
	case res.Outcome == Blocked:
		armed := p.timerGen
		p.worker = nil
		p.state.Store(uint32(StatusWaiting))
		if p.mailbox.HasArrivals() || (armed != 0 && p.fired.Load() == armed) {
			r.wake(p, w)
		}
	default:
		p.worker = nil
		p.state.Store(uint32(StatusRunnable))
		w.bands[p.priority].PushOverflow(p, r.global)
	}
	return nil
}

// resume calls into process code. A panic becomes a crash exit.
func (w *worker) resume(p *Process) (res Result) {
	defer func() {
		if v := recover(); v != nil {
			res = Fail(errors.Crash(v), 0)
		}
	}()
	return p.code.Resume(p, w.realm.cfg.ReductionBudget)
}

func (w *worker) exit(p *Process, reason any) error {
	if err := w.realm.terminate(p, reason, w); err != nil {
		w.log.Warn("process teardown failed",
			zap.Stringer("pid", p.pid),
			zap.Error(err))
	}
	p.worker = nil
	return nil
}

// clear empties the run queues. Only valid once the worker has stopped.
func (w *worker) clear() {
	for _, b := range w.bands {
		for b.Pop() != nil {
		}
	}
}
