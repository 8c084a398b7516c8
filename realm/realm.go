package realm

import (
	"cmp"
	"context"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/realm-runtime/binpool"
	"github.com/wippyai/realm-runtime/errors"
	"github.com/wippyai/realm-runtime/heap"
	"github.com/wippyai/realm-runtime/mailbox"
	"github.com/wippyai/realm-runtime/pages"
	"github.com/wippyai/realm-runtime/sched"
	"github.com/wippyai/realm-runtime/term"
)

// Realm schedules lightweight processes onto a fixed set of workers.
type Realm struct {
	cfg      Config
	log      *zap.Logger
	provider pages.Provider
	budget   *pages.Budget
	pool     *binpool.Pool
	global   *sched.GlobalQueue[Process]
	workers  []*worker

	mu      sync.RWMutex
	procs   map[term.PID]*Process
	closing bool

	obsMu     sync.RWMutex
	observers []Observer

	nextPID atomic.Uint64
	parked  atomic.Int32
	started atomic.Bool
	spawned atomic.Int64
	exited  atomic.Int64
	slices  atomic.Int64
	steals  atomic.Int64

	cancel  context.CancelFunc
	stopped chan struct{}
	err     error
}

// New creates a realm. Processes may be spawned before Start; they run once
// the workers are started.
func New(cfg Config, opts ...Option) (*Realm, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Realm{
		cfg:     cfg,
		log:     zap.NewNop(),
		global:  sched.NewGlobalQueue[Process](),
		procs:   make(map[term.PID]*Process),
		stopped: make(chan struct{}),
	}
	if cfg.MemoryBudget > 0 {
		r.budget = pages.NewBudget(cfg.MemoryBudget)
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.provider == nil {
		p, err := pages.New(cfg.Provider, r.budget)
		if err != nil {
			return nil, err
		}
		r.provider = p
	}
	r.pool = binpool.New(r.budget)

	r.workers = make([]*worker, cfg.Workers)
	for i := range r.workers {
		r.workers[i] = newWorker(r, i)
	}
	return r, nil
}

// Config returns the realm configuration.
func (r *Realm) Config() Config { return r.cfg }

// Pool returns the realm's binary pool.
func (r *Realm) Pool() *binpool.Pool { return r.pool }

// Logger returns the realm logger.
func (r *Realm) Logger() *zap.Logger { return r.log }

// Start launches the workers. They run until ctx is cancelled, Shutdown is
// called or a fatal fault occurs.
func (r *Realm) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return errors.Closed(errors.PhaseSchedule, "realm")
	}
	if r.started.Load() {
		return errors.New(errors.PhaseSchedule, errors.KindInvalidInput).
			Detail("realm already started").
			Build()
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range r.workers {
		g.Go(func() error { return w.run(ctx) })
	}
	go func() {
		r.err = g.Wait()
		close(r.stopped)
	}()
	r.started.Store(true)

	r.log.Info("realm started",
		zap.Int("workers", len(r.workers)),
		zap.Int("reduction_budget", r.cfg.ReductionBudget))
	return nil
}

// Wait blocks until the workers stop and returns the fatal fault that
// stopped them, if any.
func (r *Realm) Wait() error {
	if !r.started.Load() {
		return errors.NotInitialized(errors.PhaseSchedule, "realm")
	}
	<-r.stopped
	return r.err
}

// Done is closed when the workers have stopped.
func (r *Realm) Done() <-chan struct{} { return r.stopped }

// Shutdown stops the workers, terminates every remaining process with
// reason :shutdown and releases the binary pool.
func (r *Realm) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return nil
	}
	r.closing = true
	r.mu.Unlock()

	if r.started.Load() {
		r.cancel()
		select {
		case <-r.stopped:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var errs error
	for _, p := range r.snapshot() {
		errs = multierr.Append(errs, r.terminate(p, ReasonShutdown, nil))
	}
	r.global.Drain()
	for _, w := range r.workers {
		w.clear()
	}
	errs = multierr.Append(errs, r.pool.Close())

	r.log.Info("realm stopped",
		zap.Int64("spawned", r.spawned.Load()),
		zap.Int64("exited", r.exited.Load()))
	return errs
}

// Spawn creates a process running code and queues it on the global run
// queue.
func (r *Realm) Spawn(code Code, opts ...SpawnOption) (term.PID, error) {
	return r.spawn(code, nil, opts)
}

func (r *Realm) spawn(code Code, w *worker, opts []SpawnOption) (term.PID, error) {
	if code == nil {
		return 0, errors.InvalidInput(errors.PhaseSpawn, "nil code")
	}
	o := spawnOptions{priority: PriorityNormal, heap: r.cfg.Heap}
	for _, opt := range opts {
		opt(&o)
	}
	if o.priority >= numPriorities {
		return 0, errors.InvalidInput(errors.PhaseSpawn, "unknown priority")
	}
	if err := o.heap.Validate(); err != nil {
		return 0, err
	}

	h, err := heap.New(o.heap, r.provider, r.pool)
	if err != nil {
		return 0, err
	}
	p := &Process{
		spawned:  time.Now(),
		realm:    r,
		code:     code,
		heap:     h,
		pid:      term.PID(r.nextPID.Add(1)),
		priority: o.priority,
		links:    make(map[term.PID]struct{}),
		monitors: make(map[term.Ref]term.PID),
		watching: make(map[term.Ref]term.PID),
	}
	p.mailbox = mailbox.New(h)
	h.AddTracer(code.TraceRoots)
	p.trapExit.Store(o.trapExit)
	p.state.Store(uint32(StatusRunnable))

	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		_ = h.Release()
		return 0, errors.Closed(errors.PhaseSpawn, "realm")
	}
	r.procs[p.pid] = p
	r.mu.Unlock()

	if o.link != 0 {
		if err := r.link(p.pid, o.link); err != nil {
			r.remove(p.pid)
			p.mailbox.Close()
			_ = h.Release()
			return 0, err
		}
	}

	r.spawned.Add(1)
	r.log.Debug("process spawned",
		zap.Stringer("pid", p.pid),
		zap.Stringer("priority", p.priority),
		zap.Int("heap_words", o.heap.InitialWords))
	r.emit(Event{Type: EventSpawned, PID: p.pid})
	r.enqueue(p, w)
	return p.pid, nil
}

// Send delivers t to pid from outside any process. The sender is pid 0.
func (r *Realm) Send(pid term.PID, t any) error {
	f, err := heap.NewFragment(r.cfg.Heap, r.provider, r.pool, t)
	if err != nil {
		return err
	}
	r.deliver(pid, mailbox.NewMessage(0, f), nil)
	return nil
}

// Exit forces pid to exit with reason. The signal cannot be trapped and
// takes effect the next time the process is scheduled. Exiting a process
// that has already exited has no effect.
func (r *Realm) Exit(pid term.PID, reason any) error {
	if r.lookup(pid) == nil {
		if r.issued(pid) {
			return nil
		}
		return errors.NoProcess(errors.PhaseExit, pid)
	}
	r.deliver(pid, mailbox.NewExit(0, normalizeReason(reason), true), nil)
	return nil
}

// Link links two processes.
func (r *Realm) Link(a, b term.PID) error { return r.link(a, b) }

// Unlink removes the link between two processes.
func (r *Realm) Unlink(a, b term.PID) { r.unlink(a, b) }

// Monitor makes observer receive [:DOWN ref target reason] when target
// exits.
func (r *Realm) Monitor(observer, target term.PID) (term.Ref, error) {
	return r.monitor(observer, target, nil)
}

// Demonitor cancels a monitor held by observer.
func (r *Realm) Demonitor(observer term.PID, ref term.Ref) bool {
	return r.demonitor(observer, ref)
}

// ProcessInfo returns a snapshot of a live process.
func (r *Realm) ProcessInfo(pid term.PID) (Info, error) {
	p := r.lookup(pid)
	if p == nil {
		return Info{}, errors.NoProcess(errors.PhaseRuntime, pid)
	}
	info := Info{
		Spawned:     p.spawned,
		PID:         p.pid,
		Reductions:  p.reductions.Load(),
		Slices:      p.slices.Load(),
		HeapWords:   p.heapWords.Load(),
		Collections: p.collections.Load(),
		Messages:    p.mailbox.Len(),
		Status:      p.Status(),
		Priority:    p.priority,
		TrapExit:    p.trapExit.Load(),
	}
	p.mu.Lock()
	info.Links = make([]term.PID, 0, len(p.links))
	for l := range p.links {
		info.Links = append(info.Links, l)
	}
	info.Monitors = len(p.monitors)
	info.Watching = len(p.watching)
	p.mu.Unlock()
	slices.Sort(info.Links)
	return info, nil
}

// Processes lists the live processes in pid order.
func (r *Realm) Processes() []term.PID {
	r.mu.RLock()
	out := make([]term.PID, 0, len(r.procs))
	for pid := range r.procs {
		out = append(out, pid)
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Stats returns realm-wide counters.
func (r *Realm) Stats() Stats {
	r.mu.RLock()
	n := len(r.procs)
	r.mu.RUnlock()
	return Stats{
		Spawned:     r.spawned.Load(),
		Exited:      r.exited.Load(),
		Slices:      r.slices.Load(),
		Steals:      r.steals.Load(),
		BinaryBytes: r.pool.Size(),
		Processes:   n,
		Binaries:    r.pool.Len(),
		GlobalQueue: r.global.Len(),
		Workers:     len(r.workers),
	}
}

// Subscribe adds an observer for process lifecycle events.
func (r *Realm) Subscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, o)
}

// Unsubscribe removes an observer. Observers are compared with ==, so only
// comparable ones (typically pointers) can be removed; ObserverFunc values
// and other non-comparable observers are left subscribed.
func (r *Realm) Unsubscribe(o Observer) {
	if o == nil || !reflect.TypeOf(o).Comparable() {
		return
	}
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	for i, obs := range r.observers {
		if obs == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

func (r *Realm) emit(e Event) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, o := range r.observers {
		o.OnProcessEvent(e)
	}
}

func (r *Realm) lookup(pid term.PID) *Process {
	r.mu.RLock()
	p := r.procs[pid]
	r.mu.RUnlock()
	return p
}

func (r *Realm) issued(pid term.PID) bool {
	return pid != 0 && uint64(pid) <= r.nextPID.Load()
}

func (r *Realm) remove(pid term.PID) {
	r.mu.Lock()
	delete(r.procs, pid)
	r.mu.Unlock()
}

func (r *Realm) snapshot() []*Process {
	r.mu.RLock()
	out := make([]*Process, 0, len(r.procs))
	for _, p := range r.procs {
		out = append(out, p)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Process) int { return cmp.Compare(a.pid, b.pid) })
	return out
}

// deliver pushes an entry into pid's mailbox and wakes the process. Entries
// for unknown pids are discarded.
func (r *Realm) deliver(pid term.PID, e *mailbox.Entry, w *worker) {
	p := r.lookup(pid)
	if p == nil {
		mailbox.Discard(e)
		return
	}
	r.post(p, e, w)
}

func (r *Realm) post(p *Process, e *mailbox.Entry, w *worker) {
	if p.mailbox.Send(e) {
		r.wake(p, w)
	}
}

// postTerm builds t as a message from from and posts it to p.
func (r *Realm) postTerm(p *Process, from term.PID, t any, w *worker) {
	f, err := heap.NewFragment(r.cfg.Heap, r.provider, r.pool, t)
	if err != nil {
		r.log.Warn("notification dropped",
			zap.Stringer("pid", p.pid),
			zap.Error(err))
		return
	}
	r.post(p, mailbox.NewMessage(from, f), w)
}

// wake makes a waiting process runnable. w is the worker doing the waking,
// nil outside workers.
func (r *Realm) wake(p *Process, w *worker) {
	if p.state.CompareAndSwap(uint32(StatusWaiting), uint32(StatusRunnable)) {
		r.enqueue(p, w)
	}
}

func (r *Realm) enqueue(p *Process, w *worker) {
	if w != nil {
		w.bands[p.priority].PushOverflow(p, r.global)
	} else {
		r.global.Push(p)
	}
	r.notify()
}

// notify unparks one idle worker, if any.
func (r *Realm) notify() {
	if r.parked.Load() == 0 {
		return
	}
	for _, w := range r.workers {
		if w.unpark() {
			select {
			case w.wake <- struct{}{}:
			default:
			}
			return
		}
	}
}

func (r *Realm) hasWork() bool {
	if r.global.Len() > 0 {
		return true
	}
	for _, w := range r.workers {
		for _, b := range w.bands {
			if b.Len() > 0 {
				return true
			}
		}
	}
	return false
}
