package binpool

import (
	"reflect"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/realm-runtime/errors"
	"github.com/wippyai/realm-runtime/pages"
)

// Pool is the realm-wide store of immutable byte buffers shared between
// processes. Reference counts are atomic; the slot table is guarded by a
// single lock taken only on publish and on the release that frees an entry.
type Pool struct {
	budget    *pages.Budget
	entries   []*entry
	gens      []uint32
	freeList  []uint32
	observers []Observer
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	size      atomic.Int64
	live      atomic.Int64
	closed    bool
}

type entry struct {
	data []byte
	refs atomic.Int64
	gen  uint32
}

// New creates a pool charging budget (nil for unlimited).
func New(budget *pages.Budget) *Pool {
	return &Pool{
		budget:   budget,
		entries:  make([]*entry, 0, 64),
		gens:     make([]uint32, 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

// Publish stores data with a reference count of one. The pool takes
// ownership of the slice; callers must not modify it afterwards.
func (p *Pool) Publish(data []byte) (Ref, error) {
	if !p.budget.Reserve(int64(len(data))) {
		return 0, errors.OutOfMemory(errors.PhasePool, len(data), "bytes", pages.ErrBudgetExhausted)
	}

	e := &entry{data: data}
	e.refs.Store(1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.budget.Return(int64(len(data)))
		return 0, errors.Closed(errors.PhasePool, "binary pool")
	}

	var slot uint32
	if n := len(p.freeList); n > 0 {
		slot = p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
	} else {
		slot = uint32(len(p.entries))
		p.entries = append(p.entries, nil)
		p.gens = append(p.gens, 0)
	}
	e.gen = p.gens[slot]
	p.entries[slot] = e
	p.mu.Unlock()

	p.size.Add(int64(len(data)))
	p.live.Add(1)

	ref := makeRef(slot, e.gen)
	p.notify(Event{Type: EventPublished, Ref: ref, Size: len(data)})
	return ref, nil
}

func (p *Pool) lookup(ref Ref) (*entry, uint32, bool) {
	slot, ok := ref.slot()
	if !ok {
		return nil, 0, false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if int(slot) >= len(p.entries) {
		return nil, 0, false
	}
	e := p.entries[slot]
	if e == nil || e.gen != ref.gen() {
		return nil, 0, false
	}
	return e, slot, true
}

// Retain adds a reference. Retaining a ref whose count already reached zero
// is an error: nobody may still hold it.
func (p *Pool) Retain(ref Ref) error {
	e, _, ok := p.lookup(ref)
	if !ok {
		return errors.InvalidRef(errors.PhasePool, "binary", ref)
	}
	for {
		n := e.refs.Load()
		if n <= 0 {
			return errors.InvalidRef(errors.PhasePool, "binary", ref)
		}
		if e.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops a reference and reports whether it was the last one, in
// which case the buffer has been freed.
func (p *Pool) Release(ref Ref) (bool, error) {
	e, slot, ok := p.lookup(ref)
	if !ok {
		return false, errors.InvalidRef(errors.PhasePool, "binary", ref)
	}

	var n int64
	for {
		n = e.refs.Load()
		if n <= 0 {
			return false, errors.InvalidRef(errors.PhasePool, "binary", ref)
		}
		if e.refs.CompareAndSwap(n, n-1) {
			break
		}
	}
	if n > 1 {
		return false, nil
	}

	p.mu.Lock()
	if int(slot) < len(p.entries) && p.entries[slot] == e {
		p.entries[slot] = nil
		p.gens[slot]++
		p.freeList = append(p.freeList, slot)
	}
	p.mu.Unlock()

	p.free(ref, e)
	return true, nil
}

func (p *Pool) free(ref Ref, e *entry) {
	size := len(e.data)
	p.size.Add(-int64(size))
	p.live.Add(-1)
	p.budget.Return(int64(size))
	p.notify(Event{Type: EventFreed, Ref: ref, Size: size})
}

// Bytes returns the buffer behind ref. The slice must be treated as
// read-only and is only valid while the caller holds a reference.
func (p *Pool) Bytes(ref Ref) ([]byte, error) {
	e, _, ok := p.lookup(ref)
	if !ok || e.refs.Load() <= 0 {
		return nil, errors.InvalidRef(errors.PhasePool, "binary", ref)
	}
	return e.data, nil
}

// Count returns the current reference count of ref, or 0 if it is not live.
func (p *Pool) Count(ref Ref) int64 {
	e, _, ok := p.lookup(ref)
	if !ok {
		return 0
	}
	return e.refs.Load()
}

// Len returns the number of live buffers.
func (p *Pool) Len() int {
	return int(p.live.Load())
}

// Size returns the total bytes held by live buffers.
func (p *Pool) Size() int64 {
	return p.size.Load()
}

// Subscribe adds an observer for lifecycle events.
func (p *Pool) Subscribe(o Observer) {
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	p.observers = append(p.observers, o)
}

// Unsubscribe removes an observer. Observers are compared with ==, so
// ObserverFunc values and other non-comparable observers stay subscribed.
func (p *Pool) Unsubscribe(o Observer) {
	if o == nil || !reflect.TypeOf(o).Comparable() {
		return
	}
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	for i, obs := range p.observers {
		if obs == o {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			return
		}
	}
}

// Close frees every remaining buffer regardless of its count and rejects
// further publishes.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	type freed struct {
		e   *entry
		ref Ref
	}
	var remaining []freed
	for slot, e := range p.entries {
		if e == nil {
			continue
		}
		p.entries[slot] = nil
		// A release that already reached zero frees the entry itself.
		if e.refs.Swap(0) <= 0 {
			continue
		}
		remaining = append(remaining, freed{e: e, ref: makeRef(uint32(slot), e.gen)})
	}
	p.entries = nil
	p.gens = nil
	p.freeList = nil
	p.mu.Unlock()

	if len(remaining) > 0 {
		Logger().Debug("binary pool closed with live buffers", zap.Int("count", len(remaining)))
	}
	for _, f := range remaining {
		p.free(f.ref, f.e)
	}
	return nil
}

func (p *Pool) notify(e Event) {
	p.obsMu.RLock()
	defer p.obsMu.RUnlock()
	for _, o := range p.observers {
		o.OnPoolEvent(e)
	}
}
