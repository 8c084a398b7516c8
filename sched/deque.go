package sched

import (
	"sync/atomic"
)

// Deque is a bounded work-stealing run queue.
//
// The owning worker pushes at the tail and pops from the head, so runnable
// items of equal priority are served round robin. Other workers steal half
// of the queue from the head. Push and Pop are owner-only; Steal and Len
// may be called from any goroutine.
//
// head only moves forward and is advanced by compare-and-swap, which is what
// arbitrates between the owner's Pop and concurrent thieves. tail is written
// by the owner alone and stored after the slot it publishes. Slots are
// atomic so that a thief reading a slot the owner is about to reuse sees
// either value; the failed head CAS then discards the read.
type Deque[T any] struct {
	head  atomic.Uint32
	tail  atomic.Uint32
	mask  uint32
	slots []atomic.Pointer[T]
}

// NewDeque returns a deque holding up to size items, rounded up to a power
// of two (minimum 2).
func NewDeque[T any](size int) *Deque[T] {
	n := 2
	for n < size {
		n <<= 1
	}
	return &Deque[T]{mask: uint32(n - 1), slots: make([]atomic.Pointer[T], n)}
}

// Cap returns the ring size.
func (d *Deque[T]) Cap() int { return len(d.slots) }

// Len returns a snapshot of the number of queued items.
func (d *Deque[T]) Len() int {
	for {
		h := d.head.Load()
		t := d.tail.Load()
		if h == d.head.Load() {
			return int(t - h)
		}
	}
}

// Push appends v at the tail. It reports false when the ring is full.
func (d *Deque[T]) Push(v *T) bool {
	h := d.head.Load()
	t := d.tail.Load()
	if t-h >= uint32(len(d.slots)) {
		return false
	}
	d.slots[t&d.mask].Store(v)
	d.tail.Store(t + 1)
	return true
}

// PushOverflow appends v. When the ring is full, v and the older half of the
// ring move to q instead, oldest first.
func (d *Deque[T]) PushOverflow(v *T, q *GlobalQueue[T]) {
	for {
		if d.Push(v) {
			return
		}
		if batch := d.takeHalf(); batch != nil {
			q.PushBatch(append(batch, v))
			return
		}
	}
}

func (d *Deque[T]) takeHalf() []*T {
	h := d.head.Load()
	t := d.tail.Load()
	n := (t - h) / 2
	if n == 0 {
		return nil
	}
	batch := make([]*T, n)
	for i := range n {
		batch[i] = d.slots[(h+i)&d.mask].Load()
	}
	if !d.head.CompareAndSwap(h, h+n) {
		return nil
	}
	return batch
}

// Pop removes the item at the head, or returns nil when empty.
func (d *Deque[T]) Pop() *T {
	for {
		h := d.head.Load()
		t := d.tail.Load()
		if t == h {
			return nil
		}
		v := d.slots[h&d.mask].Load()
		if d.head.CompareAndSwap(h, h+1) {
			return v
		}
	}
}

// Steal moves about half of victim's items into d and returns one of them
// for the caller to run. d must belong to the calling worker. It returns
// nil when the victim is empty or d has no room.
func (d *Deque[T]) Steal(victim *Deque[T]) *T {
	if victim == d {
		return nil
	}
	t := d.tail.Load()
	free := uint32(len(d.slots)) - (t - d.head.Load())
	n := victim.grab(d, t, free)
	if n == 0 {
		return nil
	}
	n--
	v := d.slots[(t+n)&d.mask].Load()
	if n > 0 {
		d.tail.Store(t + n)
	}
	return v
}

// grab copies up to half of d's items (at most limit) into dst's slots
// starting at position at, then claims them by advancing d's head.
func (d *Deque[T]) grab(dst *Deque[T], at, limit uint32) uint32 {
	for {
		h := d.head.Load()
		t := d.tail.Load()
		n := t - h
		n -= n / 2
		if n == 0 {
			return 0
		}
		if n > uint32(len(d.slots)) {
			// head and tail read across an owner update; retry.
			continue
		}
		if n > limit {
			n = limit
		}
		if n == 0 {
			return 0
		}
		for i := range n {
			dst.slots[(at+i)&dst.mask].Store(d.slots[(h+i)&d.mask].Load())
		}
		if d.head.CompareAndSwap(h, h+n) {
			return n
		}
	}
}
