package sched

import (
	"sync"
	"sync/atomic"
)

// GlobalQueue is an unbounded FIFO shared by all workers. It receives
// external spawns, deque overflow and timer wake-ups.
type GlobalQueue[T any] struct {
	mu    sync.Mutex
	items []*T
	head  int
	size  atomic.Int64
}

// NewGlobalQueue returns an empty queue.
func NewGlobalQueue[T any]() *GlobalQueue[T] {
	return &GlobalQueue[T]{}
}

// Len returns the number of queued items without taking the lock.
func (q *GlobalQueue[T]) Len() int { return int(q.size.Load()) }

// Push appends v.
func (q *GlobalQueue[T]) Push(v *T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.size.Add(1)
	q.mu.Unlock()
}

// PushBatch appends vs in order.
func (q *GlobalQueue[T]) PushBatch(vs []*T) {
	q.mu.Lock()
	q.items = append(q.items, vs...)
	q.size.Add(int64(len(vs)))
	q.mu.Unlock()
}

// Pop removes the oldest item, or returns nil when empty.
func (q *GlobalQueue[T]) Pop() *T {
	if q.size.Load() == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pop()
}

func (q *GlobalQueue[T]) pop() *T {
	if q.head == len(q.items) {
		return nil
	}
	v := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	q.size.Add(-1)
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head >= 64 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return v
}

// Drain removes and returns every queued item.
func (q *GlobalQueue[T]) Drain() []*T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := append([]*T(nil), q.items[q.head:]...)
	clear(q.items)
	q.items = q.items[:0]
	q.head = 0
	q.size.Store(0)
	return out
}
