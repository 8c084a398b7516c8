package sched

import (
	"sync"
	"testing"
)

func TestGlobalQueue_FIFO(t *testing.T) {
	q := NewGlobalQueue[item]()
	if q.Pop() != nil {
		t.Fatal("expected empty queue")
	}
	var items []*item
	for i := range 200 {
		it := &item{i}
		items = append(items, it)
		q.Push(it)
	}
	for i := range 150 {
		if got := q.Pop(); got != items[i] {
			t.Fatalf("expected %d, got %v", i, got)
		}
	}
	q.PushBatch([]*item{{500}, {501}})
	if q.Len() != 52 {
		t.Fatalf("expected 52 queued, got %d", q.Len())
	}
	rest := q.Drain()
	if len(rest) != 52 || rest[0] != items[150] || rest[51].id != 501 {
		t.Fatalf("unexpected drain result of %d items", len(rest))
	}
	if q.Len() != 0 || q.Pop() != nil {
		t.Fatal("expected empty queue after drain")
	}
}

func TestGlobalQueue_Concurrent(t *testing.T) {
	q := NewGlobalQueue[item]()
	var wg sync.WaitGroup
	for p := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 1000 {
				q.Push(&item{p*1000 + i})
			}
		}()
	}

	seen := make(map[int]bool)
	var mu sync.Mutex
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1500 {
				if it := q.Pop(); it != nil {
					mu.Lock()
					seen[it.id] = true
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	for _, it := range q.Drain() {
		seen[it.id] = true
	}
	if len(seen) != 4000 {
		t.Fatalf("expected 4000 distinct items, got %d", len(seen))
	}
}
