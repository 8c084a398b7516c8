package realm

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/wippyai/realm-runtime/mailbox"
	"github.com/wippyai/realm-runtime/term"
)

const testTimeout = 5 * time.Second

func newTestRealm(t *testing.T, mutate func(*Config), opts ...Option) *Realm {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Workers = 2
	if mutate != nil {
		mutate(&cfg)
	}
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	r, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		if err := r.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown failed: %v", err)
		}
	})
	return r
}

func startRealm(t *testing.T, r *Realm) {
	t.Helper()
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
}

func spawn(t *testing.T, r *Realm, code Code, opts ...SpawnOption) term.PID {
	t.Helper()
	pid, err := r.Spawn(code, opts...)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	return pid
}

// exitLog records exit events per process.
type exitLog struct {
	mu     sync.Mutex
	chans  map[term.PID]chan any
	counts map[term.PID]int
}

func watchExits(r *Realm) *exitLog {
	l := &exitLog{chans: make(map[term.PID]chan any), counts: make(map[term.PID]int)}
	r.Subscribe(ObserverFunc(func(e Event) {
		if e.Type != EventExited {
			return
		}
		l.mu.Lock()
		l.counts[e.PID]++
		ch := l.chanLocked(e.PID)
		l.mu.Unlock()
		select {
		case ch <- e.Reason:
		default:
		}
	}))
	return l
}

func (l *exitLog) chanLocked(pid term.PID) chan any {
	ch, ok := l.chans[pid]
	if !ok {
		ch = make(chan any, 1)
		l.chans[pid] = ch
	}
	return ch
}

func (l *exitLog) wait(t *testing.T, pid term.PID) any {
	t.Helper()
	l.mu.Lock()
	ch := l.chanLocked(pid)
	l.mu.Unlock()
	select {
	case reason := <-ch:
		return reason
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for %v to exit", pid)
		return nil
	}
}

func (l *exitLog) count(pid term.PID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[pid]
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for result")
		var zero T
		return zero
	}
}

// waiter blocks forever on its mailbox, discarding nothing.
func waiter() CodeFunc {
	return func(p *Process, budget int) Result {
		if _, st := p.Receive(Infinity, func(term.Value) bool { return false }); st == Pending {
			return Block(1)
		}
		return Exit(ReasonNormal, 1)
	}
}

// collector receives n messages matching preds, reports them as Go terms
// and exits.
func collector(n int, timeout time.Duration, out chan<- []any, preds ...mailbox.Predicate) CodeFunc {
	var got []any
	return func(p *Process, budget int) Result {
		for used := 1; used <= budget; used++ {
			m, st := p.Receive(timeout, preds...)
			switch st {
			case Pending:
				return Block(used)
			case TimedOut:
				out <- got
				return Exit(ReasonNormal, used)
			}
			v, err := p.Heap().Get(m.Value)
			if err != nil {
				return Fail(err, used)
			}
			got = append(got, v)
			if len(got) == n {
				out <- got
				return Exit(ReasonNormal, used)
			}
		}
		return Yield(budget)
	}
}

func errorReason(detail string) term.Tuple {
	return term.Tuple{term.Keyword("error"), term.Keyword(detail)}
}
