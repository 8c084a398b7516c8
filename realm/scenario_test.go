package realm

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wippyai/realm-runtime/term"
)

// counterCode keeps a counter tuple on its heap and allocates garbage until
// its heap has been collected three times.
type counterCode struct {
	counter term.Value
	out     chan any
}

func (c *counterCode) TraceRoots(visit func(*term.Value)) { visit(&c.counter) }

func (c *counterCode) Resume(p *Process, budget int) Result {
	h := p.Heap()
	if c.counter == term.Nil {
		v, err := h.Put(term.Tuple{term.Keyword("counter"), 42})
		if err != nil {
			return Fail(err, 1)
		}
		c.counter = v
	}
	for used := 1; used <= budget; used++ {
		if h.Stats().Collections >= 3 {
			got, err := h.Get(c.counter)
			if err != nil {
				return Fail(err, used)
			}
			c.out <- got
			return Exit(ReasonNormal, used)
		}
		if _, err := h.Put(term.Tuple{"garbage", used, float64(used)}); err != nil {
			return Fail(err, used)
		}
	}
	return Yield(budget)
}

func TestScenario_CounterSurvivesThreeCollections(t *testing.T) {
	r := newTestRealm(t, func(c *Config) { c.ReductionBudget = 50 })
	exits := watchExits(r)
	out := make(chan any, 1)

	pid := spawn(t, r, &counterCode{out: out}, WithInitialHeap(512))
	startRealm(t, r)

	got := recv(t, out)
	want := term.Tuple{term.Keyword("counter"), 42}
	if !term.Equal(got, want) {
		t.Fatalf("expected %s, got %s", term.Format(want), term.Format(got))
	}
	if reason := exits.wait(t, pid); !term.IsNormal(reason) {
		t.Fatalf("expected normal exit, got %s", term.Format(reason))
	}
}

func TestScenario_LinkedExitNotification(t *testing.T) {
	r := newTestRealm(t, nil)
	exits := watchExits(r)
	out := make(chan []any, 1)

	q := spawn(t, r, collector(1, Infinity, out), WithTrapExit(true))
	p := spawn(t, r, waiter(), WithLink(q))
	startRealm(t, r)

	boom := errorReason("boom")
	if err := r.Exit(p, boom); err != nil {
		t.Fatalf("Exit failed: %v", err)
	}

	msgs := recv(t, out)
	want := term.Tuple{term.Keyword("EXIT"), p, boom}
	if len(msgs) != 1 || !term.Equal(msgs[0], want) {
		t.Fatalf("expected %s, got %v", term.Format(want), msgs)
	}
	if reason := exits.wait(t, p); !term.Equal(reason, boom) {
		t.Fatalf("expected P to exit with %s, got %s", term.Format(boom), term.Format(reason))
	}
	if reason := exits.wait(t, q); !term.IsNormal(reason) {
		t.Fatalf("trapping Q must survive the signal, exited with %s", term.Format(reason))
	}
}

// rendezvous holds the first slice of each party until all of them are
// running at once, so each must be on its own worker.
type rendezvous struct {
	parties int32
	arrived atomic.Int32
	all     chan struct{}

	mu      sync.Mutex
	workers map[int]int
}

func newRendezvous(parties int) *rendezvous {
	return &rendezvous{parties: int32(parties), all: make(chan struct{}), workers: make(map[int]int)}
}

func (m *rendezvous) meet(p *Process, id int) error {
	m.mu.Lock()
	m.workers[id] = p.worker.id
	m.mu.Unlock()
	if m.arrived.Add(1) == m.parties {
		close(m.all)
	}
	select {
	case <-m.all:
		return nil
	case <-time.After(testTimeout):
		return fmt.Errorf("sender %d: other senders never ran concurrently", id)
	}
}

func (m *rendezvous) workerOf(id int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workers[id]
}

// sender sends n tuples [id i] to a target, a few per slice. Its first
// slice waits at meet.
func sender(to term.PID, id, n int, meet *rendezvous) CodeFunc {
	i := 0
	started := false
	return func(p *Process, budget int) Result {
		if !started {
			started = true
			if err := meet.meet(p, id); err != nil {
				return Fail(err, 1)
			}
		}
		used := 0
		for ; i < n && used < budget; i, used = i+1, used+1 {
			v, err := p.Heap().Put(term.Tuple{id, i})
			if err != nil {
				return Fail(err, used)
			}
			if err := p.Send(to, v); err != nil {
				return Fail(err, used)
			}
		}
		if i == n {
			return Exit(ReasonNormal, used)
		}
		return Yield(used)
	}
}

func TestScenario_TwoSendersOrdered(t *testing.T) {
	const perSender = 1000
	r := newTestRealm(t, func(c *Config) {
		c.Workers = 4
		c.ReductionBudget = 37
	})
	out := make(chan []any, 1)

	exits := watchExits(r)
	meet := newRendezvous(2)

	recvPID := spawn(t, r, collector(2*perSender, Infinity, out))
	s1 := spawn(t, r, sender(recvPID, 1, perSender, meet))
	s2 := spawn(t, r, sender(recvPID, 2, perSender, meet))
	startRealm(t, r)

	msgs := recv(t, out)
	if len(msgs) != 2*perSender {
		t.Fatalf("expected %d messages, got %d", 2*perSender, len(msgs))
	}
	next := map[int64]int64{1: 0, 2: 0}
	for _, m := range msgs {
		tup, ok := m.(term.Tuple)
		if !ok || len(tup) != 2 {
			t.Fatalf("malformed message %s", term.Format(m))
		}
		id, seq := tup[0].(int64), tup[1].(int64)
		want, ok := next[id]
		if !ok {
			t.Fatalf("unknown sender %d", id)
		}
		if seq != want {
			t.Fatalf("sender %d: expected seq %d, got %d", id, want, seq)
		}
		next[id]++
	}
	if next[1] != perSender || next[2] != perSender {
		t.Fatalf("expected %d from each sender, got %v", perSender, next)
	}
	for _, pid := range []term.PID{s1, s2} {
		if reason := exits.wait(t, pid); !term.IsNormal(reason) {
			t.Fatalf("expected sender %v to exit normally, got %s", pid, term.Format(reason))
		}
	}
	if w1, w2 := meet.workerOf(1), meet.workerOf(2); w1 == w2 {
		t.Fatalf("expected senders on different workers, both ran on %d", w1)
	}
}
