package realm

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wippyai/realm-runtime/term"
)

// Round robin: with one worker and N equal-priority processes that always
// use their full budget, every window of N consecutive slices runs each
// process exactly once.
func TestFairness_RoundRobin(t *testing.T) {
	const procs = 6
	const rounds = 20

	r := newTestRealm(t, func(c *Config) { c.Workers = 1 })
	exits := watchExits(r)

	var mu sync.Mutex
	var trace []term.PID
	pids := make([]term.PID, procs)
	for i := range pids {
		n := 0
		pids[i] = spawn(t, r, CodeFunc(func(p *Process, budget int) Result {
			mu.Lock()
			trace = append(trace, p.Self())
			mu.Unlock()
			if n++; n == rounds {
				return Exit(ReasonNormal, budget)
			}
			return Yield(budget)
		}))
	}
	startRealm(t, r)
	for _, pid := range pids {
		exits.wait(t, pid)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(trace) != procs*rounds {
		t.Fatalf("expected %d slices, got %d", procs*rounds, len(trace))
	}
	for start := 0; start+procs <= len(trace); start++ {
		seen := make(map[term.PID]bool)
		for _, pid := range trace[start : start+procs] {
			if seen[pid] {
				t.Fatalf("window at %d runs %v twice: %v", start, pid, trace[start:start+procs])
			}
			seen[pid] = true
		}
	}
}

func TestPriority_LowBandNotStarved(t *testing.T) {
	r := newTestRealm(t, func(c *Config) { c.Workers = 1 })
	exits := watchExits(r)

	busy := CodeFunc(func(_ *Process, budget int) Result { return Yield(budget) })
	high1 := spawn(t, r, busy, WithPriority(PriorityHigh))
	high2 := spawn(t, r, busy, WithPriority(PriorityHigh))

	var lowSlices atomic.Int64
	low := spawn(t, r, CodeFunc(func(_ *Process, budget int) Result {
		if lowSlices.Add(1) == 3 {
			return Exit(ReasonNormal, budget)
		}
		return Yield(budget)
	}), WithPriority(PriorityLow))
	startRealm(t, r)

	exits.wait(t, low)
	info1, err1 := r.ProcessInfo(high1)
	info2, err2 := r.ProcessInfo(high2)
	if err1 != nil || err2 != nil {
		t.Fatalf("high priority processes vanished: %v %v", err1, err2)
	}
	if info1.Slices+info2.Slices <= lowSlices.Load() {
		t.Fatalf("expected high band preferred: high=%d low=%d", info1.Slices+info2.Slices, lowSlices.Load())
	}
	if info1.Priority != PriorityHigh {
		t.Fatalf("expected high priority, got %v", info1.Priority)
	}
}

// Work spreads across workers: many busy processes spawned onto the global
// queue all complete, and idle workers steal.
func TestWorkers_Spread(t *testing.T) {
	const procs = 64
	r := newTestRealm(t, func(c *Config) {
		c.Workers = 4
		c.ReductionBudget = 10
	})
	exits := watchExits(r)

	var pids []term.PID
	root := spawn(t, r, CodeFunc(func(p *Process, budget int) Result {
		for range procs {
			n := 0
			pid, err := p.Spawn(CodeFunc(func(_ *Process, budget int) Result {
				if n++; n == 50 {
					return Exit(ReasonNormal, budget)
				}
				return Yield(budget)
			}))
			if err != nil {
				return Fail(err, 1)
			}
			pids = append(pids, pid)
		}
		return Exit(ReasonNormal, 1)
	}))
	startRealm(t, r)

	exits.wait(t, root)
	for _, pid := range pids {
		if reason := exits.wait(t, pid); !term.IsNormal(reason) {
			t.Fatalf("%v exited with %s", pid, term.Format(reason))
		}
	}
	st := r.Stats()
	if st.Spawned != procs+1 || st.Exited != procs+1 {
		t.Fatalf("unexpected counters %+v", st)
	}
	if st.Steals == 0 {
		t.Fatalf("expected idle workers to steal local spawns, stats %+v", st)
	}
}
