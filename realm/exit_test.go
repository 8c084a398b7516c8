package realm

import (
	"strings"
	"testing"
	"time"

	"github.com/wippyai/realm-runtime/errors"
	"github.com/wippyai/realm-runtime/term"
)

func TestExit_UntrappedPeerDies(t *testing.T) {
	r := newTestRealm(t, nil)
	exits := watchExits(r)

	p := spawn(t, r, waiter())
	peer := spawn(t, r, waiter(), WithLink(p))
	startRealm(t, r)

	boom := errorReason("boom")
	if err := r.Exit(p, boom); err != nil {
		t.Fatal(err)
	}
	if reason := exits.wait(t, peer); !term.Equal(reason, boom) {
		t.Fatalf("expected peer to die with %s, got %s", term.Format(boom), term.Format(reason))
	}
}

func TestExit_NormalDoesNotPropagate(t *testing.T) {
	r := newTestRealm(t, nil)
	exits := watchExits(r)

	peer := spawn(t, r, waiter())
	p := spawn(t, r, CodeFunc(func(*Process, int) Result { return Exit(ReasonNormal, 1) }), WithLink(peer))
	startRealm(t, r)

	exits.wait(t, p)
	time.Sleep(20 * time.Millisecond)
	info, err := r.ProcessInfo(peer)
	if err != nil {
		t.Fatalf("peer should survive a normal exit: %v", err)
	}
	if len(info.Links) != 0 {
		t.Fatalf("expected link removed, got %v", info.Links)
	}
}

func TestExit_KillCannotBeTrapped(t *testing.T) {
	r := newTestRealm(t, nil)
	exits := watchExits(r)
	out := make(chan []any, 1)

	target := spawn(t, r, collector(1, Infinity, out), WithTrapExit(true))
	killer := spawn(t, r, CodeFunc(func(p *Process, _ int) Result {
		p.Exit(target, term.Keyword("kill"))
		return Exit(ReasonNormal, 1)
	}))
	startRealm(t, r)

	exits.wait(t, killer)
	if reason := exits.wait(t, target); !term.Equal(reason, ReasonKilled) {
		t.Fatalf("expected :killed, got %s", term.Format(reason))
	}
}

func TestExit_Idempotent(t *testing.T) {
	r := newTestRealm(t, nil)
	exits := watchExits(r)
	out := make(chan []any, 1)

	target := spawn(t, r, waiter())
	observer := spawn(t, r, collector(10, 200*time.Millisecond, out))
	ref, err := r.Monitor(observer, target)
	if err != nil {
		t.Fatal(err)
	}

	boom := errorReason("boom")
	for range 3 {
		if err := r.Exit(target, boom); err != nil {
			t.Fatal(err)
		}
	}
	startRealm(t, r)
	exits.wait(t, target)
	if err := r.Exit(target, boom); err != nil {
		t.Fatalf("exit of an exited process must be a no-op, got %v", err)
	}

	msgs := recv(t, out)
	want := term.Tuple{term.Keyword("DOWN"), ref, target, boom}
	if len(msgs) != 1 || !term.Equal(msgs[0], want) {
		t.Fatalf("expected exactly %s, got %v", term.Format(want), msgs)
	}
	if n := exits.count(target); n != 1 {
		t.Fatalf("expected one exit event, got %d", n)
	}
}

func TestExit_UnknownPID(t *testing.T) {
	r := newTestRealm(t, nil)
	if err := r.Exit(999, ReasonKilled); errors.KindOf(err) != errors.KindNoProcess {
		t.Fatalf("expected noproc, got %v", err)
	}
}

func TestMonitor_NoProc(t *testing.T) {
	r := newTestRealm(t, nil)
	out := make(chan []any, 1)

	observer := spawn(t, r, collector(1, Infinity, out))
	ref, err := r.Monitor(observer, 4242)
	if err != nil {
		t.Fatal(err)
	}
	startRealm(t, r)

	msgs := recv(t, out)
	want := term.Tuple{term.Keyword("DOWN"), ref, term.PID(4242), term.Keyword("noproc")}
	if !term.Equal(msgs[0], want) {
		t.Fatalf("expected %s, got %s", term.Format(want), term.Format(msgs[0]))
	}
}

func TestDemonitor(t *testing.T) {
	r := newTestRealm(t, nil)
	exits := watchExits(r)
	out := make(chan []any, 1)

	target := spawn(t, r, waiter())
	observer := spawn(t, r, collector(1, 100*time.Millisecond, out))
	ref, err := r.Monitor(observer, target)
	if err != nil {
		t.Fatal(err)
	}
	if info, _ := r.ProcessInfo(target); info.Monitors != 1 {
		t.Fatalf("expected 1 monitor, got %d", info.Monitors)
	}
	if !r.Demonitor(observer, ref) {
		t.Fatal("expected active monitor")
	}
	if r.Demonitor(observer, ref) {
		t.Fatal("second demonitor must report false")
	}

	startRealm(t, r)
	if err := r.Exit(target, ReasonKilled); err != nil {
		t.Fatal(err)
	}
	exits.wait(t, target)
	if msgs := recv(t, out); len(msgs) != 0 {
		t.Fatalf("expected no DOWN after demonitor, got %v", msgs)
	}
}

func TestProcessMonitorAndLink(t *testing.T) {
	r := newTestRealm(t, nil)
	exits := watchExits(r)
	out := make(chan []any, 1)

	target := spawn(t, r, waiter())
	var ref term.Ref
	watcher := spawn(t, r, CodeFunc(func(p *Process, budget int) Result {
		if ref == (term.Ref{}) {
			var err error
			if ref, err = p.Monitor(target); err != nil {
				return Fail(err, 1)
			}
			if err := p.Link(4242); errors.KindOf(err) != errors.KindNoProcess {
				return Exit(term.Tuple{term.Keyword("unexpected"), term.Format(err)}, 1)
			}
			p.Exit(target, errorReason("stop"))
		}
		return collector(1, Infinity, out)(p, budget)
	}))
	startRealm(t, r)

	msgs := recv(t, out)
	want := term.Tuple{term.Keyword("DOWN"), ref, target, errorReason("stop")}
	if !term.Equal(msgs[0], want) {
		t.Fatalf("expected %s, got %s", term.Format(want), term.Format(msgs[0]))
	}
	exits.wait(t, watcher)
}

func TestCrash_PanicBecomesExitReason(t *testing.T) {
	r := newTestRealm(t, nil)
	exits := watchExits(r)

	pid := spawn(t, r, CodeFunc(func(*Process, int) Result { panic("bad match") }))
	startRealm(t, r)

	reason, ok := exits.wait(t, pid).(term.Tuple)
	if !ok || len(reason) != 3 {
		t.Fatalf("expected [:error :crash detail], got %s", term.Format(reason))
	}
	if !term.Equal(reason[:2], errorReason("crash")) || !strings.Contains(reason[2].(string), "bad match") {
		t.Fatalf("unexpected crash reason %s", term.Format(reason))
	}
}

// hog conses onto a rooted list forever.
type hog struct{ list term.Value }

func (h *hog) TraceRoots(visit func(*term.Value)) { visit(&h.list) }

func (h *hog) Resume(p *Process, budget int) Result {
	for used := 1; used <= budget; used++ {
		cell, err := p.Heap().Cons(term.Int(int64(used)), h.list)
		if err != nil {
			return Fail(err, used)
		}
		h.list = cell
	}
	return Yield(budget)
}

func TestHeapLimit_IsProcessLocal(t *testing.T) {
	r := newTestRealm(t, nil)
	exits := watchExits(r)
	out := make(chan any, 1)

	greedy := spawn(t, r, &hog{}, WithMaxHeap(1024))
	sibling := spawn(t, r, &counterCode{out: out})
	startRealm(t, r)

	reason, ok := exits.wait(t, greedy).(term.Tuple)
	if !ok || len(reason) != 3 || !term.Equal(reason[:2], errorReason("out_of_memory")) {
		t.Fatalf("expected [:error :out_of_memory ...], got %s", term.Format(reason))
	}
	recv(t, out)
	if reason := exits.wait(t, sibling); !term.IsNormal(reason) {
		t.Fatalf("sibling affected by heap exhaustion: %s", term.Format(reason))
	}
}

func TestErrorReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want any
	}{
		{"nil", nil, term.Keyword("normal")},
		{"structured", errors.NoProcess(errors.PhaseLink, 3), term.Tuple{term.Keyword("error"), term.Keyword("noproc"), "no process 3"}},
		{"plain", errPlain("nope"), term.Tuple{term.Keyword("error"), term.Keyword("error"), "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorReason(tt.err); !term.Equal(got, tt.want) {
				t.Fatalf("expected %s, got %s", term.Format(tt.want), term.Format(got))
			}
		})
	}

	if got := normalizeReason(struct{}{}); !term.Equal(got.(term.Tuple)[:2], errorReason("bad_reason")) {
		t.Fatalf("expected bad_reason, got %s", term.Format(got))
	}
}

type errPlain string

func (e errPlain) Error() string { return string(e) }
