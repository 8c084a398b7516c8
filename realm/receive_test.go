package realm

import (
	"testing"
	"time"

	"github.com/wippyai/realm-runtime/mailbox"
	"github.com/wippyai/realm-runtime/term"
)

func TestReceive_Timeout(t *testing.T) {
	r := newTestRealm(t, nil)
	type result struct {
		statuses []ReceiveStatus
		elapsed  time.Duration
	}
	out := make(chan result, 1)

	var res result
	var began time.Time
	spawn(t, r, CodeFunc(func(p *Process, _ int) Result {
		if began.IsZero() {
			began = time.Now()
			_, st := p.Receive(0)
			res.statuses = append(res.statuses, st)
		}
		_, st := p.Receive(30 * time.Millisecond)
		res.statuses = append(res.statuses, st)
		if st == Pending {
			return Block(1)
		}
		res.elapsed = time.Since(began)
		out <- res
		return Exit(ReasonNormal, 1)
	}))
	startRealm(t, r)

	got := recv(t, out)
	want := []ReceiveStatus{TimedOut, Pending, TimedOut}
	if len(got.statuses) != len(want) {
		t.Fatalf("expected statuses %v, got %v", want, got.statuses)
	}
	for i := range want {
		if got.statuses[i] != want[i] {
			t.Fatalf("expected statuses %v, got %v", want, got.statuses)
		}
	}
	if got.elapsed < 30*time.Millisecond {
		t.Fatalf("timed out after %v, before the deadline", got.elapsed)
	}
}

func TestReceive_MessageBeatsTimeout(t *testing.T) {
	r := newTestRealm(t, nil)
	out := make(chan []any, 1)
	pid := spawn(t, r, collector(1, 10*time.Second, out))
	startRealm(t, r)

	time.Sleep(10 * time.Millisecond)
	if err := r.Send(pid, "hello"); err != nil {
		t.Fatal(err)
	}
	msgs := recv(t, out)
	if len(msgs) != 1 || msgs[0] != "hello" {
		t.Fatalf("expected hello, got %v", msgs)
	}
}

func TestReceive_Selective(t *testing.T) {
	r := newTestRealm(t, nil)
	out := make(chan []any, 1)

	var got []any
	pid := spawn(t, r, CodeFunc(func(p *Process, budget int) Result {
		h := p.Heap()
		is := func(name string) mailbox.Predicate {
			want := term.Intern(name)
			return func(v term.Value) bool {
				e, err := h.Elem(v, 0)
				return err == nil && e == want
			}
		}
		for len(got) < 3 {
			var m mailbox.Message
			var st ReceiveStatus
			if len(got) == 0 {
				m, st = p.Receive(Infinity, is("reply"))
			} else {
				m, st = p.Receive(Infinity)
			}
			if st == Pending {
				return Block(1)
			}
			v, err := h.Get(m.Value)
			if err != nil {
				return Fail(err, 1)
			}
			got = append(got, v)
		}
		out <- got
		return Exit(ReasonNormal, 1)
	}))

	msgs := []any{
		term.Tuple{term.Keyword("noise"), 1},
		term.Tuple{term.Keyword("noise"), 2},
		term.Tuple{term.Keyword("reply"), "ok"},
	}
	for _, m := range msgs {
		if err := r.Send(pid, m); err != nil {
			t.Fatal(err)
		}
	}
	startRealm(t, r)

	res := recv(t, out)
	want := []any{msgs[2], msgs[0], msgs[1]}
	for i := range want {
		if !term.Equal(res[i], want[i]) {
			t.Fatalf("position %d: expected %s, got %s", i, term.Format(want[i]), term.Format(res[i]))
		}
	}
}

func TestSend_LargeBinaryShared(t *testing.T) {
	r := newTestRealm(t, nil)
	out := make(chan []any, 1)

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i)
	}
	receiver := spawn(t, r, collector(1, Infinity, out))
	spawn(t, r, CodeFunc(func(p *Process, _ int) Result {
		v, err := p.Heap().Binary(payload)
		if err != nil {
			return Fail(err, 1)
		}
		if err := p.Send(receiver, v); err != nil {
			return Fail(err, 1)
		}
		return Exit(ReasonNormal, 1)
	}))
	startRealm(t, r)

	msgs := recv(t, out)
	if !term.Equal(msgs[0], payload) {
		t.Fatal("payload damaged in transit")
	}
}

func TestSend_ToExitedIsDropped(t *testing.T) {
	r := newTestRealm(t, nil)
	exits := watchExits(r)
	pid := spawn(t, r, CodeFunc(func(*Process, int) Result { return Exit(ReasonNormal, 1) }))
	startRealm(t, r)
	exits.wait(t, pid)

	if err := r.Send(pid, make([]byte, 1000)); err != nil {
		t.Fatalf("send to exited process must not fail: %v", err)
	}
	if n := r.Pool().Len(); n != 0 {
		t.Fatalf("dropped message leaked %d pooled binaries", n)
	}
}
