package heap

import (
	"bytes"
	"testing"

	"github.com/wippyai/realm-runtime/binpool"
	"github.com/wippyai/realm-runtime/pages"
	"github.com/wippyai/realm-runtime/term"
)

func TestExportAdopt(t *testing.T) {
	prov := pages.NewGoProvider(nil)
	pool := binpool.New(nil)
	sender, _ := New(DefaultConfig(), prov, pool)
	receiver, _ := New(DefaultConfig(), prov, pool)

	shared, _ := sender.String("shared")
	payload := bytes.Repeat([]byte("p"), 300)
	bin, _ := sender.Binary(payload)
	msg, err := sender.Tuple(shared, shared, bin, term.Int(7))
	if err != nil {
		t.Fatal(err)
	}
	ref, _ := sender.BinaryRef(bin)

	f, err := sender.Export(msg)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if pool.Count(ref) != 2 {
		t.Fatalf("expected binary retained by the copy, count %d", pool.Count(ref))
	}
	if f.Words() != 5+2+2 {
		t.Fatalf("expected 9 words (tuple, string, binref), got %d", f.Words())
	}

	roots := &rootSet{}
	receiver.AddTracer(roots.trace)
	roots.vals = append(roots.vals, receiver.Adopt(f))

	if !Equal(sender, msg, receiver, roots.vals[0]) {
		t.Fatal("adopted message differs from the original")
	}
	a, _ := receiver.Elem(roots.vals[0], 0)
	b, _ := receiver.Elem(roots.vals[0], 1)
	if a != b {
		t.Fatal("sharing lost in the copy")
	}

	// The adopted segments are ordinary heap memory: a collection moves the
	// message and keeps the binary alive.
	if err := receiver.Collect(); err != nil {
		t.Fatal(err)
	}
	if !Equal(sender, msg, receiver, roots.vals[0]) {
		t.Fatal("message damaged by collection")
	}
	if st := receiver.Stats(); st.Segments != 1 || st.Binaries != 1 {
		t.Fatalf("expected adopted memory folded into one segment, got %+v", st)
	}

	_ = sender.Release()
	if pool.Count(ref) != 1 {
		t.Fatalf("expected receiver to keep the binary, count %d", pool.Count(ref))
	}
	_ = receiver.Release()
	if pool.Len() != 0 || prov.InUse() != 0 {
		t.Fatalf("leak: pool=%d pages=%d", pool.Len(), prov.InUse())
	}
}

func TestExport_Immediate(t *testing.T) {
	h, prov, _ := newTestHeap(t, nil)
	before := prov.InUse()

	f, err := h.Export(term.Intern("ping"))
	if err != nil {
		t.Fatal(err)
	}
	if f.Root != term.Intern("ping") || f.Words() != 0 {
		t.Fatalf("unexpected fragment %v/%d", f.Root, f.Words())
	}
	if prov.InUse() != before {
		t.Fatal("immediate export must not allocate pages")
	}
	if v := h.Adopt(f); v != term.Intern("ping") {
		t.Fatalf("expected :ping, got %v", v)
	}
}

func TestFragment_Discard(t *testing.T) {
	h, prov, pool := newTestHeap(t, nil)
	before := prov.InUse()

	v, _ := h.Put(term.Tuple{bytes.Repeat([]byte("z"), 100), "text"})
	f, err := h.Export(v)
	if err != nil {
		t.Fatal(err)
	}
	ref, _ := h.BinaryRef(mustElem(t, h, v, 0))
	if pool.Count(ref) != 2 {
		t.Fatalf("expected count 2, got %d", pool.Count(ref))
	}

	if err := f.Discard(); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	if pool.Count(ref) != 1 {
		t.Fatalf("expected count 1 after discard, got %d", pool.Count(ref))
	}
	if prov.InUse() != before {
		t.Fatalf("expected fragment pages returned, %d in use", prov.InUse())
	}
	if err := f.Discard(); err != nil {
		t.Fatalf("second Discard failed: %v", err)
	}
}

func TestNewFragment(t *testing.T) {
	h, prov, pool := newTestHeap(t, nil)

	reason := term.Tuple{term.Keyword("error"), term.Keyword("boom")}
	msg := term.Tuple{term.Keyword("EXIT"), term.PID(3), reason, bytes.Repeat([]byte("b"), 128)}
	f, err := NewFragment(h.Config(), prov, pool, msg)
	if err != nil {
		t.Fatalf("NewFragment failed: %v", err)
	}
	if pool.Len() != 1 {
		t.Fatalf("expected the large binary pooled, got %d", pool.Len())
	}

	got, err := h.Get(h.Adopt(f))
	if err != nil {
		t.Fatal(err)
	}
	if !term.Equal(got, msg) {
		t.Fatalf("expected %s, got %s", term.Format(msg), term.Format(got))
	}
}

func TestTermWords(t *testing.T) {
	tests := []struct {
		in   any
		want int
	}{
		{term.Keyword("a"), 0},
		{"abcdefghi", 3},
		{term.Tuple{1, 2}, 3},
		{term.List{1, "x"}, 8},
		{make([]byte, 100), 2},
		{make([]byte, 10), 3},
	}
	for _, tt := range tests {
		if got := termWords(tt.in, 64, true); got != tt.want {
			t.Errorf("termWords(%s): expected %d, got %d", term.Format(tt.in), tt.want, got)
		}
	}
}

func mustElem(t *testing.T, h *Heap, v term.Value, i int) term.Value {
	t.Helper()
	e, err := h.Elem(v, i)
	if err != nil {
		t.Fatal(err)
	}
	return e
}
