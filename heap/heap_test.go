package heap

import (
	"bytes"
	"math"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/wippyai/realm-runtime/binpool"
	"github.com/wippyai/realm-runtime/errors"
	"github.com/wippyai/realm-runtime/pages"
	"github.com/wippyai/realm-runtime/term"
)

func newTestHeap(t *testing.T, mutate func(*Config)) (*Heap, *pages.GoProvider, *binpool.Pool) {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	prov := pages.NewGoProvider(nil)
	pool := binpool.New(nil)
	h, err := New(cfg, prov, pool)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return h, prov, pool
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"zero initial", func(c *Config) { c.InitialWords = 0 }, false},
		{"max below initial", func(c *Config) { c.MaxWords = c.InitialWords - 1 }, false},
		{"negative threshold", func(c *Config) { c.BinaryThreshold = -1 }, false},
		{"grow ratio above one", func(c *Config) { c.GrowRatio = 1.5 }, false},
		{"shrink above grow", func(c *Config) { c.ShrinkRatio = 0.9 }, false},
		{"no shrinking", func(c *Config) { c.ShrinkRatio = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.ok && errors.KindOf(err) != errors.KindInvalidInput {
				t.Fatalf("expected invalid_input, got %v", err)
			}
		})
	}
}

func TestPutGet(t *testing.T) {
	h, _, _ := newTestHeap(t, nil)
	ref := term.NewRef()

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"true", true, true},
		{"small int", 42, int64(42)},
		{"negative int", -7, int64(-7)},
		{"big int", int64(math.MaxInt64), int64(math.MaxInt64)},
		{"min int", int64(math.MinInt64), int64(math.MinInt64)},
		{"float", 2.5, 2.5},
		{"string", "héllo, world", "héllo, world"},
		{"empty string", "", ""},
		{"small binary", []byte{1, 2, 3}, []byte{1, 2, 3}},
		{"large binary", bytes.Repeat([]byte("x"), 200), bytes.Repeat([]byte("x"), 200)},
		{"keyword", term.Keyword("ok"), term.Keyword("ok")},
		{"pid", term.PID(9), term.PID(9)},
		{"ref", ref, ref},
		{"tuple", term.Tuple{term.Keyword("error"), term.Keyword("boom")}, term.Tuple{term.Keyword("error"), term.Keyword("boom")}},
		{"empty tuple", term.Tuple{}, term.Tuple{}},
		{"vector", term.Vector{1, "two", 3.0}, term.Vector{int64(1), "two", 3.0}},
		{"list", term.List{1, 2, 3}, term.List{int64(1), int64(2), int64(3)}},
		{"improper", term.Cons{Head: 1, Tail: 2}, term.Cons{Head: int64(1), Tail: int64(2)}},
		{"nested", term.Tuple{term.List{term.Vector{"a"}}, term.Tuple{}}, term.Tuple{term.List{term.Vector{"a"}}, term.Tuple{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := h.Put(tt.in)
			if err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			got, err := h.Get(v)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if !term.Equal(got, tt.want) {
				t.Fatalf("expected %s, got %s", term.Format(tt.want), term.Format(got))
			}
		})
	}
}

func TestPut_Unsupported(t *testing.T) {
	h, _, _ := newTestHeap(t, nil)

	_, err := h.Put(term.Tuple{1, struct{}{}})
	var e *errors.Error
	if !asError(err, &e) || e.Kind != errors.KindUnsupported {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if len(e.Path) != 1 || e.Path[0] != "1" {
		t.Errorf("expected path [1], got %v", e.Path)
	}
	if len(h.protect) != 0 {
		t.Errorf("failed Put leaked %d protected slots", len(h.protect))
	}
}

func TestAccessors(t *testing.T) {
	h, _, _ := newTestHeap(t, nil)

	s, _ := h.String("abc")
	tup, err := h.Tuple(term.Int(1), s)
	if err != nil {
		t.Fatal(err)
	}

	if h.Kind(tup) != term.KindTuple {
		t.Fatalf("expected tuple, got %v", h.Kind(tup))
	}
	if n, _ := h.Arity(tup); n != 2 {
		t.Fatalf("expected arity 2, got %d", n)
	}
	e0, _ := h.Elem(tup, 0)
	if e0 != term.Int(1) {
		t.Errorf("expected 1, got %v", e0)
	}
	e1, _ := h.Elem(tup, 1)
	if str, _ := h.StringValue(e1); str != "abc" {
		t.Errorf("expected abc, got %q", str)
	}
	if _, err := h.Elem(tup, 2); errors.KindOf(err) != errors.KindOutOfBounds {
		t.Errorf("expected out_of_bounds, got %v", err)
	}
	if _, err := h.Head(tup); errors.KindOf(err) != errors.KindTypeMismatch {
		t.Errorf("expected type_mismatch, got %v", err)
	}
	if _, err := h.Arity(term.Int(3)); errors.KindOf(err) != errors.KindTypeMismatch {
		t.Errorf("expected type_mismatch for immediate, got %v", err)
	}

	l, _ := h.List(term.Int(1), term.Int(2))
	hd, _ := h.Head(l)
	tl, _ := h.Tail(l)
	if hd != term.Int(1) || h.Kind(tl) != term.KindCons {
		t.Errorf("unexpected list shape head=%v tail kind=%v", hd, h.Kind(tl))
	}

	big, _ := h.Int(math.MaxInt64)
	if i, _ := h.IntValue(big); i != math.MaxInt64 {
		t.Errorf("expected MaxInt64, got %d", i)
	}
	f, _ := h.Float(-0.5)
	if x, _ := h.FloatValue(f); x != -0.5 {
		t.Errorf("expected -0.5, got %v", x)
	}
}

func TestBinary_Threshold(t *testing.T) {
	h, _, pool := newTestHeap(t, func(c *Config) { c.BinaryThreshold = 16 })

	small, _ := h.Binary(make([]byte, 16))
	if h.Kind(small) != term.KindBinary {
		t.Fatalf("expected inline binary, got %v", h.Kind(small))
	}
	if pool.Len() != 0 {
		t.Fatalf("expected empty pool, got %d", pool.Len())
	}

	payload := bytes.Repeat([]byte{7}, 17)
	large, _ := h.Binary(payload)
	if h.Kind(large) != term.KindBinRef {
		t.Fatalf("expected pooled binary, got %v", h.Kind(large))
	}
	ref, ok := h.BinaryRef(large)
	if !ok || pool.Count(ref) != 1 {
		t.Fatalf("expected count 1, got %d", pool.Count(ref))
	}
	payload[0] = 0
	b, _ := h.Bytes(large)
	if b[0] != 7 {
		t.Fatal("pool must own a copy of the payload")
	}
}

func TestRelease(t *testing.T) {
	h, prov, pool := newTestHeap(t, func(c *Config) { c.BinaryThreshold = 8 })

	if _, err := h.Put(term.Tuple{make([]byte, 100), make([]byte, 100)}); err != nil {
		t.Fatal(err)
	}
	if pool.Len() != 2 {
		t.Fatalf("expected 2 pooled binaries, got %d", pool.Len())
	}

	if err := h.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if pool.Len() != 0 {
		t.Fatalf("expected pool empty after release, got %d", pool.Len())
	}
	if prov.InUse() != 0 {
		t.Fatalf("expected all pages returned, %d in use", prov.InUse())
	}
	if _, err := h.Put("late"); errors.KindOf(err) != errors.KindClosed {
		t.Fatalf("expected closed after release, got %v", err)
	}
}

func TestNew_ProviderFailure(t *testing.T) {
	prov := pages.NewGoProvider(pages.NewBudget(pages.PageBytes - 1))
	_, err := New(DefaultConfig(), prov, nil)
	if errors.KindOf(err) != errors.KindOutOfMemory {
		t.Fatalf("expected out_of_memory, got %v", err)
	}
}

func TestLogger(t *testing.T) {
	SetLogger(zaptest.NewLogger(t))
	defer SetLogger(nil)

	h, _, _ := newTestHeap(t, nil)
	if err := h.Collect(); err != nil {
		t.Fatal(err)
	}
}

func asError(err error, target **errors.Error) bool {
	e, ok := err.(*errors.Error)
	if ok {
		*target = e
	}
	return ok
}
