package heap

import (
	"go.uber.org/multierr"

	"github.com/wippyai/realm-runtime/binpool"
	"github.com/wippyai/realm-runtime/errors"
	"github.com/wippyai/realm-runtime/pages"
	"github.com/wippyai/realm-runtime/term"
)

// Fragment is a self-contained value tree living in its own segments, owned
// by nobody until a heap adopts it. Messages travel as fragments: the sender
// copies into one, the receiver adopts its segments without copying again.
type Fragment struct {
	provider pages.Provider
	pool     *binpool.Pool
	segs     []*segment
	bins     []uint64
	// Root is the value the fragment carries.
	Root term.Value
}

// Words returns the number of words the fragment occupies.
func (f *Fragment) Words() int {
	n := 0
	for _, s := range f.segs {
		n += s.used()
	}
	return n
}

// Discard returns the fragment's memory and binary references. It is used
// for messages that are never delivered.
func (f *Fragment) Discard() error {
	if f == nil {
		return nil
	}
	var err error
	for _, addr := range f.bins {
		for _, s := range f.segs {
			if s.contains(addr) {
				_, rerr := f.pool.Release(binpool.Ref(s.words[int(addr-s.base())+1]))
				err = multierr.Append(err, rerr)
				break
			}
		}
	}
	for _, s := range f.segs {
		err = multierr.Append(err, f.provider.ReleasePages(s.r))
	}
	f.segs = nil
	f.bins = nil
	f.Root = term.Nil
	return err
}

// Export deep-copies v into a new fragment. Shared substructure stays shared
// in the copy and pooled binaries are retained rather than copied.
func (h *Heap) Export(v term.Value) (*Fragment, error) {
	f := &Fragment{provider: h.provider, pool: h.pool, Root: v}
	if v.Immediate() {
		return f, nil
	}

	size, err := h.measure(v)
	if err != nil {
		return nil, err
	}
	r, err := h.provider.RequestPages(pages.PagesFor(size))
	if err != nil {
		return nil, err
	}
	dst := newSegment(r, size)
	f.segs = []*segment{dst}

	cp := &copier{src: h, dst: dst, seen: make(map[uint64]uint64)}
	root, err := cp.copy(v)
	if err == nil {
		err = cp.drain()
	}
	f.bins = cp.bins
	if err != nil {
		_ = f.Discard()
		return nil, err
	}
	f.Root = root
	return f, nil
}

// measure returns the words needed to copy the graph reachable from v,
// counting shared objects once.
func (h *Heap) measure(v term.Value) (int, error) {
	seen := make(map[uint64]struct{})
	stack := []term.Value{v}
	total := 0
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !cur.IsBoxed() {
			continue
		}
		if _, ok := seen[cur.Addr()]; ok {
			continue
		}
		seen[cur.Addr()] = struct{}{}

		obj, err := h.object(cur)
		if err != nil {
			return 0, err
		}
		total += len(obj)
		if term.Value(obj[0]).Kind().Traced() {
			for _, w := range obj[1:] {
				stack = append(stack, term.Value(w))
			}
		}
	}
	return total, nil
}

// copier copies an object graph between address spaces, remembering where
// each source object went so sharing is preserved.
type copier struct {
	src  *Heap
	dst  *segment
	seen map[uint64]uint64
	todo []uint64
	bins []uint64
}

func (c *copier) copy(v term.Value) (term.Value, error) {
	if !v.IsBoxed() {
		return v, nil
	}
	if addr, ok := c.seen[v.Addr()]; ok {
		return term.Boxed(addr), nil
	}
	obj, err := c.src.object(v)
	if err != nil {
		return term.Nil, err
	}
	addr, ok := c.dst.bump(len(obj))
	if !ok {
		return term.Nil, errors.Corrupt(errors.PhaseSend, "fragment undersized for %d words", len(obj))
	}
	idx := int(addr - c.dst.base())
	copy(c.dst.words[idx:idx+len(obj)], obj)
	c.seen[v.Addr()] = addr

	switch k := term.Value(obj[0]).Kind(); {
	case k == term.KindBinRef:
		if err := c.src.pool.Retain(binpool.Ref(obj[1])); err != nil {
			// The slot holds a reference we do not own; zero the header so
			// Discard does not release it.
			c.dst.words[idx] = uint64(term.Header(term.KindBinary, 0))
			return term.Nil, err
		}
		c.bins = append(c.bins, addr)
	case k.Traced():
		c.todo = append(c.todo, addr)
	}
	return term.Boxed(addr), nil
}

// drain rewrites the fields of copied containers to their copies.
func (c *copier) drain() error {
	for len(c.todo) > 0 {
		addr := c.todo[len(c.todo)-1]
		c.todo = c.todo[:len(c.todo)-1]

		idx := int(addr - c.dst.base())
		n := term.Value(c.dst.words[idx]).Words()
		for i := idx + 1; i < idx+n; i++ {
			v, err := c.copy(term.Value(c.dst.words[i]))
			if err != nil {
				return err
			}
			c.dst.words[i] = uint64(v)
		}
	}
	return nil
}

// NewFragment builds a fragment straight from a Go-side term. It is used for
// messages that do not originate in a process heap: administrative sends,
// exit signals and monitor notifications.
func NewFragment(cfg Config, provider pages.Provider, pool *binpool.Pool, t any) (*Fragment, error) {
	cfg.InitialWords = max(1, termWords(t, cfg.BinaryThreshold, pool != nil))
	cfg.MaxWords = 0
	tmp, err := New(cfg, provider, pool)
	if err != nil {
		return nil, err
	}
	root, err := tmp.Put(t)
	if err != nil {
		_ = tmp.Release()
		return nil, err
	}
	return &Fragment{
		provider: provider,
		pool:     pool,
		segs:     tmp.segs,
		bins:     tmp.bins,
		Root:     root,
	}, nil
}

// termWords estimates the heap words Put needs for t. Underestimates only
// cost a collection in the scratch heap.
func termWords(t any, threshold int, pooled bool) int {
	switch v := t.(type) {
	case int:
		if !term.FitsInt(int64(v)) {
			return 2
		}
	case int64:
		if !term.FitsInt(v) {
			return 2
		}
	case float64:
		return 2
	case string:
		return 1 + term.PayloadWords(term.KindString, len(v))
	case []byte:
		if pooled && len(v) > threshold {
			return 2
		}
		return 1 + term.PayloadWords(term.KindBinary, len(v))
	case term.Ref:
		return 3
	case term.Tuple:
		return 1 + len(v) + seqWords(v, threshold, pooled)
	case term.Vector:
		return 1 + len(v) + seqWords(v, threshold, pooled)
	case term.List:
		return 3*len(v) + seqWords(v, threshold, pooled)
	case term.Cons:
		return 3 + termWords(v.Head, threshold, pooled) + termWords(v.Tail, threshold, pooled)
	}
	return 0
}

func seqWords(items []any, threshold int, pooled bool) int {
	n := 0
	for _, it := range items {
		n += termWords(it, threshold, pooled)
	}
	return n
}

// Adopt takes ownership of a fragment's memory: its segments join the heap
// and its binary references become the heap's. The fragment must not be
// used afterwards. The returned value is f.Root.
func (h *Heap) Adopt(f *Fragment) term.Value {
	if len(f.segs) == 0 {
		return f.Root
	}
	active := h.active()
	h.segs = append(h.segs[:len(h.segs)-1], f.segs...)
	h.segs = append(h.segs, active)
	h.bins = append(h.bins, f.bins...)
	root := f.Root
	f.segs = nil
	f.bins = nil
	f.Root = term.Nil
	return root
}
