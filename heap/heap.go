package heap

import (
	"go.uber.org/multierr"

	"github.com/wippyai/realm-runtime/binpool"
	"github.com/wippyai/realm-runtime/errors"
	"github.com/wippyai/realm-runtime/pages"
	"github.com/wippyai/realm-runtime/term"
)

// Tracer enumerates roots held outside the heap. visit may rewrite the slot
// it is given; tracers must pass pointers to the storage they actually use.
type Tracer func(visit func(*term.Value))

// segment is a run of words allocated downward from the end.
type segment struct {
	r     pages.Range
	words []uint64
	top   int
}

func newSegment(r pages.Range, size int) *segment {
	return &segment{r: r, words: r.Words[:size], top: size}
}

func (s *segment) base() uint64 { return s.r.Base }

func (s *segment) contains(addr uint64) bool {
	return addr >= s.r.Base && addr < s.r.Base+uint64(len(s.words))
}

func (s *segment) used() int { return len(s.words) - s.top }

func (s *segment) bump(n int) (uint64, bool) {
	if s.top < n {
		return 0, false
	}
	s.top -= n
	return s.r.Base + uint64(s.top), true
}

// Heap is a process-private heap. It is not safe for concurrent use: only
// the owning process touches it, and a process runs on one worker at a time.
//
// Allocation may move every object. Values held by the caller across an
// allocating call must be reachable from a Tracer or protected with Protect.
type Heap struct {
	provider pages.Provider
	pool     *binpool.Pool
	fault    error
	segs     []*segment
	bins     []uint64
	tracers  []Tracer
	protect  []term.Value
	cfg      Config
	stats    Stats
}

// Stats reports heap sizes and collector activity.
type Stats struct {
	Capacity    int // words across all segments
	Used        int // allocated words
	Live        int // words that survived the last collection
	Segments    int
	Binaries    int // pooled binary references held
	Collections int
	Grows       int
	Shrinks     int
}

// New creates a heap with one segment of cfg.InitialWords words.
func New(cfg Config, provider pages.Provider, pool *binpool.Pool) (*Heap, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := &Heap{
		cfg:      cfg,
		provider: provider,
		pool:     pool,
	}
	if err := h.addSegment(cfg.InitialWords); err != nil {
		return nil, err
	}
	return h, nil
}

// Config returns the heap's configuration.
func (h *Heap) Config() Config { return h.cfg }

// Pool returns the binary pool backing large binaries, if any.
func (h *Heap) Pool() *binpool.Pool { return h.pool }

// Fault returns the sticky allocation fault, if the heap has failed.
func (h *Heap) Fault() error { return h.fault }

// AddTracer registers a root enumerator consulted by every collection.
func (h *Heap) AddTracer(t Tracer) {
	h.tracers = append(h.tracers, t)
}

// Protect pushes values onto the heap's temporary root stack and returns a
// mark for Unprotect. Protected values are updated in place by collections;
// read them back with Protected.
func (h *Heap) Protect(vs ...term.Value) int {
	mark := len(h.protect)
	h.protect = append(h.protect, vs...)
	return mark
}

// Protected returns the current value of the i-th protected slot.
func (h *Heap) Protected(i int) term.Value { return h.protect[i] }

// Unprotect pops the root stack back to mark.
func (h *Heap) Unprotect(mark int) {
	clear(h.protect[mark:])
	h.protect = h.protect[:mark]
}

func (h *Heap) active() *segment { return h.segs[len(h.segs)-1] }

func (h *Heap) capacity() int {
	n := 0
	for _, s := range h.segs {
		n += len(s.words)
	}
	return n
}

func (h *Heap) used() int {
	n := 0
	for _, s := range h.segs {
		n += s.used()
	}
	return n
}

func (h *Heap) addSegment(words int) error {
	r, err := h.provider.RequestPages(pages.PagesFor(words))
	if err != nil {
		return err
	}
	h.segs = append(h.segs, newSegment(r, words))
	return nil
}

// find returns the segment holding addr.
func (h *Heap) find(addr uint64) *segment {
	if s := h.active(); s.contains(addr) {
		return s
	}
	for _, s := range h.segs {
		if s.contains(addr) {
			return s
		}
	}
	return nil
}

// object returns the words of the object a boxed value points at, header
// first.
func (h *Heap) object(v term.Value) ([]uint64, error) {
	if !v.IsBoxed() {
		return nil, errors.TypeMismatch(errors.PhaseConvert, nil, "heap object", v.Tag().String())
	}
	addr := v.Addr()
	s := h.find(addr)
	if s == nil {
		return nil, errors.Corrupt(errors.PhaseConvert, "reference %#x outside process heap", addr)
	}
	idx := int(addr - s.base())
	hdr := term.Value(s.words[idx])
	if !hdr.IsHeader() {
		return nil, errors.Corrupt(errors.PhaseConvert, "reference %#x does not point at an object header", addr)
	}
	end := idx + hdr.Words()
	if end > len(s.words) {
		return nil, errors.Corrupt(errors.PhaseConvert, "object at %#x overruns its segment", addr)
	}
	return s.words[idx:end], nil
}

// alloc reserves n words and returns their address. Collection runs first
// when the active segment is full; growth follows only if the collection
// did not free enough.
func (h *Heap) alloc(n int) (uint64, error) {
	if h.fault != nil {
		return 0, h.fault
	}
	if addr, ok := h.active().bump(n); ok {
		return addr, nil
	}
	if err := h.collect(n); err != nil {
		h.fault = err
		return 0, err
	}
	addr, ok := h.active().bump(n)
	if !ok {
		h.fault = errors.Corrupt(errors.PhaseAlloc, "collection left %d free words for a %d word request",
			len(h.active().words)-h.active().used(), n)
		return 0, h.fault
	}
	return addr, nil
}

// words returns the n words at addr inside the active segment; only valid
// right after alloc.
func (h *Heap) words(addr uint64, n int) []uint64 {
	s := h.active()
	idx := int(addr - s.base())
	return s.words[idx : idx+n]
}

// Stats returns a snapshot of heap usage.
func (h *Heap) Stats() Stats {
	st := h.stats
	st.Capacity = h.capacity()
	st.Used = h.used()
	st.Segments = len(h.segs)
	st.Binaries = len(h.bins)
	return st
}

// Release returns every segment to the provider and drops every pooled
// binary reference. The heap is unusable afterwards.
func (h *Heap) Release() error {
	var err error
	for _, addr := range h.bins {
		if s := h.find(addr); s != nil {
			ref := binpool.Ref(s.words[int(addr-s.base())+1])
			if _, rerr := h.pool.Release(ref); rerr != nil {
				err = multierr.Append(err, rerr)
			}
		}
	}
	for _, s := range h.segs {
		err = multierr.Append(err, h.provider.ReleasePages(s.r))
	}
	h.bins = nil
	h.segs = []*segment{{}}
	h.tracers = nil
	h.protect = nil
	h.fault = errors.Closed(errors.PhaseAlloc, "process heap")
	return err
}
