package heap

import (
	"go.uber.org/zap"

	"github.com/wippyai/realm-runtime/binpool"
	"github.com/wippyai/realm-runtime/errors"
	"github.com/wippyai/realm-runtime/pages"
	"github.com/wippyai/realm-runtime/term"
)

// Collect runs a full collection without an allocation request.
func (h *Heap) Collect() error {
	if h.fault != nil {
		return h.fault
	}
	if err := h.collect(0); err != nil {
		h.fault = err
		return err
	}
	return nil
}

// collect evacuates the live set and then resizes so that at least need
// words are free in the active segment.
func (h *Heap) collect(need int) error {
	before := h.used()
	size := max(h.cfg.InitialWords, before)

	live, err := h.evacuate(size)
	if err != nil {
		return err
	}
	h.stats.Collections++
	// Adopted fragments are not bounded by MaxWords until they are live
	// data here.
	if h.cfg.MaxWords > 0 && live > h.cfg.MaxWords {
		return errors.HeapLimit(live, h.cfg.MaxWords)
	}

	if h.cfg.ShrinkRatio > 0 && size > h.cfg.InitialWords &&
		float64(live) < h.cfg.ShrinkRatio*float64(size) {
		target := max(h.cfg.InitialWords, 2*live+need)
		if target < size {
			if live, err = h.evacuate(target); err != nil {
				return err
			}
			size = target
			h.stats.Shrinks++
		}
	}

	free := size - live
	Logger().Debug("heap collected",
		zap.Int("before", before),
		zap.Int("live", live),
		zap.Int("capacity", size),
		zap.Int("need", need))

	if free >= need && float64(live) <= h.cfg.GrowRatio*float64(size) {
		return nil
	}

	grow := max(need, size/2)
	if h.cfg.MaxWords > 0 {
		grow = min(grow, h.cfg.MaxWords-h.capacity())
	}
	if grow < need || grow <= 0 {
		if free >= need {
			return nil
		}
		return errors.HeapLimit(live+need, h.cfg.MaxWords)
	}
	if err := h.addSegment(grow); err != nil {
		if free >= need {
			return nil
		}
		return err
	}
	h.stats.Grows++
	return nil
}

// evacuate copies everything reachable from the roots into a fresh segment
// of size words, which becomes the only segment. It returns the live word
// count.
func (h *Heap) evacuate(size int) (int, error) {
	r, err := h.provider.RequestPages(pages.PagesFor(size))
	if err != nil {
		return 0, err
	}
	ev := &evacuation{
		from: h.segs,
		to:   newSegment(r, size),
	}

	for _, t := range h.tracers {
		t(ev.forward)
	}
	for i := range h.protect {
		ev.forward(&h.protect[i])
	}
	ev.scan()

	if ev.err != nil {
		// Roots may already point into the new segment; the heap cannot be
		// trusted after a failed evacuation.
		_ = h.provider.ReleasePages(r)
		return 0, ev.err
	}

	for _, addr := range h.bins {
		s := ev.segment(addr)
		if s == nil {
			continue
		}
		idx := int(addr - s.base())
		if term.Value(s.words[idx]).IsBoxed() {
			continue
		}
		ref := binpool.Ref(s.words[idx+1])
		if _, err := h.pool.Release(ref); err != nil {
			Logger().Warn("release unreachable binary", zap.Stringer("ref", ref), zap.Error(err))
		}
	}

	for _, s := range h.segs {
		if err := h.provider.ReleasePages(s.r); err != nil {
			Logger().Warn("release heap segment", zap.Uint64("base", s.base()), zap.Error(err))
		}
	}

	h.segs = []*segment{ev.to}
	h.bins = ev.bins
	live := ev.to.used()
	h.stats.Live = live
	return live, nil
}

type evacuation struct {
	err  error
	to   *segment
	from []*segment
	gray []uint64
	bins []uint64
}

func (ev *evacuation) segment(addr uint64) *segment {
	for _, s := range ev.from {
		if s.contains(addr) {
			return s
		}
	}
	return nil
}

// forward moves the object *p refers to, if it has not moved yet, and
// rewrites *p to the new location.
func (ev *evacuation) forward(p *term.Value) {
	v := *p
	if !v.IsBoxed() || ev.err != nil {
		return
	}
	addr := v.Addr()
	if ev.to.contains(addr) {
		return
	}

	s := ev.segment(addr)
	if s == nil {
		ev.err = errors.Corrupt(errors.PhaseCollect, "root %#x refers outside the process heap", addr)
		return
	}
	idx := int(addr - s.base())
	hdr := term.Value(s.words[idx])
	if hdr.IsBoxed() {
		*p = hdr
		return
	}
	if !hdr.IsHeader() {
		ev.err = errors.Corrupt(errors.PhaseCollect, "reference %#x does not point at an object header", addr)
		return
	}

	n := hdr.Words()
	if idx+n > len(s.words) {
		ev.err = errors.Corrupt(errors.PhaseCollect, "object at %#x overruns its segment", addr)
		return
	}
	dst, ok := ev.to.bump(n)
	if !ok {
		ev.err = errors.Corrupt(errors.PhaseCollect, "to-space exhausted copying %d words", n)
		return
	}
	di := int(dst - ev.to.base())
	copy(ev.to.words[di:di+n], s.words[idx:idx+n])

	moved := term.Boxed(dst)
	s.words[idx] = uint64(moved)
	*p = moved

	switch k := hdr.Kind(); {
	case k == term.KindBinRef:
		ev.bins = append(ev.bins, dst)
	case k.Traced():
		ev.gray = append(ev.gray, dst)
	}
}

// scan drains the gray stack, forwarding every field of copied objects.
func (ev *evacuation) scan() {
	for len(ev.gray) > 0 && ev.err == nil {
		addr := ev.gray[len(ev.gray)-1]
		ev.gray = ev.gray[:len(ev.gray)-1]

		idx := int(addr - ev.to.base())
		n := term.Value(ev.to.words[idx]).Words()
		for i := idx + 1; i < idx+n; i++ {
			ev.forward((*term.Value)(&ev.to.words[i]))
		}
	}
}
