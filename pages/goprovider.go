package pages

import (
	"sync/atomic"
)

// firstBase keeps synthetic addresses well away from zero so a zero or small
// word is never mistaken for a heap address.
const firstBase = 1 << 20

// GoProvider hands out pages allocated by the Go runtime. Base addresses are
// synthetic: a monotonically increasing counter that is never reused, so a
// stale reference into a released range can never alias a newer one.
type GoProvider struct {
	budget *Budget
	next   atomic.Uint64
	inUse  atomic.Int64
}

// NewGoProvider creates a provider charging budget (nil for unlimited).
func NewGoProvider(budget *Budget) *GoProvider {
	return &GoProvider{budget: budget}
}

// RequestPages allocates count zeroed pages.
func (p *GoProvider) RequestPages(count int) (Range, error) {
	if err := checkCount(count); err != nil {
		return Range{}, err
	}
	if !p.budget.Reserve(int64(count) * PageBytes) {
		return Range{}, budgetExceeded(count, p.budget)
	}
	n := uint64(count) * PageWords
	base := firstBase + p.next.Add(n) - n
	p.inUse.Add(int64(count))
	return Range{Base: base, Words: make([]uint64, n)}, nil
}

// ReleasePages returns a range to the budget. The memory itself is left to
// the Go collector.
func (p *GoProvider) ReleasePages(r Range) error {
	if r.Base == 0 {
		return nil
	}
	p.budget.Return(int64(r.Pages()) * PageBytes)
	p.inUse.Add(-int64(r.Pages()))
	return nil
}

// InUse returns the number of pages currently handed out.
func (p *GoProvider) InUse() int {
	return int(p.inUse.Load())
}
