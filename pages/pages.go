package pages

import (
	stderrors "errors"
	"fmt"
	"sync/atomic"

	"github.com/wippyai/realm-runtime/errors"
)

const (
	// PageWords is the number of 64-bit words in a page.
	PageWords = 512
	// PageBytes is the page size in bytes.
	PageBytes = PageWords * 8
)

// Range is a contiguous run of pages handed out by a Provider.
type Range struct {
	// Words is the usable memory.
	Words []uint64
	// Base is the word address of Words[0]. Bases are unique among live
	// ranges of one provider and never zero.
	Base uint64
}

// Len returns the number of words in the range.
func (r Range) Len() int { return len(r.Words) }

// Pages returns the number of pages in the range.
func (r Range) Pages() int { return len(r.Words) / PageWords }

// Contains reports whether addr is a word address inside the range.
func (r Range) Contains(addr uint64) bool {
	return addr >= r.Base && addr < r.Base+uint64(len(r.Words))
}

// Provider supplies memory to process heaps. Implementations must be safe
// for concurrent use from every worker.
type Provider interface {
	// RequestPages returns count fresh, zeroed pages or an out_of_memory
	// error.
	RequestPages(count int) (Range, error)
	// ReleasePages returns a range obtained from RequestPages.
	ReleasePages(r Range) error
}

// PagesFor returns the number of pages needed to hold words words.
func PagesFor(words int) int {
	return (words + PageWords - 1) / PageWords
}

// Budget caps the bytes a realm may hold at once. It is shared between the
// page provider and the binary pool. A nil Budget is unlimited.
type Budget struct {
	limit int64
	used  atomic.Int64
}

// NewBudget creates a budget of limit bytes. A limit <= 0 is unlimited.
func NewBudget(limit int64) *Budget {
	return &Budget{limit: limit}
}

// Reserve accounts n bytes, failing without side effects if the limit would
// be exceeded.
func (b *Budget) Reserve(n int64) bool {
	if b == nil {
		return true
	}
	for {
		cur := b.used.Load()
		if b.limit > 0 && cur+n > b.limit {
			return false
		}
		if b.used.CompareAndSwap(cur, cur+n) {
			return true
		}
	}
}

// Return gives back n previously reserved bytes.
func (b *Budget) Return(n int64) {
	if b == nil {
		return
	}
	b.used.Add(-n)
}

// Used returns the bytes currently reserved.
func (b *Budget) Used() int64 {
	if b == nil {
		return 0
	}
	return b.used.Load()
}

// Limit returns the configured limit, 0 when unlimited.
func (b *Budget) Limit() int64 {
	if b == nil || b.limit < 0 {
		return 0
	}
	return b.limit
}

// New returns the provider registered under name: "go" (default) or "mmap".
func New(name string, budget *Budget) (Provider, error) {
	switch name {
	case "", "go":
		return NewGoProvider(budget), nil
	case "mmap":
		mp, err := NewMmapProvider(budget)
		if err != nil {
			return nil, err
		}
		return mp, nil
	}
	return nil, errors.NotFound(errors.PhasePages, "memory provider", name)
}

func checkCount(count int) error {
	if count <= 0 {
		return errors.New(errors.PhasePages, errors.KindInvalidInput).
			Detail("page count must be positive, got %d", count).
			Value(count).
			Build()
	}
	return nil
}

// ErrBudgetExhausted is the cause of out-of-memory errors raised because
// the realm's memory budget is used up.
var ErrBudgetExhausted = stderrors.New("realm memory budget exhausted")

func budgetExceeded(count int, budget *Budget) error {
	return errors.OutOfMemory(errors.PhasePages, count, "pages",
		fmt.Errorf("%w: %d bytes in use, limit %d", ErrBudgetExhausted, budget.Used(), budget.Limit()))
}
