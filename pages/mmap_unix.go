//go:build unix

package pages

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/wippyai/realm-runtime/errors"
)

// MmapProvider hands out anonymous private mappings. Base addresses are the
// real mapping addresses divided by the word size.
type MmapProvider struct {
	budget *Budget
	mu     sync.Mutex
	live   map[uint64][]byte
}

// NewMmapProvider creates an mmap-backed provider charging budget.
func NewMmapProvider(budget *Budget) (*MmapProvider, error) {
	return &MmapProvider{
		budget: budget,
		live:   make(map[uint64][]byte),
	}, nil
}

// RequestPages maps count zeroed pages.
func (p *MmapProvider) RequestPages(count int) (Range, error) {
	if err := checkCount(count); err != nil {
		return Range{}, err
	}
	size := int64(count) * PageBytes
	if !p.budget.Reserve(size) {
		return Range{}, budgetExceeded(count, p.budget)
	}

	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		p.budget.Return(size)
		return Range{}, errors.OutOfMemory(errors.PhasePages, count, "pages", err)
	}

	ptr := unsafe.Pointer(&mem[0])
	base := uint64(uintptr(ptr)) / 8

	p.mu.Lock()
	p.live[base] = mem
	p.mu.Unlock()

	return Range{
		Base:  base,
		Words: unsafe.Slice((*uint64)(ptr), count*PageWords),
	}, nil
}

// ReleasePages unmaps a range. The range must not be used afterwards.
func (p *MmapProvider) ReleasePages(r Range) error {
	p.mu.Lock()
	mem, ok := p.live[r.Base]
	delete(p.live, r.Base)
	p.mu.Unlock()

	if !ok {
		return errors.InvalidRef(errors.PhasePages, "page range", r.Base)
	}
	p.budget.Return(int64(len(mem)))
	if err := unix.Munmap(mem); err != nil {
		return errors.New(errors.PhasePages, errors.KindInvalidInput).
			Detail("munmap range at %#x", r.Base).
			Cause(err).
			Build()
	}
	return nil
}

// InUse returns the number of pages currently mapped.
func (p *MmapProvider) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, mem := range p.live {
		n += len(mem) / PageBytes
	}
	return n
}
