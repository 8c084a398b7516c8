//go:build !unix

package pages

import "github.com/wippyai/realm-runtime/errors"

// MmapProvider is only available on unix systems.
type MmapProvider struct{}

// NewMmapProvider always fails on this platform.
func NewMmapProvider(*Budget) (*MmapProvider, error) {
	return nil, errors.Unsupported(errors.PhasePages, "mmap page provider on this platform")
}

func (*MmapProvider) RequestPages(int) (Range, error) {
	return Range{}, errors.Unsupported(errors.PhasePages, "mmap page provider on this platform")
}

func (*MmapProvider) ReleasePages(Range) error {
	return errors.Unsupported(errors.PhasePages, "mmap page provider on this platform")
}

func (*MmapProvider) InUse() int { return 0 }
