package heap

import (
	"github.com/wippyai/realm-runtime/errors"
	"github.com/wippyai/realm-runtime/pages"
)

// Config holds the sizing parameters of a process heap. All sizes are in
// 64-bit words unless stated otherwise.
type Config struct {
	// InitialWords is the size of the first segment and the floor the heap
	// never shrinks below.
	InitialWords int `yaml:"initial_words"`
	// MaxWords caps the heap capacity. Zero means unlimited.
	MaxWords int `yaml:"max_words"`
	// BinaryThreshold is the byte size above which binaries are published to
	// the binary pool instead of stored inline.
	BinaryThreshold int `yaml:"binary_threshold"`
	// GrowRatio is the live/capacity ratio above which a collection is
	// followed by growth.
	GrowRatio float64 `yaml:"grow_ratio"`
	// ShrinkRatio is the live/capacity ratio below which a collection
	// compacts into a smaller segment.
	ShrinkRatio float64 `yaml:"shrink_ratio"`
}

// DefaultConfig returns a 4 KiB initial heap with no upper limit.
func DefaultConfig() Config {
	return Config{
		InitialWords:    pages.PageWords,
		BinaryThreshold: 64,
		GrowRatio:       0.75,
		ShrinkRatio:     0.25,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	switch {
	case c.InitialWords <= 0:
		return errors.InvalidInput(errors.PhaseConfig, "heap initial_words must be positive")
	case c.MaxWords < 0:
		return errors.InvalidInput(errors.PhaseConfig, "heap max_words must not be negative")
	case c.MaxWords > 0 && c.MaxWords < c.InitialWords:
		return errors.InvalidInput(errors.PhaseConfig, "heap max_words must be at least initial_words")
	case c.BinaryThreshold < 0:
		return errors.InvalidInput(errors.PhaseConfig, "heap binary_threshold must not be negative")
	case c.GrowRatio <= 0 || c.GrowRatio > 1:
		return errors.InvalidInput(errors.PhaseConfig, "heap grow_ratio must be in (0, 1]")
	case c.ShrinkRatio < 0 || c.ShrinkRatio >= c.GrowRatio:
		return errors.InvalidInput(errors.PhaseConfig, "heap shrink_ratio must be in [0, grow_ratio)")
	}
	return nil
}
