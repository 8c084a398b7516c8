package realm

import (
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/realm-runtime/errors"
	"github.com/wippyai/realm-runtime/heap"
)

// Config holds the realm's tunables.
type Config struct {
	// Workers is the number of worker goroutines. Defaults to GOMAXPROCS.
	Workers int `yaml:"workers"`

	// ReductionBudget is the number of reductions a process may consume in
	// one slice before it is preempted.
	ReductionBudget int `yaml:"reduction_budget"`

	// Heap is the default heap configuration for new processes.
	Heap heap.Config `yaml:"heap"`

	// RunQueueSize is the capacity of each per-worker, per-priority deque.
	RunQueueSize int `yaml:"run_queue_size"`

	// StealAttempts is the number of passes over the peers an idle worker
	// makes before parking.
	StealAttempts int `yaml:"steal_attempts"`

	// FairnessInterval: every FairnessInterval slices a worker starts its
	// band scan below the highest priority so lower bands are not starved.
	FairnessInterval int `yaml:"fairness_interval"`

	// GlobalQueueInterval: every GlobalQueueInterval slices a worker polls
	// the global queue before its local bands.
	GlobalQueueInterval int `yaml:"global_queue_interval"`

	// MemoryBudget caps the bytes held by heaps and pooled binaries.
	// 0 means unlimited.
	MemoryBudget int64 `yaml:"memory_budget"`

	// Provider selects the memory provider: "go" or "mmap".
	Provider string `yaml:"provider"`
}

// DefaultConfig returns the default realm configuration.
func DefaultConfig() Config {
	return Config{
		Workers:             runtime.GOMAXPROCS(0),
		ReductionBudget:     4000,
		Heap:                heap.DefaultConfig(),
		RunQueueSize:        256,
		StealAttempts:       4,
		FairnessInterval:    8,
		GlobalQueueInterval: 61,
		Provider:            "go",
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Workers < 1:
		return errors.InvalidInput(errors.PhaseConfig, "workers must be at least 1")
	case c.ReductionBudget < 1:
		return errors.InvalidInput(errors.PhaseConfig, "reduction_budget must be positive")
	case c.RunQueueSize < 2:
		return errors.InvalidInput(errors.PhaseConfig, "run_queue_size must be at least 2")
	case c.StealAttempts < 0:
		return errors.InvalidInput(errors.PhaseConfig, "steal_attempts must not be negative")
	case c.FairnessInterval < 1:
		return errors.InvalidInput(errors.PhaseConfig, "fairness_interval must be positive")
	case c.GlobalQueueInterval < 1:
		return errors.InvalidInput(errors.PhaseConfig, "global_queue_interval must be positive")
	case c.MemoryBudget < 0:
		return errors.InvalidInput(errors.PhaseConfig, "memory_budget must not be negative")
	case c.Provider != "" && c.Provider != "go" && c.Provider != "mmap":
		return errors.InvalidInput(errors.PhaseConfig, "provider must be \"go\" or \"mmap\"")
	}
	return c.Heap.Validate()
}

// ParseConfig decodes YAML over the defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read config")
	}
	return ParseConfig(data)
}
