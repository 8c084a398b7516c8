package realm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/realm-runtime/errors"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
workers: 3
reduction_budget: 500
memory_budget: 1048576
provider: mmap
heap:
  initial_words: 1024
  max_words: 65536
`))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if cfg.Workers != 3 || cfg.ReductionBudget != 500 || cfg.MemoryBudget != 1<<20 || cfg.Provider != "mmap" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Heap.InitialWords != 1024 || cfg.Heap.MaxWords != 65536 {
		t.Fatalf("unexpected heap config %+v", cfg.Heap)
	}

	def := DefaultConfig()
	if cfg.RunQueueSize != def.RunQueueSize || cfg.Heap.BinaryThreshold != def.Heap.BinaryThreshold {
		t.Fatal("unset fields must keep their defaults")
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero workers", "workers: 0"},
		{"negative budget", "reduction_budget: -1"},
		{"tiny run queue", "run_queue_size: 1"},
		{"unknown provider", "provider: shm"},
		{"heap limit below initial", "heap: {initial_words: 1024, max_words: 512}"},
		{"not yaml", "workers: [1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			if errors.KindOf(err) != errors.KindInvalidInput {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "realm.yaml")
	if err := os.WriteFile(path, []byte("workers: 2\nsteal_attempts: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 2 || cfg.StealAttempts != 0 {
		t.Fatalf("unexpected config %+v", cfg)
	}

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if errors.KindOf(err) != errors.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
