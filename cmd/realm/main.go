package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/realm-runtime/realm"
	"github.com/wippyai/realm-runtime/term"
	"github.com/wippyai/realm-runtime/wasmcode"
)

type options struct {
	config   string
	wasm     string
	priority string
	workers  int
	procs    int
	rounds   int
	payload  int
	guests   int
	verbose  bool
}

func main() {
	var o options
	flag.StringVar(&o.config, "config", "", "Path to a YAML realm configuration")
	flag.IntVar(&o.workers, "workers", 0, "Worker count (overrides config)")
	flag.IntVar(&o.procs, "procs", 1000, "Processes in the token ring")
	flag.IntVar(&o.rounds, "rounds", 10, "Times the token goes around the ring")
	flag.IntVar(&o.payload, "payload", 256, "Bytes carried with the token")
	flag.StringVar(&o.priority, "priority", "normal", "Ring priority (low, normal, high)")
	flag.StringVar(&o.wasm, "wasm", "", "WebAssembly guest to spawn alongside the ring")
	flag.IntVar(&o.guests, "guests", 1, "Instances of the -wasm guest")
	flag.BoolVar(&o.verbose, "v", false, "Verbose (development) logging")
	interactive := flag.Bool("i", false, "Interactive monitor")
	flag.Parse()

	if o.rounds < 1 || o.procs < 1 {
		fmt.Fprintln(os.Stderr, "Usage: realm [-procs n] [-rounds n] [-wasm guest.wasm] [-config realm.yaml] [-i]")
		os.Exit(1)
	}

	log, err := newLogger(o.verbose, *interactive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if *interactive {
		err = runInteractive(o, log)
	} else {
		err = run(o, log)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose, quiet bool) (*zap.Logger, error) {
	switch {
	case quiet:
		// The monitor owns the terminal.
		return zap.NewNop(), nil
	case verbose:
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loadConfig(o options) (realm.Config, error) {
	cfg := realm.DefaultConfig()
	if o.config != "" {
		var err error
		if cfg, err = realm.LoadConfig(o.config); err != nil {
			return cfg, err
		}
	}
	if o.workers > 0 {
		cfg.Workers = o.workers
	}
	return cfg, cfg.Validate()
}

// exitCounter counts exits and signals when a set of processes is gone.
type exitCounter struct {
	mu      sync.Mutex
	pending map[term.PID]struct{}
	done    chan struct{}
	failed  int
}

func newExitCounter() *exitCounter {
	return &exitCounter{pending: make(map[term.PID]struct{}), done: make(chan struct{})}
}

func (c *exitCounter) OnProcessEvent(e realm.Event) {
	if e.Type != realm.EventExited {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !term.IsNormal(e.Reason) {
		c.failed++
	}
	if _, ok := c.pending[e.PID]; !ok {
		return
	}
	delete(c.pending, e.PID)
	if len(c.pending) == 0 {
		close(c.done)
	}
}

func (c *exitCounter) expect(pids []term.PID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pid := range pids {
		c.pending[pid] = struct{}{}
	}
}

func (c *exitCounter) abnormal() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

func run(o options, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	prio, ok := realm.ParsePriority(o.priority)
	if !ok {
		return fmt.Errorf("unknown priority %q", o.priority)
	}

	r, err := realm.New(cfg, realm.WithLogger(log))
	if err != nil {
		return fmt.Errorf("create realm: %w", err)
	}
	exits := newExitCounter()
	r.Subscribe(exits)

	pids, err := ring(r, o.procs, o.rounds, o.payload, prio)
	if err != nil {
		return fmt.Errorf("spawn ring: %w", err)
	}
	exits.expect(pids)

	if o.wasm != "" {
		wasmcode.SetLogger(log.Named("wasm"))
		eng, err := wasmcode.NewEngine(ctx, wasmcode.Config{})
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close(context.Background()) }()
		gp, err := guests(ctx, eng, r, o.wasm, o.guests)
		exits.expect(gp)
		if err != nil {
			return fmt.Errorf("spawn guests: %w", err)
		}
	}

	fmt.Printf("Realm: %d workers, %d processes, %d hops\n", cfg.Workers, len(pids), o.rounds*o.procs)
	began := time.Now()
	if err := r.Start(ctx); err != nil {
		return err
	}

	var waitErr error
	select {
	case <-exits.done:
	case <-ctx.Done():
		fmt.Println("\nInterrupted")
	case <-r.Done():
		waitErr = r.Wait()
	}
	elapsed := time.Since(began)
	st := r.Stats()

	if err := r.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if waitErr != nil {
		return waitErr
	}

	fmt.Printf("\nElapsed:   %v\n", elapsed.Round(time.Microsecond))
	fmt.Printf("Spawned:   %d\n", st.Spawned)
	fmt.Printf("Exited:    %d (%d abnormal)\n", st.Exited, exits.abnormal())
	fmt.Printf("Slices:    %d\n", st.Slices)
	fmt.Printf("Steals:    %d\n", st.Steals)
	fmt.Printf("Binaries:  %d (%d bytes)\n", st.Binaries, st.BinaryBytes)
	if n := o.rounds * o.procs; elapsed > 0 {
		fmt.Printf("Hops/sec:  %.0f\n", float64(n)/elapsed.Seconds())
	}
	return nil
}
