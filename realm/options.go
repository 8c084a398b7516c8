package realm

import (
	"go.uber.org/zap"

	"github.com/wippyai/realm-runtime/heap"
	"github.com/wippyai/realm-runtime/pages"
	"github.com/wippyai/realm-runtime/term"
)

// Option configures a Realm.
type Option func(*Realm)

// WithLogger sets the realm's logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Realm) {
		if l != nil {
			r.log = l
		}
	}
}

// WithProvider replaces the memory provider selected by Config.Provider.
func WithProvider(p pages.Provider) Option {
	return func(r *Realm) { r.provider = p }
}

// SpawnOption configures a new process.
type SpawnOption func(*spawnOptions)

type spawnOptions struct {
	heap     heap.Config
	link     term.PID
	priority Priority
	trapExit bool
}

// WithPriority sets the scheduling band.
func WithPriority(p Priority) SpawnOption {
	return func(o *spawnOptions) { o.priority = p }
}

// WithInitialHeap sets the initial heap size in words.
func WithInitialHeap(words int) SpawnOption {
	return func(o *spawnOptions) { o.heap.InitialWords = words }
}

// WithMaxHeap caps the heap size in words. Zero means unlimited.
func WithMaxHeap(words int) SpawnOption {
	return func(o *spawnOptions) { o.heap.MaxWords = words }
}

// WithTrapExit makes exit signals from linked processes arrive as
// [:EXIT pid reason] messages instead of terminating the process.
func WithTrapExit(trap bool) SpawnOption {
	return func(o *spawnOptions) { o.trapExit = trap }
}

// WithLink links the new process to pid before it first runs.
func WithLink(pid term.PID) SpawnOption {
	return func(o *spawnOptions) { o.link = pid }
}
