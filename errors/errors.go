package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseConfig   Phase = "config"   // configuration validation
	PhasePages    Phase = "pages"    // memory provider
	PhasePool     Phase = "pool"     // binary pool
	PhaseAlloc    Phase = "alloc"    // heap allocation
	PhaseCollect  Phase = "collect"  // garbage collection
	PhaseConvert  Phase = "convert"  // Go term <-> heap value
	PhaseSend     Phase = "send"     // message delivery
	PhaseReceive  Phase = "receive"  // selective receive
	PhaseSpawn    Phase = "spawn"    // process creation
	PhaseSchedule Phase = "schedule" // worker loop bookkeeping
	PhaseLink     Phase = "link"     // links and monitors
	PhaseExit     Phase = "exit"     // exit propagation
	PhaseLoad     Phase = "load"     // process code loading
	PhaseRuntime  Phase = "runtime"  // process code execution
)

// Kind categorizes the error
type Kind string

const (
	KindOutOfMemory    Kind = "out_of_memory"
	KindInvalidRef     Kind = "invalid_ref"
	KindInvalidInput   Kind = "invalid_input"
	KindTypeMismatch   Kind = "type_mismatch"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindNoProcess      Kind = "noproc"
	KindNotFound       Kind = "not_found"
	KindClosed         Kind = "closed"
	KindUnsupported    Kind = "unsupported"
	KindCorrupt        Kind = "corrupt"
	KindCrash          Kind = "crash"
	KindInstantiation  Kind = "instantiation"
	KindNotInitialized Kind = "not_initialized"
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Fatal reports whether the error must tear down the realm rather than a
// single process.
func (e *Error) Fatal() bool {
	return e.Kind == KindCorrupt
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the term path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if there
// is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsFatal reports whether err carries a realm-fatal kind anywhere in its chain.
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Fatal()
	}
	return false
}

// Convenience constructors for common error patterns

// OutOfMemory creates an allocation failure error for amount units
// (words, pages, bytes). cause may be nil.
func OutOfMemory(phase Phase, amount int, unit string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfMemory,
		Detail: fmt.Sprintf("failed to allocate %d %s", amount, unit),
		Value:  amount,
		Cause:  cause,
	}
}

// HeapLimit creates an out-of-memory error for a heap that reached its
// configured maximum.
func HeapLimit(need, limit int) *Error {
	return &Error{
		Phase:  PhaseAlloc,
		Kind:   KindOutOfMemory,
		Detail: fmt.Sprintf("need %d words, heap limit is %d words", need, limit),
		Value:  need,
	}
}

// InvalidRef creates an invalid reference error
func InvalidRef(phase Phase, what string, ref any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidRef,
		Detail: fmt.Sprintf("invalid %s reference %v", what, ref),
		Value:  ref,
	}
}

// TypeMismatch creates a type mismatch error for a term at path
func TypeMismatch(phase Phase, path []string, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		Detail: fmt.Sprintf("expected %s, got %s", want, got),
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// NoProcess creates an error for an operation addressing a process that does
// not exist (or no longer exists).
func NoProcess(phase Phase, pid any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNoProcess,
		Detail: fmt.Sprintf("no process %v", pid),
		Value:  pid,
	}
}

// Corrupt creates an invariant violation error. Corrupt errors are fatal to
// the realm.
func Corrupt(phase Phase, detail string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCorrupt,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// Crash creates an error for a fault raised inside process code.
func Crash(value any) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindCrash,
		Detail: fmt.Sprint(value),
		Value:  value,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Closed creates an error for use of a closed component
func Closed(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s closed", component),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Load creates an error for process code that could not be loaded
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}
