// Package errors provides structured error types for the realm runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries a detail message, an optional offending value, a term path
// and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseAlloc, errors.KindOutOfMemory).
//		Detail("heap limit %d words reached", max).
//		Value(requested).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.OutOfMemory(errors.PhasePages, count, "pages", nil)
//	err := errors.NoProcess(errors.PhaseLink, pid)
//
// Kind determines how the runtime reacts: process-local kinds end the
// process with a structured exit reason, KindCorrupt is fatal to the realm.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
