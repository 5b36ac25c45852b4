// Package gcassert centralizes the allocator's fatal-contract-violation
// path, mirroring the teacher's runtime.throw: an interior-pointer
// destroy, a misaligned block address, a double-clear of a page, or an
// over-extend of a finalized slot are all caller contract violations, not
// recoverable errors, so they are reported and raised as a panic rather
// than threaded back up as an error value (spec.md §7).
package gcassert

import (
	"fmt"
	"log/slog"
)

// FatalError is the panic value Fatal raises. A caller embedding this
// library as a collaborator (rather than running it in its own process)
// can recover a FatalError to attribute the failure before re-panicking
// or exiting.
type FatalError struct {
	Msg string
}

func (e *FatalError) Error() string {
	return e.Msg
}

// Fatal logs msg via slog at Error level and panics with a *FatalError.
// Use for precondition violations that indicate a bug in the caller, never
// for ordinary allocation failures (those return nil/false per spec.md
// §7).
func Fatal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	slog.Error("gc: fatal contract violation", slog.String("detail", msg))
	panic(&FatalError{Msg: msg})
}

// Check calls Fatal if cond is false. Use for invariants that are cheap
// enough to verify unconditionally on every call.
func Check(cond bool, format string, args ...any) {
	if !cond {
		Fatal(format, args...)
	}
}
