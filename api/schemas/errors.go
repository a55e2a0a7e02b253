// File: api/schemas/errors.go
package schemas

import (
	"fmt"
	"strings"
)

// The error taxonomy below is deliberately flat: every failure mode a caller
// can meaningfully react to gets its own type, none are retried internally.
// Precise diagnosis, not self-healing.

// ParseError reports an intent string the parser could not turn into a
// structured Intent. No resolution is attempted after one.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Input, e.Reason)
}

// NotFoundError reports that no candidate cleared the minimum score. It
// carries the best-scoring rejected candidates so the caller can render a
// "did you mean" list.
type NotFoundError struct {
	Descriptor  string
	Suggestions []Suggestion
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("no element matches %q", e.Descriptor)
	}
	labels := make([]string, 0, len(e.Suggestions))
	for _, s := range e.Suggestions {
		labels = append(labels, s.Label)
	}
	return fmt.Sprintf("no element matches %q (did you mean: %s)", e.Descriptor, strings.Join(labels, ", "))
}

// AmbiguousError reports multiple top-scoring candidates. The caller must
// refine the descriptor; the resolver never guesses.
type AmbiguousError struct {
	Descriptor string
	Candidates []Candidate
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%q is ambiguous: %d candidates tie at the top score", e.Descriptor, len(e.Candidates))
}

// DispatchError reports that the platform collaborator could not perform the
// operation. The chain aborts.
type DispatchError struct {
	Op    Operation
	Cause error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s failed: %v", e.Op, e.Cause)
}

func (e *DispatchError) Unwrap() error { return e.Cause }

// TimeoutError reports a tree read or dispatch that exceeded its bound. It is
// distinct from DispatchError so callers can tell "nothing happened" apart
// from "unknown, took too long".
type TimeoutError struct {
	Op    string
	Cause error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Cause)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// StaleHandleError reports a candidate whose element handle no longer
// resolves because its snapshot was invalidated between resolution and
// execution. The caller should re-resolve.
type StaleHandleError struct {
	Handle string
}

func (e *StaleHandleError) Error() string {
	return fmt.Sprintf("element handle %q is stale; re-resolve against a fresh snapshot", e.Handle)
}
