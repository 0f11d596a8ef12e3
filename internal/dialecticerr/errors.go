// Package dialecticerr defines the typed error taxonomy used across the
// reasoning engine (spec §7): transport/parse/validation/timeout failures
// from agent calls, persistence retries, and the two session-terminating
// kinds (CostExceeded, InvariantError).
package dialecticerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for dispatch-site and session-level policy.
type Kind string

const (
	Transport  Kind = "transport"
	Parse      Kind = "parse"
	Validation Kind = "validation"
	Timeout    Kind = "timeout"
	Persist    Kind = "persistence"
	Invariant  Kind = "invariant"
	CostLimit  Kind = "cost_exceeded"
)

// Error wraps an underlying cause with a Kind so callers can branch with
// errors.As without string-matching messages.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a typed error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Of reports the Kind carried by err, if any was attached via this package.
func Of(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}
