package feed

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an adapter failure. The recovery coordinator is the
// sole authority translating kinds into control-flow decisions.
type ErrorKind string

const (
	// KindTransient covers timeouts and upstream hiccups. Retried with
	// backoff on later cycles.
	KindTransient ErrorKind = "transient"

	// KindRateLimited is an upstream rate-limit response. Handled like a
	// transient failure.
	KindRateLimited ErrorKind = "rate_limited"

	// KindValidation is a malformed adapter payload. The stage's output is
	// discarded for the cycle; no retry.
	KindValidation ErrorKind = "validation"

	// KindRejected is a content-level rejection from the publish channel
	// (e.g. duplicate content). The candidate is terminal, never retried.
	KindRejected ErrorKind = "rejected"

	// KindAuth is an authentication/authorization failure. Halts the loop.
	KindAuth ErrorKind = "auth"

	// KindConfig is a malformed configuration detected at call time.
	// Halts the loop.
	KindConfig ErrorKind = "config"
)

// Error is the typed failure every adapter boundary returns. Op names the
// failing operation for log context.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure may succeed on a later cycle.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindRateLimited
}

// Transient wraps err as a transient source error.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// RateLimited wraps err as an upstream rate-limit response.
func RateLimited(op string, err error) *Error {
	return &Error{Kind: KindRateLimited, Op: op, Err: err}
}

// Validation wraps err as a malformed-payload error.
func Validation(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// Rejected wraps err as a content-level publish rejection.
func Rejected(op string, err error) *Error {
	return &Error{Kind: KindRejected, Op: op, Err: err}
}

// Auth wraps err as a non-recoverable auth failure.
func Auth(op string, err error) *Error {
	return &Error{Kind: KindAuth, Op: op, Err: err}
}

// Config wraps err as a non-recoverable configuration failure.
func Config(op string, err error) *Error {
	return &Error{Kind: KindConfig, Op: op, Err: err}
}

// KindOf extracts the kind from err. Unclassified errors (including plain
// context deadline errors from an adapter that forgot to wrap) are treated
// as transient: the safe default is to retry with backoff rather than halt.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransient
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
