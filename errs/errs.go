// Package errs defines the error kinds shared by the loader, the poller and the query engine.
//
// Kinds are sentinel values; wrap them with E and test with errors.Is:
//
//	if errors.Is(err, errs.NotFound) { ... }
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	FetchFailed           Kind = "fetch_failed"
	ParseFailed           Kind = "parse_failed"
	EmptySnapshotRejected Kind = "empty_snapshot_rejected"
	NotFound              Kind = "not_found"
	InvalidArgument       Kind = "invalid_argument"
	Unavailable           Kind = "unavailable"
)

// Error carries a kind, the operation that failed and the underlying cause.
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

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// E wraps err with a kind and operation name.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Ef builds a kinded error from a format string.
func Ef(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the outermost kind found in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return ""
}
