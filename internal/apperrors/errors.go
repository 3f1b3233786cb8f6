// Package apperrors defines the error taxonomy shared by the scanner, the
// index and the tag database.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorises a failure
type Kind string

const (
	// KindIO is an unreadable file or path
	KindIO Kind = "io_failure"
	// KindDecode is a corrupt or unsupported image
	KindDecode Kind = "decode_failure"
	// KindHash is an IO failure met while hashing for duplicate detection
	KindHash Kind = "hash_failure"
	// KindDatabaseLoad is a malformed or unreadable tag database source
	KindDatabaseLoad Kind = "database_load_failure"
	// KindNotFound is an unknown image id or path
	KindNotFound Kind = "not_found"
	// KindInvalid is a rejected argument, such as an empty tag
	KindInvalid Kind = "invalid"
)

// ErrNotFound is matched by errors.Is for any KindNotFound error
var ErrNotFound = &Error{Kind: KindNotFound}

// Error is a categorised failure with the operation and path it concerns.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so sentinel values like ErrNotFound
// work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Path == "" && t.Err == nil
}

// StatusCode maps the kind to an HTTP status
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalid:
		return http.StatusBadRequest
	case KindDecode:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// IO wraps an unreadable file or path
func IO(op, path string, err error) *Error {
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

// Decode wraps an image decode failure
func Decode(op, path string, err error) *Error {
	return &Error{Kind: KindDecode, Op: op, Path: path, Err: err}
}

// Hash wraps a hashing failure
func Hash(op, path string, err error) *Error {
	return &Error{Kind: KindHash, Op: op, Path: path, Err: err}
}

// DatabaseLoad wraps a tag database load failure
func DatabaseLoad(op, path string, err error) *Error {
	return &Error{Kind: KindDatabaseLoad, Op: op, Path: path, Err: err}
}

// NotFound reports an unknown id or path
func NotFound(op, what string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Path: what}
}

// Invalid reports a rejected argument
func Invalid(op, reason string) *Error {
	return &Error{Kind: KindInvalid, Op: op, Err: errors.New(reason)}
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// InvariantViolation signals an internal inconsistency. It is a bug, never a
// recoverable runtime condition.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation (%s): %s", v.Invariant, v.Detail)
}

// Violation builds an InvariantViolation with a formatted detail.
func Violation(invariant, format string, args ...interface{}) *InvariantViolation {
	return &InvariantViolation{Invariant: invariant, Detail: fmt.Sprintf(format, args...)}
}
