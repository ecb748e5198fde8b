// Package apperr defines the error taxonomy shared by storage and handlers.
// Every failure a caller can act on is expressed as one of these kinds;
// anything else is treated as an internal error and kept opaque.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// Internal is the zero value: an unexpected failure that must not leak
	// detail to the caller.
	Internal Kind = iota
	// BadRequest covers malformed or empty required identifiers and
	// out-of-range query parameters.
	BadRequest
	// NotFound means the referenced character or sub-resource is absent.
	NotFound
	// Forbidden means the caller identifier does not match the owner.
	Forbidden
	// Conflict means a state invariant rejected the write, e.g. setting a
	// quest while one is active.
	Conflict
	// Validation covers field-level constraint violations; Field carries
	// the offending path.
	Validation
	// Unavailable means the storage backend failed transiently.
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case BadRequest:
		return "bad_request"
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case Conflict:
		return "conflict"
	case Validation:
		return "validation_failed"
	case Unavailable:
		return "storage_unavailable"
	default:
		return "internal"
	}
}

type Error struct {
	Kind  Kind
	Field string // field path for Validation errors, empty otherwise
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Msg
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Invalid builds a Validation error for a specific field path.
func Invalid(field, format string, args ...any) error {
	return &Error{Kind: Validation, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, msg string) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind from err, or Internal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// FieldOf extracts the field path from err, if any.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
