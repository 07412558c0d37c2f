// Package domainerrors defines the coded error type used across the sync
// engine. Codes carry the failure taxonomy so callers can decide between
// count-and-continue and abort without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for handling policy.
type Code string

const (
	// CodeFetch marks a source page that could not be retrieved within the
	// retry budget. Non-fatal: the page is abandoned and counted.
	CodeFetch Code = "fetch"
	// CodeMapping marks a dependent record referencing an unresolved
	// identity. Non-fatal: the record is skipped and counted.
	CodeMapping Code = "mapping"
	// CodeConstraint marks a value outside its valid domain. Non-fatal: the
	// field or record is dropped and counted.
	CodeConstraint Code = "constraint"
	// CodeNotFound marks a missing row or artifact.
	CodeNotFound Code = "not_found"
	// CodeInternal marks an unexpected store or infrastructure failure.
	CodeInternal Code = "internal"
	// CodeFatal marks a failure that must abort the run: target store
	// unreachable, or the identity-bootstrap stage failing.
	CodeFatal Code = "fatal"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a coded error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	return CodeOf(err) == CodeFatal
}
