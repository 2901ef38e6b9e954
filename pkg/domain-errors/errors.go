// Package domainerrors provides the coded error type used across service
// and handler boundaries. Services return coded errors; handlers translate
// them to HTTP statuses and, for ledger codes, frozen numeric identifiers.
//
// Convention: import as dErrors.
package domainerrors

import (
	"errors"
	"fmt"
)

// Error is a classified error. Message is safe to surface to callers;
// Err preserves the underlying cause for logs and errors.Is/As.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err
// returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for e := err; e != nil; {
		if errors.As(e, &de) {
			if de.Code == code {
				return true
			}
			e = de.Err
			continue
		}
		return false
	}
	return false
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// GetCode returns the code of the outermost coded error in the chain.
// Uncoded errors classify as internal.
func GetCode(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Numeric returns the frozen wire identifier of the outermost coded error.
// The second return is false when the error carries no ledger code.
func Numeric(err error) (uint32, bool) {
	return NumericOf(GetCode(err))
}

// HTTPStatus maps an error to the HTTP status of its outermost code.
func HTTPStatus(err error) int {
	return HTTPStatusOf(GetCode(err))
}
