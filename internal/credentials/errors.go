package credentials

import (
	"code.kerpass.org/ticketauth/internal/utils"
)

// errorFlag is a private error type that allows declaring error constants.
type errorFlag string

const (
	// All package errors are wrapping Error
	Error = errorFlag("credentials: error")

	// ErrDuplicateName flags registration of a name already present in a registry.
	ErrDuplicateName = errorFlag("credentials: name already registered")

	// ErrNotFound flags lookups of unknown client or message server ids.
	ErrNotFound = errorFlag("credentials: not found")

	// ErrValidation flags identities with invalid fields.
	ErrValidation = errorFlag("credentials: validation error")

	noError = errorFlag("")
)

// Error implements the error interface.
func (self errorFlag) Error() string {
	return string(self)
}

func (self errorFlag) Unwrap() error {
	if Error == self || noError == self {
		return nil
	} else {
		return Error
	}
}

// newError returns a utils.RaisedErr{} that contains file & line of where it was called.
func newError(msg string, args ...any) error {
	return utils.NewError(1, Error, msg, args...)
}

// wrapError returns a utils.RaisedErr{} that contains file & line of where it was called.
func wrapError(cause error, msg string, args ...any) error {
	return utils.WrapError(cause, 1, Error, msg, args...)
}
