package wire

import (
	"code.kerpass.org/ticketauth/internal/utils"
)

// errorFlag is a private error type that allows declaring error constants.
type errorFlag string

const (
	// All package errors are wrapping Error
	Error = errorFlag("wire: error")

	// ErrFraming flags malformed envelopes, declared payload lengths that do not
	// match the bytes actually available, and truncated fixed-width payloads.
	ErrFraming = errorFlag("wire: framing error")

	// ErrUnknownCode flags request/response codes absent from the dispatch table.
	ErrUnknownCode = errorFlag("wire: unknown code")

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

// newFramingError returns an ErrFraming flagged utils.RaisedErr{}.
func newFramingError(msg string, args ...any) error {
	return utils.NewError(1, ErrFraming, msg, args...)
}

// wrapFramingError returns an ErrFraming flagged utils.RaisedErr{}.
func wrapFramingError(cause error, msg string, args ...any) error {
	return utils.WrapError(cause, 1, ErrFraming, msg, args...)
}
