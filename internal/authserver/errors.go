package authserver

import (
	"code.kerpass.org/ticketauth/internal/utils"
)

// errorFlag is a private error type that allows declaring error constants.
type errorFlag string

const (
	// All package errors are wrapping Error
	Error = errorFlag("authserver: error")

	// ErrUnknownClient flags a request whose sender id is not registered.
	ErrUnknownClient = errorFlag("authserver: unknown client")

	// ErrUnknownServer flags a session key request naming an unregistered
	// message server.
	ErrUnknownServer = errorFlag("authserver: unknown server")

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
