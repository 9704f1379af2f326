package client

import (
	"code.kerpass.org/ticketauth/internal/utils"
)

// errorFlag is a private error type that allows declaring error constants.
type errorFlag string

const (
	// All package errors are wrapping Error
	Error = errorFlag("client: error")

	// ErrNameTaken flags a registration rejected for a duplicate name.
	ErrNameTaken = errorFlag("client: name already taken")

	// ErrNonceMismatch flags a session key block whose decrypted nonce does
	// not echo the request nonce. Corruption or a foreign issuer, the
	// handshake must abort.
	ErrNonceMismatch = errorFlag("client: nonce mismatch")

	// ErrNoServers flags an empty message server listing.
	ErrNoServers = errorFlag("client: no message server registered")

	// ErrRejected flags a server response that is not the expected success
	// code. For messaging this is how an expired session shows up, the
	// handshake must restart from server selection.
	ErrRejected = errorFlag("client: request rejected")

	// ErrNoSession flags messaging attempted before a successful handshake.
	ErrNoSession = errorFlag("client: no established session")

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
