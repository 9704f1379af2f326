package msgserver

import (
	"code.kerpass.org/ticketauth/internal/utils"
)

// errorFlag is a private error type that allows declaring error constants.
type errorFlag string

const (
	// All package errors are wrapping Error
	Error = errorFlag("msgserver: error")

	// ErrWrongAudience flags a ticket issued for another message server.
	ErrWrongAudience = errorFlag("msgserver: ticket for another server")

	// ErrTicketFromFuture flags a ticket whose creation time is ahead of now.
	ErrTicketFromFuture = errorFlag("msgserver: ticket from the future")

	// ErrInvalidTicket flags a ticket that does not decrypt under the
	// long-term key, tampering & wrong keys surface here.
	ErrInvalidTicket = errorFlag("msgserver: invalid ticket")

	// ErrTicketExpired flags a ticket presented past its expiration.
	ErrTicketExpired = errorFlag("msgserver: ticket expired")

	// ErrInvalidAuthenticator flags an authenticator that does not decrypt
	// under the ticket session key.
	ErrInvalidAuthenticator = errorFlag("msgserver: invalid authenticator")

	// ErrStaleAuthenticator flags an authenticator older than the freshness window.
	ErrStaleAuthenticator = errorFlag("msgserver: stale authenticator")

	// ErrIdentityMismatch flags an authenticator naming identities that differ
	// from the ticket & envelope ones.
	ErrIdentityMismatch = errorFlag("msgserver: identity mismatch")

	// ErrNoSession flags a message from a client without an established session.
	ErrNoSession = errorFlag("msgserver: no session")

	// ErrSessionExpired flags a message arriving past the session expiration.
	ErrSessionExpired = errorFlag("msgserver: session expired")

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
