// Package msgserver implements the resource side of the ticket protocol: a
// message server that validates issuer tickets without ever talking to the
// issuer at request time. Trust is transitive, only the issuer and this server
// share the long-term key, and only the rightful client can have obtained a
// session key it forwards correctly.
package msgserver

import (
	"time"

	"code.kerpass.org/ticketauth/internal/algos"
	"code.kerpass.org/ticketauth/internal/utils"
	"code.kerpass.org/ticketauth/internal/wire"
)

const (
	// AuthenticatorWindow bounds how old a presented authenticator may be.
	AuthenticatorWindow = 10 * time.Minute
)

// Session is the per-client state installed by a successful ticket presentation.
type Session struct {
	Key        [algos.KeySize]byte
	IV         [algos.IVSize]byte
	Expiration time.Time
}

// SessionManager validates tickets & authenticators and keeps the live
// session table. The table is the only mutable state of a message server.
type SessionManager struct {
	id       [wire.IdSize]byte
	key      [algos.KeySize]byte
	sessions *utils.Registry[[wire.IdSize]byte, Session]
	window   time.Duration
	now      func() time.Time
}

// NewSessionManager returns a SessionManager for the server owning id & key.
func NewSessionManager(id [wire.IdSize]byte, key [algos.KeySize]byte) *SessionManager {
	return &SessionManager{
		id:       id,
		key:      key,
		sessions: utils.NewRegistry[[wire.IdSize]byte, Session](),
		window:   AuthenticatorWindow,
		now:      time.Now,
	}
}

// AcceptTicket validates a ticket & authenticator pair and installs the
// session on success, superseding any previous session of the same client.
//
// The validation order matters, later steps depend on material decrypted by
// earlier ones: audience, ticket creation not in the future, ticket opens
// under the long-term key, ticket not expired, authenticator opens under the
// session key, authenticator fresh, identities consistent.
func (self *SessionManager) AcceptTicket(tk wire.Ticket, au wire.Authenticator, claimedClientId [wire.IdSize]byte) error {
	now := self.now().UTC()

	if self.id != tk.ServerId {
		return utils.NewError(0, ErrWrongAudience, "ticket targets %s", utils.HexBinary(tk.ServerId[:]))
	}
	if tk.Creation.After(now) {
		return utils.NewError(0, ErrTicketFromFuture, "ticket created %v, now %v", tk.Creation, now)
	}

	rawKey, err := openField(self.key[:], tk.EncSessionKey[:], tk.IV[:], algos.KeySize, ErrInvalidTicket, "session key")
	if nil != err {
		return err
	}
	rawExp, err := openField(self.key[:], tk.EncExpiration[:], tk.IV[:], 8, ErrInvalidTicket, "expiration")
	if nil != err {
		return err
	}
	expiration := wire.DecodeTimestamp(rawExp)
	if now.After(expiration) {
		return utils.NewError(0, ErrTicketExpired, "ticket expired %v, now %v", expiration, now)
	}

	var sessionKey [algos.KeySize]byte
	copy(sessionKey[:], rawKey)

	rawVersion, err := openField(sessionKey[:], au.EncVersion[:], au.IV[:], 1, ErrInvalidAuthenticator, "version")
	if nil != err {
		return err
	}
	if wire.Version != rawVersion[0] {
		return utils.NewError(0, ErrInvalidAuthenticator, "unsupported version %d", rawVersion[0])
	}
	rawClientId, err := openField(sessionKey[:], au.EncClientId[:], au.IV[:], wire.IdSize, ErrInvalidAuthenticator, "client id")
	if nil != err {
		return err
	}
	rawServerId, err := openField(sessionKey[:], au.EncServerId[:], au.IV[:], wire.IdSize, ErrInvalidAuthenticator, "server id")
	if nil != err {
		return err
	}
	rawCreation, err := openField(sessionKey[:], au.EncCreation[:], au.IV[:], 8, ErrInvalidAuthenticator, "creation time")
	if nil != err {
		return err
	}

	creation := wire.DecodeTimestamp(rawCreation)
	if creation.Before(now.Add(-self.window)) {
		return utils.NewError(0, ErrStaleAuthenticator, "authenticator created %v, now %v", creation, now)
	}

	var auClientId, auServerId [wire.IdSize]byte
	copy(auClientId[:], rawClientId)
	copy(auServerId[:], rawServerId)
	if self.id != auServerId || claimedClientId != auClientId {
		return utils.NewError(0, ErrIdentityMismatch, "authenticator identities do not match")
	}

	utils.RegistryPut(self.sessions, claimedClientId, Session{
		Key:        sessionKey,
		IV:         tk.IV,
		Expiration: expiration,
	})
	return nil
}

// HandleMessage decrypts one application message under the session installed
// for clientId. The message carries its own IV, the session IV is never
// reused for messages.
func (self *SessionManager) HandleMessage(clientId [wire.IdSize]byte, iv [algos.IVSize]byte, ciphertext []byte) ([]byte, error) {
	session, found := utils.RegistryGet(self.sessions, clientId)
	if !found {
		return nil, utils.NewError(0, ErrNoSession, "no session for client %s", utils.HexBinary(clientId[:]))
	}
	if self.now().UTC().After(session.Expiration) {
		return nil, utils.NewError(0, ErrSessionExpired, "session expired %v", session.Expiration)
	}

	plaintext, err := algos.DecryptAESCBC(session.Key[:], ciphertext, iv[:])
	if nil != err {
		return nil, wrapError(err, "failed decrypting message")
	}
	return plaintext, nil
}

// SessionCount returns the number of live table entries, expired included.
func (self *SessionManager) SessionCount() int {
	return utils.RegistryLen(self.sessions)
}

// openField decrypts one fixed-width encrypted field and controls the
// plaintext length, a freak unpadding success under a wrong key can yield a
// wrong-sized plaintext.
func openField(key, ciphertext, iv []byte, wantLen int, flag errorFlag, what string) ([]byte, error) {
	plaintext, err := algos.DecryptAESCBC(key, ciphertext, iv)
	if nil != err {
		return nil, utils.WrapError(err, 1, flag, "failed opening %s", what)
	}
	if wantLen != len(plaintext) {
		return nil, utils.NewError(1, flag, "unexpected %s length %d != %d", what, len(plaintext), wantLen)
	}
	return plaintext, nil
}
