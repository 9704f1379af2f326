// Package client implements the handshake orchestrator: a strictly synchronous
// sequence of registration, server selection, key & ticket acquisition, ticket
// presentation and messaging. Each step blocks on one request/response round
// trip before the next may run.
package client

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"time"

	"code.kerpass.org/ticketauth/internal/algos"
	"code.kerpass.org/ticketauth/internal/observability"
	"code.kerpass.org/ticketauth/internal/utils"
	"code.kerpass.org/ticketauth/internal/wire"
)

const (
	maxPayload = 1 << 20
)

// Config parametrizes a Client.
type Config struct {
	// AuthAddr is the auth server "ip:port".
	AuthAddr string

	// IdentityPath locates the persisted local identity.
	IdentityPath string
}

// session is the state established by a successful handshake. The connection
// to the message server stays open across messages.
type session struct {
	server wire.ServerEntry
	key    [algos.KeySize]byte
	conn   net.Conn
}

// Client drives the handshake against the auth server and one selected
// message server. It is not safe for concurrent use, the protocol itself is
// strictly sequential.
type Client struct {
	cfg          Config
	ident        *Identity
	passwordHash [algos.HashSize]byte
	hasPassword  bool
	session      *session
}

// New returns a Client, loading the persisted identity when one exists.
func New(cfg Config) (*Client, error) {
	ident, err := LoadIdentity(cfg.IdentityPath)
	if nil != err {
		return nil, err
	}
	return &Client{cfg: cfg, ident: ident}, nil
}

// Registered reports whether a local identity is present.
func (self *Client) Registered() bool {
	return nil != self.ident
}

// Name returns the local identity name, empty when not registered.
func (self *Client) Name() string {
	if nil == self.ident {
		return ""
	}
	return self.ident.Name
}

// SetPassword hashes & retains the password of an already registered identity.
func (self *Client) SetPassword(password string) {
	self.passwordHash = algos.HashPassword(password)
	self.hasPassword = true
}

// Register registers a new identity with the auth server and persists it.
// A name collision surfaces as ErrNameTaken, terminal for this attempt.
func (self *Client) Register(ctx context.Context, name, password string) error {
	if nil != self.ident {
		return newError("already registered as %q", self.ident.Name)
	}
	req := wire.RegisterClientReq{Name: name, Password: password}
	err := req.Check()
	if nil != err {
		return wrapError(err, "invalid registration request")
	}

	resp, err := self.callAuth(ctx, wire.Request{
		Version: wire.Version,
		Code:    wire.CodeRegisterClient,
		Payload: req.Pack(),
	})
	if nil != err {
		return err
	}
	if wire.CodeRegisterClientFail == resp.Code {
		return utils.NewError(0, ErrNameTaken, "name %q already registered", name)
	}
	if wire.CodeRegisterClientOK != resp.Code {
		return utils.NewError(0, ErrRejected, "registration rejected with code %d", resp.Code)
	}
	payload, err := wire.DecodeResponsePayload(resp.Code, resp.Payload)
	if nil != err {
		return wrapError(err, "failed decoding registration response")
	}

	self.ident = &Identity{Name: name, Id: payload.(wire.RegisterClientResp).ClientId}
	self.SetPassword(password)
	return self.ident.Save(self.cfg.IdentityPath)
}

// ListServers fetches & parses the message server listing.
// An empty listing is ErrNoServers, the handshake can not proceed without a
// target.
func (self *Client) ListServers(ctx context.Context) ([]wire.ServerEntry, error) {
	resp, err := self.callAuth(ctx, wire.Request{
		SenderId: self.senderId(),
		Version:  wire.Version,
		Code:     wire.CodeListServers,
	})
	if nil != err {
		return nil, err
	}
	if wire.CodeServerList != resp.Code {
		return nil, utils.NewError(0, ErrRejected, "listing rejected with code %d", resp.Code)
	}
	payload, err := wire.DecodeResponsePayload(resp.Code, resp.Payload)
	if nil != err {
		return nil, wrapError(err, "failed decoding server listing")
	}
	listing, _ := payload.(wire.ServerListResp)
	if 0 == len(listing.Servers) {
		return nil, utils.NewError(0, ErrNoServers, "server listing is empty")
	}
	return listing.Servers, nil
}

// Connect runs key & ticket acquisition then ticket presentation against the
// selected message server, leaving an established session ready for Send.
// A previous session is dropped first, re-selection restarts the handshake.
func (self *Client) Connect(ctx context.Context, server wire.ServerEntry) error {
	if nil == self.ident {
		return newError("not registered")
	}
	if !self.hasPassword {
		return newError("password not set")
	}
	self.Close()

	log := observability.GetObservability(ctx).Log()

	// key & ticket acquisition
	nonce := algos.NewNonce()
	resp, err := self.callAuth(ctx, wire.Request{
		SenderId: self.ident.Id,
		Version:  wire.Version,
		Code:     wire.CodeGetSessionKey,
		Payload:  wire.SessionKeyReq{ServerId: server.Id, Nonce: nonce}.Pack(),
	})
	if nil != err {
		return err
	}
	if wire.CodeSessionKey != resp.Code {
		return utils.NewError(0, ErrRejected, "session key request rejected with code %d", resp.Code)
	}
	payload, err := wire.DecodeResponsePayload(resp.Code, resp.Payload)
	if nil != err {
		return wrapError(err, "failed decoding session key response")
	}
	skresp := payload.(wire.SessionKeyResp)

	sessionKey, err := self.openKeyBlock(skresp.KeyBlock, nonce)
	if nil != err {
		return err
	}
	log.Debug("session key acquired", "server", server.Name)

	// ticket presentation
	au, err := self.makeAuthenticator(sessionKey, server.Id)
	if nil != err {
		return err
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(server.Ip, strconv.Itoa(int(server.Port))))
	if nil != err {
		return wrapError(err, "failed dialing message server %s", server.Name)
	}
	resp, err = wire.Call(conn, wire.Request{
		SenderId: self.ident.Id,
		Version:  wire.Version,
		Code:     wire.CodePresentTicket,
		Payload:  wire.PresentTicketReq{Authenticator: au, Ticket: skresp.Ticket}.Pack(),
	}, maxPayload)
	if nil != err {
		conn.Close()
		return wrapError(err, "failed ticket presentation round trip")
	}
	if wire.CodeTicketAccepted != resp.Code {
		conn.Close()
		return utils.NewError(0, ErrRejected, "ticket rejected with code %d", resp.Code)
	}

	log.Info("session established", "server", server.Name)
	self.session = &session{server: server, key: sessionKey, conn: conn}
	return nil
}

// Session returns the name of the connected message server, empty when no
// session is established.
func (self *Client) Session() string {
	if nil == self.session {
		return ""
	}
	return self.session.server.Name
}

// Send encrypts one message under the session key with a fresh IV and blocks
// for the acknowledgment. A rejection drops the session, the caller restarts
// from server selection.
func (self *Client) Send(ctx context.Context, message string) error {
	if nil == self.session {
		return utils.NewError(0, ErrNoSession, "no message server connected")
	}

	iv := algos.NewIV()
	ciphertext, _, err := algos.EncryptAESCBC(self.session.key[:], []byte(message), iv[:])
	if nil != err {
		return wrapError(err, "failed encrypting message")
	}

	resp, err := wire.Call(self.session.conn, wire.Request{
		SenderId: self.ident.Id,
		Version:  wire.Version,
		Code:     wire.CodeSendMessage,
		Payload:  wire.SendMessageReq{IV: iv, Ciphertext: ciphertext}.Pack(),
	}, maxPayload)
	if nil != err {
		self.Close()
		return wrapError(err, "failed message round trip")
	}
	if wire.CodeMessageAccepted != resp.Code {
		self.Close()
		return utils.NewError(0, ErrRejected, "message rejected with code %d", resp.Code)
	}
	return nil
}

// Close drops the established session, if any.
func (self *Client) Close() {
	if nil != self.session {
		self.session.conn.Close()
		self.session = nil
	}
}

// openKeyBlock decrypts the session key block under the password hash and
// verifies the nonce echo. A mismatch means corruption or a foreign issuer,
// ErrNonceMismatch aborts the handshake.
func (self *Client) openKeyBlock(block wire.EncryptedSessionKey, nonce [algos.NonceSize]byte) ([algos.KeySize]byte, error) {
	var key [algos.KeySize]byte

	echo, err := algos.DecryptAESCBC(self.passwordHash[:], block.EncNonce[:], block.IV[:])
	if nil != err {
		return key, wrapError(err, "failed opening nonce echo")
	}
	if !bytes.Equal(nonce[:], echo) {
		return key, utils.NewError(0, ErrNonceMismatch, "nonce echo differs from sent nonce")
	}

	rawKey, err := algos.DecryptAESCBC(self.passwordHash[:], block.EncSessionKey[:], block.IV[:])
	if nil != err {
		return key, wrapError(err, "failed opening session key")
	}
	if algos.KeySize != len(rawKey) {
		return key, newError("unexpected session key length %d != %d", len(rawKey), algos.KeySize)
	}
	copy(key[:], rawKey)
	return key, nil
}

// makeAuthenticator builds a fresh authenticator under sessionKey.
func (self *Client) makeAuthenticator(sessionKey [algos.KeySize]byte, serverId [wire.IdSize]byte) (wire.Authenticator, error) {
	au := wire.Authenticator{IV: algos.NewIV()}

	creation := wire.EncodeTimestamp(time.Now().UTC())
	fields := []struct {
		dst       []byte
		plaintext []byte
	}{
		{au.EncVersion[:], []byte{wire.Version}},
		{au.EncClientId[:], self.ident.Id[:]},
		{au.EncServerId[:], serverId[:]},
		{au.EncCreation[:], creation[:]},
	}
	for _, field := range fields {
		ciphertext, _, err := algos.EncryptAESCBC(sessionKey[:], field.plaintext, au.IV[:])
		if nil != err {
			return au, wrapError(err, "failed sealing authenticator field")
		}
		copy(field.dst, ciphertext)
	}
	return au, nil
}

// callAuth runs one request/response round trip against the auth server over
// a dedicated connection.
func (self *Client) callAuth(ctx context.Context, req wire.Request) (wire.Response, error) {
	var resp wire.Response

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", self.cfg.AuthAddr)
	if nil != err {
		return resp, wrapError(err, "failed dialing auth server %s", self.cfg.AuthAddr)
	}
	defer conn.Close()

	resp, err = wire.Call(conn, req, maxPayload)
	return resp, wrapError(err, "failed auth server round trip") // nil if err is nil
}

// senderId returns the registered id or zeroes before registration.
func (self *Client) senderId() [wire.IdSize]byte {
	if nil == self.ident {
		return [wire.IdSize]byte{}
	}
	return self.ident.Id
}
