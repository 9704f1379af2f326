// Package authserver implements the credential issuer: the party every client
// and message server is registered with, and the only party that knows both
// the client password hashes and the message server long-term keys.
package authserver

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"code.kerpass.org/ticketauth/internal/algos"
	"code.kerpass.org/ticketauth/internal/credentials"
	"code.kerpass.org/ticketauth/internal/utils"
	"code.kerpass.org/ticketauth/internal/wire"
)

const (
	// TicketLifetime bounds the validity of issued tickets.
	TicketLifetime = 5 * time.Minute
)

// Service holds the identity registries and issues session keys & tickets.
// Registries are loaded from the Store at construction, mutations append to
// the Store before entering the in-memory registries.
type Service struct {
	store   credentials.Store
	clients *utils.Registry[[credentials.IdSize]byte, credentials.Client]
	servers *utils.Registry[[credentials.IdSize]byte, credentials.MessageServer]

	// regMut serializes registrations, the duplicate-name scan and the
	// subsequent insert have to be one atomic step.
	regMut sync.Mutex

	ticketLifetime time.Duration
	now            func() time.Time
}

// NewService loads the registries held by store and returns a ready Service.
func NewService(ctx context.Context, store credentials.Store) (*Service, error) {
	svc := &Service{
		store:          store,
		clients:        utils.NewRegistry[[credentials.IdSize]byte, credentials.Client](),
		servers:        utils.NewRegistry[[credentials.IdSize]byte, credentials.MessageServer](),
		ticketLifetime: TicketLifetime,
		now:            time.Now,
	}

	clients, err := store.LoadClients(ctx)
	if nil != err {
		return nil, wrapError(err, "failed loading clients")
	}
	for _, cli := range clients {
		err = utils.RegistrySet(svc.clients, cli.Id, cli)
		if nil != err {
			return nil, wrapError(err, "duplicate client id in store")
		}
	}

	servers, err := store.LoadServers(ctx)
	if nil != err {
		return nil, wrapError(err, "failed loading servers")
	}
	for _, srv := range servers {
		err = utils.RegistrySet(svc.servers, srv.Id, srv)
		if nil != err {
			return nil, wrapError(err, "duplicate server id in store")
		}
	}

	return svc, nil
}

// RegisterClient registers a new client identity and returns its assigned id.
// A name already in use surfaces as credentials.ErrDuplicateName.
func (self *Service) RegisterClient(ctx context.Context, req wire.RegisterClientReq) ([credentials.IdSize]byte, error) {
	var id [credentials.IdSize]byte

	err := req.Check()
	if nil != err {
		return id, wrapError(err, "invalid registration request")
	}

	self.regMut.Lock()
	defer self.regMut.Unlock()

	_, taken := utils.RegistryFind(self.clients, func(cli credentials.Client) bool {
		return req.Name == cli.Name
	})
	if taken {
		return id, utils.WrapError(credentials.ErrDuplicateName, 0, Error, "client name %q already registered", req.Name)
	}

	cli := credentials.Client{
		Id:           uuid.New(),
		Name:         req.Name,
		PasswordHash: algos.HashPassword(req.Password),
		LastSeen:     self.now().UTC().Truncate(time.Second),
	}
	err = self.store.AppendClient(ctx, cli)
	if nil != err {
		return id, wrapError(err, "failed persisting client")
	}
	err = utils.RegistrySet(self.clients, cli.Id, cli)
	if nil != err {
		return id, wrapError(err, "failed registering client")
	}

	return cli.Id, nil
}

// RegisterServer registers a new message server identity and returns its
// assigned id. peerIp is the observed address of the registering connection,
// a claimed IP inside the payload would be spoofable.
func (self *Service) RegisterServer(ctx context.Context, req wire.RegisterServerReq, peerIp string) ([credentials.IdSize]byte, error) {
	var id [credentials.IdSize]byte

	err := req.Check()
	if nil != err {
		return id, wrapError(err, "invalid server registration request")
	}

	self.regMut.Lock()
	defer self.regMut.Unlock()

	_, taken := utils.RegistryFind(self.servers, func(srv credentials.MessageServer) bool {
		return req.Name == srv.Name
	})
	if taken {
		return id, utils.WrapError(credentials.ErrDuplicateName, 0, Error, "server name %q already registered", req.Name)
	}

	srv := credentials.MessageServer{
		Id:   uuid.New(),
		Name: req.Name,
		Key:  req.Key,
		Ip:   peerIp,
		Port: uint16(req.Port),
	}
	err = srv.Check()
	if nil != err {
		return id, wrapError(err, "invalid server identity")
	}
	err = self.store.AppendServer(ctx, srv)
	if nil != err {
		return id, wrapError(err, "failed persisting server")
	}
	err = utils.RegistrySet(self.servers, srv.Id, srv)
	if nil != err {
		return id, wrapError(err, "failed registering server")
	}

	return srv.Id, nil
}

// ListServers returns the registered message servers sorted by name.
// An empty listing is valid, it means no message server registered yet.
func (self *Service) ListServers() wire.ServerListResp {
	var resp wire.ServerListResp
	for _, srv := range utils.RegistryEntries(self.servers) {
		resp.Servers = append(resp.Servers, wire.ServerEntry{
			Id:   srv.Id,
			Name: srv.Name,
			Ip:   srv.Ip,
			Port: srv.Port,
		})
	}
	sort.Slice(resp.Servers, func(i, j int) bool {
		return resp.Servers[i].Name < resp.Servers[j].Name
	})
	return resp
}

// IssueSessionKey generates a fresh session key for clientId and the message
// server named by req, and returns it twice encrypted: once under the client
// password hash (key block) and once under the server long-term key (ticket).
// The ticket also carries the encrypted expiration, self.ticketLifetime ahead.
func (self *Service) IssueSessionKey(ctx context.Context, clientId [credentials.IdSize]byte, req wire.SessionKeyReq) (wire.SessionKeyResp, error) {
	var resp wire.SessionKeyResp

	cli, found := utils.RegistryGet(self.clients, clientId)
	if !found {
		return resp, utils.WrapError(credentials.ErrNotFound, 0, ErrUnknownClient, "no client with id %s", utils.HexBinary(clientId[:]))
	}
	srv, found := utils.RegistryGet(self.servers, req.ServerId)
	if !found {
		return resp, utils.WrapError(credentials.ErrNotFound, 0, ErrUnknownServer, "no server with id %s", utils.HexBinary(req.ServerId[:]))
	}

	now := self.now().UTC().Truncate(time.Second)
	expiration := wire.EncodeTimestamp(now.Add(self.ticketLifetime))
	sessionKey := algos.NewSymmetricKey()

	// key block, readable by the client only
	keyblock := wire.EncryptedSessionKey{IV: algos.NewIV()}
	err := sealInto(keyblock.EncNonce[:], cli.PasswordHash[:], req.Nonce[:], keyblock.IV[:])
	if nil != err {
		return resp, wrapError(err, "failed sealing nonce echo")
	}
	err = sealInto(keyblock.EncSessionKey[:], cli.PasswordHash[:], sessionKey[:], keyblock.IV[:])
	if nil != err {
		return resp, wrapError(err, "failed sealing session key for client")
	}

	// ticket, readable by the target message server only
	ticket := wire.Ticket{
		Version:  wire.Version,
		ClientId: cli.Id,
		ServerId: srv.Id,
		Creation: now,
		IV:       algos.NewIV(),
	}
	err = sealInto(ticket.EncSessionKey[:], srv.Key[:], sessionKey[:], ticket.IV[:])
	if nil != err {
		return resp, wrapError(err, "failed sealing session key for server")
	}
	err = sealInto(ticket.EncExpiration[:], srv.Key[:], expiration[:], ticket.IV[:])
	if nil != err {
		return resp, wrapError(err, "failed sealing expiration")
	}

	// activity stamp, kept in the live registry
	cli.LastSeen = now
	utils.RegistryPut(self.clients, cli.Id, cli)

	resp.ClientId = cli.Id
	resp.KeyBlock = keyblock
	resp.Ticket = ticket
	return resp, nil
}

// sealInto encrypts plaintext under key with iv and copies the result into
// dst, whose length must match the padded ciphertext exactly.
func sealInto(dst, key, plaintext, iv []byte) error {
	ciphertext, _, err := algos.EncryptAESCBC(key, plaintext, iv)
	if nil != err {
		return err
	}
	if len(dst) != len(ciphertext) {
		return newError("sealed field length %d != %d", len(ciphertext), len(dst))
	}
	copy(dst, ciphertext)
	return nil
}
