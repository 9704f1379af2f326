// Package credentials defines the identities registered at the auth server and
// the Store abstraction that persists them. Registries are loaded once at
// startup and appended to on mutation, existing entries are never rewritten.
package credentials

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"code.kerpass.org/ticketauth/internal/algos"
	"code.kerpass.org/ticketauth/internal/utils"
)

const (
	// IdSize is the size of client & message server identifiers.
	IdSize = 16

	// NameSize bounds client & message server names.
	NameSize = 255
)

// Client is a registered user as known by the auth server.
// Not to be confused with the client program driving the handshake.
type Client struct {
	Id           [IdSize]byte
	Name         string
	PasswordHash [algos.HashSize]byte
	LastSeen     time.Time
}

// Check validates the Client fields.
func (self Client) Check() error {
	return checkIdentity(self.Id, self.Name)
}

// Line renders the persisted form: idHex:name:passwordHashHex:lastSeenUnixTs.
func (self Client) Line() string {
	return fmt.Sprintf(
		"%s:%s:%s:%d",
		utils.HexBinary(self.Id[:]), self.Name, utils.HexBinary(self.PasswordHash[:]), self.LastSeen.Unix(),
	)
}

// ParseClientLine is the inverse of Client.Line.
func ParseClientLine(line string) (Client, error) {
	var cli Client
	parts := strings.Split(line, ":")
	if 4 != len(parts) {
		return cli, wrapError(ErrValidation, "invalid client line, %d fields != 4", len(parts))
	}
	err := decodeHexField(parts[0], cli.Id[:], "client id")
	if nil != err {
		return cli, err
	}
	cli.Name = parts[1]
	err = decodeHexField(parts[2], cli.PasswordHash[:], "password hash")
	if nil != err {
		return cli, err
	}
	ts, err := strconv.ParseInt(parts[3], 10, 64)
	if nil != err {
		return cli, wrapError(ErrValidation, "invalid last seen timestamp %q", parts[3])
	}
	cli.LastSeen = time.Unix(ts, 0).UTC()
	return cli, cli.Check()
}

// MessageServer is a registered message server as known by the auth server.
// Key is the long-term secret shared exclusively by the auth server and this
// message server, the trust anchor of ticket validation.
type MessageServer struct {
	Id   [IdSize]byte
	Name string
	Key  [algos.KeySize]byte
	Ip   string
	Port uint16
}

// Check validates the MessageServer fields.
func (self MessageServer) Check() error {
	err := checkIdentity(self.Id, self.Name)
	if nil != err {
		return err
	}
	if "" == self.Ip || strings.ContainsAny(self.Ip, ":\n") {
		return wrapError(ErrValidation, "invalid ip %q", self.Ip)
	}
	if 0 == self.Port {
		return wrapError(ErrValidation, "invalid port 0")
	}
	return nil
}

// Line renders the persisted form: idHex:name:keyHex:ip:port.
func (self MessageServer) Line() string {
	return fmt.Sprintf(
		"%s:%s:%s:%s:%d",
		utils.HexBinary(self.Id[:]), self.Name, utils.HexBinary(self.Key[:]), self.Ip, self.Port,
	)
}

// ParseServerLine is the inverse of MessageServer.Line.
func ParseServerLine(line string) (MessageServer, error) {
	var srv MessageServer
	parts := strings.Split(line, ":")
	if 5 != len(parts) {
		return srv, wrapError(ErrValidation, "invalid server line, %d fields != 5", len(parts))
	}
	err := decodeHexField(parts[0], srv.Id[:], "server id")
	if nil != err {
		return srv, err
	}
	srv.Name = parts[1]
	err = decodeHexField(parts[2], srv.Key[:], "server key")
	if nil != err {
		return srv, err
	}
	srv.Ip = parts[3]
	port, err := strconv.ParseUint(parts[4], 10, 16)
	if nil != err {
		return srv, wrapError(ErrValidation, "invalid port %q", parts[4])
	}
	srv.Port = uint16(port)
	return srv, srv.Check()
}

// Store persists the auth server registries.
//
// Implementations: filedb (append-only flat text files), boltdb (single file
// database), pgdb (PostgreSQL).
type Store interface {
	LoadClients(ctx context.Context) ([]Client, error)
	AppendClient(ctx context.Context, client Client) error
	LoadServers(ctx context.Context) ([]MessageServer, error)
	AppendServer(ctx context.Context, server MessageServer) error
}

func checkIdentity(id [IdSize]byte, name string) error {
	var zero [IdSize]byte
	if zero == id {
		return wrapError(ErrValidation, "zero id")
	}
	if "" == name || len(name) > NameSize {
		return wrapError(ErrValidation, "name length %d out of range [1, %d]", len(name), NameSize)
	}
	if strings.ContainsAny(name, ":\n\x00") {
		return wrapError(ErrValidation, "name contains a forbidden character")
	}
	return nil
}

func decodeHexField(text string, dst []byte, what string) error {
	var hx utils.HexBinary
	err := hx.UnmarshalText([]byte(text))
	if nil != err {
		return wrapError(ErrValidation, "invalid %s hex", what)
	}
	if len(dst) != len(hx) {
		return wrapError(ErrValidation, "invalid %s length %d != %d", what, len(hx), len(dst))
	}
	copy(dst, hx)
	return nil
}
