package msgserver

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"code.kerpass.org/ticketauth/internal/algos"
	"code.kerpass.org/ticketauth/internal/utils"
	"code.kerpass.org/ticketauth/internal/wire"
)

// Config is the message server identity file.
//
// Line format: listen "ip:port", then name, then auth server "ip:port", then
// optionally the long-term key hex and the assigned id hex. The two optional
// lines appear once the server has registered itself, see Bootstrap.
type Config struct {
	Path string

	Listen   string
	Name     string
	AuthAddr string

	Key    [algos.KeySize]byte
	HasKey bool

	Id    [wire.IdSize]byte
	HasId bool
}

// LoadConfig parses the identity file at path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{Path: path}

	data, err := os.ReadFile(path)
	if nil != err {
		return cfg, wrapError(err, "failed reading identity file %s", path)
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if "" != line {
			lines = append(lines, line)
		}
	}
	if len(lines) < 3 {
		return cfg, newError("identity file %s has %d lines, expected at least 3", path, len(lines))
	}

	cfg.Listen = lines[0]
	cfg.Name = lines[1]
	cfg.AuthAddr = lines[2]
	if len(lines) > 3 {
		err = decodeHexLine(lines[3], cfg.Key[:], "key")
		if nil != err {
			return cfg, err
		}
		cfg.HasKey = true
	}
	if len(lines) > 4 {
		err = decodeHexLine(lines[4], cfg.Id[:], "id")
		if nil != err {
			return cfg, err
		}
		cfg.HasId = true
	}

	return cfg, cfg.Check()
}

// Check validates the Config fields.
func (self Config) Check() error {
	if _, err := self.Port(); nil != err {
		return err
	}
	if "" == self.Name || strings.ContainsAny(self.Name, ":\n\x00") {
		return newError("invalid name %q", self.Name)
	}
	if _, _, err := net.SplitHostPort(self.AuthAddr); nil != err {
		return wrapError(err, "invalid auth server address %q", self.AuthAddr)
	}
	if self.HasId && !self.HasKey {
		return newError("identity file carries an id without a key")
	}
	return nil
}

// Port returns the port of the Listen address, the one claimed at registration.
func (self Config) Port() (uint16, error) {
	_, portstr, err := net.SplitHostPort(self.Listen)
	if nil != err {
		return 0, wrapError(err, "invalid listen address %q", self.Listen)
	}
	port, err := strconv.ParseUint(portstr, 10, 16)
	if nil != err || 0 == port {
		return 0, newError("invalid listen port %q", portstr)
	}
	return uint16(port), nil
}

// Save rewrites the identity file, key & id lines included when present.
func (self Config) Save() error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n%s\n%s\n", self.Listen, self.Name, self.AuthAddr)
	if self.HasKey {
		fmt.Fprintf(&sb, "%s\n", utils.HexBinary(self.Key[:]))
	}
	if self.HasId {
		fmt.Fprintf(&sb, "%s\n", utils.HexBinary(self.Id[:]))
	}

	err := os.WriteFile(self.Path, []byte(sb.String()), 0600)
	return wrapError(err, "failed writing identity file %s", self.Path) // nil if err is nil
}

// Bootstrap registers the server with the auth server when the identity file
// carries no id yet, generating the long-term key if needed and persisting
// both. An already registered server is a no-op.
func Bootstrap(ctx context.Context, cfg *Config) error {
	if cfg.HasId {
		return nil
	}
	if !cfg.HasKey {
		cfg.Key = algos.NewSymmetricKey()
		cfg.HasKey = true
	}
	port, err := cfg.Port()
	if nil != err {
		return err
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", cfg.AuthAddr)
	if nil != err {
		return wrapError(err, "failed dialing auth server %s", cfg.AuthAddr)
	}
	defer conn.Close()

	req := wire.Request{
		Version: wire.Version,
		Code:    wire.CodeRegisterServer,
		Payload: wire.RegisterServerReq{Name: cfg.Name, Key: cfg.Key, Port: uint32(port)}.Pack(),
	}
	resp, err := wire.Call(conn, req, maxPayload)
	if nil != err {
		return wrapError(err, "failed registration round trip")
	}
	if wire.CodeRegisterServerOK != resp.Code {
		return newError("registration rejected with code %d", resp.Code)
	}
	payload, err := wire.DecodeResponsePayload(resp.Code, resp.Payload)
	if nil != err {
		return wrapError(err, "failed decoding registration response")
	}

	cfg.Id = payload.(wire.RegisterServerResp).ServerId
	cfg.HasId = true
	return cfg.Save()
}

func decodeHexLine(text string, dst []byte, what string) error {
	var hx utils.HexBinary
	err := hx.UnmarshalText([]byte(text))
	if nil != err {
		return wrapError(err, "invalid %s hex", what)
	}
	if len(dst) != len(hx) {
		return newError("invalid %s length %d != %d", what, len(hx), len(dst))
	}
	copy(dst, hx)
	return nil
}
