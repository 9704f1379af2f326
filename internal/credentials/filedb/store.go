// Package filedb persists the auth server registries in append-only flat text
// files, one identity per line.
package filedb

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"

	"code.kerpass.org/ticketauth/internal/credentials"
)

// Store keeps clients & message servers in two text files. Mutations append a
// line, existing lines are never rewritten.
type Store struct {
	ClientsPath string
	ServersPath string
}

// New returns a Store using the two provided file paths.
// Missing files are not an error, they stand for empty registries.
func New(clientsPath, serversPath string) Store {
	return Store{ClientsPath: clientsPath, ServersPath: serversPath}
}

// LoadClients reads every client line. A malformed line aborts the load,
// a server shall not start on a corrupted registry.
func (self Store) LoadClients(ctx context.Context) ([]credentials.Client, error) {
	lines, err := readLines(self.ClientsPath)
	if nil != err {
		return nil, wrapError(err, "failed reading %s", self.ClientsPath)
	}

	clients := make([]credentials.Client, 0, len(lines))
	for pos, line := range lines {
		cli, err := credentials.ParseClientLine(line)
		if nil != err {
			return nil, wrapError(err, "invalid client line %d", pos)
		}
		clients = append(clients, cli)
	}
	return clients, nil
}

// AppendClient appends one client line.
func (self Store) AppendClient(ctx context.Context, client credentials.Client) error {
	err := client.Check()
	if nil != err {
		return wrapError(err, "invalid client")
	}
	return appendLine(self.ClientsPath, client.Line())
}

// LoadServers reads every message server line.
func (self Store) LoadServers(ctx context.Context) ([]credentials.MessageServer, error) {
	lines, err := readLines(self.ServersPath)
	if nil != err {
		return nil, wrapError(err, "failed reading %s", self.ServersPath)
	}

	servers := make([]credentials.MessageServer, 0, len(lines))
	for pos, line := range lines {
		srv, err := credentials.ParseServerLine(line)
		if nil != err {
			return nil, wrapError(err, "invalid server line %d", pos)
		}
		servers = append(servers, srv)
	}
	return servers, nil
}

// AppendServer appends one message server line.
func (self Store) AppendServer(ctx context.Context, server credentials.MessageServer) error {
	err := server.Check()
	if nil != err {
		return wrapError(err, "invalid server")
	}
	return appendLine(self.ServersPath, server.Line())
}

var _ credentials.Store = Store{}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if nil != err {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if "" != line {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if nil != err {
		return wrapError(err, "failed opening %s", path)
	}
	defer f.Close()

	_, err = f.WriteString(line + "\n")
	return wrapError(err, "failed appending to %s", path) // nil if err is nil
}
