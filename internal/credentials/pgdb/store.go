// Package pgdb persists the auth server registries in PostgreSQL.
package pgdb

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"code.kerpass.org/ticketauth/internal/credentials"
)

// PGDB is implemented by pgx.Tx, pgx.Conn & pgxpool.Pool
// accessing a postgres database through this common interface simplifies testing
type PGDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a credentials.Store implementation backed by PostgreSQL.
type Store struct {
	DB PGDB
}

//go:embed registry_schema.sql
var schemaScript string

// Migrate creates the registry tables if they do not exist.
func Migrate(ctx context.Context, db PGDB) error {
	_, err := db.Exec(ctx, schemaScript)
	return wrapError(err, "failed db schema initialization") // nil if err is nil...
}

// New returns a Store connected through a pgx pool.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if nil != err {
		return nil, wrapError(err, "failed connection pool creation")
	}

	return &Store{DB: pool}, nil
}

// clientRow mirrors the clients table, pgx scans bytea columns into []byte.
type clientRow struct {
	Id           []byte
	Name         string
	PasswordHash []byte
	LastSeen     time.Time
}

// serverRow mirrors the msgservers table.
type serverRow struct {
	Id   []byte
	Name string
	Key  []byte
	Ip   string
	Port int32
}

// LoadClients returns every stored client.
func (self *Store) LoadClients(ctx context.Context) ([]credentials.Client, error) {
	rows, err := self.DB.Query(
		ctx,
		// columns are renamed to match the clientRow struct
		`SELECT
		   id as "Id",
		   name as "Name",
		   password_hash as "PasswordHash",
		   last_seen as "LastSeen"
		 FROM
		   clients
		 ORDER BY name
		`,
	)
	if nil != err {
		return nil, wrapError(err, "failed DB.Query")
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[clientRow])
	if nil != err {
		return nil, wrapError(err, "failed pgx.CollectRows")
	}

	clients := make([]credentials.Client, 0, len(records))
	for _, rec := range records {
		cli := credentials.Client{Name: rec.Name, LastSeen: rec.LastSeen.UTC()}
		copy(cli.Id[:], rec.Id)
		copy(cli.PasswordHash[:], rec.PasswordHash)
		err = cli.Check()
		if nil != err {
			return nil, wrapError(err, "corrupted client row")
		}
		clients = append(clients, cli)
	}
	return clients, nil
}

// AppendClient stores one client. A name or id conflict maps to ErrDuplicateName.
func (self *Store) AppendClient(ctx context.Context, client credentials.Client) error {
	err := client.Check()
	if nil != err {
		return wrapError(err, "invalid client")
	}
	_, err = self.DB.Exec(
		ctx,
		`INSERT INTO clients(id, name, password_hash, last_seen) VALUES ($1, $2, $3, $4)`,
		client.Id[:],
		client.Name,
		client.PasswordHash[:],
		client.LastSeen.UTC(),
	)
	if isUniqueViolation(err) {
		return wrapError(credentials.ErrDuplicateName, "client already stored")
	}

	return wrapError(err, "failed saving client") // nil if err is nil...
}

// LoadServers returns every stored message server.
func (self *Store) LoadServers(ctx context.Context) ([]credentials.MessageServer, error) {
	rows, err := self.DB.Query(
		ctx,
		`SELECT
		   id as "Id",
		   name as "Name",
		   key as "Key",
		   ip as "Ip",
		   port as "Port"
		 FROM
		   msgservers
		 ORDER BY name
		`,
	)
	if nil != err {
		return nil, wrapError(err, "failed DB.Query")
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[serverRow])
	if nil != err {
		return nil, wrapError(err, "failed pgx.CollectRows")
	}

	servers := make([]credentials.MessageServer, 0, len(records))
	for _, rec := range records {
		srv := credentials.MessageServer{Name: rec.Name, Ip: rec.Ip, Port: uint16(rec.Port)}
		copy(srv.Id[:], rec.Id)
		copy(srv.Key[:], rec.Key)
		err = srv.Check()
		if nil != err {
			return nil, wrapError(err, "corrupted server row")
		}
		servers = append(servers, srv)
	}
	return servers, nil
}

// AppendServer stores one message server. A name or id conflict maps to ErrDuplicateName.
func (self *Store) AppendServer(ctx context.Context, server credentials.MessageServer) error {
	err := server.Check()
	if nil != err {
		return wrapError(err, "invalid server")
	}
	_, err = self.DB.Exec(
		ctx,
		`INSERT INTO msgservers(id, name, key, ip, port) VALUES ($1, $2, $3, $4, $5)`,
		server.Id[:],
		server.Name,
		server.Key[:],
		server.Ip,
		int32(server.Port),
	)
	if isUniqueViolation(err) {
		return wrapError(credentials.ErrDuplicateName, "server already stored")
	}

	return wrapError(err, "failed saving server") // nil if err is nil...
}

var _ credentials.Store = &Store{}

// isUniqueViolation matches the postgres unique_violation error class.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && "23505" == pgErr.Code
}
