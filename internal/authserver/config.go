package authserver

import (
	"context"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"code.kerpass.org/ticketauth/internal/credentials"
	"code.kerpass.org/ticketauth/internal/credentials/boltdb"
	"code.kerpass.org/ticketauth/internal/credentials/filedb"
	"code.kerpass.org/ticketauth/internal/credentials/pgdb"
)

const (
	defaultMaxPayload      = 1 << 20
	defaultReadTimeoutSecs = 30
)

// StoreConfig selects & parametrizes the credentials.Store backend.
type StoreConfig struct {
	// Backend is one of "file", "bolt", "postgres".
	Backend string `yaml:"backend"`

	// file backend
	ClientsPath string `yaml:"clients_path"`
	ServersPath string `yaml:"servers_path"`

	// bolt backend
	DBPath string `yaml:"db_path"`

	// postgres backend
	DSN string `yaml:"dsn"`
}

// Config is the auth server YAML configuration.
type Config struct {
	Listen          string      `yaml:"listen"`
	Store           StoreConfig `yaml:"store"`
	MaxPayload      uint32      `yaml:"max_payload"`
	ReadTimeoutSecs int         `yaml:"read_timeout_secs"`
}

// LoadConfig parses the YAML file at path and applies defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if nil != err {
		return cfg, wrapError(err, "failed reading config file %s", path)
	}
	err = yaml.Unmarshal(data, &cfg)
	if nil != err {
		return cfg, wrapError(err, "failed parsing config file %s", path)
	}
	cfg.applyDefaults()

	return cfg, cfg.Check()
}

func (self *Config) applyDefaults() {
	if 0 == self.MaxPayload {
		self.MaxPayload = defaultMaxPayload
	}
	if 0 == self.ReadTimeoutSecs {
		self.ReadTimeoutSecs = defaultReadTimeoutSecs
	}
	if "" == self.Store.Backend {
		self.Store.Backend = "file"
	}
	if "file" == self.Store.Backend {
		if "" == self.Store.ClientsPath {
			self.Store.ClientsPath = "clients.db"
		}
		if "" == self.Store.ServersPath {
			self.Store.ServersPath = "servers.db"
		}
	}
}

// Check validates the Config fields.
func (self Config) Check() error {
	if "" == self.Listen {
		return newError("missing listen address")
	}
	switch self.Store.Backend {
	case "file":
		// defaults make the file backend always usable
	case "bolt":
		if "" == self.Store.DBPath {
			return newError("bolt backend requires db_path")
		}
	case "postgres":
		if "" == self.Store.DSN {
			return newError("postgres backend requires dsn")
		}
	default:
		return newError("unknown store backend %q", self.Store.Backend)
	}
	return nil
}

// ReadTimeout returns the per-request read deadline.
func (self Config) ReadTimeout() time.Duration {
	return time.Duration(self.ReadTimeoutSecs) * time.Second
}

// NewStore instantiates the configured credentials.Store backend.
func (self Config) NewStore(ctx context.Context) (credentials.Store, error) {
	switch self.Store.Backend {
	case "file":
		return filedb.New(self.Store.ClientsPath, self.Store.ServersPath), nil
	case "bolt":
		store, err := boltdb.New(self.Store.DBPath)
		return store, wrapError(err, "failed bolt store creation") // nil if err is nil
	case "postgres":
		store, err := pgdb.New(ctx, self.Store.DSN)
		if nil != err {
			return nil, wrapError(err, "failed postgres store creation")
		}
		err = pgdb.Migrate(ctx, store.DB)
		if nil != err {
			return nil, wrapError(err, "failed postgres schema migration")
		}
		return store, nil
	default:
		return nil, newError("unknown store backend %q", self.Store.Backend)
	}
}
