package trackstore

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Config selects and configures a store backend.
type Config struct {
	Type       string // file, sqlite or postgres
	Dir        string
	SQLitePath string
	Postgres   PostgresConfig
}

// New creates a store backend based on configuration.
func New(cfg Config, log zerolog.Logger) (Store, error) {
	switch cfg.Type {
	case "file", "":
		return NewFileStore(cfg.Dir)
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath, log)
	case "postgres":
		return OpenPostgres(cfg.Postgres, log)
	default:
		return nil, fmt.Errorf("unknown track store type: %s", cfg.Type)
	}
}
