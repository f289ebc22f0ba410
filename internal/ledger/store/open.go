package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"credtrust/internal/ledger/models"
	"credtrust/internal/platform/config"
)

// Backend is the block store contract shared by every implementation.
type Backend interface {
	Load(ctx context.Context) ([]models.Block, error)
	Append(ctx context.Context, block models.Block) error
	Close() error
}

// Open returns the backend named by cfg. db is required for postgres and
// ignored otherwise; the postgres schema is migrated before returning.
func Open(ctx context.Context, cfg config.LedgerConfig, db *sql.DB) (Backend, error) {
	switch cfg.Backend {
	case config.LedgerBackendMemory:
		return NewInMemory(), nil
	case config.LedgerBackendFile:
		return NewFile(cfg.Path), nil
	case config.LedgerBackendSQLite:
		return OpenSQLite(ctx, cfg.Path)
	case config.LedgerBackendPostgres:
		if db == nil {
			return nil, errors.New("postgres ledger backend requires a database connection")
		}
		s := NewPostgres(db)
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}
