// Package commands implements the ledgerctl operator CLI.
package commands

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"credtrust/internal/ledger"
	ledgerstore "credtrust/internal/ledger/store"
	"credtrust/internal/platform/config"
	"credtrust/internal/platform/database"
	"credtrust/internal/platform/logger"
)

// NewRootCommand builds the ledgerctl command tree.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Inspect and maintain the credential ledger",
		Long: `Inspect and maintain the credential ledger

Reads the same ledger the server writes. The backend defaults to the
LEDGER_BACKEND / LEDGER_PATH / DATABASE_URL environment variables and can be
overridden with flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("backend", "", "ledger backend: memory, file, sqlite or postgres")
	cmd.PersistentFlags().String("path", "", "ledger file or SQLite database path")
	cmd.PersistentFlags().String("dsn", "", "PostgreSQL DSN for the postgres backend")
	cmd.PersistentFlags().String("log-level", "warn", "log level")

	cmd.AddCommand(
		NewVerifyCommand(),
		NewStatsCommand(),
		NewShowCommand(),
		NewHistoryCommand(),
		NewMigrateCommand(),
		NewTokenCommand(),
		NewKeygenCommand(),
		NewSignCommand(),
	)
	return cmd
}

// ledgerConfig resolves the backend from env defaults and flags.
func ledgerConfig(cmd *cobra.Command) (config.LedgerConfig, config.PostgresConfig) {
	flags := cmd.Root().PersistentFlags()
	lc := config.LedgerConfig{
		Backend: envOr("LEDGER_BACKEND", config.LedgerBackendFile),
		Path:    envOr("LEDGER_PATH", "data/ledger.json"),
	}
	pc := config.PostgresConfig{
		DSN:          envOr("DATABASE_URL", ""),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}
	if v, _ := flags.GetString("backend"); v != "" {
		lc.Backend = v
	}
	if v, _ := flags.GetString("path"); v != "" {
		lc.Path = v
	}
	if v, _ := flags.GetString("dsn"); v != "" {
		pc.DSN = v
	}
	return lc, pc
}

func cmdLogger(cmd *cobra.Command) *slog.Logger {
	level, _ := cmd.Root().PersistentFlags().GetString("log-level")
	return logger.NewWithWriter(cmd.ErrOrStderr(), level)
}

// openLedger opens and initializes the configured ledger. The returned close
// function shuts the ledger down and releases the database pool.
func openLedger(ctx context.Context, cmd *cobra.Command) (*ledger.Ledger, func(), error) {
	lc, pc := ledgerConfig(cmd)

	var db *sql.DB
	if lc.Backend == config.LedgerBackendPostgres {
		if pc.DSN == "" {
			return nil, nil, fmt.Errorf("postgres backend requires --dsn or DATABASE_URL")
		}
		var err error
		if db, err = database.Open(ctx, pc); err != nil {
			return nil, nil, err
		}
	}

	store, err := ledgerstore.Open(ctx, lc, db)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, nil, err
	}
	l := ledger.New(store, ledger.WithLogger(cmdLogger(cmd)))
	if err := l.Initialize(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return l, func() { _ = l.Shutdown(context.Background()) }, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
