package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"credtrust/internal/ledger"
	ledgerstore "credtrust/internal/ledger/store"
	"credtrust/internal/platform/config"
	"credtrust/internal/platform/database"
	"credtrust/pkg/platform/audit"
	"credtrust/pkg/platform/audit/publisher"
	auditpostgres "credtrust/pkg/platform/audit/store/postgres"
)

func NewMigrateCommand() *cobra.Command {
	var (
		toDSN string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy a file or SQLite ledger into PostgreSQL",
		Long: `Copy a file or SQLite ledger into PostgreSQL

The source chain is validated first and copied in one transaction. The target
ledger_blocks table must be empty. The copy is reloaded and validated before
the command reports success.`,
		Example: `  ledgerctl migrate --path data/ledger.json --to-dsn postgres://credtrust@localhost/credtrust`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if toDSN == "" {
				return fmt.Errorf("--to-dsn is required")
			}

			source, closeSource, err := openLedger(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeSource()

			report, err := source.Validate()
			if err != nil {
				return err
			}
			if !report.Valid && !force {
				return fmt.Errorf("source chain has %d violations (use --force to copy anyway): %w",
					len(report.Violations), report.Err())
			}
			blocks, err := source.Blocks()
			if err != nil {
				return err
			}

			db, err := database.Open(ctx, config.PostgresConfig{DSN: toDSN, MaxOpenConns: 4, MaxIdleConns: 2})
			if err != nil {
				return err
			}
			target := ledgerstore.NewPostgres(db)
			defer target.Close()

			if err := target.Migrate(ctx); err != nil {
				return err
			}
			if err := target.Import(ctx, blocks); err != nil {
				return err
			}

			copied := ledger.New(target, ledger.WithLogger(cmdLogger(cmd)))
			if err := copied.Initialize(ctx); err != nil {
				return err
			}
			if report.Valid && !copied.IsValid() {
				return fmt.Errorf("imported chain failed validation")
			}

			events := auditpostgres.New(db)
			if err := events.Migrate(ctx); err != nil {
				return err
			}
			lc, _ := ledgerConfig(cmd)
			if err := publisher.NewPublisher(events).Emit(ctx, audit.Event{
				Action:   string(audit.EventLedgerMigrated),
				Decision: "migrated",
				Reason:   fmt.Sprintf("%d blocks from %s:%s", len(blocks), lc.Backend, lc.Path),
			}); err != nil {
				cmdLogger(cmd).WarnContext(ctx, "failed to record migration audit event", "error", err)
			}

			fmt.Fprintf(out, "migrated %d blocks (head %s)\n", len(blocks), blocks[len(blocks)-1].Hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&toDSN, "to-dsn", "", "target PostgreSQL DSN")
	cmd.Flags().BoolVar(&force, "force", false, "copy a chain that fails validation")
	return cmd
}
