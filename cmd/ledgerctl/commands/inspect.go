package commands

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"credtrust/internal/ledger/models"
	"credtrust/pkg/platform/sentinel"
)

// ErrChainInvalid is returned by verify so the process exits non-zero.
var ErrChainInvalid = errors.New("ledger chain is invalid")

func NewVerifyCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Validate every block and link in the chain",
		Example: `  # Validate the default file ledger
  ledgerctl verify

  # Validate a SQLite ledger and print the report as JSON
  ledgerctl verify --backend sqlite --path data/ledger.db --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, closeLedger, err := openLedger(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer closeLedger()

			report, err := l.Validate()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else if report.Valid {
				fmt.Fprintf(out, "chain valid: %d blocks\n", report.ChainLength)
			} else {
				fmt.Fprintf(out, "chain INVALID: %d blocks, %d violations\n", report.ChainLength, len(report.Violations))
				for _, v := range report.Violations {
					fmt.Fprintf(out, "  block %d: %s\n", v.Index, v.Reason)
				}
			}
			if !report.Valid {
				return ErrChainInvalid
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the integrity report as JSON")
	return cmd
}

func NewStatsCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show block counts per verification type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, closeLedger, err := openLedger(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer closeLedger()

			stats, err := l.Stats()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, stats)
			}

			fmt.Fprintf(out, "total blocks:  %d\n", stats.TotalBlocks)
			fmt.Fprintf(out, "chain valid:   %t\n", stats.ChainValid)
			fmt.Fprintf(out, "head hash:     %s\n", stats.HeadHash)
			types := make([]string, 0, len(stats.ByVerificationType))
			for t := range stats.ByVerificationType {
				types = append(types, string(t))
			}
			sort.Strings(types)
			for _, t := range types {
				fmt.Fprintf(out, "  %-20s %d\n", t, stats.ByVerificationType[models.VerificationType(t)])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print stats as JSON")
	return cmd
}

func NewShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <credentialId>",
		Short: "Print the block that carries a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, closeLedger, err := openLedger(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer closeLedger()

			block, err := l.FindByCredentialID(args[0])
			if errors.Is(err, sentinel.ErrNotFound) {
				return fmt.Errorf("credential %q is not in the ledger", args[0])
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), block)
		},
	}
}

func NewHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history <subjectId>",
		Short: "List a subject's issuance blocks in chain order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, closeLedger, err := openLedger(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer closeLedger()

			blocks, err := l.BlocksForSubject(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(blocks) == 0 {
				fmt.Fprintf(out, "no credentials for %s\n", args[0])
				return nil
			}
			for _, b := range blocks {
				fmt.Fprintf(out, "%6d  %s  %-24s %-24s %s\n",
					b.Index,
					b.Payload.IssueDate.Format("2006-01-02"),
					b.Payload.CredentialID,
					b.Payload.Issuer,
					b.Payload.CourseName,
				)
			}
			return nil
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
