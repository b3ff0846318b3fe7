package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/studyai-go/internal/config"
	"github.com/54b3r/studyai-go/internal/store"
)

// NewStatusCmd constructs the `studyai status` command, which prints the
// ingestion ledger for a session.
func NewStatusCmd() *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-file ingestion outcomes for a session",
		Long: `Show the ingestion ledger for a session: the latest outcome of every
file, its topic and record counts, and the reason for skipped, invalid or
empty files.

Examples:
  studyai status --session session-42`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if session == "" {
				return fmt.Errorf("status: --session is required")
			}

			path := config.FromEnv().LedgerDB
			if path == ledgerDisabled {
				return fmt.Errorf("status: ledger is disabled (STUDYAI_LEDGER_DB=disabled)")
			}
			if path == "" {
				p, err := store.DefaultDBPath()
				if err != nil {
					return fmt.Errorf("status: %w", err)
				}
				path = p
			}

			ledger, err := store.Open(path)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			defer func() { _ = ledger.Close() }()

			rows, err := ledger.List(cmd.Context(), session)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			if len(rows) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no files recorded for session %q\n", session)
				return nil
			}
			return printLedger(cmd, rows)
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "", "Session id")

	return cmd
}

// printLedger renders ledger rows as an aligned table.
func printLedger(cmd *cobra.Command, rows []store.FileRecord) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tOUTCOME\tTOPICS\tRECORDS\tUPDATED\tREASON")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			r.Source, r.Outcome, r.Topics, r.Records, r.UpdatedAt.Local().Format(time.DateTime), r.Reason)
	}
	return tw.Flush()
}
