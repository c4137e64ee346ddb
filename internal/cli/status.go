package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/aqasim81/changelog-migrate/internal/migration"
)

var statusCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "status",
	Short: "Show applied and pending changesets",
	Long: `List the changesets currently applied to the database and, when the
changelog file exists, the changesets an update would apply.`,
	RunE: runStatus,
}

var historyCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "history",
	Short: "Show every recorded execution and rollback",
	RunE:  runHistory,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rootCmd.AddCommand(statusCmd, historyCmd)
}

type statusView struct {
	Applied []entryView     `json:"applied"`
	Pending []changeSetView `json:"pending,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg := AppConfig
	out := cmd.OutOrStdout()

	cl, err := loadChangelog(cfg)
	if errors.Is(err, fs.ErrNotExist) {
		cl, err = nil, nil
	}

	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, s *session) error {
		applied, err := s.engine.Status(ctx)
		if err != nil {
			return err
		}

		var pending []*migration.ChangeSet

		if cl != nil {
			if pending, err = s.engine.Pending(ctx, cl); err != nil {
				return err
			}
		}

		if cfg.Format == formatJSON {
			return writeJSON(out, statusView{Applied: entryViews(applied), Pending: changeSetViews(pending)})
		}

		fmt.Fprintf(out, "%d changeset(s) applied.\n", len(applied))

		if len(applied) > 0 {
			if err := printEntries(out, applied, false); err != nil {
				return err
			}
		}

		if cl == nil {
			fmt.Fprintf(out, "\nChangelog %s not found; pending changesets unknown.\n", cfg.ChangelogFile)
			return nil
		}

		fmt.Fprintf(out, "\n%d changeset(s) pending.\n", len(pending))

		if len(pending) == 0 {
			return nil
		}

		return printPending(out, pending)
	})
}

func runHistory(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	return withSession(cmd, func(ctx context.Context, s *session) error {
		entries, err := s.engine.History(ctx)
		if err != nil {
			return err
		}

		if AppConfig.Format == formatJSON {
			return writeJSON(out, entryViews(entries))
		}

		if len(entries) == 0 {
			fmt.Fprintln(out, "No history recorded.")
			return nil
		}

		return printEntries(out, entries, true)
	})
}
