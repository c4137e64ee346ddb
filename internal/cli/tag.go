package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aqasim81/changelog-migrate/internal/ledger"
)

var tagCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "tag <name>",
	Short: "Tag the most recently applied changeset",
	Long: `Mark the current database state so that rollback-to-tag can return to
it later. Tagging again with another name moves the tag on the same row.`,
	Args: cobra.ExactArgs(1),
	RunE: runTag,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rootCmd.AddCommand(tagCmd)
}

func runTag(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	return withSession(cmd, func(ctx context.Context, s *session) error {
		e, err := s.engine.Tag(ctx, args[0])
		if err != nil {
			return err
		}

		if AppConfig.Format == formatJSON {
			return writeJSON(out, entryViews([]ledger.Entry{e})[0])
		}

		fmt.Fprintf(out, "Tagged %s (order %d) as %q.\n", e.Key(), e.OrderExecuted, e.Tag)

		return nil
	})
}
