package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aqasim81/changelog-migrate/internal/engine"
	"github.com/aqasim81/changelog-migrate/internal/executor"
	"github.com/aqasim81/changelog-migrate/internal/migration"
	"github.com/aqasim81/changelog-migrate/internal/planner"
)

var rollbackCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "rollback [count]",
	Short: "Roll back the most recently applied changesets",
	Long: `Roll back the given number of applied changesets (default 1), newest
first, using the rollback section of each changeset. Nothing runs if any of
them has no rollback.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRollback,
}

var rollbackToTagCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "rollback-to-tag <tag>",
	Short: "Roll back every changeset applied after a tag",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollbackToTag,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rollbackCmd.Flags().Bool("dry-run", false, "show the SQL that would run without executing it")
	rollbackToTagCmd.Flags().Bool("dry-run", false, "show the SQL that would run without executing it")
	rootCmd.AddCommand(rollbackCmd, rollbackToTagCmd)
}

func runRollback(cmd *cobra.Command, args []string) error {
	count := 1

	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: %q", planner.ErrInvalidCount, args[0])
		}

		count = n
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")

	return runChangelog(cmd, dryRun, func(ctx context.Context, eng *engine.Engine, cl *migration.Changelog) (*executor.Report, error) {
		return eng.Rollback(ctx, count, cl, engine.DryRun(dryRun))
	})
}

func runRollbackToTag(cmd *cobra.Command, args []string) error {
	tag := args[0]
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	return runChangelog(cmd, dryRun, func(ctx context.Context, eng *engine.Engine, cl *migration.Changelog) (*executor.Report, error) {
		return eng.RollbackToTag(ctx, tag, cl, engine.DryRun(dryRun))
	})
}
