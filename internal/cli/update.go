package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aqasim81/changelog-migrate/internal/engine"
	"github.com/aqasim81/changelog-migrate/internal/executor"
	"github.com/aqasim81/changelog-migrate/internal/migration"
)

var updateCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "update",
	Short: "Apply pending changesets",
	Long: `Apply every changeset of the changelog that is not yet recorded in the
database, in changelog order. Each changeset commits together with its
history row; a failure stops the run and keeps the changesets already applied.`,
	RunE: runUpdate,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	updateCmd.Flags().Bool("dry-run", false, "show the SQL that would run without executing it")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, _ []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	return runChangelog(cmd, dryRun, func(ctx context.Context, eng *engine.Engine, cl *migration.Changelog) (*executor.Report, error) {
		return eng.Update(ctx, cl, engine.DryRun(dryRun))
	})
}

type runFunc func(ctx context.Context, eng *engine.Engine, cl *migration.Changelog) (*executor.Report, error)

// runChangelog loads the changelog, runs fn and prints the report.
func runChangelog(cmd *cobra.Command, dryRun bool, fn runFunc) error {
	cfg := AppConfig
	out := cmd.OutOrStdout()
	text := cfg.Format != formatJSON

	cl, err := loadChangelog(cfg)
	if err != nil {
		return err
	}

	var opts []engine.Option
	if text {
		opts = append(opts, engine.WithProgressCallback(progressPrinter(out)))
	}

	return withSession(cmd, func(ctx context.Context, s *session) error {
		if dryRun && text {
			fmt.Fprintln(out, "--- DRY RUN (no changes will be made) ---")
		}

		report, runErr := fn(ctx, s.engine, cl)

		if !text && report != nil {
			return errors.Join(runErr, writeJSON(out, report))
		}

		if runErr == nil {
			printSummary(out, report)
		}

		return runErr
	}, opts...)
}
