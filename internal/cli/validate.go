package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aqasim81/changelog-migrate/internal/engine"
	"github.com/aqasim81/changelog-migrate/internal/logging"
)

var validateCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "validate",
	Short: "Check the changelog against the database history",
	Long: `Report changesets edited after they were applied, applied changesets
missing from the changelog and, on PostgreSQL, raw SQL the server would
reject. Nothing is changed. Exits with code 2 when a problem is found.`,
	RunE: runValidate,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rootCmd.AddCommand(validateCmd)
}

type conflictView struct {
	ID       string `json:"id"`
	Author   string `json:"author"`
	Recorded string `json:"recorded_checksum"`
	Current  string `json:"current_checksum"`
	Applied  bool   `json:"applied"`
}

type sqlIssueView struct {
	ID       string `json:"id"`
	Author   string `json:"author"`
	Rollback bool   `json:"rollback"`
	Message  string `json:"message"`
}

type validationView struct {
	OK        bool           `json:"ok"`
	Conflicts []conflictView `json:"conflicts"`
	Unknown   []entryView    `json:"unknown"`
	SQL       []sqlIssueView `json:"sql"`
}

func runValidate(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	cl, err := loadChangelog(AppConfig)
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, s *session) error {
		v, err := s.engine.Validate(ctx, cl)
		if err != nil {
			return err
		}

		logging.FromContext(ctx).DebugContext(ctx, "validated changelog",
			"changesets", len(cl.ChangeSets), "conflicts", len(v.Conflicts),
			"unknown", len(v.Unknown), "sql_issues", len(v.SQL))

		if AppConfig.Format == formatJSON {
			if err := writeJSON(out, newValidationView(v)); err != nil {
				return err
			}
		} else {
			printValidation(cmd, v)
		}

		if !v.OK() {
			return errDrift
		}

		return nil
	})
}

func newValidationView(v *engine.Validation) validationView {
	view := validationView{
		OK:        v.OK(),
		Conflicts: make([]conflictView, len(v.Conflicts)),
		Unknown:   entryViews(v.Unknown),
		SQL:       make([]sqlIssueView, len(v.SQL)),
	}

	for i, c := range v.Conflicts {
		view.Conflicts[i] = conflictView{ID: c.Key.ID, Author: c.Key.Author, Recorded: c.Recorded, Current: c.Current, Applied: c.Applied}
	}

	for i, issue := range v.SQL {
		view.SQL[i] = sqlIssueView{ID: issue.Key.ID, Author: issue.Key.Author, Rollback: issue.Rollback, Message: issue.Message}
	}

	return view
}

func printValidation(cmd *cobra.Command, v *engine.Validation) {
	out := cmd.OutOrStdout()

	if v.OK() {
		fmt.Fprintln(out, "Changelog is valid.")
		return
	}

	for _, c := range v.Conflicts {
		fmt.Fprintf(out, "  [CHECKSUM] %s was changed after it ran (recorded %s, now %s)\n", c.Key, c.Recorded, c.Current)
	}

	for _, e := range v.Unknown {
		fmt.Fprintf(out, "  [UNKNOWN]  %s is applied but no longer in the changelog\n", e.Key())
	}

	for _, issue := range v.SQL {
		where := "changes"
		if issue.Rollback {
			where = "rollback"
		}

		fmt.Fprintf(out, "  [SQL]      %s %s: %s\n", issue.Key, where, issue.Message)
	}

	fmt.Fprintf(out, "Found %d problem(s).\n", len(v.Conflicts)+len(v.Unknown)+len(v.SQL))
}
