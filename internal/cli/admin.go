package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aqasim81/changelog-migrate/internal/engine"
)

var clearHistoryCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "clear-history",
	Short: "Delete every row of the history table",
	Long: `Delete the recorded history so that every changeset is pending again.
The database objects the changesets created are not touched. Requires --yes.`,
	RunE: runClearHistory,
}

var releaseLocksCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "release-locks",
	Short: "Force release the migration lock",
	Long: `Unlock the migration lock whoever holds it. Only use this when the
holder is known to be dead. Requires --yes.`,
	RunE: runReleaseLocks,
}

var listLocksCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "list-locks",
	Short: "Show who holds the migration lock",
	RunE:  runListLocks,
}

var acceptChecksumsCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "accept-checksums",
	Short: "Record the current checksum of edited changesets",
	Long: `Overwrite the recorded checksum of every applied changeset whose
content changed, so that update stops reporting the conflict. The edited
changesets are not re-run. Requires --yes.`,
	RunE: runAcceptChecksums,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	for _, cmd := range []*cobra.Command{clearHistoryCmd, releaseLocksCmd, acceptChecksumsCmd} {
		cmd.Flags().Bool("yes", false, "confirm the destructive operation")
	}

	rootCmd.AddCommand(clearHistoryCmd, releaseLocksCmd, listLocksCmd, acceptChecksumsCmd)
}

func confirmed(cmd *cobra.Command) bool {
	yes, _ := cmd.Flags().GetBool("yes")
	return yes
}

// requireYes adds the flag hint to a confirmation error.
func requireYes(err error) error {
	if errors.Is(err, engine.ErrConfirmationRequired) {
		return fmt.Errorf("%w (pass --yes)", err)
	}

	return err
}

func runClearHistory(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		n, err := s.engine.ClearHistory(ctx, confirmed(cmd))
		if err != nil {
			return requireYes(err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d history row(s).\n", n)

		return nil
	})
}

func runReleaseLocks(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		prev, err := s.engine.ReleaseLock(ctx, confirmed(cmd))
		if err != nil {
			return requireYes(err)
		}

		if !prev.Locked {
			fmt.Fprintln(cmd.OutOrStdout(), "Migration lock was not held.")
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Released migration lock held by %s since %s.\n",
			prev.LockedBy, prev.GrantedAt.Format(time.DateTime))

		return nil
	})
}

type lockView struct {
	Locked    bool       `json:"locked"`
	LockedBy  string     `json:"locked_by,omitempty"`
	GrantedAt *time.Time `json:"granted_at,omitempty"`
}

func runListLocks(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	return withSession(cmd, func(ctx context.Context, s *session) error {
		st, err := s.engine.LockStatus(ctx)
		if err != nil {
			return err
		}

		if AppConfig.Format == formatJSON {
			view := lockView{Locked: st.Locked, LockedBy: st.LockedBy}
			if st.Locked {
				view.GrantedAt = &st.GrantedAt
			}

			return writeJSON(out, view)
		}

		if !st.Locked {
			fmt.Fprintln(out, "Migration lock is free.")
			return nil
		}

		fmt.Fprintf(out, "Migration lock held by %s since %s.\n", st.LockedBy, st.GrantedAt.Format(time.DateTime))

		return nil
	})
}

func runAcceptChecksums(cmd *cobra.Command, _ []string) error {
	cl, err := loadChangelog(AppConfig)
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, s *session) error {
		accepted, err := s.engine.AcceptChecksums(ctx, cl, confirmed(cmd))
		if err != nil {
			return requireYes(err)
		}

		for _, c := range accepted {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s -> %s\n", c.Key, c.Recorded, c.Current)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Accepted %d changed checksum(s).\n", len(accepted))

		return nil
	})
}
