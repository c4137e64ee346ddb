package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aqasim81/changelog-migrate/internal/executor"
	"github.com/aqasim81/changelog-migrate/internal/ledger"
	"github.com/aqasim81/changelog-migrate/internal/migration"
	"github.com/aqasim81/changelog-migrate/internal/planner"
)

const formatJSON = "json"

// entryView is the JSON shape of a ledger row.
type entryView struct {
	ID            string    `json:"id"`
	Author        string    `json:"author"`
	Filename      string    `json:"filename"`
	DateExecuted  time.Time `json:"date_executed"`
	OrderExecuted int64     `json:"order_executed"`
	ExecType      string    `json:"exec_type"`
	MD5Sum        string    `json:"md5sum,omitempty"`
	Description   string    `json:"description,omitempty"`
	Tag           string    `json:"tag,omitempty"`
	DeploymentID  string    `json:"deployment_id,omitempty"`
}

// changeSetView is the JSON shape of a pending ChangeSet.
type changeSetView struct {
	ID          string `json:"id"`
	Author      string `json:"author"`
	Description string `json:"description,omitempty"`
	Checksum    string `json:"checksum"`
}

func entryViews(entries []ledger.Entry) []entryView {
	out := make([]entryView, len(entries))
	for i, e := range entries {
		out[i] = entryView{
			ID:            e.ID,
			Author:        e.Author,
			Filename:      e.Filename,
			DateExecuted:  e.DateExecuted,
			OrderExecuted: e.OrderExecuted,
			ExecType:      string(e.ExecType),
			MD5Sum:        e.MD5Sum,
			Description:   e.Description,
			Tag:           e.Tag,
			DeploymentID:  e.DeploymentID,
		}
	}

	return out
}

func changeSetViews(sets []*migration.ChangeSet) []changeSetView {
	out := make([]changeSetView, len(sets))
	for i, cs := range sets {
		out[i] = changeSetView{ID: cs.ID, Author: cs.Author, Description: cs.Description, Checksum: cs.Checksum}
	}

	return out
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing JSON output: %w", err)
	}

	return nil
}

// printEntries renders ledger rows as an aligned table.
func printEntries(out io.Writer, entries []ledger.Entry, withType bool) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	header := "ORDER\tID\tAUTHOR\tEXECUTED\tTAG\tDESCRIPTION"
	if withType {
		header = "ORDER\tID\tAUTHOR\tTYPE\tEXECUTED\tTAG\tDESCRIPTION"
	}

	fmt.Fprintln(tw, header)

	for _, e := range entries {
		cols := []string{fmt.Sprint(e.OrderExecuted), e.ID, e.Author}
		if withType {
			cols = append(cols, string(e.ExecType))
		}

		cols = append(cols, e.DateExecuted.Format(time.DateTime), dash(e.Tag), dash(e.Description))
		fmt.Fprintln(tw, strings.Join(cols, "\t"))
	}

	return tw.Flush()
}

func printPending(out io.Writer, sets []*migration.ChangeSet) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "ID\tAUTHOR\tDESCRIPTION")

	for _, cs := range sets {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", cs.ID, cs.Author, dash(cs.Description))
	}

	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

// progressPrinter reports each step as it runs.
func progressPrinter(out io.Writer) func(executor.ProgressEvent) {
	return func(ev executor.ProgressEvent) {
		verb := "Applying"
		if ev.Direction == planner.Reverse {
			verb = "Rolling back"
		}

		switch ev.Status {
		case executor.StatusStarting:
			fmt.Fprintf(out, "  %s %s ... ", verb, ev.ChangeSet.Key())
		case executor.StatusCompleted:
			fmt.Fprintf(out, "done (%s)\n", ev.Duration.Truncate(time.Millisecond))
		case executor.StatusFailed:
			fmt.Fprintf(out, "FAILED\n")
			fmt.Fprintf(out, "    Error: %v\n", ev.Error)
		}
	}
}

// printSummary closes a text-mode run. Dry runs list the statements that
// would have been executed.
func printSummary(out io.Writer, r *executor.Report) {
	if len(r.Steps) == 0 {
		fmt.Fprintln(out, "Nothing to do.")
		return
	}

	if r.DryRun {
		for _, step := range r.Steps {
			fmt.Fprintf(out, "\n-- %s::%s  %s\n", step.ID, step.Author, step.Description)

			for _, stmt := range step.Statements {
				fmt.Fprintln(out, stmt)
			}
		}

		fmt.Fprintf(out, "\nDry run complete: %d changeset(s) would be %s.\n", len(r.Steps), pastTense(r.Direction))

		return
	}

	fmt.Fprintf(out, "\n%s complete: %d changeset(s) %s.\n", titleOf(r.Direction), r.Completed(), pastTense(r.Direction))
}

func pastTense(d planner.Direction) string {
	if d == planner.Reverse {
		return "rolled back"
	}

	return "applied"
}

func titleOf(d planner.Direction) string {
	if d == planner.Reverse {
		return "Rollback"
	}

	return "Update"
}
