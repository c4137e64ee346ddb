package migration

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

type encodedChangelog struct {
	DatabaseChangeLog []encodedEntry `yaml:"databaseChangeLog"`
}

type encodedEntry struct {
	ChangeSet encodedChangeSet `yaml:"changeSet"`
}

type encodedChangeSet struct {
	ID               string            `yaml:"id"`
	Author           string            `yaml:"author"`
	Comment          string            `yaml:"comment,omitempty"`
	Context          string            `yaml:"context,omitempty"`
	Labels           string            `yaml:"labels,omitempty"`
	RunInTransaction *bool             `yaml:"runInTransaction,omitempty"`
	Changes          []map[Kind]Change `yaml:"changes"`
	Rollback         []map[Kind]Change `yaml:"rollback,omitempty"`
}

// Encode writes ChangeSets as a YAML changelog document that Parse reads back
// into equivalent ChangeSets with identical checksums.
func Encode(w io.Writer, changeSets []*ChangeSet) error {
	doc := encodedChangelog{DatabaseChangeLog: make([]encodedEntry, 0, len(changeSets))}

	for _, cs := range changeSets {
		enc := encodedChangeSet{
			ID:       cs.ID,
			Author:   cs.Author,
			Comment:  cs.Comment,
			Context:  strings.Join(cs.Contexts, ","),
			Labels:   strings.Join(cs.Labels, ","),
			Changes:  wrapChanges(cs.Changes),
			Rollback: wrapChanges(cs.Rollback),
		}

		if !cs.RunInTransaction {
			f := false
			enc.RunInTransaction = &f
		}

		doc.DatabaseChangeLog = append(doc.DatabaseChangeLog, encodedEntry{ChangeSet: enc})
	}

	e := yaml.NewEncoder(w)
	e.SetIndent(2)

	if err := e.Encode(doc); err != nil {
		return fmt.Errorf("encoding changelog: %w", err)
	}

	if err := e.Close(); err != nil {
		return fmt.Errorf("encoding changelog: %w", err)
	}

	return nil
}

func wrapChanges(changes []Change) []map[Kind]Change {
	if len(changes) == 0 {
		return nil
	}

	out := make([]map[Kind]Change, len(changes))
	for i, c := range changes {
		out[i] = map[Kind]Change{c.Kind(): c}
	}

	return out
}
