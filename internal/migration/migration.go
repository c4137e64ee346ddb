package migration

import "strings"

// ChangeSet is the unit of migration: an identified, ordered list of changes
// plus the optional list of changes that reverses them.
type ChangeSet struct {
	ID       string
	Author   string
	Filename string // Changelog file the ChangeSet was declared in
	Comment  string
	// Description is a generated summary of Changes (e.g. "createTable tableName=users").
	Description string
	Changes     []Change
	Rollback    []Change // empty means rollback is unavailable
	Contexts    []string // empty means the ChangeSet runs in every context
	Labels      []string
	// RunInTransaction is false for ChangeSets whose statements cannot run
	// inside a transaction block (e.g. CREATE INDEX CONCURRENTLY).
	RunInTransaction bool
	Checksum         string // computed at parse time by ComputeChecksum
}

// Key returns the lookup key for the ChangeSet's (id, author) pair.
func (cs *ChangeSet) Key() Key {
	return Key{ID: cs.ID, Author: cs.Author}
}

// HasRollback reports whether the ChangeSet declares an inverse.
func (cs *ChangeSet) HasRollback() bool {
	return len(cs.Rollback) > 0
}

// MatchesContexts reports whether the ChangeSet should run for the given
// active contexts. A ChangeSet without contexts always matches, and an empty
// active set matches everything.
func (cs *ChangeSet) MatchesContexts(active []string) bool {
	if len(cs.Contexts) == 0 || len(active) == 0 {
		return true
	}

	for _, want := range cs.Contexts {
		for _, have := range active {
			if strings.EqualFold(strings.TrimSpace(want), strings.TrimSpace(have)) {
				return true
			}
		}
	}

	return false
}

// Key identifies a ChangeSet globally.
type Key struct {
	ID     string
	Author string
}

// String renders the key as "id::author".
func (k Key) String() string {
	return k.ID + "::" + k.Author
}

// Changelog is an ordered list of ChangeSets parsed from one document.
type Changelog struct {
	Path       string
	ChangeSets []*ChangeSet
}

// Lookup returns the ChangeSet with the given key, or nil.
func (c *Changelog) Lookup(k Key) *ChangeSet {
	if c == nil {
		return nil
	}

	for _, cs := range c.ChangeSets {
		if cs.Key() == k {
			return cs
		}
	}

	return nil
}

// FilterContexts returns the ChangeSets that match the active contexts,
// preserving changelog order.
func (c *Changelog) FilterContexts(active []string) []*ChangeSet {
	out := make([]*ChangeSet, 0, len(c.ChangeSets))

	for _, cs := range c.ChangeSets {
		if cs.MatchesContexts(active) {
			out = append(out, cs)
		}
	}

	return out
}
