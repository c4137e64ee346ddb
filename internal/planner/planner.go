// Package planner diffs a changelog against a ledger snapshot. It performs
// no I/O; every function either returns a complete plan or an error.
package planner

import (
	"fmt"

	"github.com/aqasim81/changelog-migrate/internal/ledger"
	"github.com/aqasim81/changelog-migrate/internal/migration"
	"github.com/aqasim81/changelog-migrate/internal/parser"
)

// Direction tells the executor which change list to run and which ledger
// event to record.
type Direction string

// Plan directions.
const (
	Forward Direction = "update"
	Reverse Direction = "rollback"
)

// Step is one ChangeSet to apply or reverse.
type Step struct {
	ChangeSet *migration.ChangeSet
	// Changes is ChangeSet.Changes going forward and ChangeSet.Rollback in reverse.
	Changes []migration.Change
	// Reverses is the EXECUTED entry being undone; nil going forward.
	Reverses *ledger.Entry
}

// Plan is an ordered list of steps.
type Plan struct {
	Direction Direction
	Steps     []Step
}

// Empty reports whether the plan has nothing to do.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Steps) == 0
}

// Pending plans every ChangeSet matching the active contexts that is not
// currently applied, in changelog order. Any checksum conflict in the
// changelog aborts planning.
func Pending(cl *migration.Changelog, h ledger.History, contexts []string) (*Plan, error) {
	if err := checkConflicts(cl, h); err != nil {
		return nil, err
	}

	plan := &Plan{Direction: Forward}

	for _, cs := range cl.FilterContexts(contexts) {
		if h.IsApplied(cs.Key()) {
			continue
		}

		plan.Steps = append(plan.Steps, Step{ChangeSet: cs, Changes: cs.Changes})
	}

	if err := checkTransactional(plan); err != nil {
		return nil, err
	}

	return plan, nil
}

// Rollback plans the reversal of the count most recently applied
// ChangeSets, newest first. A count above the number applied reverses
// everything. Planning is all-or-nothing: one unresolvable step fails the
// whole request.
func Rollback(cl *migration.Changelog, h ledger.History, count int) (*Plan, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}

	applied := h.Applied()
	if count > len(applied) {
		count = len(applied)
	}

	return reverse(cl, h, applied[len(applied)-count:])
}

// RollbackToTag plans the reversal of every currently applied ChangeSet
// executed after the entry carrying tag, newest first.
func RollbackToTag(cl *migration.Changelog, h ledger.History, tag string) (*Plan, error) {
	tagged, ok := h.Tagged(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTagNotFound, tag)
	}

	var after []ledger.Entry

	for _, e := range h.Applied() {
		if e.OrderExecuted > tagged.OrderExecuted {
			after = append(after, e)
		}
	}

	return reverse(cl, h, after)
}

// reverse builds a Reverse plan for entries given in ascending order.
func reverse(cl *migration.Changelog, h ledger.History, entries []ledger.Entry) (*Plan, error) {
	if err := checkConflicts(cl, h); err != nil {
		return nil, err
	}

	plan := &Plan{Direction: Reverse, Steps: make([]Step, 0, len(entries))}

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]

		cs := cl.Lookup(e.Key())
		if cs == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownChangeSet, e.Key())
		}

		if !cs.HasRollback() {
			return nil, fmt.Errorf("%w: %s", ErrRollbackUndefined, e.Key())
		}

		plan.Steps = append(plan.Steps, Step{ChangeSet: cs, Changes: cs.Rollback, Reverses: &e})
	}

	if err := checkTransactional(plan); err != nil {
		return nil, err
	}

	return plan, nil
}

// Conflicts compares every ChangeSet in the changelog with the checksum of
// its last EXECUTED entry. Entries recorded without a checksum never conflict.
func Conflicts(cl *migration.Changelog, h ledger.History) []Conflict {
	var out []Conflict

	for _, cs := range cl.ChangeSets {
		last, ok := h.LastExecuted(cs.Key())
		if !ok || last.MD5Sum == "" || last.MD5Sum == cs.Checksum {
			continue
		}

		out = append(out, Conflict{
			Key:      cs.Key(),
			Recorded: last.MD5Sum,
			Current:  cs.Checksum,
			Applied:  h.IsApplied(cs.Key()),
		})
	}

	return out
}

// Unknown returns the currently applied entries the changelog no longer declares.
func Unknown(cl *migration.Changelog, h ledger.History) []ledger.Entry {
	var out []ledger.Entry

	for _, e := range h.Applied() {
		if cl.Lookup(e.Key()) == nil {
			out = append(out, e)
		}
	}

	return out
}

func checkConflicts(cl *migration.Changelog, h ledger.History) error {
	if conflicts := Conflicts(cl, h); len(conflicts) > 0 {
		return &ConflictError{Conflicts: conflicts}
	}

	return nil
}

// checkTransactional rejects transactional steps holding raw SQL that
// PostgreSQL refuses inside a transaction block. SQL the PostgreSQL grammar
// cannot parse belongs to another dialect and is left to the database.
func checkTransactional(plan *Plan) error {
	for _, step := range plan.Steps {
		if !step.ChangeSet.RunInTransaction {
			continue
		}

		for _, c := range step.Changes {
			raw, ok := c.(*migration.RawSQL)
			if !ok {
				continue
			}

			in, err := parser.Inspect(raw.SQL)
			if err != nil || len(in.NonTransactional) == 0 {
				continue
			}

			return fmt.Errorf("%w: %s contains %s", ErrNonTransactional, step.ChangeSet.Key(), in.NonTransactional[0])
		}
	}

	return nil
}
