package engine

import (
	"context"

	"github.com/aqasim81/changelog-migrate/internal/database"
	"github.com/aqasim81/changelog-migrate/internal/ledger"
	"github.com/aqasim81/changelog-migrate/internal/migration"
	"github.com/aqasim81/changelog-migrate/internal/parser"
	"github.com/aqasim81/changelog-migrate/internal/planner"
)

// SQLIssue is a raw sql change that cannot be run as written.
type SQLIssue struct {
	Key      migration.Key
	Rollback bool // the statement belongs to the rollback list
	Message  string
}

// Validation is the result of checking a changelog against the ledger.
type Validation struct {
	Conflicts []planner.Conflict
	// Unknown lists applied entries the changelog no longer declares.
	Unknown []ledger.Entry
	SQL     []SQLIssue
}

// OK reports whether nothing was found.
func (v *Validation) OK() bool {
	return len(v.Conflicts) == 0 && len(v.Unknown) == 0 && len(v.SQL) == 0
}

// Validate compares cl with the ledger without changing anything. Raw SQL
// is parsed with the PostgreSQL grammar when the target is PostgreSQL.
func (e *Engine) Validate(ctx context.Context, cl *migration.Changelog) (*Validation, error) {
	h, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	v := &Validation{
		Conflicts: planner.Conflicts(cl, h),
		Unknown:   planner.Unknown(cl, h),
	}

	if e.db.Dialect().Name == database.Postgres.Name {
		v.SQL = checkSQL(cl)
	}

	return v, nil
}

func checkSQL(cl *migration.Changelog) []SQLIssue {
	var issues []SQLIssue

	for _, cs := range cl.ChangeSets {
		lists := []struct {
			changes  []migration.Change
			rollback bool
		}{
			{cs.Changes, false},
			{cs.Rollback, true},
		}

		for _, l := range lists {
			for _, c := range l.changes {
				raw, ok := c.(*migration.RawSQL)
				if !ok {
					continue
				}

				if msg := inspectSQL(cs, raw.SQL); msg != "" {
					issues = append(issues, SQLIssue{Key: cs.Key(), Rollback: l.rollback, Message: msg})
				}
			}
		}
	}

	return issues
}

func inspectSQL(cs *migration.ChangeSet, sql string) string {
	in, err := parser.Inspect(sql)
	if err != nil {
		return err.Error()
	}

	if cs.RunInTransaction && len(in.NonTransactional) > 0 {
		return in.NonTransactional[0] + " cannot run inside a transaction (set runInTransaction: false)"
	}

	return ""
}
