// Package ledger persists the execution history (DATABASECHANGELOG) inside
// the target database and bootstraps the lock table next to it.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aqasim81/changelog-migrate/internal/database"
	"github.com/aqasim81/changelog-migrate/internal/migration"
)

// Ledger manages the DATABASECHANGELOG table.
type Ledger struct {
	db  database.DB
	now func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the clock used for date_executed.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// New creates a Ledger backed by db.
func New(db database.DB, opts ...Option) *Ledger {
	l := &Ledger{
		db:  db,
		now: time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// EnsureSchema creates the ledger and lock tables if missing and seeds the
// unlocked lock row. It is safe to call concurrently from several processes.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	d := l.db.Dialect()

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaCreation, err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := database.LockSchema(ctx, tx, d); err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaCreation, err)
	}

	for _, stmt := range []string{createLedgerSQL(d.TimestampType), createLockSQL(d.TimestampType)} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %w", ErrSchemaCreation, err)
		}
	}

	seed := d.InsertIgnoringDuplicates(fmt.Sprintf("INSERT INTO %s (id, locked) VALUES (?, ?)", LockTable))
	if _, err := tx.Exec(ctx, seed, LockRowID, false); err != nil {
		return fmt.Errorf("%w: seeding lock row: %w", ErrSchemaCreation, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaCreation, err)
	}

	return nil
}

// Entries returns every ledger row ordered by order_executed.
func (l *Ledger) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.Query(ctx, selectEntriesSQL)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			e        Entry
			executed database.NullTime
			execType string
			md5sum, description, comments, tag, contexts, labels, deploymentID sql.NullString
		)

		if err := rows.Scan(&e.ID, &e.Author, &e.Filename, &executed, &e.OrderExecuted, &execType,
			&md5sum, &description, &comments, &tag, &contexts, &labels, &deploymentID); err != nil {
			return nil, fmt.Errorf("%w: scanning ledger row: %w", ErrLedgerCorrupt, err)
		}

		e.DateExecuted = executed.Time
		e.ExecType = ExecType(execType)
		e.MD5Sum = md5sum.String
		e.Description = description.String
		e.Comments = comments.String
		e.Tag = tag.String
		e.Contexts = contexts.String
		e.Labels = labels.String
		e.DeploymentID = deploymentID.String

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}

	return entries, nil
}

// Load reads and validates the whole ledger.
func (l *Ledger) Load(ctx context.Context) (History, error) {
	entries, err := l.Entries(ctx)
	if err != nil {
		return History{}, err
	}

	return NewHistory(entries)
}

// Append writes e through q, normally the step's transaction, so the ledger
// row commits together with the step's statements. It allocates the next
// order_executed and stamps DateExecuted; both are written back into e.
func (l *Ledger) Append(ctx context.Context, q database.Querier, e *Entry) error {
	if !e.ExecType.Valid() {
		return fmt.Errorf("appending %s: unknown exec_type %q", e.Key(), e.ExecType)
	}

	var last int64
	if err := database.QueryRow(ctx, q, "SELECT COALESCE(MAX(order_executed), 0) FROM "+Table, nil, &last); err != nil {
		return fmt.Errorf("allocating order_executed: %w", err)
	}

	e.OrderExecuted = last + 1
	e.DateExecuted = l.now().UTC()

	_, err := q.Exec(ctx, insertEntrySQL,
		e.ID, e.Author, e.Filename, e.DateExecuted, e.OrderExecuted, string(e.ExecType),
		nullString(e.MD5Sum), nullString(e.Description), nullString(e.Comments), nullString(e.Tag),
		nullString(e.Contexts), nullString(e.Labels), nullString(e.DeploymentID),
	)
	if err != nil {
		return fmt.Errorf("recording %s %s: %w", e.ExecType, e.Key(), err)
	}

	return nil
}

// Tag stamps name on the most recent currently applied entry and returns it.
// Re-tagging overwrites; no new ledger row is written.
func (l *Ledger) Tag(ctx context.Context, name string) (Entry, error) {
	h, err := l.Load(ctx)
	if err != nil {
		return Entry{}, err
	}

	applied := h.Applied()
	if len(applied) == 0 {
		return Entry{}, ErrNoHistory
	}

	target := applied[len(applied)-1]

	if _, err := l.db.Exec(ctx, "UPDATE "+Table+" SET tag = ? WHERE order_executed = ?", name, target.OrderExecuted); err != nil {
		return Entry{}, fmt.Errorf("tagging %s: %w", target.Key(), err)
	}

	target.Tag = name

	return target, nil
}

// UpdateChecksum overwrites the stored checksum of the key's EXECUTED rows
// and returns how many rows changed.
func (l *Ledger) UpdateChecksum(ctx context.Context, k migration.Key, checksum string) (int64, error) {
	n, err := l.db.Exec(ctx,
		"UPDATE "+Table+" SET md5sum = ? WHERE id = ? AND author = ? AND exec_type = ?",
		checksum, k.ID, k.Author, string(Executed))
	if err != nil {
		return 0, fmt.Errorf("updating checksum of %s: %w", k, err)
	}

	return n, nil
}

// Clear deletes every ledger row and returns how many were removed. The
// schema itself is untouched.
func (l *Ledger) Clear(ctx context.Context) (int64, error) {
	n, err := l.db.Exec(ctx, "DELETE FROM "+Table)
	if err != nil {
		return 0, fmt.Errorf("clearing ledger: %w", err)
	}

	return n, nil
}
