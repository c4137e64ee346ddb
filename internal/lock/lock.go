// Package lock implements the cooperative, database-resident lock that
// serializes migration runs: a single DATABASECHANGELOGLOCK row flipped by
// an atomic conditional UPDATE.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/aqasim81/changelog-migrate/internal/database"
	"github.com/aqasim81/changelog-migrate/internal/ledger"
)

const (
	defaultWait         = 10 * time.Second
	initialRetryBackoff = 100 * time.Millisecond
	maxRetryBackoff     = 2 * time.Second
)

// Status is a snapshot of the lock row.
type Status struct {
	Locked    bool
	GrantedAt time.Time
	LockedBy  string
}

// Manager acquires and releases the lock row.
type Manager struct {
	db         database.DB
	owner      string
	wait       time.Duration
	staleAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithWait bounds how long Acquire retries a held lock. Zero means one attempt.
func WithWait(d time.Duration) Option {
	return func(m *Manager) {
		m.wait = d
	}
}

// WithStaleAfter lets Acquire take over a lock granted longer than d ago.
// Zero disables takeover; a stuck lock then needs ForceRelease.
func WithStaleAfter(d time.Duration) Option {
	return func(m *Manager) {
		m.staleAfter = d
	}
}

// WithOwner overrides the generated owner id written to lockedby.
func WithOwner(owner string) Option {
	return func(m *Manager) {
		m.owner = owner
	}
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// New creates a Manager. The lock table must already exist (see
// ledger.EnsureSchema).
func New(db database.DB, opts ...Option) *Manager {
	m := &Manager{
		db:     db,
		owner:  defaultOwner(),
		wait:   defaultWait,
		now:    time.Now,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Owner returns the id this Manager writes into lockedby.
func (m *Manager) Owner() string { return m.owner }

// Handle is a held lock. Call Release when done.
type Handle struct {
	m        *Manager
	Waited   time.Duration
	released bool
}

// Acquire takes the lock, retrying with exponential backoff while another
// owner holds it, for at most the configured wait. It fails with a
// *HeldError when the budget runs out.
func (m *Manager) Acquire(ctx context.Context) (*Handle, error) {
	start := m.now()

	var b backoff.BackOff = &backoff.StopBackOff{}

	if m.wait > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = initialRetryBackoff
		exp.MaxInterval = maxRetryBackoff
		exp.MaxElapsedTime = m.wait
		b = exp
	}

	op := func() error {
		err := m.TryAcquire(ctx)
		if err == nil || errors.Is(err, ErrLockHeld) {
			return err
		}

		return backoff.Permanent(err)
	}

	notify := func(err error, next time.Duration) {
		m.logger.DebugContext(ctx, "migration lock busy, retrying", "error", err, "retry_in", next)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}

	waited := m.now().Sub(start)
	m.logger.InfoContext(ctx, "migration lock acquired", "owner", m.owner, "waited", waited)

	return &Handle{m: m, Waited: waited}, nil
}

// TryAcquire makes one attempt to take the lock.
func (m *Manager) TryAcquire(ctx context.Context) error {
	now := m.now().UTC()

	query := "UPDATE " + ledger.LockTable + " SET locked = ?, lockgranted = ?, lockedby = ? WHERE id = ? AND (locked = ?"
	args := []any{true, now, m.owner, ledger.LockRowID, false}

	if m.staleAfter > 0 {
		query += " OR lockgranted < ?"
		args = append(args, now.Add(-m.staleAfter))
	}

	query += ")"

	prev, err := m.Status(ctx)
	if err != nil {
		return err
	}

	n, err := m.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("acquiring migration lock: %w", err)
	}

	if n == 1 {
		if prev.Locked {
			m.logger.WarnContext(ctx, "reclaimed stale migration lock",
				"previous_owner", prev.LockedBy, "granted_at", prev.GrantedAt)
		}

		return nil
	}

	cur, err := m.Status(ctx)
	if err != nil {
		return err
	}

	return &HeldError{LockedBy: cur.LockedBy, Since: cur.GrantedAt}
}

// Status reads the lock row.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	var (
		s       Status
		granted database.NullTime
		by      sql.NullString
	)

	err := database.QueryRow(ctx, m.db,
		"SELECT locked, lockgranted, lockedby FROM "+ledger.LockTable+" WHERE id = ?",
		[]any{ledger.LockRowID}, &s.Locked, &granted, &by)
	if errors.Is(err, database.ErrNoRows) {
		return Status{}, ErrLockRowMissing
	}

	if err != nil {
		return Status{}, fmt.Errorf("reading migration lock: %w", err)
	}

	s.GrantedAt = granted.Time
	s.LockedBy = by.String

	return s, nil
}

// ForceRelease unlocks regardless of owner and returns the state it cleared.
// It is the administrative escape hatch for locks left by dead processes.
func (m *Manager) ForceRelease(ctx context.Context) (Status, error) {
	prev, err := m.Status(ctx)
	if err != nil {
		return Status{}, err
	}

	if _, err := m.db.Exec(ctx,
		"UPDATE "+ledger.LockTable+" SET locked = ?, lockgranted = NULL, lockedby = NULL WHERE id = ?",
		false, ledger.LockRowID); err != nil {
		return Status{}, fmt.Errorf("force releasing migration lock: %w", err)
	}

	if prev.Locked {
		m.logger.WarnContext(ctx, "migration lock force released", "previous_owner", prev.LockedBy, "granted_at", prev.GrantedAt)
	}

	return prev, nil
}

// Release unlocks if this handle's owner still holds the lock.
// Safe to call multiple times and on a nil handle; subsequent calls are no-ops.
func (h *Handle) Release(ctx context.Context) error {
	if h == nil || h.released {
		return nil
	}

	h.released = true

	_, err := h.m.db.Exec(ctx,
		"UPDATE "+ledger.LockTable+" SET locked = ?, lockgranted = NULL, lockedby = NULL WHERE id = ? AND lockedby = ?",
		false, ledger.LockRowID, h.m.owner)
	if err != nil {
		return fmt.Errorf("releasing migration lock: %w", err)
	}

	h.m.logger.InfoContext(ctx, "migration lock released", "owner", h.m.owner)

	return nil
}

func defaultOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}

	return fmt.Sprintf("%s#%d#%s", host, os.Getpid(), uuid.NewString())
}
