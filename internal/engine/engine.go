// Package engine is the operation surface of the migrator. It ties the
// ledger, the lock, the planner and the executor together so each caller
// runs one call per operation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aqasim81/changelog-migrate/internal/database"
	"github.com/aqasim81/changelog-migrate/internal/executor"
	"github.com/aqasim81/changelog-migrate/internal/ledger"
	"github.com/aqasim81/changelog-migrate/internal/lock"
	"github.com/aqasim81/changelog-migrate/internal/metrics"
	"github.com/aqasim81/changelog-migrate/internal/migration"
	"github.com/aqasim81/changelog-migrate/internal/planner"
)

// Engine runs migrations against one database.
type Engine struct {
	db               database.DB
	ledger           *ledger.Ledger
	locks            *lock.Manager
	logger           *slog.Logger
	metrics          *metrics.Recorder
	contexts         []string
	lockTimeout      time.Duration
	statementTimeout time.Duration
	onProgress       func(executor.ProgressEvent)
	lockOpts         []lock.Option
	ledgerOpts       []ledger.Option
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger shared by the engine, the lock and the executor.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records step and lock-wait metrics into r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithContexts restricts Update and Pending to ChangeSets matching the
// given contexts. Empty means every ChangeSet.
func WithContexts(contexts []string) Option {
	return func(e *Engine) { e.contexts = contexts }
}

// WithTimeouts sets the per-transaction lock and statement timeouts.
// Databases without session timeouts ignore them.
func WithTimeouts(lockTimeout, statementTimeout time.Duration) Option {
	return func(e *Engine) {
		e.lockTimeout = lockTimeout
		e.statementTimeout = statementTimeout
	}
}

// WithProgressCallback is called for each step processed by a run.
func WithProgressCallback(fn func(executor.ProgressEvent)) Option {
	return func(e *Engine) { e.onProgress = fn }
}

// WithLockOptions configures the lock manager.
func WithLockOptions(opts ...lock.Option) Option {
	return func(e *Engine) { e.lockOpts = append(e.lockOpts, opts...) }
}

// WithLedgerOptions configures the ledger.
func WithLedgerOptions(opts ...ledger.Option) Option {
	return func(e *Engine) { e.ledgerOpts = append(e.ledgerOpts, opts...) }
}

// New creates an Engine over db. The caller keeps ownership of db.
func New(db database.DB, opts ...Option) *Engine {
	e := &Engine{
		db:     db,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.ledger = ledger.New(db, e.ledgerOpts...)
	e.locks = lock.New(db, append([]lock.Option{lock.WithLogger(e.logger)}, e.lockOpts...)...)

	return e
}

// RunOption tunes a single Update or Rollback call.
type RunOption func(*runConfig)

type runConfig struct {
	dryRun bool
}

// DryRun renders the plan's statements without executing or recording them.
func DryRun(b bool) RunOption {
	return func(c *runConfig) { c.dryRun = b }
}

// Update applies every pending ChangeSet of cl in changelog order.
func (e *Engine) Update(ctx context.Context, cl *migration.Changelog, opts ...RunOption) (*executor.Report, error) {
	return e.run(ctx, opts, func(h ledger.History) (*planner.Plan, error) {
		return planner.Pending(cl, h, e.contexts)
	})
}

// Rollback reverses the count most recently applied ChangeSets.
func (e *Engine) Rollback(ctx context.Context, count int, cl *migration.Changelog, opts ...RunOption) (*executor.Report, error) {
	return e.run(ctx, opts, func(h ledger.History) (*planner.Plan, error) {
		return planner.Rollback(cl, h, count)
	})
}

// RollbackToTag reverses every ChangeSet applied after the tagged entry.
func (e *Engine) RollbackToTag(ctx context.Context, tag string, cl *migration.Changelog, opts ...RunOption) (*executor.Report, error) {
	return e.run(ctx, opts, func(h ledger.History) (*planner.Plan, error) {
		return planner.RollbackToTag(cl, h, tag)
	})
}

func (e *Engine) run(ctx context.Context, opts []RunOption, planFn executor.PlanFunc) (*executor.Report, error) {
	var rc runConfig
	for _, opt := range opts {
		opt(&rc)
	}

	execOpts := []executor.Option{
		executor.WithLogger(e.logger),
		executor.WithLockTimeout(e.lockTimeout),
		executor.WithStatementTimeout(e.statementTimeout),
		executor.WithDryRun(rc.dryRun),
		executor.WithProgressCallback(e.onProgress),
	}

	if e.metrics != nil {
		execOpts = append(execOpts, executor.WithMetrics(e.metrics))
	}

	return executor.New(e.db, e.ledger, e.locks, execOpts...).Run(ctx, planFn)
}

// Status returns the currently applied ChangeSets, oldest first.
func (e *Engine) Status(ctx context.Context) ([]ledger.Entry, error) {
	h, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	return h.Applied(), nil
}

// Pending returns the ChangeSets of cl that Update would apply now.
func (e *Engine) Pending(ctx context.Context, cl *migration.Changelog) ([]*migration.ChangeSet, error) {
	h, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	plan, err := planner.Pending(cl, h, e.contexts)
	if err != nil {
		return nil, err
	}

	out := make([]*migration.ChangeSet, len(plan.Steps))
	for i, step := range plan.Steps {
		out[i] = step.ChangeSet
	}

	return out, nil
}

// History returns every ledger event, rollbacks included, in execution order.
func (e *Engine) History(ctx context.Context) ([]ledger.Entry, error) {
	h, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	return h.Entries(), nil
}

// Tag labels the most recently applied ChangeSet. It fails with
// ledger.ErrNoHistory when nothing is applied.
func (e *Engine) Tag(ctx context.Context, name string) (ledger.Entry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ledger.Entry{}, ErrEmptyTag
	}

	var tagged ledger.Entry

	err := e.withLock(ctx, func() error {
		var err error
		tagged, err = e.ledger.Tag(ctx, name)

		return err
	})
	if err != nil {
		return ledger.Entry{}, err
	}

	e.logger.InfoContext(ctx, "tagged changeset", "tag", name, "changeset", tagged.Key().String())

	return tagged, nil
}

// ClearHistory deletes every ledger row. The schema objects created by
// past runs are left in place.
func (e *Engine) ClearHistory(ctx context.Context, confirmed bool) (int64, error) {
	if !confirmed {
		return 0, fmt.Errorf("%w: clear history", ErrConfirmationRequired)
	}

	var n int64

	err := e.withLock(ctx, func() error {
		var err error
		n, err = e.ledger.Clear(ctx)

		return err
	})
	if err != nil {
		return 0, err
	}

	e.logger.WarnContext(ctx, "ledger cleared", "entries_removed", n)

	return n, nil
}

// ReleaseLock force-unlocks the migration lock whoever holds it and
// returns the state it cleared.
func (e *Engine) ReleaseLock(ctx context.Context, confirmed bool) (lock.Status, error) {
	if !confirmed {
		return lock.Status{}, fmt.Errorf("%w: release lock", ErrConfirmationRequired)
	}

	if err := e.ledger.EnsureSchema(ctx); err != nil {
		return lock.Status{}, err
	}

	return e.locks.ForceRelease(ctx)
}

// LockStatus reports who holds the migration lock, if anyone.
func (e *Engine) LockStatus(ctx context.Context) (lock.Status, error) {
	if err := e.ledger.EnsureSchema(ctx); err != nil {
		return lock.Status{}, err
	}

	return e.locks.Status(ctx)
}

// AcceptChecksums overwrites the recorded checksum of every conflicting
// ChangeSet with the one computed from cl, and returns the conflicts it
// resolved.
func (e *Engine) AcceptChecksums(ctx context.Context, cl *migration.Changelog, confirmed bool) ([]planner.Conflict, error) {
	if !confirmed {
		return nil, fmt.Errorf("%w: accept checksums", ErrConfirmationRequired)
	}

	var conflicts []planner.Conflict

	err := e.withLock(ctx, func() error {
		h, err := e.ledger.Load(ctx)
		if err != nil {
			return err
		}

		conflicts = planner.Conflicts(cl, h)

		for _, c := range conflicts {
			if _, err := e.ledger.UpdateChecksum(ctx, c.Key, c.Current); err != nil {
				return err
			}

			e.logger.WarnContext(ctx, "accepted changed checksum",
				"changeset", c.Key.String(), "recorded", c.Recorded, "current", c.Current)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return conflicts, nil
}

func (e *Engine) load(ctx context.Context) (ledger.History, error) {
	if err := e.ledger.EnsureSchema(ctx); err != nil {
		return ledger.History{}, err
	}

	return e.ledger.Load(ctx)
}

// withLock runs fn while holding the migration lock.
func (e *Engine) withLock(ctx context.Context, fn func() error) (err error) {
	if err := e.ledger.EnsureSchema(ctx); err != nil {
		return err
	}

	h, err := e.locks.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring migration lock: %w", err)
	}

	defer func() {
		if relErr := h.Release(context.WithoutCancel(ctx)); relErr != nil {
			err = errors.Join(err, relErr)
		}
	}()

	return fn()
}
