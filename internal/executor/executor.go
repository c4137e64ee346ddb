// Package executor applies or reverses a plan one ChangeSet at a time. Each
// step's statements and its ledger entry commit together; the migration
// lock is held for the whole run and always released.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aqasim81/changelog-migrate/internal/database"
	"github.com/aqasim81/changelog-migrate/internal/ledger"
	"github.com/aqasim81/changelog-migrate/internal/lock"
	"github.com/aqasim81/changelog-migrate/internal/migration"
	"github.com/aqasim81/changelog-migrate/internal/planner"
	"github.com/aqasim81/changelog-migrate/internal/translator"
)

// Progress status constants reported via ProgressEvent and StepResult.
const (
	StatusStarting  = "starting"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// ProgressEvent is emitted by the executor for each step processed.
type ProgressEvent struct {
	ChangeSet *migration.ChangeSet
	Direction planner.Direction
	Status    string
	Duration  time.Duration
	Error     error
}

// StepResult records the outcome of one step.
type StepResult struct {
	ID            string        `json:"id"`
	Author        string        `json:"author"`
	Description   string        `json:"description,omitempty"`
	Status        string        `json:"status"`
	Duration      time.Duration `json:"duration_ns"`
	OrderExecuted int64         `json:"order_executed,omitempty"`
	Statements    []string      `json:"statements,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// Report summarizes a run.
type Report struct {
	DeploymentID string            `json:"deployment_id"`
	Direction    planner.Direction `json:"direction"`
	DryRun       bool              `json:"dry_run"`
	Steps        []StepResult      `json:"steps"`
}

// Completed returns how many steps committed.
func (r *Report) Completed() int {
	n := 0

	for _, s := range r.Steps {
		if s.Status == StatusCompleted {
			n++
		}
	}

	return n
}

// PlanFunc computes the plan from the ledger snapshot read under the lock.
type PlanFunc func(h ledger.History) (*planner.Plan, error)

// Ledger abstracts DATABASECHANGELOG operations for testability.
type Ledger interface {
	EnsureSchema(ctx context.Context) error
	Load(ctx context.Context) (ledger.History, error)
	Append(ctx context.Context, q database.Querier, e *ledger.Entry) error
}

// Locker acquires the migration lock.
type Locker interface {
	Acquire(ctx context.Context) (*lock.Handle, error)
}

// Recorder receives run metrics.
type Recorder interface {
	ObserveStep(direction, status string, d time.Duration)
	ObserveLockWait(d time.Duration)
}

// lockReleaser is returned by lockFunc and must be released when done.
type lockReleaser interface {
	Release(ctx context.Context) error
}

// lockFunc acquires the migration lock and returns a releaser.
type lockFunc func(ctx context.Context) (lockReleaser, error)

// stepExecFunc executes one step's statements and writes its ledger entry.
type stepExecFunc func(ctx context.Context, step planner.Step, entry *ledger.Entry, stmts []translator.Statement) error

// Executor runs plans with step-level atomicity, per-transaction timeouts
// and the migration lock held throughout.
type Executor struct {
	db               database.DB
	ledger           Ledger
	lockTimeout      time.Duration
	statementTimeout time.Duration
	dryRun           bool
	onProgress       func(ProgressEvent)
	logger           *slog.Logger
	metrics          Recorder
	now              func() time.Time
	newDeploymentID  func() string
	acquireLock      lockFunc
	execStep         stepExecFunc
}

// Option configures an Executor.
type Option func(*Executor)

// WithLockTimeout sets the per-transaction lock_timeout.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Executor) { e.lockTimeout = d }
}

// WithStatementTimeout sets the per-transaction statement_timeout.
func WithStatementTimeout(d time.Duration) Option {
	return func(e *Executor) { e.statementTimeout = d }
}

// WithDryRun enables dry-run mode: statements are rendered, nothing is
// executed and no ledger entry is written.
func WithDryRun(b bool) Option {
	return func(e *Executor) { e.dryRun = b }
}

// WithProgressCallback sets a function called for each step processed.
func WithProgressCallback(fn func(ProgressEvent)) Option {
	return func(e *Executor) { e.onProgress = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r Recorder) Option {
	return func(e *Executor) { e.metrics = r }
}

// New creates an Executor over db, the ledger and the lock.
func New(db database.DB, l Ledger, locker Locker, opts ...Option) *Executor {
	e := &Executor{
		db:              db,
		ledger:          l,
		logger:          slog.Default(),
		metrics:         nopRecorder{},
		now:             time.Now,
		newDeploymentID: uuid.NewString,
	}

	for _, opt := range opts {
		opt(e)
	}

	// Set defaults for injectable functions after options are applied,
	// so tests can override them.
	if e.acquireLock == nil {
		e.acquireLock = func(ctx context.Context) (lockReleaser, error) {
			return locker.Acquire(ctx)
		}
	}

	if e.execStep == nil {
		e.execStep = e.executeStep
	}

	return e
}

// Run bootstraps the ledger, takes the lock, plans against the ledger
// snapshot and executes the plan step by step. A failed step is rolled back
// and stops the run; earlier steps stay committed. The lock is released on
// every exit path, including cancellation.
func (e *Executor) Run(ctx context.Context, planFn PlanFunc) (report *Report, err error) {
	report = &Report{DeploymentID: e.newDeploymentID(), DryRun: e.dryRun}

	if err := e.ledger.EnsureSchema(ctx); err != nil {
		return report, err
	}

	start := e.now()

	lk, err := e.acquireLock(ctx)
	if err != nil {
		return report, fmt.Errorf("acquiring migration lock: %w", err)
	}

	e.metrics.ObserveLockWait(e.now().Sub(start))

	defer func() {
		// The caller's context may already be cancelled; the lock must go anyway.
		if relErr := lk.Release(context.WithoutCancel(ctx)); relErr != nil {
			e.logger.ErrorContext(ctx, "releasing migration lock failed", "error", relErr)
			err = errors.Join(err, relErr)
		}
	}()

	h, err := e.ledger.Load(ctx)
	if err != nil {
		return report, err
	}

	plan, err := planFn(h)
	if err != nil {
		return report, err
	}

	report.Direction = plan.Direction

	e.logger.InfoContext(ctx, "executing plan",
		"direction", plan.Direction, "steps", len(plan.Steps),
		"deployment_id", report.DeploymentID, "dry_run", e.dryRun)

	for _, step := range plan.Steps {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, fmt.Errorf("%w before %s: %w", ErrInterrupted, step.ChangeSet.Key(), ctxErr)
		}

		result, stepErr := e.runStep(ctx, plan.Direction, step, report.DeploymentID)
		report.Steps = append(report.Steps, result)

		if stepErr != nil {
			return report, stepErr
		}
	}

	return report, nil
}

func (e *Executor) runStep(ctx context.Context, dir planner.Direction, step planner.Step, deploymentID string) (StepResult, error) {
	cs := step.ChangeSet
	result := StepResult{ID: cs.ID, Author: cs.Author, Description: cs.Description}

	fail := func(err error, d time.Duration) (StepResult, error) {
		stepErr := &StepError{Key: cs.Key(), Direction: dir, Err: err}
		result.Status = StatusFailed
		result.Duration = d
		result.Error = err.Error()

		e.metrics.ObserveStep(string(dir), StatusFailed, d)
		e.fireProgress(ProgressEvent{ChangeSet: cs, Direction: dir, Status: StatusFailed, Duration: d, Error: err})
		e.logger.ErrorContext(ctx, "changeset failed", "changeset", cs.Key().String(), "direction", dir, "error", err)

		if d > 0 && !e.db.Dialect().TransactionalDDL {
			e.logger.WarnContext(ctx, "DDL commits implicitly on this database; earlier statements of the changeset may remain applied",
				"changeset", cs.Key().String(), "dialect", e.db.Dialect().Name)
		}

		return result, stepErr
	}

	stmts, err := translator.Translate(e.db.Dialect(), step.Changes)
	if err != nil {
		return fail(err, 0)
	}

	if e.dryRun {
		result.Status = StatusSkipped
		result.Statements = renderStatements(stmts)
		e.fireProgress(ProgressEvent{ChangeSet: cs, Direction: dir, Status: StatusSkipped})

		return result, nil
	}

	entry := newEntry(cs, dir, deploymentID)

	e.fireProgress(ProgressEvent{ChangeSet: cs, Direction: dir, Status: StatusStarting})

	start := e.now()
	execErr := e.execStep(ctx, step, entry, stmts)
	duration := e.now().Sub(start)

	if execErr != nil {
		return fail(execErr, duration)
	}

	result.Status = StatusCompleted
	result.Duration = duration
	result.OrderExecuted = entry.OrderExecuted

	e.metrics.ObserveStep(string(dir), StatusCompleted, duration)
	e.fireProgress(ProgressEvent{ChangeSet: cs, Direction: dir, Status: StatusCompleted, Duration: duration})
	e.logger.InfoContext(ctx, "changeset "+string(entry.ExecType),
		"changeset", cs.Key().String(), "order_executed", entry.OrderExecuted, "duration", duration)

	return result, nil
}

// executeStep runs the statements and the ledger append in one
// transaction. Non-transactional ChangeSets run statement by statement
// first; their ledger entry then commits on its own.
func (e *Executor) executeStep(ctx context.Context, step planner.Step, entry *ledger.Entry, stmts []translator.Statement) error {
	if !step.ChangeSet.RunInTransaction {
		for _, stmt := range stmts {
			if err := ExecWithoutTransaction(ctx, e.db, stmt); err != nil {
				return err
			}
		}

		return ExecInTransaction(ctx, e.db, func(tx database.Tx) error {
			return e.ledger.Append(ctx, tx, entry)
		})
	}

	return ExecInTransaction(ctx, e.db, func(tx database.Tx) error {
		if err := e.applyTimeouts(ctx, tx); err != nil {
			return err
		}

		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt.SQL, stmt.Args...); err != nil {
				return fmt.Errorf("executing %q: %w", abbreviate(stmt.SQL), err)
			}
		}

		return e.ledger.Append(ctx, tx, entry)
	})
}

func newEntry(cs *migration.ChangeSet, dir planner.Direction, deploymentID string) *ledger.Entry {
	execType := ledger.Executed
	if dir == planner.Reverse {
		execType = ledger.Rollback
	}

	return &ledger.Entry{
		ID:           cs.ID,
		Author:       cs.Author,
		Filename:     cs.Filename,
		ExecType:     execType,
		MD5Sum:       cs.Checksum,
		Description:  cs.Description,
		Comments:     cs.Comment,
		Contexts:     strings.Join(cs.Contexts, ","),
		Labels:       strings.Join(cs.Labels, ","),
		DeploymentID: deploymentID,
	}
}

func renderStatements(stmts []translator.Statement) []string {
	out := make([]string, len(stmts))
	for i, s := range stmts {
		out[i] = s.String()
	}

	return out
}

func abbreviate(sql string) string {
	const maxLen = 80

	sql = migration.NormalizeSQL(sql)
	if len(sql) <= maxLen {
		return sql
	}

	return sql[:maxLen] + "..."
}

func (e *Executor) fireProgress(event ProgressEvent) {
	if e.onProgress != nil {
		e.onProgress(event)
	}
}

type nopRecorder struct{}

func (nopRecorder) ObserveStep(string, string, time.Duration) {}
func (nopRecorder) ObserveLockWait(time.Duration)            {}
