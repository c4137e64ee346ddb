package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/changelog-migrate/internal/database"
	"github.com/aqasim81/changelog-migrate/internal/ledger"
	"github.com/aqasim81/changelog-migrate/internal/migration"
	"github.com/aqasim81/changelog-migrate/internal/planner"
	"github.com/aqasim81/changelog-migrate/internal/translator"
)

// mockLock implements lockReleaser for testing.
type mockLock struct {
	mu       sync.Mutex
	released bool
	ctxErr   error
	err      error
}

func (m *mockLock) Release(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.released = true
	m.ctxErr = ctx.Err()

	return m.err
}

// mockLedger implements Ledger for testing.
type mockLedger struct {
	ensureErr error
	loadErr   error
	history   ledger.History
	appended  []ledger.Entry
}

func (m *mockLedger) EnsureSchema(_ context.Context) error { return m.ensureErr }

func (m *mockLedger) Load(_ context.Context) (ledger.History, error) {
	return m.history, m.loadErr
}

func (m *mockLedger) Append(_ context.Context, _ database.Querier, e *ledger.Entry) error {
	e.OrderExecuted = int64(len(m.appended) + 1)
	m.appended = append(m.appended, *e)

	return nil
}

// dialectOnly satisfies database.DB for code paths that only need the dialect.
type dialectOnly struct {
	database.DB
}

func (dialectOnly) Dialect() database.Dialect { return database.SQLite }

type recordedStep struct {
	direction, status string
}

type mockRecorder struct {
	steps    []recordedStep
	lockWait int
}

func (m *mockRecorder) ObserveStep(direction, status string, _ time.Duration) {
	m.steps = append(m.steps, recordedStep{direction, status})
}

func (m *mockRecorder) ObserveLockWait(time.Duration) { m.lockWait++ }

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testChangeSet(id string) *migration.ChangeSet {
	cs := &migration.ChangeSet{
		ID: id, Author: "x", Filename: "changelog.yaml", RunInTransaction: true,
		Changes:  []migration.Change{&migration.CreateTable{TableName: "t" + id, Columns: []migration.Column{{Name: "id", Type: "INTEGER"}}}},
		Rollback: []migration.Change{&migration.DropTable{TableName: "t" + id}},
		Contexts: []string{"dev", "test"},
	}
	cs.Description = migration.Describe(cs.Changes)
	cs.Checksum = migration.ComputeChecksum(cs)

	return cs
}

func forwardPlan(ids ...string) PlanFunc {
	return func(_ ledger.History) (*planner.Plan, error) {
		p := &planner.Plan{Direction: planner.Forward}
		for _, id := range ids {
			cs := testChangeSet(id)
			p.Steps = append(p.Steps, planner.Step{ChangeSet: cs, Changes: cs.Changes})
		}

		return p, nil
	}
}

func newTestExecutor(ml *mockLedger, lk *mockLock, exec stepExecFunc) *Executor {
	return &Executor{
		db:              dialectOnly{},
		ledger:          ml,
		logger:          discardLogger(),
		metrics:         nopRecorder{},
		now:             time.Now,
		newDeploymentID: func() string { return "dep-1" },
		acquireLock:     func(_ context.Context) (lockReleaser, error) { return lk, nil },
		execStep:        exec,
	}
}

// recordingExec appends the entry through the ledger like executeStep does.
func recordingExec(ml *mockLedger) stepExecFunc {
	return func(ctx context.Context, _ planner.Step, entry *ledger.Entry, _ []translator.Statement) error {
		return ml.Append(ctx, nil, entry)
	}
}

func TestRun_appliesAllStepsInOrder(t *testing.T) {
	t.Parallel()

	ml := &mockLedger{}
	lk := &mockLock{}
	rec := &mockRecorder{}

	var events []ProgressEvent

	e := newTestExecutor(ml, lk, recordingExec(ml))
	e.metrics = rec
	e.onProgress = func(ev ProgressEvent) { events = append(events, ev) }

	report, err := e.Run(context.Background(), forwardPlan("1", "2"))
	require.NoError(t, err)

	assert.Equal(t, "dep-1", report.DeploymentID)
	assert.Equal(t, planner.Forward, report.Direction)
	assert.Equal(t, 2, report.Completed())
	assert.Equal(t, int64(2), report.Steps[1].OrderExecuted)

	require.Len(t, ml.appended, 2)
	assert.Equal(t, "1", ml.appended[0].ID)
	assert.Equal(t, ledger.Executed, ml.appended[0].ExecType)
	assert.Equal(t, "dep-1", ml.appended[0].DeploymentID)
	assert.Equal(t, "dev,test", ml.appended[0].Contexts)
	assert.Equal(t, "createTable tableName=t1", ml.appended[0].Description)

	// 2 starting + 2 completed = 4 events.
	require.Len(t, events, 4)
	assert.Equal(t, StatusStarting, events[0].Status)
	assert.Equal(t, StatusCompleted, events[1].Status)

	assert.Equal(t, 1, rec.lockWait)
	assert.Equal(t, []recordedStep{{"update", StatusCompleted}, {"update", StatusCompleted}}, rec.steps)
	assert.True(t, lk.released)
}

func TestRun_reverseRecordsRollbackEntries(t *testing.T) {
	t.Parallel()

	ml := &mockLedger{}
	e := newTestExecutor(ml, &mockLock{}, recordingExec(ml))

	cs := testChangeSet("1")
	plan := func(_ ledger.History) (*planner.Plan, error) {
		return &planner.Plan{Direction: planner.Reverse, Steps: []planner.Step{{ChangeSet: cs, Changes: cs.Rollback}}}, nil
	}

	_, err := e.Run(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, ml.appended, 1)
	assert.Equal(t, ledger.Rollback, ml.appended[0].ExecType)
	assert.Equal(t, cs.Checksum, ml.appended[0].MD5Sum)
}

func TestRun_stepFailureStopsRunAndReleasesLock(t *testing.T) {
	t.Parallel()

	ml := &mockLedger{}
	lk := &mockLock{}
	dbErr := errors.New("relation already exists")

	var events []ProgressEvent

	e := newTestExecutor(ml, lk, func(ctx context.Context, step planner.Step, entry *ledger.Entry, _ []translator.Statement) error {
		if step.ChangeSet.ID == "2" {
			return dbErr
		}

		return ml.Append(ctx, nil, entry)
	})
	e.onProgress = func(ev ProgressEvent) { events = append(events, ev) }

	report, err := e.Run(context.Background(), forwardPlan("1", "2", "3"))

	require.ErrorIs(t, err, ErrExecutionFailed)
	require.ErrorIs(t, err, dbErr)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, migration.Key{ID: "2", Author: "x"}, stepErr.Key)
	assert.Contains(t, err.Error(), "2::x")

	require.Len(t, report.Steps, 2)
	assert.Equal(t, StatusCompleted, report.Steps[0].Status)
	assert.Equal(t, StatusFailed, report.Steps[1].Status)
	assert.Equal(t, "relation already exists", report.Steps[1].Error)

	require.Len(t, ml.appended, 1, "step 1 stays committed, step 3 never runs")
	assert.True(t, lk.released)

	last := events[len(events)-1]
	assert.Equal(t, StatusFailed, last.Status)
	assert.ErrorIs(t, last.Error, dbErr)
}

func TestRun_planErrorReleasesLockAndRunsNothing(t *testing.T) {
	t.Parallel()

	ml := &mockLedger{}
	lk := &mockLock{}
	called := false

	e := newTestExecutor(ml, lk, func(context.Context, planner.Step, *ledger.Entry, []translator.Statement) error {
		called = true
		return nil
	})

	_, err := e.Run(context.Background(), func(ledger.History) (*planner.Plan, error) {
		return nil, planner.ErrRollbackUndefined
	})

	require.ErrorIs(t, err, planner.ErrRollbackUndefined)
	assert.False(t, called)
	assert.True(t, lk.released)
}

func TestRun_lockError(t *testing.T) {
	t.Parallel()

	lockErr := errors.New("lock held")
	e := newTestExecutor(&mockLedger{}, nil, nil)
	e.acquireLock = func(context.Context) (lockReleaser, error) { return nil, lockErr }

	_, err := e.Run(context.Background(), forwardPlan("1"))

	require.ErrorIs(t, err, lockErr)
	assert.Contains(t, err.Error(), "acquiring migration lock")
}

func TestRun_ensureSchemaErrorSkipsLock(t *testing.T) {
	t.Parallel()

	locked := false
	e := newTestExecutor(&mockLedger{ensureErr: errors.New("create table failed")}, nil, nil)
	e.acquireLock = func(context.Context) (lockReleaser, error) {
		locked = true
		return &mockLock{}, nil
	}

	_, err := e.Run(context.Background(), forwardPlan("1"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create table failed")
	assert.False(t, locked)
}

func TestRun_loadErrorReleasesLock(t *testing.T) {
	t.Parallel()

	lk := &mockLock{}
	e := newTestExecutor(&mockLedger{loadErr: ledger.ErrLedgerCorrupt}, lk, nil)

	_, err := e.Run(context.Background(), forwardPlan("1"))

	require.ErrorIs(t, err, ledger.ErrLedgerCorrupt)
	assert.True(t, lk.released)
}

func TestRun_releaseErrorIsReported(t *testing.T) {
	t.Parallel()

	ml := &mockLedger{}
	relErr := errors.New("connection reset")
	e := newTestExecutor(ml, &mockLock{err: relErr}, recordingExec(ml))

	_, err := e.Run(context.Background(), forwardPlan("1"))
	require.ErrorIs(t, err, relErr)
}

func TestRun_cancellationBetweenSteps(t *testing.T) {
	t.Parallel()

	ml := &mockLedger{}
	lk := &mockLock{}
	ctx, cancel := context.WithCancel(context.Background())

	e := newTestExecutor(ml, lk, func(ctx context.Context, _ planner.Step, entry *ledger.Entry, _ []translator.Statement) error {
		cancel()
		return ml.Append(ctx, nil, entry)
	})

	report, err := e.Run(ctx, forwardPlan("1", "2"))

	require.ErrorIs(t, err, ErrInterrupted)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, report.Completed())
	assert.Len(t, ml.appended, 1)
	assert.True(t, lk.released)
	assert.NoError(t, lk.ctxErr, "release runs with a live context")
}

func TestRun_dryRunRendersStatementsOnly(t *testing.T) {
	t.Parallel()

	ml := &mockLedger{}
	lk := &mockLock{}
	called := false

	var events []ProgressEvent

	e := newTestExecutor(ml, lk, func(context.Context, planner.Step, *ledger.Entry, []translator.Statement) error {
		called = true
		return nil
	})
	e.dryRun = true
	e.onProgress = func(ev ProgressEvent) { events = append(events, ev) }

	report, err := e.Run(context.Background(), forwardPlan("1"))
	require.NoError(t, err)

	assert.False(t, called)
	assert.Empty(t, ml.appended)
	assert.True(t, report.DryRun)
	require.Len(t, report.Steps, 1)
	assert.Equal(t, StatusSkipped, report.Steps[0].Status)
	assert.Equal(t, []string{"CREATE TABLE t1 (id INTEGER)"}, report.Steps[0].Statements)
	require.Len(t, events, 1)
	assert.Equal(t, StatusSkipped, events[0].Status)
	assert.True(t, lk.released)
}

func TestFireProgress_nilCallback_noPanic(t *testing.T) {
	t.Parallel()

	e := &Executor{}

	assert.NotPanics(t, func() {
		e.fireProgress(ProgressEvent{ChangeSet: testChangeSet("1"), Status: StatusCompleted})
	})
}

func TestAbbreviate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "SELECT 1", abbreviate("SELECT\n   1"))

	long := abbreviate("INSERT INTO very_long_table_name (a, b, c, d, e, f, g) VALUES (1, 2, 3, 4, 5, 6, 7), (8, 9, 10, 11, 12, 13, 14)")
	assert.Len(t, long, 83)
	assert.True(t, len(long) > 80)
}
