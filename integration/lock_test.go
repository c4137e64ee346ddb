//go:build integration

package integration

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/aqasim81/changelog-migrate/internal/database"
	"github.com/aqasim81/changelog-migrate/internal/engine"
	"github.com/aqasim81/changelog-migrate/internal/ledger"
	"github.com/aqasim81/changelog-migrate/internal/lock"
)

func TestLock_concurrentUpdatesNeverInterleave(t *testing.T) {
	t.Parallel()

	_, dsn := SetupPostgres(t)
	ctx := context.Background()
	cl := tableChangelog(t, 5)

	const runners = 4

	completed := make([]int, runners)

	var g errgroup.Group

	for i := range runners {
		g.Go(func() error {
			// Separate pools so the runners really are separate clients.
			db, err := database.Open(ctx, dsn)
			if err != nil {
				return err
			}
			defer db.Close()

			eng := newEngine(db, engine.WithLockOptions(lock.WithWait(time.Minute)))

			report, err := eng.Update(ctx, cl)
			if err != nil {
				return err
			}

			completed[i] = report.Completed()

			return nil
		})
	}

	require.NoError(t, g.Wait())

	total := 0
	for _, n := range completed {
		total += n
	}

	assert.Equal(t, 5, total, "every changeset applied exactly once across all runners")

	db, err := database.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h, err := ledger.New(db).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, h.Len())

	for i, e := range h.Entries() {
		assert.Equal(t, int64(i+1), e.OrderExecuted)
		assert.Equal(t, cl.ChangeSets[i].ID, e.ID)
	}
}

func TestLock_heldLockFailsFast(t *testing.T) {
	t.Parallel()

	db, _ := SetupPostgres(t)
	ctx := context.Background()

	require.NoError(t, ledger.New(db).EnsureSchema(ctx))

	holder := lock.New(db, lock.WithOwner("other-host#1"), lock.WithLogger(slog.New(slog.DiscardHandler)))
	h, err := holder.Acquire(ctx)
	require.NoError(t, err)

	eng := newEngine(db, engine.WithLockOptions(lock.WithWait(0)))

	_, err = eng.Update(ctx, tableChangelog(t, 1))
	require.ErrorIs(t, err, lock.ErrLockHeld)
	assert.Contains(t, err.Error(), "other-host#1")
	assert.False(t, tableExists(t, db, "t1"))

	require.NoError(t, h.Release(ctx))

	_, err = eng.Update(ctx, tableChangelog(t, 1))
	require.NoError(t, err)
}

func TestLock_waitsForRelease(t *testing.T) {
	t.Parallel()

	db, _ := SetupPostgres(t)
	ctx := context.Background()

	require.NoError(t, ledger.New(db).EnsureSchema(ctx))

	holder := lock.New(db, lock.WithLogger(slog.New(slog.DiscardHandler)))
	h, err := holder.Acquire(ctx)
	require.NoError(t, err)

	time.AfterFunc(500*time.Millisecond, func() { _ = h.Release(context.Background()) })

	waiter := lock.New(db, lock.WithWait(10*time.Second), lock.WithLogger(slog.New(slog.DiscardHandler)))

	h2, err := waiter.Acquire(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, h2.Waited, 400*time.Millisecond)
	require.NoError(t, h2.Release(ctx))
}

func TestLedger_concurrentEnsureSchema(t *testing.T) {
	t.Parallel()

	_, dsn := SetupPostgres(t)
	ctx := context.Background()

	g, gctx := errgroup.WithContext(ctx)

	for range 4 {
		g.Go(func() error {
			db, err := database.Open(gctx, dsn)
			if err != nil {
				return err
			}
			defer db.Close()

			return ledger.New(db).EnsureSchema(gctx)
		})
	}

	require.NoError(t, g.Wait())
}
