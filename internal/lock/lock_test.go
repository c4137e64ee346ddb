package lock_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/changelog-migrate/internal/database"
	"github.com/aqasim81/changelog-migrate/internal/ledger"
	"github.com/aqasim81/changelog-migrate/internal/lock"
)

func openDB(t *testing.T) database.DB {
	t.Helper()

	ctx := context.Background()

	db, err := database.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "lock.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, ledger.New(db).EnsureSchema(ctx))

	return db
}

func clockAt(t time.Time) lock.Option {
	return lock.WithClock(func() time.Time { return t })
}

func TestAcquire_secondOwnerFailsFastWithHolder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openDB(t)

	first := lock.New(db, lock.WithOwner("first"), lock.WithWait(0))
	second := lock.New(db, lock.WithOwner("second"), lock.WithWait(0))

	h, err := first.Acquire(ctx)
	require.NoError(t, err)

	_, err = second.Acquire(ctx)
	require.ErrorIs(t, err, lock.ErrLockHeld)

	var held *lock.HeldError
	require.ErrorAs(t, err, &held)
	assert.Equal(t, "first", held.LockedBy)
	assert.False(t, held.Since.IsZero())

	require.NoError(t, h.Release(ctx))

	h2, err := second.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, h2.Release(ctx))
}

func TestAcquire_sameOwnerCannotReenter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := lock.New(openDB(t), lock.WithWait(0))

	h, err := m.Acquire(ctx)
	require.NoError(t, err)

	defer h.Release(ctx) //nolint:errcheck // test cleanup

	_, err = m.Acquire(ctx)
	require.ErrorIs(t, err, lock.ErrLockHeld)
}

func TestAcquire_waitsForRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openDB(t)

	holder, err := lock.New(db, lock.WithOwner("holder")).Acquire(ctx)
	require.NoError(t, err)

	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = holder.Release(context.Background())
	}()

	h, err := lock.New(db, lock.WithOwner("waiter"), lock.WithWait(5*time.Second)).Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, h.Release(ctx))
}

func TestAcquire_boundedWaitGivesUp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openDB(t)

	_, err := lock.New(db, lock.WithOwner("holder")).Acquire(ctx)
	require.NoError(t, err)

	start := time.Now()
	_, err = lock.New(db, lock.WithOwner("waiter"), lock.WithWait(300*time.Millisecond)).Acquire(ctx)

	require.ErrorIs(t, err, lock.ErrLockHeld)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAcquire_cancelledContext(t *testing.T) {
	t.Parallel()

	db := openDB(t)

	_, err := lock.New(db, lock.WithOwner("holder")).Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = lock.New(db, lock.WithOwner("waiter"), lock.WithWait(time.Minute)).Acquire(ctx)

	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second, "cancellation cuts the wait short")
}

func TestAcquire_reclaimsStaleLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openDB(t)
	granted := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := lock.New(db, lock.WithOwner("crashed"), clockAt(granted)).Acquire(ctx)
	require.NoError(t, err)

	fresh := lock.New(db, lock.WithOwner("fresh"), lock.WithWait(0), lock.WithStaleAfter(5*time.Minute),
		clockAt(granted.Add(2*time.Minute)))
	_, err = fresh.Acquire(ctx)
	require.ErrorIs(t, err, lock.ErrLockHeld, "not stale yet")

	later := lock.New(db, lock.WithOwner("later"), lock.WithWait(0), lock.WithStaleAfter(5*time.Minute),
		clockAt(granted.Add(10*time.Minute)))
	h, err := later.Acquire(ctx)
	require.NoError(t, err)

	st, err := later.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Locked)
	assert.Equal(t, "later", st.LockedBy)

	require.NoError(t, h.Release(ctx))
}

func TestHandle_Release(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var nilHandle *lock.Handle
	require.NoError(t, nilHandle.Release(ctx))

	db := openDB(t)
	m := lock.New(db, lock.WithOwner("a"))

	h, err := m.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, h.Release(ctx))
	require.NoError(t, h.Release(ctx), "second release is a no-op")

	st, err := m.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Locked)
	assert.Empty(t, st.LockedBy)
}

func TestHandle_Release_doesNotStealAnotherOwnersLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openDB(t)

	a := lock.New(db, lock.WithOwner("a"))
	b := lock.New(db, lock.WithOwner("b"))

	ha, err := a.Acquire(ctx)
	require.NoError(t, err)

	prev, err := b.ForceRelease(ctx)
	require.NoError(t, err)
	assert.True(t, prev.Locked)
	assert.Equal(t, "a", prev.LockedBy)

	hb, err := b.Acquire(ctx)
	require.NoError(t, err)

	require.NoError(t, ha.Release(ctx))

	st, err := b.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Locked)
	assert.Equal(t, "b", st.LockedBy)

	require.NoError(t, hb.Release(ctx))
}

func TestStatus_missingRow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openDB(t)

	_, err := db.Exec(ctx, "DELETE FROM "+ledger.LockTable)
	require.NoError(t, err)

	_, err = lock.New(db).Status(ctx)
	require.ErrorIs(t, err, lock.ErrLockRowMissing)

	_, err = lock.New(db, lock.WithWait(time.Minute)).Acquire(ctx)
	require.ErrorIs(t, err, lock.ErrLockRowMissing, "non-lock errors are not retried")
}

func TestNew_defaultOwnerIsUnique(t *testing.T) {
	t.Parallel()

	a := lock.New(nil)
	b := lock.New(nil)

	assert.NotEqual(t, a.Owner(), b.Owner())
	assert.Contains(t, a.Owner(), "#")
}
