package metrics_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/changelog-migrate/internal/metrics"
)

func TestRecorder_ObserveStep(t *testing.T) {
	t.Parallel()

	r := metrics.New()

	r.ObserveStep("update", "completed", 20*time.Millisecond)
	r.ObserveStep("update", "completed", 30*time.Millisecond)
	r.ObserveStep("rollback", "failed", time.Millisecond)
	r.ObserveLockWait(5 * time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(r.Steps.WithLabelValues("update", "completed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.Steps.WithLabelValues("rollback", "failed")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(r.StepDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(r.LockWait))
}

func TestRecorder_nilIsNoop(t *testing.T) {
	t.Parallel()

	var r *metrics.Recorder

	assert.NotPanics(t, func() {
		r.ObserveStep("update", "completed", time.Second)
		r.ObserveLockWait(time.Second)
	})
	require.NoError(t, r.WriteToTextfile(filepath.Join(t.TempDir(), "x.prom"), time.Now()))
	assert.Nil(t, r.Registry())
}

func TestRecorder_WriteToTextfile(t *testing.T) {
	t.Parallel()

	r := metrics.New()
	r.ObserveStep("update", "completed", time.Second)

	path := filepath.Join(t.TempDir(), "migrate.prom")
	require.NoError(t, r.WriteToTextfile(path, time.Unix(1_700_000_000, 0)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, `changelog_migrate_changesets_total{direction="update",status="completed"} 1`)
	assert.Contains(t, out, "changelog_migrate_last_run_timestamp_seconds 1.7e+09")
}
