// Package metrics records migration run metrics in a private Prometheus
// registry. A one-shot CLI has nothing to scrape, so the registry is
// written to a node_exporter textfile at the end of a run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "changelog_migrate"

// Recorder wraps the run metrics. A nil *Recorder discards everything.
type Recorder struct {
	registry *prometheus.Registry

	Steps        *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	LockWait     prometheus.Histogram
	LastRun      prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		registry: reg,
		Steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changesets_total",
			Help:      "Changesets processed, by direction and outcome",
		}, []string{"direction", "status"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "changeset_duration_seconds",
			Help:      "Time spent executing one changeset",
			Buckets:   prometheus.DefBuckets,
		}, []string{"direction"}),
		LockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the migration lock",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the metrics were last written",
		}),
	}

	reg.MustRegister(r.Steps, r.StepDuration, r.LockWait, r.LastRun)

	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}

	return r.registry
}

// ObserveStep counts one processed changeset.
func (r *Recorder) ObserveStep(direction, status string, d time.Duration) {
	if r == nil {
		return
	}

	r.Steps.WithLabelValues(direction, status).Inc()
	r.StepDuration.WithLabelValues(direction).Observe(d.Seconds())
}

// ObserveLockWait records how long lock acquisition took.
func (r *Recorder) ObserveLockWait(d time.Duration) {
	if r == nil {
		return
	}

	r.LockWait.Observe(d.Seconds())
}

// WriteToTextfile stamps LastRun and writes the registry to path in the
// Prometheus text format. The file is replaced atomically.
func (r *Recorder) WriteToTextfile(path string, now time.Time) error {
	if r == nil || path == "" {
		return nil
	}

	r.LastRun.Set(float64(now.Unix()))

	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}

	return nil
}
