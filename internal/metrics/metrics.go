// Package metrics records migration run metrics on a private Prometheus
// registry. A nil *Recorder is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "migrator"

	LabelSuccess = "success"
	LabelFailure = "failure"
)

// Recorder holds the collectors of one migrator process.
type Recorder struct {
	registry *prometheus.Registry

	Migrations        *prometheus.CounterVec
	MigrationDuration *prometheus.HistogramVec
	Runs              *prometheus.CounterVec
	LockWait          prometheus.Histogram
	SchemaInfo        *prometheus.GaugeVec
}

// New creates a Recorder and registers its collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		Migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Count of migrations executed, by result",
		}, []string{"result"}),

		MigrationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "migration_duration_seconds",
			Help:      "Histogram of times spent applying a single migration",
			Buckets:   prometheus.ExponentialBuckets(1e-3, 5, 8),
		}, []string{"result"}),

		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Count of command runs, by command and result",
		}, []string{"command", "result"}),

		LockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Histogram of times spent waiting for the migration lock",
			Buckets:   prometheus.ExponentialBuckets(1e-3, 4, 8),
		}),

		SchemaInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "schema_info",
			Help:      "Current schema version, as a label on a constant 1",
		}, []string{"version"}),
	}
	r.registry.MustRegister(r.PrometheusCollectors()...)
	return r
}

// PrometheusCollectors returns the collectors owned by r.
func (r *Recorder) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		r.Migrations,
		r.MigrationDuration,
		r.Runs,
		r.LockWait,
		r.SchemaInfo,
	}
}

// Registry returns the registry the collectors are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveMigration records one migration attempt.
func (r *Recorder) ObserveMigration(d time.Duration, err error) {
	if r == nil {
		return
	}
	result := resultLabel(err)
	r.Migrations.WithLabelValues(result).Inc()
	r.MigrationDuration.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveRun records the outcome of a command.
func (r *Recorder) ObserveRun(command string, err error) {
	if r == nil {
		return
	}
	r.Runs.WithLabelValues(command, resultLabel(err)).Inc()
}

// ObserveLockWait records the time spent acquiring the migration lock.
func (r *Recorder) ObserveLockWait(d time.Duration) {
	if r == nil {
		return
	}
	r.LockWait.Observe(d.Seconds())
}

// SetSchemaVersion publishes v as the current schema version.
func (r *Recorder) SetSchemaVersion(v string) {
	if r == nil {
		return
	}
	r.SchemaInfo.Reset()
	r.SchemaInfo.WithLabelValues(v).Set(1)
}

// WriteTextfile writes the registry in the text exposition format for the
// node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

func resultLabel(err error) string {
	if err != nil {
		return LabelFailure
	}
	return LabelSuccess
}
