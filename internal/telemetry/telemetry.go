// Package telemetry exposes Prometheus metrics for the reconciliation
// engine. All metrics live under the "intelsync" namespace.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "intelsync"

// Run outcome label values.
const (
	OutcomeCompleted = "completed"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Record result label values.
const (
	ResultSynced   = "synced"
	ResultError    = "error"
	ResultConflict = "conflict"
)

// Metrics holds the collectors published by the engine. A nil *Metrics is
// valid and records nothing, so tests can pass nil.
type Metrics struct {
	syncRuns       *prometheus.CounterVec
	recordsTotal   *prometheus.CounterVec
	syncDuration   prometheus.Histogram
	lastSyncUnix   prometheus.Gauge
	recordsPending prometheus.Gauge
}

// New registers the engine's collectors with reg and returns the handle
// the engine reports through.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Sync runs by outcome (completed, rejected, failed).",
		}, []string{"outcome"}),
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_records_total",
			Help:      "Records processed by sync runs, by result.",
		}, []string{"result"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_run_duration_seconds",
			Help:      "Wall-clock duration of completed sync runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		lastSyncUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_sync_timestamp_seconds",
			Help:      "Unix time of the last run that synced at least one record.",
		}),
		recordsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_pending",
			Help:      "Records eligible for submission at the start of the last run.",
		}),
	}
	reg.MustRegister(m.syncRuns, m.recordsTotal, m.syncDuration, m.lastSyncUnix, m.recordsPending)
	return m
}

// ObserveRun records the outcome and duration of one sync run.
func (m *Metrics) ObserveRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(outcome).Inc()
	if outcome == OutcomeCompleted {
		m.syncDuration.Observe(d.Seconds())
	}
}

// ObserveRecord counts one processed record by result.
func (m *Metrics) ObserveRecord(result string) {
	if m == nil {
		return
	}
	m.recordsTotal.WithLabelValues(result).Inc()
}

// SetPending reports how many records were eligible at run start.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.recordsPending.Set(float64(n))
}

// MarkSuccess records the time of a run that synced at least one record.
func (m *Metrics) MarkSuccess(ts time.Time) {
	if m == nil {
		return
	}
	m.lastSyncUnix.Set(float64(ts.Unix()))
}
