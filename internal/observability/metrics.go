// Package observability provides the metrics and tracing the core emits
// through at its suspension points: prometheus counters and histograms for
// ingestion/calculation/materialiser/scheduler throughput, and an otel
// tracer for the database, catalogue and bus hops.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/paulwilltell/carbonplane/internal/core"
)

// Metrics holds the prometheus instruments the core increments directly.
// One Metrics value is constructed per process and threaded into the
// ingestion, calculation, materialiser and scheduler packages.
type Metrics struct {
	IngestionDuration   prometheus.Histogram
	IngestionCount      *prometheus.CounterVec
	IngestionErrors     *prometheus.CounterVec
	RecordsIngested     prometheus.Counter

	CalculationDuration prometheus.Histogram
	CalculationCount    *prometheus.CounterVec

	MaterialiserDuration prometheus.Histogram
	MaterialiserCount    *prometheus.CounterVec

	SchedulerJobDuration *prometheus.HistogramVec
	SchedulerJobCount    *prometheus.CounterVec
	SchedulerSkippedNonReentrant *prometheus.CounterVec

	EventsPublished *prometheus.CounterVec
}

// NewMetrics constructs and registers every instrument against reg. Pass
// prometheus.NewRegistry() in tests to avoid polluting the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "carbonplane",
			Subsystem: "ingestion",
			Name:      "duration_seconds",
			Help:      "Duration of a single ingest() call.",
			Buckets:   prometheus.DefBuckets,
		}),
		IngestionCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carbonplane",
			Subsystem: "ingestion",
			Name:      "total",
			Help:      "Number of ingest() calls by input type.",
		}, []string{"input_type"}),
		IngestionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carbonplane",
			Subsystem: "ingestion",
			Name:      "errors_total",
			Help:      "Number of ingest() calls that failed, by error kind.",
		}, []string{"kind"}),
		RecordsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "carbonplane",
			Subsystem: "ingestion",
			Name:      "records_total",
			Help:      "Total measurement entries persisted.",
		}),
		CalculationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "carbonplane",
			Subsystem: "calc",
			Name:      "duration_seconds",
			Help:      "Duration of a single calculation dispatch.",
			Buckets:   prometheus.DefBuckets,
		}),
		CalculationCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carbonplane",
			Subsystem: "calc",
			Name:      "total",
			Help:      "Number of calculations performed, by scope type and outcome.",
		}, []string{"scope_type", "outcome"}),
		MaterialiserDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "carbonplane",
			Subsystem: "summary",
			Name:      "recompute_duration_seconds",
			Help:      "Duration of a single summary recomputation.",
			Buckets:   prometheus.DefBuckets,
		}),
		MaterialiserCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carbonplane",
			Subsystem: "summary",
			Name:      "recompute_total",
			Help:      "Number of summary recomputations, by period type.",
		}, []string{"period_type"}),
		SchedulerJobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "carbonplane",
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of a scheduled job run, by job name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		SchedulerJobCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carbonplane",
			Subsystem: "scheduler",
			Name:      "job_total",
			Help:      "Number of scheduled job runs, by job name and outcome.",
		}, []string{"job", "outcome"}),
		SchedulerSkippedNonReentrant: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carbonplane",
			Subsystem: "scheduler",
			Name:      "skipped_non_reentrant_total",
			Help:      "Ticks skipped because the previous run of that job was still in flight.",
		}, []string{"job"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carbonplane",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Change-notification events published, by event type.",
		}, []string{"event_type"}),
	}

	reg.MustRegister(
		m.IngestionDuration, m.IngestionCount, m.IngestionErrors, m.RecordsIngested,
		m.CalculationDuration, m.CalculationCount,
		m.MaterialiserDuration, m.MaterialiserCount,
		m.SchedulerJobDuration, m.SchedulerJobCount, m.SchedulerSkippedNonReentrant,
		m.EventsPublished,
	)
	return m
}

// ObserveIngestion starts timing an Ingest call for the given variant and
// returns a closure the caller defers with the call's outcome. A nil error
// counts one record ingested; a non-nil error increments IngestionErrors
// keyed by its core.ErrorKind instead.
func (m *Metrics) ObserveIngestion(variant string) func(error) {
	start := time.Now()
	return func(err error) {
		m.IngestionDuration.Observe(time.Since(start).Seconds())
		m.IngestionCount.WithLabelValues(variant).Inc()
		if err != nil {
			m.IngestionErrors.WithLabelValues(string(core.KindOf(err))).Inc()
			return
		}
		m.RecordsIngested.Inc()
	}
}

// ObserveCalculation starts timing a single calc.Engine.Calculate dispatch
// and returns a closure the caller defers with the scope type and whether
// the calculation succeeded.
func (m *Metrics) ObserveCalculation(scopeType string) func(err error) {
	start := time.Now()
	return func(err error) {
		m.CalculationDuration.Observe(time.Since(start).Seconds())
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		m.CalculationCount.WithLabelValues(scopeType, outcome).Inc()
	}
}

// ObserveMaterialiser starts timing a summary recomputation for periodType
// and returns a closure the caller defers when the recomputation completes.
func (m *Metrics) ObserveMaterialiser(periodType string) func() {
	start := time.Now()
	return func() {
		m.MaterialiserDuration.Observe(time.Since(start).Seconds())
		m.MaterialiserCount.WithLabelValues(periodType).Inc()
	}
}

// ObserveSchedulerJob starts timing a scheduled job run and returns a
// closure the caller defers with the job's outcome ("ok", "error", or any
// other caller-chosen label).
func (m *Metrics) ObserveSchedulerJob(job string) func(outcome string) {
	start := time.Now()
	return func(outcome string) {
		m.SchedulerJobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
		m.SchedulerJobCount.WithLabelValues(job, outcome).Inc()
	}
}

// SkippedNonReentrant records a tick skipped because the previous run of
// job was still in flight.
func (m *Metrics) SkippedNonReentrant(job string) {
	m.SchedulerSkippedNonReentrant.WithLabelValues(job).Inc()
}

// RecordEventPublished records one change-notification event of eventType
// published to the bus.
func (m *Metrics) RecordEventPublished(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
}
