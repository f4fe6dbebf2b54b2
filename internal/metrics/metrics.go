// Package metrics provides Prometheus-based metrics collection for scanweave.
// It tracks job throughput, retry behavior, worker pool occupancy, and
// result-store activity.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	namespace = "scanweave"

	subsystemJobs  = "jobs"
	subsystemStore = "store"
	subsystemPool  = "pool"
)

// Metrics holds all Prometheus metric collectors for the application.
type Metrics struct {
	jobsTotal     *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobRetries    *prometheus.CounterVec
	parseErrors   prometheus.Counter
	activeWorkers prometheus.Gauge
	queuedJobs    prometheus.Gauge
	storeCommits  prometheus.Counter
	storeQueries  prometheus.Counter

	registry *prometheus.Registry
}

// New creates a metrics instance with all collectors registered on a
// fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystemJobs,
				Name:      "total",
				Help:      "Total number of scan jobs by mode and terminal status.",
			},
			[]string{"mode", "status"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystemJobs,
				Name:      "duration_seconds",
				Help:      "Wall-clock duration of scan job execution.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"mode"},
		),
		jobRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystemJobs,
				Name:      "retries_total",
				Help:      "Number of retry attempts triggered by transient failures.",
			},
			[]string{"mode"},
		),
		parseErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystemJobs,
				Name:      "parse_errors_total",
				Help:      "Number of engine outputs that could not be parsed.",
			},
		),
		activeWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystemPool,
				Name:      "active_workers",
				Help:      "Number of workers currently executing a job.",
			},
		),
		queuedJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystemPool,
				Name:      "queued_jobs",
				Help:      "Number of jobs waiting in the queue.",
			},
		),
		storeCommits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystemStore,
				Name:      "commits_total",
				Help:      "Number of scan results committed to the store.",
			},
		),
		storeQueries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystemStore,
				Name:      "queries_total",
				Help:      "Number of queries served by the store.",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.jobRetries,
		m.parseErrors,
		m.activeWorkers,
		m.queuedJobs,
		m.storeCommits,
		m.storeQueries,
	)
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncrementJobsTotal records a terminal job outcome.
func (m *Metrics) IncrementJobsTotal(mode, status string) {
	m.jobsTotal.WithLabelValues(mode, status).Inc()
}

// RecordJobDuration records how long a job execution took.
func (m *Metrics) RecordJobDuration(mode string, d time.Duration) {
	m.jobDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// IncrementJobRetries records one retry attempt.
func (m *Metrics) IncrementJobRetries(mode string) {
	m.jobRetries.WithLabelValues(mode).Inc()
}

// IncrementParseErrors records one unparseable engine output.
func (m *Metrics) IncrementParseErrors() {
	m.parseErrors.Inc()
}

// SetActiveWorkers sets the active worker gauge.
func (m *Metrics) SetActiveWorkers(n int) {
	m.activeWorkers.Set(float64(n))
}

// AddActiveWorkers adjusts the active worker gauge by delta.
func (m *Metrics) AddActiveWorkers(delta int) {
	m.activeWorkers.Add(float64(delta))
}

// SetQueuedJobs sets the queued jobs gauge.
func (m *Metrics) SetQueuedJobs(n int) {
	m.queuedJobs.Set(float64(n))
}

// IncrementStoreCommits records one committed result.
func (m *Metrics) IncrementStoreCommits() {
	m.storeCommits.Inc()
}

// IncrementStoreQueries records one store query.
func (m *Metrics) IncrementStoreQueries() {
	m.storeQueries.Inc()
}

var (
	globalMetrics *Metrics
	globalOnce    sync.Once
)

// GetGlobalMetrics returns the process-wide metrics instance, creating it
// on first use.
func GetGlobalMetrics() *Metrics {
	globalOnce.Do(func() {
		globalMetrics = New()
	})
	return globalMetrics
}
