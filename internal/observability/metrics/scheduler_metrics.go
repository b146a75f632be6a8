package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics captures scheduler job health.
type SchedulerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	jobSkipped     *prometheus.CounterVec
	runLoopLag     prometheus.Observer
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the singleton scheduler metrics registry.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// ResetSchedulerMetricsForTest resets the scheduler metrics singleton for tests.
func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := cfg.constLabels()

	m := &SchedulerMetrics{
		jobRuns: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ledger_scheduler_job_runs_total",
			Help:        "Scheduler job runs by name.",
			ConstLabels: constLabels,
		}, []string{"job"})),
		jobDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "ledger_scheduler_job_duration_seconds",
			Help:        "Scheduler job latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		}, []string{"job"})),
		jobTimeouts: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ledger_scheduler_job_timeouts_total",
			Help:        "Scheduler jobs that hit their soft timeout.",
			ConstLabels: constLabels,
		}, []string{"job"})),
		jobErrors: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ledger_scheduler_job_errors_total",
			Help:        "Scheduler job errors by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"})),
		batchProcessed: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ledger_scheduler_batch_processed_total",
			Help:        "Items processed by scheduler jobs.",
			ConstLabels: constLabels,
		}, []string{"job", "resource"})),
		jobSkipped: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ledger_scheduler_job_skipped_total",
			Help:        "Scheduler job runs skipped, by reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"})),
		runLoopLag: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "ledger_scheduler_runloop_lag_seconds",
			Help:        "Scheduler run loop lag beyond the configured interval.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			ConstLabels: constLabels,
		})),
	}
	return m
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		m.jobTimeouts.WithLabelValues(job).Inc()
	}
	m.jobErrors.WithLabelValues(job, ClassifyErrorReason(err)).Inc()
}

func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
}

func (m *SchedulerMetrics) IncJobSkipped(job, reason string) {
	if m == nil {
		return
	}
	m.jobSkipped.WithLabelValues(job, reason).Inc()
}

func (m *SchedulerMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.runLoopLag.Observe(duration.Seconds())
}
