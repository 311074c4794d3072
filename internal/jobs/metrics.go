package jobmetrics

import (
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes recorded on printhub_jobs_total.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

// Metrics holds the collectors the worker exposes for its handlers.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	overdue     *prometheus.GaugeVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors on registerer, or once on the default registerer
// when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = register(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return register(registerer)
}

// Tracker times a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
	now     func() time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now(), now: time.Now}
}

// End records the outcome of the run and returns err unchanged so handlers can
// `return tracker.End(err)`. asynq.SkipRetry counts as skipped, not failed: the
// payload was unusable and retrying would not help.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	end := t.now()
	status := Outcome(err)
	switch status {
	case StatusFailure:
		t.metrics.failures.WithLabelValues(t.job).Inc()
	case StatusSuccess:
		t.metrics.lastSuccess.WithLabelValues(t.job).Set(float64(end.Unix()))
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(end.Sub(t.start).Seconds())
	return err
}

// Outcome classifies a handler result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, asynq.SkipRetry):
		return StatusSkipped
	default:
		return StatusFailure
	}
}

// SetOverdue records how many deferred payments of method were overdue at the last sweep.
func (m *Metrics) SetOverdue(method string, count int) {
	if m == nil {
		return
	}
	m.overdue.WithLabelValues(method).Set(float64(count))
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "printhub_jobs_total",
			Help: "Job runs by job type and outcome.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "printhub_jobs_failures_total",
			Help: "Job runs that returned a retryable error.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "printhub_job_duration_seconds",
			Help:    "Wall time of job runs.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "printhub_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job type.",
		}, []string{"job"}),
		overdue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "printhub_deferred_overdue",
			Help: "Pending deferred payments older than the sweep threshold, by method.",
		}, []string{"method"}),
	}
	registerer.MustRegister(m.runs, m.failures, m.duration, m.lastSuccess, m.overdue)
	return m
}
