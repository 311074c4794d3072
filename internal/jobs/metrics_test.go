package jobmetrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func gathered(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] != pair.GetValue() {
					continue metrics
				}
			}
			if metric.GetCounter() != nil {
				return metric.GetCounter().GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s %v not gathered", name, labels)
	return 0
}

func TestTrackerRecordsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	const job = "settlement:deferred-sweep"

	require.NoError(t, metrics.Track(job).End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, metrics.Track(job).End(boom), boom)

	require.Equal(t, 1.0, gathered(t, registry, "printhub_jobs_total", map[string]string{"job": job, "status": "success"}))
	require.Equal(t, 1.0, gathered(t, registry, "printhub_jobs_total", map[string]string{"job": job, "status": "failure"}))
	require.Equal(t, 1.0, gathered(t, registry, "printhub_jobs_failures_total", map[string]string{"job": job}))
}

func TestTrackerSkipAndLastSuccess(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	const job = "inventory:resolution-miss"

	skip := fmt.Errorf("decode payload: %w", asynq.SkipRetry)
	require.ErrorIs(t, metrics.Track(job).End(skip), asynq.SkipRetry)
	require.Equal(t, 1.0, gathered(t, registry, "printhub_jobs_total", map[string]string{"job": job, "status": StatusSkipped}))

	finished := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	tracker := metrics.Track(job)
	tracker.start = finished.Add(-time.Second)
	tracker.now = func() time.Time { return finished }
	require.NoError(t, tracker.End(nil))
	require.Equal(t, float64(finished.Unix()), gathered(t, registry, "printhub_job_last_success_timestamp_seconds", map[string]string{"job": job}))
}

func TestOutcome(t *testing.T) {
	require.Equal(t, StatusSuccess, Outcome(nil))
	require.Equal(t, StatusSkipped, Outcome(asynq.SkipRetry))
	require.Equal(t, StatusFailure, Outcome(errors.New("redis down")))
}

func TestSetOverdue(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.SetOverdue("cheque", 4)
	metrics.SetOverdue("cheque", 2)
	require.Equal(t, 2.0, gathered(t, registry, "printhub_deferred_overdue", map[string]string{"method": "cheque"}))
}

func TestNilMetrics(t *testing.T) {
	var metrics *Metrics
	require.NoError(t, metrics.Track("x").End(nil))
	metrics.SetOverdue("online", 1)
}
