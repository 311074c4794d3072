package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/printhub/printhub/internal/jobs"
)

// KeyPruner removes idempotency keys older than a retention window.
type KeyPruner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob prunes stale payment idempotency keys.
type IdempotencyCleanupJob struct {
	Store   KeyPruner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes cleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Retention <= 0 {
		payload.Retention = 7 * 24 * time.Hour
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskIdempotencyCleanup)
	removed, err := j.Store.Cleanup(ctx, payload.Retention)
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err != nil {
		logger.Error("idempotency cleanup", slog.Any("error", err))
	} else {
		logger.Info("idempotency cleanup completed",
			slog.Duration("retention", payload.Retention),
			slog.Int64("removed", removed))
	}
	return tracker.End(err)
}
