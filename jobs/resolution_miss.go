package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/printhub/printhub/internal/inventory"
	jobmetrics "github.com/printhub/printhub/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Enqueuer submits tasks; *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// MissReporter forwards resolution misses to the worker queue. It implements
// inventory.MissReporter.
type MissReporter struct {
	enqueuer Enqueuer
}

// NewMissReporter constructs MissReporter.
func NewMissReporter(enqueuer Enqueuer) *MissReporter {
	return &MissReporter{enqueuer: enqueuer}
}

// ReportMiss enqueues one miss.
func (r *MissReporter) ReportMiss(ctx context.Context, miss inventory.Miss) error {
	if r == nil || r.enqueuer == nil {
		return errors.New("jobs: miss reporter not configured")
	}
	task, err := NewResolutionMissTask(miss)
	if err != nil {
		return err
	}
	if _, err := r.enqueuer.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("jobs: enqueue resolution miss: %w", err)
	}
	return nil
}

var _ inventory.MissReporter = (*MissReporter)(nil)

// ResolutionMissJob records misses for stock reconciliation.
type ResolutionMissJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewResolutionMissJob wires dependencies for the miss handler.
func NewResolutionMissJob(logger *slog.Logger, metrics *jobmetrics.Metrics) *ResolutionMissJob {
	return &ResolutionMissJob{Logger: logger, Metrics: metrics}
}

// Handle processes resolution miss tasks.
func (j *ResolutionMissJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics().Track(TaskResolutionMiss)
	var payload ResolutionMissPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(fmt.Errorf("jobs: decode resolution miss: %v: %w", err, asynq.SkipRetry))
	}
	if strings.TrimSpace(payload.ProductRef) == "" {
		return tracker.End(fmt.Errorf("jobs: resolution miss without product ref: %w", asynq.SkipRetry))
	}

	j.logger().Warn("inventory reconciliation required",
		slog.String("product_ref", payload.ProductRef),
		slog.String("branch", payload.Branch),
		slog.String("quantity", payload.Quantity),
		slog.String("task_id", payload.TaskID),
		slog.Any("tried", payload.Tried),
		slog.Time("at", payload.At))
	return tracker.End(nil)
}

func (j *ResolutionMissJob) logger() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskResolutionMiss))
	}
	return slog.Default().With(slog.String("job", TaskResolutionMiss))
}

func (j *ResolutionMissJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
