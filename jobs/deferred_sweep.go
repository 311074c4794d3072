package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/printhub/printhub/internal/jobs"
	"github.com/printhub/printhub/internal/ledger"
)

// DeferredLister lists deferred payments; ledger.Store satisfies it.
type DeferredLister interface {
	ListDeferredPayments(ctx context.Context, filter ledger.DeferredFilter) ([]ledger.DeferredPayment, error)
}

// DeferredSweepJob reports pending cheque and online payments older than After.
type DeferredSweepJob struct {
	Store   DeferredLister
	After   time.Duration
	Limit   int
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewDeferredSweepJob wires dependencies for the sweep handler.
func NewDeferredSweepJob(store DeferredLister, after time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *DeferredSweepJob {
	return &DeferredSweepJob{
		Store:   store,
		After:   after,
		Limit:   500,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes sweep tasks.
func (j *DeferredSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("deferred sweep: handler not configured")
	}
	var payload DeferredSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("deferred sweep: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	_, err := j.Sweep(ctx, payload.Branch)
	return err
}

// Sweep logs every overdue pending payment and returns them.
func (j *DeferredSweepJob) Sweep(ctx context.Context, branch string) (overdue []ledger.DeferredPayment, err error) {
	tracker := j.metrics().Track(TaskDeferredSweep)
	defer func() {
		err = tracker.End(err)
	}()

	after := j.After
	if after <= 0 {
		after = 72 * time.Hour
	}
	cutoff := j.now().Add(-after)
	logger := j.logger().With(slog.Time("cutoff", cutoff))

	overdue, err = j.Store.ListDeferredPayments(ctx, ledger.DeferredFilter{
		Branch:        branch,
		Status:        ledger.ClearancePending,
		CreatedBefore: cutoff,
		Limit:         j.Limit,
	})
	if err != nil {
		logger.Error("list overdue deferred payments", slog.Any("error", err))
		return nil, err
	}

	counts := map[ledger.PaymentMethod]int{ledger.MethodCheque: 0, ledger.MethodOnline: 0}
	for _, payment := range overdue {
		counts[payment.Method]++
		logger.Warn("deferred payment overdue for clearance",
			slog.String("deferred_id", payment.ID),
			slog.String("task_id", payment.TaskID),
			slog.String("order_id", payment.OrderID),
			slog.String("branch", payment.Branch),
			slog.String("method", string(payment.Method)),
			slog.String("amount", payment.Amount.String()),
			slog.String("cheque_number", payment.ChequeNumber),
			slog.String("bill_number", payment.BillNumber),
			slog.Time("created_at", payment.CreatedAt))
	}
	for method, count := range counts {
		j.metrics().SetOverdue(string(method), count)
	}
	logger.Info("deferred sweep completed", slog.Int("overdue", len(overdue)))
	return overdue, nil
}

func (j *DeferredSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDeferredSweep))
	}
	return slog.Default().With(slog.String("job", TaskDeferredSweep))
}

func (j *DeferredSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *DeferredSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
