package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/printhub/printhub/internal/inventory"
	"github.com/printhub/printhub/internal/ledger"
	"github.com/printhub/printhub/internal/shared"
)

// ResolutionMetrics counts deferred payment resolutions.
type ResolutionMetrics interface {
	ObserveDeferredResolution(method, outcome string)
}

// Resolution asks to move a task's deferred payment to a terminal state.
type Resolution struct {
	TaskID  string
	Outcome ledger.ClearanceStatus
	Notes   string
	// Branch scopes the lookup; a task of another branch is reported as not found.
	Branch string
}

// ClearanceConfig groups optional collaborators of Clearance.
type ClearanceConfig struct {
	Logger  *slog.Logger
	Locker  shared.Locker
	Audit   AuditPort
	Metrics ResolutionMetrics
	Clock   func() time.Time

	// Resolver restocks the lines of a task whose cheque is returned. Without it a
	// returned cheque only reverses the money.
	Resolver *inventory.Resolver
}

// Clearance resolves cheque, online and credit settlements parked by the payment engine.
type Clearance struct {
	store    ledger.Store
	resolver *inventory.Resolver
	logger   *slog.Logger
	locker   shared.Locker
	audit    AuditPort
	metrics  ResolutionMetrics
	now      func() time.Time
}

// NewClearance constructs Clearance.
func NewClearance(store ledger.Store, cfg ClearanceConfig) *Clearance {
	c := &Clearance{
		store:    store,
		resolver: cfg.Resolver,
		logger:   cfg.Logger,
		locker:   cfg.Locker,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		now:      cfg.Clock,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.locker == nil {
		c.locker = shared.NewLocalLocker()
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// ResolveCheque clears or returns the pending cheque of a task. A cleared cheque
// completes the task. A returned cheque moves it to Returned, takes the bounced amount
// back off the order and task and restocks the lines released at settlement, so the
// task can be paid again as if newly settling.
func (c *Clearance) ResolveCheque(ctx context.Context, res Resolution) (ledger.Task, error) {
	if res.Outcome != ledger.ClearanceCleared && res.Outcome != ledger.ClearanceReturned {
		return ledger.Task{}, shared.Invalidf("settlement: cheque outcome must be cleared or returned, got %q", res.Outcome)
	}
	var misses []inventory.Miss
	task, err := c.mutate(ctx, res, ledger.MethodCheque, func(ctx context.Context, tx ledger.Tx, task *ledger.Task, pending []ledger.DeferredPayment) error {
		if task.LastPaymentMethod != ledger.MethodCheque || task.ChequeStatus != ledger.ClearancePending {
			return shared.Conflictf("settlement: task %s has no pending cheque", task.ID)
		}
		task.ChequeStatus = res.Outcome
		if res.Outcome == ledger.ClearanceCleared {
			task.Status = ledger.TaskCompleted
			return nil
		}
		task.Status = ledger.TaskReturned
		task.ChequeNotes = res.Notes
		var err error
		misses, err = c.reverseCheque(ctx, tx, task, pending)
		return err
	})
	if err != nil {
		return ledger.Task{}, err
	}
	if c.resolver != nil {
		c.resolver.ReportMisses(ctx, misses)
	}
	c.logger.Info("cheque resolved",
		slog.String("task_id", task.ID),
		slog.String("outcome", string(res.Outcome)),
		slog.String("status", string(task.Status)),
		slog.String("advance_payment", task.AdvancePayment.String()))
	return task, nil
}

// reverseCheque undoes the settlement a bounced cheque paid for.
func (c *Clearance) reverseCheque(ctx context.Context, tx ledger.Tx, task *ledger.Task, pending []ledger.DeferredPayment) ([]inventory.Miss, error) {
	bounced := decimal.Zero
	for _, payment := range pending {
		bounced = bounced.Add(payment.Amount)
	}
	order, err := tx.GetOrderForUpdate(ctx, task.OrderID)
	if err != nil {
		return nil, err
	}
	order.AdvancePayment = decimal.Max(order.AdvancePayment.Sub(bounced), decimal.Zero)
	order.UpdatedAt = c.now()
	if err := tx.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	task.AdvancePayment = order.AdvancePayment
	task.FullPayment = decimal.Zero
	task.EndPrice = decimal.Zero
	task.EndTime = nil

	if c.resolver == nil {
		return nil, nil
	}
	var misses []inventory.Miss
	for _, line := range task.Lines() {
		_, miss, err := c.resolver.Restock(ctx, tx, line.ProductRef, line.Consumed(), task.Branch)
		if err != nil {
			return nil, err
		}
		if miss != nil {
			miss.TaskID = task.ID
			misses = append(misses, *miss)
		}
	}
	return misses, nil
}

// ResolveOnlinePayment confirms or fails the pending online payments of a task. A failed
// transfer leaves the task status and inventory untouched and is only flagged. Online
// payments recorded as partials stay resolvable after the task settles by another method;
// they move to the outcome without changing the task status.
func (c *Clearance) ResolveOnlinePayment(ctx context.Context, res Resolution) (ledger.Task, error) {
	if res.Outcome != ledger.ClearanceConfirmed && res.Outcome != ledger.ClearanceFailed {
		return ledger.Task{}, shared.Invalidf("settlement: online outcome must be confirmed or failed, got %q", res.Outcome)
	}
	task, err := c.mutate(ctx, res, ledger.MethodOnline, func(_ context.Context, _ ledger.Tx, task *ledger.Task, pending []ledger.DeferredPayment) error {
		settledOnline := task.OnlinePaymentStatus == ledger.ClearancePending
		if !settledOnline && len(pending) == 0 {
			return shared.Conflictf("settlement: task %s has no pending online payment", task.ID)
		}
		task.OnlinePaymentStatus = res.Outcome
		if res.Outcome == ledger.ClearanceFailed {
			task.OnlinePaymentNotes = res.Notes
		} else if settledOnline {
			task.Status = ledger.TaskCompleted
		}
		return nil
	})
	if err != nil {
		return ledger.Task{}, err
	}
	if res.Outcome == ledger.ClearanceFailed {
		c.logger.Warn("online payment failed",
			slog.String("task_id", task.ID),
			slog.String("branch", task.Branch),
			slog.String("status", string(task.Status)),
			slog.String("notes", res.Notes))
	} else {
		c.logger.Info("online payment confirmed", slog.String("task_id", task.ID))
	}
	return task, nil
}

// CompleteCreditSettlement completes a credit-settled task parked in TemporaryCompleted.
// The credit was already debited when the payment was recorded.
func (c *Clearance) CompleteCreditSettlement(ctx context.Context, taskID, branch string) (ledger.Task, error) {
	res := Resolution{TaskID: taskID, Outcome: ledger.ClearanceConfirmed, Branch: branch}
	task, err := c.mutate(ctx, res, "", func(_ context.Context, _ ledger.Tx, task *ledger.Task, _ []ledger.DeferredPayment) error {
		if task.Status != ledger.TaskTemporaryCompleted || !task.IsCreditSettled() {
			return shared.Conflictf("settlement: task %s is not awaiting credit clearance", task.ID)
		}
		task.Status = ledger.TaskCompleted
		return nil
	})
	if err != nil {
		return ledger.Task{}, err
	}
	c.logger.Info("credit settlement completed", slog.String("task_id", task.ID))
	return task, nil
}

// ListDeferred returns deferred payments for review queues.
func (c *Clearance) ListDeferred(ctx context.Context, filter ledger.DeferredFilter) ([]ledger.DeferredPayment, error) {
	if filter.Status != "" && filter.Status != ledger.ClearancePending && !filter.Status.IsTerminal() {
		return nil, shared.Invalidf("settlement: unknown status %q", filter.Status)
	}
	if filter.Method != "" && !filter.Method.IsDeferred() {
		return nil, shared.Invalidf("settlement: %q is not a deferred method", filter.Method)
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return c.store.ListDeferredPayments(ctx, filter)
}

// mutate runs fn on the locked task with the pending deferred payments of method and,
// when method is set, moves those records to res.Outcome in the same transaction.
func (c *Clearance) mutate(ctx context.Context, res Resolution, method ledger.PaymentMethod,
	fn func(ctx context.Context, tx ledger.Tx, task *ledger.Task, pending []ledger.DeferredPayment) error) (ledger.Task, error) {
	if res.TaskID == "" {
		return ledger.Task{}, shared.Invalidf("settlement: task id required")
	}
	release, err := c.locker.Acquire(ctx, shared.TaskLockKey(res.TaskID))
	if err != nil {
		return ledger.Task{}, err
	}
	defer release()

	var saved ledger.Task
	err = c.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		task, err := tx.GetTaskForUpdate(ctx, res.TaskID)
		if err != nil {
			return err
		}
		if res.Branch != "" && task.Branch != res.Branch {
			return fmt.Errorf("settlement: task %s: %w", res.TaskID, shared.ErrNotFound)
		}
		var pending []ledger.DeferredPayment
		if method != "" {
			payments, err := tx.ListDeferredPaymentsForTask(ctx, task.ID, method)
			if err != nil {
				return err
			}
			for _, payment := range payments {
				if payment.Status == ledger.ClearancePending {
					pending = append(pending, payment)
				}
			}
		}
		if err := fn(ctx, tx, &task, pending); err != nil {
			return err
		}
		now := c.now()
		task.UpdatedAt = now

		for _, payment := range pending {
			payment.Status = res.Outcome
			payment.Notes = res.Notes
			payment.ResolvedAt = &now
			if err := tx.SaveDeferredPayment(ctx, payment); err != nil {
				return err
			}
		}

		saved, err = tx.SaveTask(ctx, task)
		return err
	})
	if err != nil {
		return ledger.Task{}, err
	}

	label := string(method)
	if label == "" {
		label = string(ledger.MethodCredits)
	}
	if c.metrics != nil {
		c.metrics.ObserveDeferredResolution(label, string(res.Outcome))
	}
	if c.audit != nil {
		if err := c.audit.Record(ctx, shared.AuditLog{
			Actor:    shared.ActorFromContext(ctx),
			Action:   "settlement." + label + ".resolve",
			Entity:   "task",
			EntityID: saved.ID,
			Meta: map[string]any{
				"outcome": string(res.Outcome),
				"status":  string(saved.Status),
				"notes":   res.Notes,
			},
		}); err != nil {
			c.logger.Warn("audit settlement resolution", slog.Any("error", err), slog.String("task_id", saved.ID))
		}
	}
	return saved, nil
}
