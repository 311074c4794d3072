package payments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/printhub/printhub/internal/inventory"
	"github.com/printhub/printhub/internal/ledger"
	"github.com/printhub/printhub/internal/settlement"
	"github.com/printhub/printhub/internal/shared"
)

// CreditPort debits customer credit inside the payment transaction.
type CreditPort interface {
	ApplyCreditTx(ctx context.Context, tx ledger.CreditTx, change settlement.CreditChange) (ledger.CreditAccount, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics counts recorded payments.
type Metrics interface {
	ObservePayment(method, outcome string)
}

// Config groups optional collaborators of Engine.
type Config struct {
	Logger  *slog.Logger
	Locker  shared.Locker
	Audit   AuditPort
	Metrics Metrics
	Clock   func() time.Time
}

// Engine records payments. Every call on one task runs under the task lock and in a
// single store transaction, so concurrent settlements cannot double release stock or
// double consume credit.
type Engine struct {
	store    ledger.Store
	resolver *inventory.Resolver
	credits  CreditPort
	logger   *slog.Logger
	locker   shared.Locker
	audit    AuditPort
	metrics  Metrics
	now      func() time.Time
}

// NewEngine constructs Engine.
func NewEngine(store ledger.Store, resolver *inventory.Resolver, credits CreditPort, cfg Config) *Engine {
	e := &Engine{
		store:    store,
		resolver: resolver,
		credits:  credits,
		logger:   cfg.Logger,
		locker:   cfg.Locker,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		now:      cfg.Clock,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.locker == nil {
		e.locker = shared.NewLocalLocker()
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	return e
}

// RecordPayment applies one payment to a task and its order.
func (e *Engine) RecordPayment(ctx context.Context, input PaymentInput) (Result, error) {
	details, err := e.validate(&input)
	if err != nil {
		e.observe(input.Method, "rejected")
		return Result{}, err
	}

	release, err := e.locker.Acquire(ctx, shared.TaskLockKey(input.TaskID))
	if err != nil {
		e.observe(input.Method, "locked")
		return Result{}, err
	}
	defer release()

	var result Result
	err = e.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		result, err = e.settle(ctx, tx, input, details)
		return err
	})
	if err != nil {
		e.observe(input.Method, "failed")
		if shared.KindOf(err) == shared.KindInternal {
			e.logger.Error("record payment", slog.Any("error", err), slog.String("task_id", input.TaskID))
		}
		return Result{}, err
	}

	e.resolver.ReportMisses(ctx, result.Plan.Misses)
	e.observe(input.Method, outcomeLabel(result))
	e.record(ctx, input, result)
	e.logger.Info("payment recorded",
		slog.String("task_id", result.Task.ID),
		slog.String("order_id", result.Order.ID),
		slog.String("method", string(input.Method)),
		slog.String("amount", input.Amount.String()),
		slog.String("status", string(result.Task.Status)),
		slog.Int("inventory_releases", len(result.Plan.InventoryReleases)),
		slog.Int("resolution_misses", len(result.Plan.Misses)))
	return result, nil
}

func (e *Engine) validate(input *PaymentInput) (*ledger.MethodDetails, error) {
	input.TaskID = strings.TrimSpace(input.TaskID)
	if input.TaskID == "" {
		return nil, shared.Invalidf("payments: task id required")
	}
	if !input.Amount.IsPositive() {
		return nil, shared.Invalidf("payments: amount must be positive, got %s", input.Amount)
	}
	if !hasCents(input.Amount) {
		return nil, shared.Invalidf("payments: amount %s has more than %d decimal places", input.Amount, moneyScale)
	}
	if !hasCents(input.DeclaredTotal) {
		return nil, shared.Invalidf("payments: declared total %s has more than %d decimal places", input.DeclaredTotal, moneyScale)
	}
	if !input.Method.IsValid() {
		return nil, shared.Invalidf("payments: unknown payment method %q", input.Method)
	}

	d := input.Details
	switch input.Method {
	case ledger.MethodCheque:
		if strings.TrimSpace(d.ChequeNumber) == "" || strings.TrimSpace(d.BankName) == "" {
			return nil, shared.Invalidf("payments: cheque payments require cheque number and bank name")
		}
		date := e.now()
		if d.ChequeDate != nil && !d.ChequeDate.IsZero() {
			date = d.ChequeDate.UTC()
		}
		return &ledger.MethodDetails{
			ChequeNumber: strings.TrimSpace(d.ChequeNumber),
			BankName:     strings.TrimSpace(d.BankName),
			ChequeDate:   &date,
		}, nil
	case ledger.MethodOnline:
		if strings.TrimSpace(d.BillNumber) == "" || strings.TrimSpace(d.BankName) == "" {
			return nil, shared.Invalidf("payments: online payments require bill number and bank name")
		}
		return &ledger.MethodDetails{
			BillNumber: strings.TrimSpace(d.BillNumber),
			BankName:   strings.TrimSpace(d.BankName),
		}, nil
	default:
		return nil, nil
	}
}

func (e *Engine) settle(ctx context.Context, tx ledger.Tx, input PaymentInput, details *ledger.MethodDetails) (Result, error) {
	task, err := tx.GetTaskForUpdate(ctx, input.TaskID)
	if err != nil {
		return Result{}, err
	}
	if input.Branch != "" && task.Branch != input.Branch {
		return Result{}, fmt.Errorf("payments: task %s: %w", input.TaskID, shared.ErrNotFound)
	}
	if task.Status.IsSettled() {
		return Result{}, shared.Conflictf("payments: task %s is already %s", task.ID, task.Status)
	}
	order, err := tx.GetOrderForUpdate(ctx, task.OrderID)
	if err != nil {
		return Result{}, err
	}

	lines := task.Lines()
	productTotal := decimal.Zero
	for _, line := range lines {
		productTotal = productTotal.Add(line.Total())
	}
	effectiveTotal := input.DeclaredTotal
	if !effectiveTotal.IsPositive() {
		effectiveTotal = decimal.Max(order.TotalPrice, productTotal)
	}
	if !effectiveTotal.IsPositive() {
		return Result{}, shared.Invalidf("payments: task %s has no price; declare a total", task.ID)
	}

	// Cheques and credit have no way to hand back an excess.
	if input.Method.HoldsSettlement() {
		if outstanding := effectiveTotal.Sub(order.AdvancePayment); input.Amount.GreaterThan(outstanding) {
			return Result{}, shared.Invalidf("payments: %s payment %s exceeds outstanding balance %s of task %s",
				input.Method, input.Amount, decimal.Max(outstanding, decimal.Zero), task.ID)
		}
	}

	var plan Plan
	if input.Method == ledger.MethodCredits {
		debit, err := e.debitCredit(ctx, tx, task, order, input.Amount)
		if err != nil {
			return Result{}, err
		}
		plan.CreditDebit = debit
	}

	if order.TotalPrice.IsZero() {
		order.TotalPrice = effectiveTotal
	}
	newPaid := order.AdvancePayment.Add(input.Amount)
	now := e.now()

	task.PaymentHistory = append(task.PaymentHistory, ledger.PaymentEntry{
		ID:      ledger.NewID(),
		Method:  input.Method,
		Amount:  input.Amount,
		Date:    now,
		Details: details,
	})

	if input.Method == ledger.MethodOnline {
		payment := newDeferred(task, order, input, details, now)
		if err := tx.InsertDeferredPayment(ctx, payment); err != nil {
			return Result{}, err
		}
		plan.DeferredPayments = append(plan.DeferredPayments, payment)
	}

	result := Result{Plan: plan}
	if newPaid.LessThan(effectiveTotal) {
		order.AdvancePayment = newPaid
		task.AdvancePayment = newPaid
		result.Message = MessagePartial
	} else {
		if err := e.complete(ctx, tx, &task, &order, &result, input, details, effectiveTotal, now); err != nil {
			return Result{}, err
		}
		result.Plan.Overpaid = newPaid.Sub(effectiveTotal)
	}

	order.UpdatedAt = now
	task.UpdatedAt = now
	if err := tx.SaveOrder(ctx, order); err != nil {
		return Result{}, err
	}
	saved, err := tx.SaveTask(ctx, task)
	if err != nil {
		return Result{}, err
	}
	result.Task = saved
	result.Order = order
	return result, nil
}

func (e *Engine) complete(ctx context.Context, tx ledger.Tx, task *ledger.Task, order *ledger.Order, result *Result,
	input PaymentInput, details *ledger.MethodDetails, effectiveTotal decimal.Decimal, now time.Time) error {
	order.AdvancePayment = effectiveTotal
	task.AdvancePayment = effectiveTotal
	task.FullPayment = effectiveTotal
	task.EndPrice = effectiveTotal
	task.EndTime = &now
	task.LastPaymentMethod = input.Method
	task.ChequeStatus = ""
	task.OnlinePaymentStatus = ""
	result.Settled = true

	switch {
	case input.Method.HoldsSettlement():
		task.Status = ledger.TaskTemporaryCompleted
		result.IsTemporaryCompleted = true
		result.Message = MessagePendingCredit
		if input.Method != ledger.MethodCheque {
			break
		}
		task.ChequeStatus = ledger.ClearancePending
		payment := newDeferred(*task, *order, input, details, now)
		if err := tx.InsertDeferredPayment(ctx, payment); err != nil {
			return err
		}
		result.Plan.DeferredPayments = append(result.Plan.DeferredPayments, payment)
		result.Message = MessagePendingCheque
	default:
		task.Status = ledger.TaskCompleted
		if input.Method == ledger.MethodOnline {
			task.OnlinePaymentStatus = ledger.ClearancePending
		}
		result.Message = MessageCompleted
	}

	// Goods count as delivered at settlement, whether or not the money has cleared.
	for _, line := range task.Lines() {
		movement, miss, err := e.resolver.Release(ctx, tx, line.ProductRef, line.Consumed(), task.Branch)
		if err != nil {
			return err
		}
		if movement != nil {
			result.Plan.InventoryReleases = append(result.Plan.InventoryReleases, *movement)
		}
		if miss != nil {
			miss.TaskID = task.ID
			result.Plan.Misses = append(result.Plan.Misses, *miss)
		}
	}
	return nil
}

func (e *Engine) debitCredit(ctx context.Context, tx ledger.Tx, task ledger.Task, order ledger.Order, amount decimal.Decimal) (*CreditDebit, error) {
	if e.credits == nil {
		return nil, fmt.Errorf("payments: credit ledger not configured")
	}
	if strings.TrimSpace(order.CustomerPhone) == "" {
		return nil, shared.Invalidf("payments: order %s has no customer contact for a credit payment", order.ID)
	}
	account, err := e.credits.ApplyCreditTx(ctx, tx, settlement.CreditChange{
		CustomerKey: order.CustomerPhone,
		Name:        order.CustomerName,
		Amount:      amount.Neg(),
		TaskID:      task.ID,
		Note:        "payment for order " + order.ID,
	})
	if err != nil {
		return nil, err
	}
	return &CreditDebit{CustomerKey: account.CustomerKey, Amount: amount, BalanceAfter: account.Balance}, nil
}

const moneyScale = 2

// hasCents reports whether v fits the two decimal places money is stored with.
func hasCents(v decimal.Decimal) bool {
	return v.Equal(v.Truncate(moneyScale))
}

func newDeferred(task ledger.Task, order ledger.Order, input PaymentInput, details *ledger.MethodDetails, now time.Time) ledger.DeferredPayment {
	payment := ledger.DeferredPayment{
		ID:            ledger.NewID(),
		TaskID:        task.ID,
		OrderID:       order.ID,
		Branch:        task.Branch,
		Method:        input.Method,
		Amount:        input.Amount,
		CustomerName:  order.CustomerName,
		CustomerPhone: order.CustomerPhone,
		Status:        ledger.ClearancePending,
		CreatedAt:     now,
	}
	if details != nil {
		payment.ChequeNumber = details.ChequeNumber
		payment.BankName = details.BankName
		payment.ChequeDate = details.ChequeDate
		payment.BillNumber = details.BillNumber
	}
	return payment
}

func outcomeLabel(result Result) string {
	switch {
	case !result.Settled:
		return "partial"
	case result.IsTemporaryCompleted:
		return "temporary_completed"
	default:
		return "completed"
	}
}

func (e *Engine) observe(method ledger.PaymentMethod, outcome string) {
	if e.metrics == nil {
		return
	}
	label := string(method)
	if !method.IsValid() {
		label = "unknown"
	}
	e.metrics.ObservePayment(label, outcome)
}

func (e *Engine) record(ctx context.Context, input PaymentInput, result Result) {
	if e.audit == nil {
		return
	}
	err := e.audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   "payment.record",
		Entity:   "task",
		EntityID: result.Task.ID,
		Meta: map[string]any{
			"order_id": result.Order.ID,
			"method":   string(input.Method),
			"amount":   input.Amount.String(),
			"status":   string(result.Task.Status),
			"message":  result.Message,
		},
	})
	if err != nil {
		e.logger.Warn("audit payment", slog.Any("error", err), slog.String("task_id", result.Task.ID))
	}
}
