package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/printhub/printhub/internal/ledger"
	"github.com/printhub/printhub/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles task intake and production transitions.
type Service struct {
	store  ledger.Store
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs Service. clock may be nil.
func NewService(store ledger.Store, audit AuditPort, logger *slog.Logger, clock func() time.Time) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{store: store, audit: audit, logger: logger, now: clock}
}

// Create opens an order and its Pending task. The order total may be zero; the first
// settling payment back-fills it.
func (s *Service) Create(ctx context.Context, input CreateInput) (Created, error) {
	input.Branch = strings.TrimSpace(input.Branch)
	if input.Branch == "" {
		return Created{}, shared.Invalidf("tasks: branch required")
	}
	if strings.TrimSpace(input.CustomerName) == "" {
		return Created{}, shared.Invalidf("tasks: customer name required")
	}
	if input.TotalPrice.IsNegative() {
		return Created{}, shared.Invalidf("tasks: total price cannot be negative")
	}
	for i, line := range input.Products {
		if strings.TrimSpace(line.ProductRef) == "" {
			return Created{}, shared.Invalidf("tasks: product %d has no reference", i)
		}
		if line.UnitPrice.IsNegative() || !line.Quantity.IsPositive() || line.Waste.IsNegative() {
			return Created{}, shared.Invalidf("tasks: product %d has invalid price, quantity or waste", i)
		}
	}

	now := s.now()
	var out Created
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		period := now.Format("200601")
		seq, err := tx.NextOrderSeq(ctx, input.Branch, period)
		if err != nil {
			return err
		}
		order := ledger.Order{
			ID:            fmt.Sprintf("%s-%s-%05d", BranchCode(input.Branch), period, seq),
			Branch:        input.Branch,
			CustomerName:  strings.TrimSpace(input.CustomerName),
			CustomerPhone: strings.TrimSpace(input.CustomerPhone),
			TotalPrice:    input.TotalPrice,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		task := ledger.Task{
			ID:         ledger.NewID(),
			OrderID:    order.ID,
			Branch:     input.Branch,
			Title:      strings.TrimSpace(input.Title),
			Products:   input.Products,
			ProductRef: strings.TrimSpace(input.ProductRef),
			Price:      input.Price,
			Quantity:   input.Quantity,
			Waste:      input.Waste,
			Status:     ledger.TaskPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.InsertTask(ctx, task); err != nil {
			return err
		}
		created, err := tx.GetTaskForUpdate(ctx, task.ID)
		if err != nil {
			return err
		}
		out = Created{Order: order, Task: created}
		return nil
	})
	if err != nil {
		return Created{}, err
	}

	s.record(ctx, "task.create", out.Task, map[string]any{"order_id": out.Order.ID})
	s.logger.Info("task created",
		slog.String("task_id", out.Task.ID),
		slog.String("order_id", out.Order.ID),
		slog.String("branch", out.Task.Branch))
	return out, nil
}

// Get returns a task visible to branch. An empty branch sees every task.
func (s *Service) Get(ctx context.Context, id, branch string) (ledger.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return ledger.Task{}, err
	}
	if branch != "" && task.Branch != branch {
		return ledger.Task{}, fmt.Errorf("tasks: task %s: %w", id, shared.ErrNotFound)
	}
	return task, nil
}

// Start moves a Pending task into production.
func (s *Service) Start(ctx context.Context, id, branch string) (ledger.Task, error) {
	return s.transition(ctx, id, branch, ledger.TaskPending, ledger.TaskInProgress, "task.start")
}

// SendToMainBranch hands an in-progress task over to the main branch.
func (s *Service) SendToMainBranch(ctx context.Context, id, branch string) (ledger.Task, error) {
	return s.transition(ctx, id, branch, ledger.TaskInProgress, ledger.TaskSentToMainBranch, "task.send_to_main")
}

func (s *Service) transition(ctx context.Context, id, branch string, from, to ledger.TaskStatus, action string) (ledger.Task, error) {
	var saved ledger.Task
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		task, err := tx.GetTaskForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if branch != "" && task.Branch != branch {
			return fmt.Errorf("tasks: task %s: %w", id, shared.ErrNotFound)
		}
		if task.Status != from {
			return shared.Conflictf("tasks: task %s is %s, expected %s", id, task.Status, from)
		}
		task.Status = to
		task.UpdatedAt = s.now()
		saved, err = tx.SaveTask(ctx, task)
		return err
	})
	if err != nil {
		return ledger.Task{}, err
	}
	s.record(ctx, action, saved, map[string]any{"from": string(from), "to": string(to)})
	return saved, nil
}

func (s *Service) record(ctx context.Context, action string, task ledger.Task, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "task",
		EntityID: task.ID,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit task", slog.String("action", action), slog.Any("error", err))
	}
}
