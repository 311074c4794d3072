package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/printhub/printhub/internal/ledger"
	"github.com/printhub/printhub/internal/shared"
)

type auditStub struct {
	actions []string
}

func (a *auditStub) Record(_ context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

func newTestService() (*Service, *ledger.MemoryStore, *auditStub) {
	store := ledger.NewMemoryStore()
	audit := &auditStub{}
	clock := func() time.Time { return time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC) }
	return NewService(store, audit, nil, clock), store, audit
}

func TestBranchCode(t *testing.T) {
	require.Equal(t, "COL", BranchCode("colombo"))
	require.Equal(t, "KAN", BranchCode("  kandy-2"))
	require.Equal(t, "N1", BranchCode("n1"))
	require.Equal(t, "BR", BranchCode("--"))
}

func TestCreateGeneratesSequentialOrderIDs(t *testing.T) {
	svc, _, audit := newTestService()
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateInput{
		Branch:       "colombo",
		CustomerName: "Nimal",
		Products:     []ledger.LineItem{{ProductRef: "PID-1", UnitPrice: decimal.NewFromInt(25), Quantity: decimal.NewFromInt(4)}},
	})
	require.NoError(t, err)
	require.Equal(t, "COL-202602-00001", first.Order.ID)
	require.True(t, first.Order.TotalPrice.IsZero())
	require.Equal(t, ledger.TaskPending, first.Task.Status)
	require.Equal(t, first.Order.ID, first.Task.OrderID)
	require.EqualValues(t, 1, first.Task.Version)

	second, err := svc.Create(ctx, CreateInput{Branch: "colombo", CustomerName: "Kamal", ProductRef: "N/A"})
	require.NoError(t, err)
	require.Equal(t, "COL-202602-00002", second.Order.ID)

	other, err := svc.Create(ctx, CreateInput{Branch: "kandy", CustomerName: "Ruwan"})
	require.NoError(t, err)
	require.Equal(t, "KAN-202602-00001", other.Order.ID)
	require.Equal(t, []string{"task.create", "task.create", "task.create"}, audit.actions)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	cases := map[string]CreateInput{
		"no branch":         {CustomerName: "A"},
		"no customer":       {Branch: "colombo"},
		"negative total":    {Branch: "colombo", CustomerName: "A", TotalPrice: decimal.NewFromInt(-1)},
		"line without ref":  {Branch: "colombo", CustomerName: "A", Products: []ledger.LineItem{{Quantity: decimal.NewFromInt(1)}}},
		"line zero qty":     {Branch: "colombo", CustomerName: "A", Products: []ledger.LineItem{{ProductRef: "X"}}},
		"line negative fee": {Branch: "colombo", CustomerName: "A", Products: []ledger.LineItem{{ProductRef: "X", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(-2)}}},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, input)
			require.ErrorIs(t, err, shared.ErrInvalidArgument)
		})
	}
}

func TestTransitions(t *testing.T) {
	svc, _, audit := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Branch: "colombo", CustomerName: "Nimal"})
	require.NoError(t, err)
	id := created.Task.ID

	_, err = svc.SendToMainBranch(ctx, id, "colombo")
	require.ErrorIs(t, err, shared.ErrConflict)

	started, err := svc.Start(ctx, id, "colombo")
	require.NoError(t, err)
	require.Equal(t, ledger.TaskInProgress, started.Status)

	_, err = svc.Start(ctx, id, "colombo")
	require.ErrorIs(t, err, shared.ErrConflict)

	sent, err := svc.SendToMainBranch(ctx, id, "")
	require.NoError(t, err)
	require.Equal(t, ledger.TaskSentToMainBranch, sent.Status)
	require.Greater(t, sent.Version, started.Version)
	require.Contains(t, audit.actions, "task.send_to_main")
}

func TestBranchScoping(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Branch: "colombo", CustomerName: "Nimal"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, created.Task.ID, "kandy")
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.Start(ctx, created.Task.ID, "kandy")
	require.ErrorIs(t, err, shared.ErrNotFound)

	task, err := svc.Get(ctx, created.Task.ID, "colombo")
	require.NoError(t, err)
	require.Equal(t, ledger.TaskPending, task.Status)

	_, err = svc.Get(ctx, ledger.NewID(), "")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
