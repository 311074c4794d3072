package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	cases := map[string]struct {
		err  error
		kind string
	}{
		"nil":          {err: nil, kind: ""},
		"not found":    {err: fmt.Errorf("task T-1: %w", ErrNotFound), kind: KindNotFound},
		"invalid":      {err: Invalidf("amount must be positive"), kind: KindInvalidArgument},
		"conflict":     {err: Conflictf("task already settled"), kind: KindConflict},
		"insufficient": {err: fmt.Errorf("debit: %w", ErrInsufficientBalance), kind: KindInsufficientBalance},
		"idempotency":  {err: ErrIdempotencyConflict, kind: KindConflict},
		"unauthorized": {err: ErrUnauthorized, kind: KindUnauthorized},
		"internal":     {err: errors.New("boom"), kind: KindInternal},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.kind, KindOf(tc.err))
		})
	}
}

func TestActorFromContext(t *testing.T) {
	require.Equal(t, "system", ActorFromContext(context.Background()))
	ctx := ContextWithBranch(context.Background(), "colombo")
	require.Equal(t, "colombo", BranchFromContext(ctx))
	require.Equal(t, "branch:colombo", ActorFromContext(ctx))
}

func TestMemoryIdempotency(t *testing.T) {
	store := NewMemoryIdempotency()
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "k1", "payments"))
	require.ErrorIs(t, store.CheckAndInsert(ctx, "k1", "payments"), ErrIdempotencyConflict)
	require.ErrorIs(t, store.CheckAndInsert(ctx, "", "payments"), ErrInvalidArgument)

	require.NoError(t, store.Delete(ctx, "k1"))
	require.NoError(t, store.CheckAndInsert(ctx, "k1", "payments"))
}

func TestMemoryIdempotencyCleanup(t *testing.T) {
	store := NewMemoryIdempotency()
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	store.now = func() time.Time { return now.Add(-8 * 24 * time.Hour) }
	require.NoError(t, store.CheckAndInsert(ctx, "old", "payments"))
	store.now = func() time.Time { return now }
	require.NoError(t, store.CheckAndInsert(ctx, "fresh", "payments"))

	removed, err := store.Cleanup(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
	require.NoError(t, store.CheckAndInsert(ctx, "old", "payments"))
	require.ErrorIs(t, store.CheckAndInsert(ctx, "fresh", "payments"), ErrIdempotencyConflict)
}

func TestSlogAuditorRequiresIdentity(t *testing.T) {
	auditor := SlogAuditor{}
	ctx := context.Background()

	require.Error(t, auditor.Record(ctx, AuditLog{Action: "payment.record", Entity: "task"}))
	require.NoError(t, auditor.Record(ctx, AuditLog{Actor: "branch:colombo", Action: "payment.record", Entity: "task", EntityID: "T-1"}))
}
