package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/printhub/printhub/internal/ledger"
	"github.com/printhub/printhub/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes manual stock adjustments on top of the Resolver.
type Service struct {
	store    ledger.Store
	resolver *Resolver
	audit    AuditPort
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(store ledger.Store, resolver *Resolver, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, resolver: resolver, audit: audit, logger: logger}
}

// Adjust applies a signed manual correction. Unlike settlement releases, an
// unresolvable reference is reported to the caller as NotFound.
func (s *Service) Adjust(ctx context.Context, input AdjustmentInput) (Movement, error) {
	ref := strings.TrimSpace(input.ProductRef)
	if input.Branch == "" {
		return Movement{}, shared.Invalidf("inventory: branch required")
	}
	if IsNotApplicable(ref) {
		return Movement{}, shared.Invalidf("inventory: product reference required")
	}
	if input.Quantity.IsZero() {
		return Movement{}, shared.Invalidf("inventory: quantity must be non zero")
	}

	var (
		movement *Movement
		miss     *Miss
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		if input.Quantity.IsPositive() {
			movement, miss, err = s.resolver.Restock(ctx, tx, ref, input.Quantity, input.Branch)
		} else {
			movement, miss, err = s.resolver.Release(ctx, tx, ref, input.Quantity.Neg(), input.Branch)
		}
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	if miss != nil {
		return Movement{}, fmt.Errorf("inventory: no item matches %q in branch %s (tried %s): %w",
			ref, input.Branch, strings.Join(miss.Tried, ", "), shared.ErrNotFound)
	}

	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    actorOr(ctx, input.Actor),
			Action:   "inventory.adjust",
			Entity:   "inventory_item",
			EntityID: movement.ItemID,
			Meta: map[string]any{
				"product_ref": ref,
				"delta":       movement.Delta.String(),
				"quantity":    movement.Quantity.String(),
				"note":        input.Note,
			},
		}); err != nil {
			s.logger.Warn("audit inventory adjustment", slog.Any("error", err))
		}
	}
	s.logger.Info("inventory adjusted",
		slog.String("item_id", movement.ItemID),
		slog.String("branch", input.Branch),
		slog.String("delta", movement.Delta.String()),
		slog.String("status", string(movement.Status)))
	return *movement, nil
}

func actorOr(ctx context.Context, actor string) string {
	if actor != "" {
		return actor
	}
	return shared.ActorFromContext(ctx)
}
