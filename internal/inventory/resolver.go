package inventory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/printhub/printhub/internal/ledger"
)

// MissReporter forwards resolution misses for stock reconciliation.
type MissReporter interface {
	ReportMiss(ctx context.Context, miss Miss) error
}

// MissMetrics counts resolution misses.
type MissMetrics interface {
	ObserveResolutionMiss(branch string)
}

// ResolverConfig groups optional collaborators.
type ResolverConfig struct {
	Logger     *slog.Logger
	Strategies []Strategy
	Reporter   MissReporter
	Metrics    MissMetrics
	Clock      func() time.Time
}

// Resolver applies quantity deltas to the inventory item a reference resolves to.
type Resolver struct {
	logger     *slog.Logger
	strategies []Strategy
	reporter   MissReporter
	metrics    MissMetrics
	now        func() time.Time
}

// NewResolver builds a Resolver using the default strategy chain unless overridden.
func NewResolver(cfg ResolverConfig) *Resolver {
	r := &Resolver{
		logger:     cfg.Logger,
		strategies: cfg.Strategies,
		reporter:   cfg.Reporter,
		metrics:    cfg.Metrics,
		now:        cfg.Clock,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if len(r.strategies) == 0 {
		r.strategies = DefaultStrategies()
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	return r
}

// Release decrements stock for ref by qty. Empty or N/A references and non-positive
// quantities are no-ops. An unresolved reference yields a Miss, not an error.
func (r *Resolver) Release(ctx context.Context, tx ledger.InventoryTx, ref string, qty decimal.Decimal, branch string) (*Movement, *Miss, error) {
	if IsNotApplicable(ref) || !qty.IsPositive() {
		return nil, nil, nil
	}
	return r.apply(ctx, tx, strings.TrimSpace(ref), qty.Neg(), branch)
}

// Restock increments stock for ref by qty using the same lookup chain.
func (r *Resolver) Restock(ctx context.Context, tx ledger.InventoryTx, ref string, qty decimal.Decimal, branch string) (*Movement, *Miss, error) {
	if IsNotApplicable(ref) || !qty.IsPositive() {
		return nil, nil, nil
	}
	return r.apply(ctx, tx, strings.TrimSpace(ref), qty, branch)
}

func (r *Resolver) apply(ctx context.Context, tx ledger.InventoryTx, ref string, delta decimal.Decimal, branch string) (*Movement, *Miss, error) {
	tried := make([]string, 0, len(r.strategies))
	for _, strategy := range r.strategies {
		tried = append(tried, strategy.Name())
		item, ok, err := strategy.Resolve(ctx, tx, ref, branch)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}

		item.Quantity = item.Quantity.Add(delta)
		item.Status = StockStatusFor(item.Quantity)
		item.UpdatedAt = r.now()
		if err := tx.SaveInventoryItem(ctx, item); err != nil {
			return nil, nil, err
		}
		return &Movement{
			ItemID:     item.ID,
			ProductRef: ref,
			Branch:     branch,
			Strategy:   strategy.Name(),
			Delta:      delta,
			Quantity:   item.Quantity,
			Status:     item.Status,
		}, nil, nil
	}

	return nil, &Miss{
		ProductRef: ref,
		Branch:     branch,
		Quantity:   delta.Abs(),
		Tried:      tried,
		At:         r.now(),
	}, nil
}

// ReportMisses logs, counts and forwards misses. Call it after the enclosing
// transaction committed; failures to forward are logged and dropped.
func (r *Resolver) ReportMisses(ctx context.Context, misses []Miss) {
	for _, miss := range misses {
		r.logger.Warn("inventory resolution miss",
			slog.String("product_ref", miss.ProductRef),
			slog.String("branch", miss.Branch),
			slog.String("quantity", miss.Quantity.String()),
			slog.String("task_id", miss.TaskID),
			slog.Any("tried", miss.Tried))
		if r.metrics != nil {
			r.metrics.ObserveResolutionMiss(miss.Branch)
		}
		if r.reporter == nil {
			continue
		}
		if err := r.reporter.ReportMiss(ctx, miss); err != nil {
			r.logger.Warn("report resolution miss", slog.Any("error", err), slog.String("product_ref", miss.ProductRef))
		}
	}
}
