package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/printhub/printhub/internal/ledger"
	"github.com/printhub/printhub/internal/shared"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type recordingReporter struct {
	misses []Miss
	err    error
}

func (r *recordingReporter) ReportMiss(_ context.Context, miss Miss) error {
	r.misses = append(r.misses, miss)
	return r.err
}

type countingMetrics struct {
	branches []string
}

func (m *countingMetrics) ObserveResolutionMiss(branch string) {
	m.branches = append(m.branches, branch)
}

func seedStore() (*ledger.MemoryStore, map[string]string) {
	store := ledger.NewMemoryStore()
	ids := map[string]string{
		"identity": ledger.NewID(),
		"pid":      ledger.NewID(),
		"code":     ledger.NewID(),
		"catalog":  ledger.NewID(),
		"other":    ledger.NewID(),
	}
	store.PutInventoryItem(ledger.InventoryItem{ID: ids["identity"], Branch: "colombo", Name: "A4 gloss", Quantity: dec(50)})
	store.PutInventoryItem(ledger.InventoryItem{ID: ids["pid"], Branch: "colombo", ProductID: "PID-100", Name: "Banner vinyl", Quantity: dec(12)})
	store.PutInventoryItem(ledger.InventoryItem{ID: ids["code"], Branch: "colombo", ProductCode: "MUG-11", Name: "Mug", Quantity: dec(3)})
	store.PutInventoryItem(ledger.InventoryItem{ID: ids["other"], Branch: "kandy", ProductID: "PID-200", Quantity: dec(40)})
	store.PutCatalogProduct(ledger.CatalogProduct{ID: ids["catalog"], Code: "MUG-11", Name: "Mug 11oz"})
	return store, ids
}

func releaseInTx(t *testing.T, store *ledger.MemoryStore, resolver *Resolver, ref string, qty decimal.Decimal, branch string) (*Movement, *Miss) {
	t.Helper()
	var (
		movement *Movement
		miss     *Miss
	)
	err := store.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		var err error
		movement, miss, err = resolver.Release(ctx, tx, ref, qty, branch)
		return err
	})
	require.NoError(t, err)
	return movement, miss
}

func TestStockStatusForIsPureFunctionOfQuantity(t *testing.T) {
	cases := []struct {
		qty  string
		want ledger.StockStatus
	}{
		{"-5", ledger.StockOutOfStock},
		{"0", ledger.StockOutOfStock},
		{"0.5", ledger.StockLow},
		{"10", ledger.StockLow},
		{"10.01", ledger.StockIn},
		{"250", ledger.StockIn},
	}
	for _, tc := range cases {
		t.Run(tc.qty, func(t *testing.T) {
			require.Equal(t, tc.want, StockStatusFor(decimal.RequireFromString(tc.qty)))
		})
	}
}

func TestReleaseNoOps(t *testing.T) {
	store, ids := seedStore()
	resolver := NewResolver(ResolverConfig{})

	for _, ref := range []string{"", "  ", "N/A", "n/a"} {
		movement, miss := releaseInTx(t, store, resolver, ref, dec(2), "colombo")
		require.Nil(t, movement)
		require.Nil(t, miss)
	}
	for _, qty := range []decimal.Decimal{decimal.Zero, dec(-3)} {
		movement, miss := releaseInTx(t, store, resolver, ids["identity"], qty, "colombo")
		require.Nil(t, movement)
		require.Nil(t, miss)
	}
	item, _ := store.InventoryItem(ids["identity"])
	require.True(t, item.Quantity.Equal(dec(50)))
}

func TestReleaseStrategyChain(t *testing.T) {
	cases := []struct {
		name     string
		ref      func(ids map[string]string) string
		itemKey  string
		strategy string
		want     decimal.Decimal
		status   ledger.StockStatus
	}{
		{"identity", func(ids map[string]string) string { return ids["identity"] }, "identity", "identity", dec(48), ledger.StockIn},
		{"product id", func(map[string]string) string { return "PID-100" }, "pid", "productId", dec(10), ledger.StockLow},
		{"product code", func(map[string]string) string { return "MUG-11" }, "code", "productCode", dec(1), ledger.StockLow},
		{"catalog", func(ids map[string]string) string { return ids["catalog"] }, "code", "catalog", dec(1), ledger.StockLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, ids := seedStore()
			resolver := NewResolver(ResolverConfig{})

			movement, miss := releaseInTx(t, store, resolver, tc.ref(ids), dec(2), "colombo")
			require.Nil(t, miss)
			require.NotNil(t, movement)
			require.Equal(t, tc.strategy, movement.Strategy)
			require.Equal(t, ids[tc.itemKey], movement.ItemID)

			item, ok := store.InventoryItem(ids[tc.itemKey])
			require.True(t, ok)
			require.True(t, item.Quantity.Equal(tc.want), item.Quantity.String())
			require.Equal(t, tc.status, item.Status)
		})
	}
}

func TestReleaseBelowZeroGoesOutOfStock(t *testing.T) {
	store, _ := seedStore()
	resolver := NewResolver(ResolverConfig{})

	movement, miss := releaseInTx(t, store, resolver, "MUG-11", dec(5), "colombo")
	require.Nil(t, miss)
	require.True(t, movement.Quantity.Equal(dec(-2)))
	require.Equal(t, ledger.StockOutOfStock, movement.Status)
}

func TestReleaseIsBranchScoped(t *testing.T) {
	store, ids := seedStore()
	resolver := NewResolver(ResolverConfig{})

	movement, miss := releaseInTx(t, store, resolver, "PID-200", dec(1), "colombo")
	require.Nil(t, movement)
	require.NotNil(t, miss)
	require.Equal(t, []string{"identity", "productId", "productCode", "catalog"}, miss.Tried)
	require.True(t, miss.Quantity.Equal(dec(1)))

	item, _ := store.InventoryItem(ids["other"])
	require.True(t, item.Quantity.Equal(dec(40)))
}

func TestReportMissesNeverFails(t *testing.T) {
	reporter := &recordingReporter{err: errors.New("queue down")}
	metrics := &countingMetrics{}
	resolver := NewResolver(ResolverConfig{Reporter: reporter, Metrics: metrics})

	resolver.ReportMisses(context.Background(), []Miss{
		{ProductRef: "X-1", Branch: "colombo", Quantity: dec(2)},
		{ProductRef: "X-2", Branch: "kandy", Quantity: dec(1)},
	})
	require.Len(t, reporter.misses, 2)
	require.Equal(t, []string{"colombo", "kandy"}, metrics.branches)
}

func TestServiceAdjust(t *testing.T) {
	store, ids := seedStore()
	svc := NewService(store, NewResolver(ResolverConfig{}), nil, nil)
	ctx := context.Background()

	movement, err := svc.Adjust(ctx, AdjustmentInput{Branch: "colombo", ProductRef: "MUG-11", Quantity: dec(20)})
	require.NoError(t, err)
	require.True(t, movement.Quantity.Equal(dec(23)))
	require.Equal(t, ledger.StockIn, movement.Status)

	movement, err = svc.Adjust(ctx, AdjustmentInput{Branch: "colombo", ProductRef: ids["identity"], Quantity: dec(-45)})
	require.NoError(t, err)
	require.True(t, movement.Quantity.Equal(dec(5)))
	require.Equal(t, ledger.StockLow, movement.Status)

	_, err = svc.Adjust(ctx, AdjustmentInput{Branch: "colombo", ProductRef: "UNKNOWN", Quantity: dec(1)})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Adjust(ctx, AdjustmentInput{Branch: "colombo", ProductRef: "MUG-11", Quantity: decimal.Zero})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = svc.Adjust(ctx, AdjustmentInput{Branch: "colombo", ProductRef: "n/a", Quantity: dec(1)})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}
