package inventory

import (
	"context"
	"errors"

	"github.com/printhub/printhub/internal/ledger"
	"github.com/printhub/printhub/internal/shared"
)

// Strategy resolves a product reference to an inventory item within one branch.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, tx ledger.InventoryTx, ref, branch string) (ledger.InventoryItem, bool, error)
}

// DefaultStrategies returns the lookup chain in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		identityStrategy{},
		fieldStrategy{name: "productId", field: ledger.FieldProductID},
		fieldStrategy{name: "productCode", field: ledger.FieldProductCode},
		catalogStrategy{},
	}
}

type identityStrategy struct{}

func (identityStrategy) Name() string { return "identity" }

func (identityStrategy) Resolve(ctx context.Context, tx ledger.InventoryTx, ref, branch string) (ledger.InventoryItem, bool, error) {
	if !ledger.IsIdentityKey(ref) {
		return ledger.InventoryItem{}, false, nil
	}
	return found(tx.GetInventoryItemByID(ctx, branch, ref))
}

type fieldStrategy struct {
	name  string
	field ledger.LookupField
}

func (s fieldStrategy) Name() string { return s.name }

func (s fieldStrategy) Resolve(ctx context.Context, tx ledger.InventoryTx, ref, branch string) (ledger.InventoryItem, bool, error) {
	return found(tx.FindInventoryItem(ctx, branch, s.field, ref))
}

// catalogStrategy follows a catalog product reference and retries the field lookups
// with each identifier the catalog entry carries.
type catalogStrategy struct{}

func (catalogStrategy) Name() string { return "catalog" }

func (catalogStrategy) Resolve(ctx context.Context, tx ledger.InventoryTx, ref, branch string) (ledger.InventoryItem, bool, error) {
	if !ledger.IsIdentityKey(ref) {
		return ledger.InventoryItem{}, false, nil
	}
	product, err := tx.GetCatalogProduct(ctx, ref)
	if errors.Is(err, shared.ErrNotFound) {
		return ledger.InventoryItem{}, false, nil
	}
	if err != nil {
		return ledger.InventoryItem{}, false, err
	}

	seen := map[string]bool{}
	for _, value := range []string{product.ProductID, product.ProductCode, product.Code} {
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		for _, field := range []ledger.LookupField{ledger.FieldProductID, ledger.FieldProductCode} {
			item, ok, err := found(tx.FindInventoryItem(ctx, branch, field, value))
			if err != nil || ok {
				return item, ok, err
			}
		}
	}
	return ledger.InventoryItem{}, false, nil
}

func found(item ledger.InventoryItem, err error) (ledger.InventoryItem, bool, error) {
	if errors.Is(err, shared.ErrNotFound) {
		return ledger.InventoryItem{}, false, nil
	}
	if err != nil {
		return ledger.InventoryItem{}, false, err
	}
	return item, true, nil
}
