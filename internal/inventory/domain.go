// Package inventory resolves opaque product references to branch stock records and
// applies signed quantity deltas to them. It is the only writer of inventory quantity
// and stock status.
package inventory

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/printhub/printhub/internal/ledger"
)

// NotApplicable is the product reference placeholder for service-only lines.
const NotApplicable = "N/A"

// LowStockThreshold is the highest quantity still reported as LowStock.
var LowStockThreshold = decimal.NewFromInt(10)

// StockStatusFor derives the stock status from a quantity.
func StockStatusFor(qty decimal.Decimal) ledger.StockStatus {
	switch {
	case qty.LessThanOrEqual(decimal.Zero):
		return ledger.StockOutOfStock
	case qty.LessThanOrEqual(LowStockThreshold):
		return ledger.StockLow
	default:
		return ledger.StockIn
	}
}

// IsNotApplicable reports whether ref carries no inventory meaning.
func IsNotApplicable(ref string) bool {
	ref = strings.TrimSpace(ref)
	return ref == "" || strings.EqualFold(ref, NotApplicable)
}

// Movement describes a quantity change applied to one inventory item.
type Movement struct {
	ItemID     string             `json:"item_id"`
	ProductRef string             `json:"product_ref"`
	Branch     string             `json:"branch"`
	Strategy   string             `json:"strategy"`
	Delta      decimal.Decimal    `json:"delta"`
	Quantity   decimal.Decimal    `json:"quantity"`
	Status     ledger.StockStatus `json:"status"`
}

// Miss is the diagnostic produced when no strategy matched a reference. It is never
// returned as an error on the settlement path.
type Miss struct {
	ProductRef string          `json:"product_ref"`
	Branch     string          `json:"branch"`
	Quantity   decimal.Decimal `json:"quantity"`
	Tried      []string        `json:"tried"`
	TaskID     string          `json:"task_id,omitempty"`
	At         time.Time       `json:"at"`
}

// AdjustmentInput describes a manual stock correction.
type AdjustmentInput struct {
	Branch     string
	ProductRef string
	Quantity   decimal.Decimal
	Note       string
	Actor      string
}
