package ledger

import (
	"context"
	"time"
)

// LookupField names an inventory column a product reference may match.
type LookupField string

const (
	FieldProductID   LookupField = "product_id"
	FieldProductCode LookupField = "product_code"
)

// DeferredFilter narrows deferred payment listings.
type DeferredFilter struct {
	Branch        string
	Status        ClearanceStatus
	Method        PaymentMethod
	CreatedBefore time.Time
	Limit         int
}

// Store is the persistence contract shared by every module.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error

	GetTask(ctx context.Context, id string) (Task, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	GetCreditAccount(ctx context.Context, customerKey string) (CreditAccount, error)
	ListCreditEntries(ctx context.Context, customerKey string, limit int) ([]CreditEntry, error)
	ListDeferredPayments(ctx context.Context, filter DeferredFilter) ([]DeferredPayment, error)
}

// Tx exposes row-locked reads and writes inside one unit of work. Reads suffixed
// ForUpdate hold the row until the transaction ends.
type Tx interface {
	OrderTx
	InventoryTx
	CreditTx
	DeferredTx
}

// OrderTx covers orders and tasks.
type OrderTx interface {
	GetTaskForUpdate(ctx context.Context, id string) (Task, error)
	GetOrderForUpdate(ctx context.Context, id string) (Order, error)
	NextOrderSeq(ctx context.Context, branch, period string) (int64, error)
	InsertOrder(ctx context.Context, order Order) error
	InsertTask(ctx context.Context, task Task) error
	SaveOrder(ctx context.Context, order Order) error
	// SaveTask persists task when its Version still matches the stored row and returns
	// the task with the bumped version. A stale version yields shared.ErrConflict.
	SaveTask(ctx context.Context, task Task) (Task, error)
}

// InventoryTx covers branch stock and the product catalog.
type InventoryTx interface {
	GetInventoryItemByID(ctx context.Context, branch, id string) (InventoryItem, error)
	FindInventoryItem(ctx context.Context, branch string, field LookupField, value string) (InventoryItem, error)
	GetCatalogProduct(ctx context.Context, id string) (CatalogProduct, error)
	SaveInventoryItem(ctx context.Context, item InventoryItem) error
}

// CreditTx covers credit accounts and their journal.
type CreditTx interface {
	GetCreditAccountForUpdate(ctx context.Context, customerKey string) (CreditAccount, error)
	SaveCreditAccount(ctx context.Context, account CreditAccount) error
	InsertCreditEntry(ctx context.Context, entry CreditEntry) error
}

// DeferredTx covers cheque and online payment records.
type DeferredTx interface {
	InsertDeferredPayment(ctx context.Context, payment DeferredPayment) error
	ListDeferredPaymentsForTask(ctx context.Context, taskID string, method PaymentMethod) ([]DeferredPayment, error)
	SaveDeferredPayment(ctx context.Context, payment DeferredPayment) error
}
