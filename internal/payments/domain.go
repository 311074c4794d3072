// Package payments records payments against tasks and drives the settlement state
// machine: partial accounting, full settlement, inventory release and the creation of
// deferred clearance records.
package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/printhub/printhub/internal/inventory"
	"github.com/printhub/printhub/internal/ledger"
)

// Settlement messages returned to callers. Presentation layers branch on them.
const (
	MessagePartial       = "Partial payment recorded."
	MessagePendingCheque = "Full payment received → task moved to Temporary Completed (pending cheque clearance)."
	MessagePendingCredit = "Full payment received → task moved to Temporary Completed (pending credit clearance)."
	MessageCompleted     = "Payment completed and task marked as Completed."
)

// Details carries method specific metadata supplied by the caller.
type Details struct {
	ChequeNumber string
	BankName     string
	ChequeDate   *time.Time
	BillNumber   string
}

// PaymentInput is one payment event against a task.
type PaymentInput struct {
	TaskID  string
	Amount  decimal.Decimal
	Method  ledger.PaymentMethod
	Details Details
	// DeclaredTotal overrides the computed order value when positive.
	DeclaredTotal decimal.Decimal
	// Branch scopes the lookup; a task of another branch is reported as not found.
	Branch string
}

// CreditDebit describes the credit consumed by a credits payment.
type CreditDebit struct {
	CustomerKey  string          `json:"customer_key"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
}

// Plan lists the side effects a payment produced.
type Plan struct {
	InventoryReleases []inventory.Movement     `json:"inventory_releases"`
	Misses            []inventory.Miss         `json:"resolution_misses"`
	CreditDebit       *CreditDebit             `json:"credit_debit,omitempty"`
	DeferredPayments  []ledger.DeferredPayment `json:"deferred_payments"`
	// Overpaid is the part of the payment above the effective total; it is not carried.
	Overpaid decimal.Decimal `json:"overpaid"`
}

// Result is the outcome of RecordPayment.
type Result struct {
	Task                 ledger.Task  `json:"task"`
	Order                ledger.Order `json:"order"`
	Message              string       `json:"message"`
	IsTemporaryCompleted bool         `json:"is_temporary_completed"`
	Settled              bool         `json:"settled"`
	Plan                 Plan         `json:"plan"`
}
