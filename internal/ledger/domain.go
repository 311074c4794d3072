// Package ledger holds the persistent records shared by the fulfillment and payment
// modules (orders, tasks, inventory items, credit accounts, deferred payments) and the
// store contract used to read and mutate them. It owns no business rules.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaskStatus represents the lifecycle of a production task.
type TaskStatus string

const (
	TaskPending            TaskStatus = "Pending"
	TaskInProgress         TaskStatus = "InProgress"
	TaskTemporaryCompleted TaskStatus = "TemporaryCompleted" // settled, clearance outstanding
	TaskCompleted          TaskStatus = "Completed"
	TaskReturned           TaskStatus = "Returned" // cheque bounced; may be paid again
	TaskSentToMainBranch   TaskStatus = "SentToMainBranch"
)

// IsValid checks if the status is valid.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskTemporaryCompleted, TaskCompleted, TaskReturned, TaskSentToMainBranch:
		return true
	default:
		return false
	}
}

// IsSettled reports whether the task already reached full settlement.
func (s TaskStatus) IsSettled() bool {
	return s == TaskCompleted || s == TaskTemporaryCompleted
}

// PaymentMethod enumerates accepted payment methods.
type PaymentMethod string

const (
	MethodCash    PaymentMethod = "cash"
	MethodCard    PaymentMethod = "card"
	MethodCheque  PaymentMethod = "cheque"
	MethodCredits PaymentMethod = "credits"
	MethodOnline  PaymentMethod = "online"
)

// IsValid checks if the method is one of the supported methods.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodCash, MethodCard, MethodCheque, MethodCredits, MethodOnline:
		return true
	default:
		return false
	}
}

// HoldsSettlement reports whether a full settlement with this method parks the task in
// TemporaryCompleted instead of completing it.
func (m PaymentMethod) HoldsSettlement() bool {
	return m == MethodCheque || m == MethodCredits
}

// IsDeferred reports whether financial finality is confirmed later by a clearance workflow.
func (m PaymentMethod) IsDeferred() bool {
	return m == MethodCheque || m == MethodOnline
}

// ClearanceStatus is the state of a cheque or online payment awaiting clearance.
type ClearanceStatus string

const (
	ClearancePending   ClearanceStatus = "pending"
	ClearanceCleared   ClearanceStatus = "cleared"   // cheque
	ClearanceReturned  ClearanceStatus = "returned"  // cheque
	ClearanceConfirmed ClearanceStatus = "confirmed" // online
	ClearanceFailed    ClearanceStatus = "failed"    // online
)

// IsTerminal reports whether no further transition is allowed.
func (s ClearanceStatus) IsTerminal() bool {
	switch s {
	case ClearanceCleared, ClearanceReturned, ClearanceConfirmed, ClearanceFailed:
		return true
	default:
		return false
	}
}

// StockStatus is derived from an inventory quantity on every write.
type StockStatus string

const (
	StockOutOfStock StockStatus = "OutOfStock"
	StockLow        StockStatus = "LowStock"
	StockIn         StockStatus = "InStock"
)

// Order is one customer purchase intent.
type Order struct {
	ID             string          `json:"order_id"`
	Branch         string          `json:"branch"`
	CustomerName   string          `json:"customer_name"`
	CustomerPhone  string          `json:"customer_phone"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	AdvancePayment decimal.Decimal `json:"advance_payment"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// LineItem is one product line on a task.
type LineItem struct {
	ProductRef string          `json:"product_ref"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Waste      decimal.Decimal `json:"waste"`
}

// Total returns unit price times quantity.
func (l LineItem) Total() decimal.Decimal {
	return l.UnitPrice.Mul(l.Quantity)
}

// Consumed returns the stock consumed by the line, waste included.
func (l LineItem) Consumed() decimal.Decimal {
	return l.Quantity.Add(l.Waste)
}

// MethodDetails carries method specific payment metadata.
type MethodDetails struct {
	ChequeNumber string     `json:"cheque_number,omitempty"`
	BankName     string     `json:"bank_name,omitempty"`
	ChequeDate   *time.Time `json:"cheque_date,omitempty"`
	BillNumber   string     `json:"bill_number,omitempty"`
}

// PaymentEntry is an immutable payment history record.
type PaymentEntry struct {
	ID      string          `json:"id"`
	Method  PaymentMethod   `json:"method"`
	Amount  decimal.Decimal `json:"amount"`
	Date    time.Time       `json:"date"`
	Details *MethodDetails  `json:"method_details,omitempty"`
}

// Task is one unit of produced work tied to an order.
type Task struct {
	ID       string     `json:"id"`
	OrderID  string     `json:"order_id"`
	Branch   string     `json:"branch"`
	Title    string     `json:"title"`
	Products []LineItem `json:"products"`

	// Legacy single-product fields, used when Products is empty.
	ProductRef string          `json:"product_ref,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Waste      decimal.Decimal `json:"waste"`

	Status              TaskStatus      `json:"status"`
	AdvancePayment      decimal.Decimal `json:"advance_payment"`
	FullPayment         decimal.Decimal `json:"full_payment"`
	EndPrice            decimal.Decimal `json:"end_price"`
	EndTime             *time.Time      `json:"end_time,omitempty"`
	LastPaymentMethod   PaymentMethod   `json:"last_payment_method,omitempty"`
	ChequeStatus        ClearanceStatus `json:"cheque_status,omitempty"`
	ChequeNotes         string          `json:"cheque_notes,omitempty"`
	OnlinePaymentStatus ClearanceStatus `json:"online_payment_status,omitempty"`
	OnlinePaymentNotes  string          `json:"online_payment_notes,omitempty"`
	PaymentHistory      []PaymentEntry  `json:"payment_history"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lines returns the task line items, deriving a single synthetic line from the legacy
// fields when Products is empty. It returns nil when neither is present.
func (t Task) Lines() []LineItem {
	if len(t.Products) > 0 {
		out := make([]LineItem, len(t.Products))
		copy(out, t.Products)
		return out
	}
	if t.ProductRef == "" && t.Price.IsZero() && t.Quantity.IsZero() {
		return nil
	}
	return []LineItem{{
		ProductRef: t.ProductRef,
		UnitPrice:  t.Price,
		Quantity:   t.Quantity,
		Waste:      t.Waste,
	}}
}

// IsCreditSettled is the computed credit view: the most recent payment used credits, or
// the recorded last method is credits.
func (t Task) IsCreditSettled() bool {
	if n := len(t.PaymentHistory); n > 0 && t.PaymentHistory[n-1].Method == MethodCredits {
		return true
	}
	return t.LastPaymentMethod == MethodCredits
}

// Clone returns a deep copy so stores never share slices with callers.
func (t Task) Clone() Task {
	out := t
	if t.Products != nil {
		out.Products = make([]LineItem, len(t.Products))
		copy(out.Products, t.Products)
	}
	if t.PaymentHistory != nil {
		out.PaymentHistory = make([]PaymentEntry, len(t.PaymentHistory))
		for i, entry := range t.PaymentHistory {
			if entry.Details != nil {
				details := *entry.Details
				if details.ChequeDate != nil {
					date := *details.ChequeDate
					details.ChequeDate = &date
				}
				entry.Details = &details
			}
			out.PaymentHistory[i] = entry
		}
	}
	if t.EndTime != nil {
		end := *t.EndTime
		out.EndTime = &end
	}
	return out
}

// InventoryItem is a branch scoped stock record.
type InventoryItem struct {
	ID          string          `json:"id"`
	Branch      string          `json:"branch"`
	ProductID   string          `json:"product_id"`
	ProductCode string          `json:"product_code"`
	Name        string          `json:"name"`
	Quantity    decimal.Decimal `json:"quantity"`
	Status      StockStatus     `json:"status"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CatalogProduct is a product catalog entry that inventory references may point at.
type CatalogProduct struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	ProductCode string `json:"product_code"`
	Code        string `json:"code"`
	Name        string `json:"name"`
}

// CreditAccount is the prepaid balance of one customer contact.
type CreditAccount struct {
	CustomerKey string          `json:"customer_key"`
	Name        string          `json:"name"`
	Balance     decimal.Decimal `json:"balance"`
	UsedAmount  decimal.Decimal `json:"used_amount"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CreditEntry is an append-only record of a signed credit movement.
type CreditEntry struct {
	ID           string          `json:"id"`
	CustomerKey  string          `json:"customer_key"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	TaskID       string          `json:"task_id,omitempty"`
	Note         string          `json:"note,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// DeferredPayment tracks a cheque or online payment until it clears.
type DeferredPayment struct {
	ID            string          `json:"id"`
	TaskID        string          `json:"task_id"`
	OrderID       string          `json:"order_id"`
	Branch        string          `json:"branch"`
	Method        PaymentMethod   `json:"method"`
	Amount        decimal.Decimal `json:"amount"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	ChequeNumber  string          `json:"cheque_number,omitempty"`
	BankName      string          `json:"bank_name,omitempty"`
	ChequeDate    *time.Time      `json:"cheque_date,omitempty"`
	BillNumber    string          `json:"bill_number,omitempty"`
	Status        ClearanceStatus `json:"status"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty"`
}

// IsIdentityKey reports whether ref has the shape of a record identity.
func IsIdentityKey(ref string) bool {
	_, err := uuid.Parse(ref)
	return err == nil
}

// NewID returns a fresh record identity.
func NewID() string {
	return uuid.NewString()
}
