// Package settlement holds the secondary settlement workflow: the customer credit
// ledger and the clearance of deferred cheque and online payments.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
	"golang.org/x/sync/singleflight"

	"github.com/printhub/printhub/internal/ledger"
	"github.com/printhub/printhub/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Balance is the public view of a credit account.
type Balance struct {
	CustomerKey string          `json:"customer_key"`
	Name        string          `json:"name,omitempty"`
	Balance     decimal.Decimal `json:"balance"`
	UsedAmount  decimal.Decimal `json:"used_amount"`
}

// CreditChange is one signed movement on a customer's credit.
type CreditChange struct {
	CustomerKey string
	Name        string
	Amount      decimal.Decimal
	TaskID      string
	Note        string
}

// CreditConfig groups optional collaborators of CreditLedger.
type CreditConfig struct {
	Region string
	Logger *slog.Logger
	Locker shared.Locker
	Audit  AuditPort
	Clock  func() time.Time
}

// CreditLedger applies signed credit movements and answers balance queries.
type CreditLedger struct {
	store  ledger.Store
	region string
	logger *slog.Logger
	locker shared.Locker
	audit  AuditPort
	now    func() time.Time
	reads  singleflight.Group
}

// NewCreditLedger constructs CreditLedger.
func NewCreditLedger(store ledger.Store, cfg CreditConfig) *CreditLedger {
	c := &CreditLedger{
		store:  store,
		region: cfg.Region,
		logger: cfg.Logger,
		locker: cfg.Locker,
		audit:  cfg.Audit,
		now:    cfg.Clock,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.locker == nil {
		c.locker = shared.NewLocalLocker()
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// NormalizeCustomerKey turns a phone number into E.164 when it parses as a valid number
// for region. Other phone-like input keeps its digits; anything else is lower-cased.
func NormalizeCustomerKey(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", shared.Invalidf("settlement: customer key required")
	}
	if num, err := libphonenumber.Parse(raw, region); err == nil && libphonenumber.IsValidNumber(num) {
		return libphonenumber.Format(num, libphonenumber.E164), nil
	}
	if !isPhoneLike(raw) {
		return strings.ToLower(raw), nil
	}
	var b strings.Builder
	if strings.HasPrefix(raw, "+") {
		b.WriteByte('+')
	}
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 || b.String() == "+" {
		return "", shared.Invalidf("settlement: customer key %q has no digits", raw)
	}
	return b.String(), nil
}

func isPhoneLike(raw string) bool {
	for _, r := range raw {
		if unicode.IsDigit(r) || strings.ContainsRune(" +-().", r) {
			continue
		}
		return false
	}
	return true
}

// NormalizeKey normalises raw with the ledger's default region.
func (c *CreditLedger) NormalizeKey(raw string) (string, error) {
	return NormalizeCustomerKey(raw, c.region)
}

// ApplyCredit tops up (positive amount) or debits (negative amount) a customer's credit.
// Accounts are created on first use. A debit below zero fails with
// shared.ErrInsufficientBalance and writes nothing.
func (c *CreditLedger) ApplyCredit(ctx context.Context, customerKey, name string, amount decimal.Decimal) (Balance, error) {
	key, err := c.NormalizeKey(customerKey)
	if err != nil {
		return Balance{}, err
	}
	if amount.IsZero() {
		return Balance{}, shared.Invalidf("settlement: credit amount must be non zero")
	}

	release, err := c.locker.Acquire(ctx, shared.CreditLockKey(key))
	if err != nil {
		return Balance{}, err
	}
	defer release()

	var account ledger.CreditAccount
	err = c.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		account, err = c.ApplyCreditTx(ctx, tx, CreditChange{CustomerKey: key, Name: name, Amount: amount, Note: "manual adjustment"})
		return err
	})
	c.reads.Forget(key)
	if err != nil {
		return Balance{}, err
	}

	if c.audit != nil {
		if err := c.audit.Record(ctx, shared.AuditLog{
			Actor:    shared.ActorFromContext(ctx),
			Action:   "credit.apply",
			Entity:   "credit_account",
			EntityID: key,
			Meta:     map[string]any{"amount": amount.String(), "balance": account.Balance.String()},
		}); err != nil {
			c.logger.Warn("audit credit apply", slog.Any("error", err))
		}
	}
	c.logger.Info("credit applied",
		slog.String("customer_key", key),
		slog.String("amount", amount.String()),
		slog.String("balance", account.Balance.String()))
	return balanceOf(account), nil
}

// ApplyCreditTx applies change inside the caller's transaction.
func (c *CreditLedger) ApplyCreditTx(ctx context.Context, tx ledger.CreditTx, change CreditChange) (ledger.CreditAccount, error) {
	key, err := c.NormalizeKey(change.CustomerKey)
	if err != nil {
		return ledger.CreditAccount{}, err
	}
	if change.Amount.IsZero() {
		return ledger.CreditAccount{}, shared.Invalidf("settlement: credit amount must be non zero")
	}

	account, err := tx.GetCreditAccountForUpdate(ctx, key)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		account = ledger.CreditAccount{CustomerKey: key}
	case err != nil:
		return ledger.CreditAccount{}, err
	}

	next := account.Balance.Add(change.Amount)
	if next.IsNegative() {
		return ledger.CreditAccount{}, fmt.Errorf("settlement: debit of %s for %s exceeds balance %s: %w",
			change.Amount.Neg(), key, account.Balance, shared.ErrInsufficientBalance)
	}
	account.Balance = next
	if change.Amount.IsNegative() {
		account.UsedAmount = account.UsedAmount.Add(change.Amount.Neg())
	}
	if name := strings.TrimSpace(change.Name); name != "" {
		account.Name = name
	}
	now := c.now()
	account.UpdatedAt = now

	if err := tx.SaveCreditAccount(ctx, account); err != nil {
		return ledger.CreditAccount{}, err
	}
	if err := tx.InsertCreditEntry(ctx, ledger.CreditEntry{
		ID:           ledger.NewID(),
		CustomerKey:  key,
		Amount:       change.Amount,
		BalanceAfter: account.Balance,
		TaskID:       change.TaskID,
		Note:         change.Note,
		CreatedAt:    now,
	}); err != nil {
		return ledger.CreditAccount{}, err
	}
	c.reads.Forget(key)
	return account, nil
}

// GetBalance returns the balance for customerKey, zero valued when no account exists.
// Concurrent reads of the same key share one store round trip.
func (c *CreditLedger) GetBalance(ctx context.Context, customerKey string) (Balance, error) {
	key, err := c.NormalizeKey(customerKey)
	if err != nil {
		return Balance{}, err
	}
	v, err, _ := c.reads.Do(key, func() (any, error) {
		account, err := c.store.GetCreditAccount(ctx, key)
		if errors.Is(err, shared.ErrNotFound) {
			return Balance{CustomerKey: key}, nil
		}
		if err != nil {
			return nil, err
		}
		return balanceOf(account), nil
	})
	if err != nil {
		return Balance{}, err
	}
	return v.(Balance), nil
}

// History lists the newest credit movements for customerKey.
func (c *CreditLedger) History(ctx context.Context, customerKey string, limit int) ([]ledger.CreditEntry, error) {
	key, err := c.NormalizeKey(customerKey)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return c.store.ListCreditEntries(ctx, key, limit)
}

func balanceOf(account ledger.CreditAccount) Balance {
	return Balance{
		CustomerKey: account.CustomerKey,
		Name:        account.Name,
		Balance:     account.Balance,
		UsedAmount:  account.UsedAmount,
	}
}
