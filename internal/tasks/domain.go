package tasks

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/printhub/printhub/internal/ledger"
)

// CreateInput captures a new order with its first task.
type CreateInput struct {
	Branch        string
	CustomerName  string
	CustomerPhone string
	Title         string
	Products      []ledger.LineItem
	ProductRef    string
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	Waste         decimal.Decimal
	TotalPrice    decimal.Decimal
}

// Created is returned by Create.
type Created struct {
	Order ledger.Order `json:"order"`
	Task  ledger.Task  `json:"task"`
}

// BranchCode derives the order id prefix from a branch name: the first three letters or
// digits, upper cased.
func BranchCode(branch string) string {
	var b strings.Builder
	for _, r := range branch {
		if b.Len() == 3 {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	if b.Len() == 0 {
		return "BR"
	}
	return b.String()
}
