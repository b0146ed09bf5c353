// Package transaction models the ledger's monetary movements.
package transaction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type is the kind of monetary movement
type Type string

const (
	TypeDeposit    Type = "deposit"
	TypeWithdrawal Type = "withdrawal"
	TypeTransfer   Type = "transfer"
	TypePayment    Type = "payment"
	TypeFee        Type = "fee"
)

// Valid reports whether t is a known type
func (t Type) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeTransfer, TypePayment, TypeFee:
		return true
	}
	return false
}

// IsInbound reports whether money enters the account. Deposits are the only inbound type.
func (t Type) IsInbound() bool {
	return t == TypeDeposit
}

// Status is the settlement state of a transaction. This service only writes
// StatusCompleted; the other values are valid when read.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Category is the spending category shown on dashboards
type Category string

const (
	CategoryAlimentacao    Category = "alimentacao"
	CategoryTransporte     Category = "transporte"
	CategorySaude          Category = "saude"
	CategoryEducacao       Category = "educacao"
	CategoryEntretenimento Category = "entretenimento"
	CategoryCompras        Category = "compras"
	CategoryCasa           Category = "casa"
	CategoryTrabalho       Category = "trabalho"
	CategoryInvestimentos  Category = "investimentos"
	CategoryViagem         Category = "viagem"
	CategoryOutros         Category = "outros"
)

// Categories lists the closed set of categories
var Categories = []Category{
	CategoryAlimentacao, CategoryTransporte, CategorySaude, CategoryEducacao,
	CategoryEntretenimento, CategoryCompras, CategoryCasa, CategoryTrabalho,
	CategoryInvestimentos, CategoryViagem, CategoryOutros,
}

// Valid reports whether c belongs to the closed set
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// OrDefault returns c, or CategoryOutros when c is empty
func (c Category) OrDefault() Category {
	if c == "" {
		return CategoryOutros
	}
	return c
}

// DefaultCurrency is used when a transaction does not name one
const DefaultCurrency = "BRL"

// Transaction is one monetary movement. Amount is in major units; the store keeps
// minor units.
type Transaction struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	Type            Type            `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Description     string          `json:"description"`
	SenderName      *string         `json:"sender_name,omitempty"`
	Category        Category        `json:"category"`
	Status          Status          `json:"status"`
	FromAccountID   *uuid.UUID      `json:"from_account_id,omitempty"`
	ToAccountID     *uuid.UUID      `json:"to_account_id,omitempty"`
	ReferenceNumber *string         `json:"reference_number,omitempty"`
	ReceiptURL      *string         `json:"receipt_url,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CategoryTotal aggregates outbound spending for one category
type CategoryTotal struct {
	Category Category        `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int64           `json:"count"`
}

// MonthlyTotal aggregates completed movements for one calendar month
type MonthlyTotal struct {
	Month    time.Time       `json:"month"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Balance  decimal.Decimal `json:"balance"`
}
