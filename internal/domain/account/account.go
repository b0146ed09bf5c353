// Package account models the bank account every user holds exactly one active instance of.
package account

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrInvalidAccountType    = errors.New("account type must be checking, savings or business")
	ErrInvalidCurrencyFormat = errors.New("currency must be a 3-letter code")
	ErrNegativeBalance       = errors.New("initial balance cannot be negative")
)

// Type is the product kind of the account
type Type string

const (
	TypeChecking Type = "checking"
	TypeSavings  Type = "savings"
	TypeBusiness Type = "business"
)

// Valid reports whether t is a known account type
func (t Type) Valid() bool {
	switch t {
	case TypeChecking, TypeSavings, TypeBusiness:
		return true
	}
	return false
}

// Account represents a bank account. Balance is in major units; the store keeps minor units.
type Account struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	AccountNumber string          `json:"account_number"`
	Type          Type            `json:"account_type"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Options tune a provisioned account; zero values fall back to configured defaults
type Options struct {
	Type           Type            `json:"account_type,omitempty"`
	Currency       string          `json:"currency,omitempty"`
	InitialBalance decimal.Decimal `json:"balance,omitempty"`
}

// NewAccount builds an active account for userID under an already generated number
func NewAccount(userID uuid.UUID, accountNumber string, opts Options) (*Account, error) {
	if !opts.Type.Valid() {
		return nil, ErrInvalidAccountType
	}
	if len(opts.Currency) != 3 {
		return nil, ErrInvalidCurrencyFormat
	}
	if opts.InitialBalance.IsNegative() {
		return nil, ErrNegativeBalance
	}

	now := time.Now().UTC()
	return &Account{
		ID:            uuid.New(),
		UserID:        userID,
		AccountNumber: accountNumber,
		Type:          opts.Type,
		Balance:       opts.InitialBalance,
		Currency:      opts.Currency,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}
