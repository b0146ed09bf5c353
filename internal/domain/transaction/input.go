package transaction

import (
	"github.com/bytebank-ledger/internal/domain/receipt"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewTransaction is the caller-supplied data for a create
type NewTransaction struct {
	Type            Type                `json:"transaction_type" validate:"required,oneof=deposit withdrawal transfer payment fee"`
	Amount          decimal.Decimal     `json:"amount"`
	Currency        string              `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Description     string              `json:"description" validate:"required,max=500"`
	Category        Category            `json:"category,omitempty" validate:"omitempty,oneof=alimentacao transporte saude educacao entretenimento compras casa trabalho investimentos viagem outros"`
	SenderName      *string             `json:"sender_name,omitempty" validate:"omitempty,max=120"`
	ReferenceNumber *string             `json:"reference_number,omitempty" validate:"omitempty,max=64"`
	FromAccountID   *uuid.UUID          `json:"from_account_id,omitempty"`
	ToAccountNumber string              `json:"to_account_number,omitempty" validate:"required_if=Type transfer,max=32"`
	Receipt         *receipt.Attachment `json:"-"`
}

// Patch carries the fields of a partial update; nil fields are left unchanged.
// Identity, ownership and creation time are not patchable.
type Patch struct {
	Type            *Type               `json:"transaction_type,omitempty" validate:"omitempty,oneof=deposit withdrawal payment fee"`
	Amount          *decimal.Decimal    `json:"amount,omitempty"`
	Description     *string             `json:"description,omitempty" validate:"omitempty,min=1,max=500"`
	Category        *Category           `json:"category,omitempty" validate:"omitempty,oneof=alimentacao transporte saude educacao entretenimento compras casa trabalho investimentos viagem outros"`
	SenderName      *string             `json:"sender_name,omitempty" validate:"omitempty,max=120"`
	ReferenceNumber *string             `json:"reference_number,omitempty" validate:"omitempty,max=64"`
	Receipt         *receipt.Attachment `json:"-"`
}

// IsEmpty reports whether the patch changes nothing
func (p Patch) IsEmpty() bool {
	return p.Type == nil && p.Amount == nil && p.Description == nil && p.Category == nil &&
		p.SenderName == nil && p.ReferenceNumber == nil && p.Receipt == nil
}

// Apply copies the set fields of p onto t
func (p Patch) Apply(t *Transaction) {
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.SenderName != nil {
		t.SenderName = p.SenderName
	}
	if p.ReferenceNumber != nil {
		t.ReferenceNumber = p.ReferenceNumber
	}
}
