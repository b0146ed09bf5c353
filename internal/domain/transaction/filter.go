package transaction

import "strings"

// FilterAll is the sentinel meaning "do not filter on this field"
const FilterAll = "all"

// FilterOptions is the predicate of a filtered listing. Every field is optional;
// enum fields accept FilterAll, amounts are pt-BR currency text and dates are YYYY-MM-DD.
type FilterOptions struct {
	DateFrom        string `form:"date_from" json:"date_from,omitempty"`
	DateTo          string `form:"date_to" json:"date_to,omitempty"`
	TransactionType string `form:"transaction_type" json:"transaction_type,omitempty"`
	Status          string `form:"status" json:"status,omitempty"`
	Category        string `form:"category" json:"category,omitempty"`
	MinAmount       string `form:"min_amount" json:"min_amount,omitempty"`
	MaxAmount       string `form:"max_amount" json:"max_amount,omitempty"`
	Description     string `form:"description" json:"description,omitempty"`
	SenderName      string `form:"sender_name" json:"sender_name,omitempty"`
}

// IsDefault reports whether no field narrows the listing
func (f FilterOptions) IsDefault() bool {
	return isBlank(f.DateFrom) && isBlank(f.DateTo) &&
		isUnset(f.TransactionType) && isUnset(f.Status) && isUnset(f.Category) &&
		isBlank(f.MinAmount) && isBlank(f.MaxAmount) &&
		isBlank(f.Description) && isBlank(f.SenderName)
}

func isBlank(v string) bool {
	return strings.TrimSpace(v) == ""
}

// isUnset treats blank and the "all" sentinel alike
func isUnset(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == FilterAll
}

// PaginationOptions selects a window either by 1-indexed page or by explicit
// inclusive From/To indexes. From/To win when both are set.
type PaginationOptions struct {
	Page     int  `form:"page" json:"page,omitempty"`
	PageSize int  `form:"page_size" json:"page_size,omitempty"`
	From     *int `form:"from" json:"from,omitempty"`
	To       *int `form:"to" json:"to,omitempty"`
}

// Pagination is the metadata returned with a page
type Pagination struct {
	Page            int    `json:"page"`
	PageSize        int    `json:"page_size"`
	Total           *int64 `json:"total,omitempty"`
	From            int    `json:"from"`
	To              int    `json:"to"`
	HasNextPage     bool   `json:"has_next_page"`
	HasPreviousPage bool   `json:"has_previous_page"`
}

// PaginatedResult is one page of rows plus its metadata
type PaginatedResult[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Query is a store-ready predicate: SQL conditions joined with AND, their
// positional arguments starting at $1, and the row window.
type Query struct {
	Conditions []string
	Args       []any
	Offset     int
	Limit      int
}
