package handler

import (
	"github.com/bytebank-ledger/internal/domain/identity"
	"github.com/bytebank-ledger/internal/session"
)

// SignInRequest represents a password sign-in
type SignInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SignUpRequest represents a registration
type SignUpRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name"`
}

// RestoreRequest resumes a session from a stored refresh token
type RestoreRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// SessionResponse describes a device session
type SessionResponse struct {
	SessionID string        `json:"session_id,omitempty"`
	State     session.State `json:"state"`
}

// AuthResponse is returned by sign-in, sign-up and restore. Tokens is nil when
// sign-up awaits email confirmation.
type AuthResponse struct {
	State  session.State     `json:"state"`
	User   *identity.User    `json:"user,omitempty"`
	Tokens *identity.Session `json:"tokens,omitempty"`
}

// ProvisionAccountRequest selects the product of a provisioned account; empty
// fields fall back to the configured defaults
type ProvisionAccountRequest struct {
	AccountType string `json:"account_type"`
	Currency    string `json:"currency"`
}

// AccountStatusResponse reports whether the caller holds an active account
type AccountStatusResponse struct {
	HasActiveAccount bool `json:"has_active_account"`
}

// MonthlySummaryParams represents the query of the monthly summary report
type MonthlySummaryParams struct {
	Months int `form:"months" binding:"min=0"`
}

// Multipart form fields of transaction writes
const (
	formFieldPayload = "payload"
	formFieldReceipt = "receipt"
)
