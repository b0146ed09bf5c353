package account

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store defines account persistence operations
type Store interface {
	GetActiveByUser(ctx context.Context, userID uuid.UUID) (*Account, error)
	GetByNumber(ctx context.Context, accountNumber string) (*Account, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Account, error)
	GenerateAccountNumber(ctx context.Context) (string, error)

	// Insert returns ErrActiveAccountExists when the user already holds an active account
	Insert(ctx context.Context, account *Account) error

	// CreateManual runs the server-side idempotent provisioning routine
	CreateManual(ctx context.Context, userID uuid.UUID, accountType Type, currency string) (uuid.UUID, error)
	WithTx(tx pgx.Tx) Store
}

// ErrAccountNotFound indicates a missing account, looked up by user or by number
type ErrAccountNotFound struct {
	UserID        uuid.UUID
	AccountNumber string
}

func (e ErrAccountNotFound) Error() string {
	if e.AccountNumber != "" {
		return "account not found: " + e.AccountNumber
	}
	return "no active account for user: " + e.UserID.String()
}

// Is matches any ErrAccountNotFound
func (e ErrAccountNotFound) Is(target error) bool {
	_, ok := target.(ErrAccountNotFound)
	return ok
}

// ErrActiveAccountExists indicates the one-active-account-per-user constraint fired
type ErrActiveAccountExists struct {
	UserID uuid.UUID
}

func (e ErrActiveAccountExists) Error() string {
	return "user already holds an active account: " + e.UserID.String()
}

// Is matches any ErrActiveAccountExists
func (e ErrActiveAccountExists) Is(target error) bool {
	_, ok := target.(ErrActiveAccountExists)
	return ok
}

// ProvisioningFailedError is returned once every provisioning attempt is spent
type ProvisioningFailedError struct {
	UserID   uuid.UUID
	Attempts int
	Err      error
}

func (e *ProvisioningFailedError) Error() string {
	return fmt.Sprintf("account provisioning for user %s failed after %d attempt(s): %v", e.UserID, e.Attempts, e.Err)
}

func (e *ProvisioningFailedError) Unwrap() error {
	return e.Err
}
