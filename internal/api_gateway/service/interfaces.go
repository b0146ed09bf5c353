// Package service declares the ledger operations the HTTP handlers depend on.
// The implementations live in internal/ledger and internal/session.
package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/bytebank-ledger/internal/domain/account"
	"github.com/bytebank-ledger/internal/domain/identity"
	"github.com/bytebank-ledger/internal/domain/ledger"
	"github.com/bytebank-ledger/internal/domain/transaction"
	ledgerservice "github.com/bytebank-ledger/internal/ledger"
	"github.com/bytebank-ledger/internal/session"
)

var (
	_ TransactionService = (*ledgerservice.TransactionRepository)(nil)
	_ AccountService     = (*ledgerservice.AccountProvisioner)(nil)
	_ ReportService      = (*ledgerservice.Reports)(nil)
	_ ActivityService    = (*ledgerservice.Activity)(nil)
	_ Session            = (*session.Coordinator)(nil)
)

// TransactionService reads and writes the caller's transactions. Every method
// requires a principal in ctx.
type TransactionService interface {
	ListRecent(ctx context.Context) ([]*transaction.Transaction, error)

	// GetByID returns ErrTransactionNotFound for missing and foreign rows alike
	GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	GetFilteredPage(ctx context.Context, filters transaction.FilterOptions, pagination transaction.PaginationOptions) (*transaction.PaginatedResult[*transaction.Transaction], error)

	// Create returns the saved transaction together with a *receipt.UploadFailedError
	// when only the receipt could not be stored
	Create(ctx context.Context, input transaction.NewTransaction) (*transaction.Transaction, error)
	Update(ctx context.Context, id uuid.UUID, patch transaction.Patch) (*transaction.Transaction, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// AccountService provisions and lists the caller's bank accounts
type AccountService interface {
	Ensure(ctx context.Context, userID uuid.UUID, accountType account.Type, currency string) (*account.Account, error)
	ProvisionManually(ctx context.Context, userID uuid.UUID, accountType account.Type, currency string) (*account.Account, error)
	HasActiveAccount(ctx context.Context, userID uuid.UUID) (bool, error)
	ListAccounts(ctx context.Context) ([]*account.Account, error)
}

// ReportService aggregates the caller's transactions
type ReportService interface {
	ExpensesByCategory(ctx context.Context) ([]transaction.CategoryTotal, error)
	MonthlySummary(ctx context.Context, months int) ([]transaction.MonthlyTotal, error)
}

// ActivityService pages through the caller's delivered ledger events
type ActivityService interface {
	Feed(ctx context.Context, pagination transaction.PaginationOptions) (*transaction.PaginatedResult[*ledger.Event], error)
}

// Session is one device's authentication state
type Session interface {
	SignIn(ctx context.Context, email, password string) (*identity.Session, error)
	SignUp(ctx context.Context, email, password, fullName string) (*identity.User, *identity.Session, error)
	SignOut(ctx context.Context) error
	Restore(ctx context.Context, refreshToken string) (*identity.Session, error)
	Principal(ctx context.Context) (identity.Principal, error)
	State() session.State
}

// SessionStore holds the device sessions known to this gateway
type SessionStore interface {
	Create(ctx context.Context) (string, Session, error)
	Get(id string) (Session, bool)
	Remove(id string)
}

// TokenVerifier resolves a bearer access token to its caller
type TokenVerifier interface {
	Principal(token string) (identity.Principal, error)
}
