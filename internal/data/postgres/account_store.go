package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bytebank-ledger/internal/domain/account"
	"github.com/bytebank-ledger/internal/domain/money"
	"github.com/bytebank-ledger/internal/domain/shared"
	"github.com/bytebank-ledger/internal/platform/persistence"
)

const accountColumns = `id, user_id, account_number, account_type, balance, currency, is_active, created_at, updated_at`

// AccountStore implements account.Store for PostgreSQL
type AccountStore struct {
	querier persistence.Querier // Can be the pool or a pgx.Tx
	logger  *slog.Logger
}

func NewAccountStore(logger *slog.Logger, db *persistence.PostgresDB) account.Store {
	return &AccountStore{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a store bound to tx
func (s *AccountStore) WithTx(tx pgx.Tx) account.Store {
	return &AccountStore{
		querier: tx,
		logger:  s.logger,
	}
}

// GetActiveByUser returns the single active account of userID
func (s *AccountStore) GetActiveByUser(ctx context.Context, userID uuid.UUID) (*account.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM bank_accounts
		WHERE user_id = $1 AND is_active
	`

	acc, err := scanAccount(s.querier.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{UserID: userID}
		}
		s.logger.Error("Failed to get active account", "user_id", userID.String(), "error", err)
		return nil, fmt.Errorf("failed to get active account: %w", classify("get active account", err))
	}

	return acc, nil
}

// GetByNumber looks an active account up by its public number
func (s *AccountStore) GetByNumber(ctx context.Context, accountNumber string) (*account.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM bank_accounts
		WHERE account_number = $1 AND is_active
	`

	acc, err := scanAccount(s.querier.QueryRow(ctx, query, accountNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{AccountNumber: accountNumber}
		}
		s.logger.Error("Failed to get account by number", "account_number", accountNumber, "error", err)
		return nil, fmt.Errorf("failed to get account by number: %w", classify("get account", err))
	}

	return acc, nil
}

// ListByUser returns every account of userID, active first
func (s *AccountStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*account.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM bank_accounts
		WHERE user_id = $1
		ORDER BY is_active DESC, created_at DESC
	`

	rows, err := s.querier.Query(ctx, query, userID)
	if err != nil {
		s.logger.Error("Failed to list accounts", "user_id", userID.String(), "error", err)
		return nil, fmt.Errorf("failed to list accounts: %w", classify("list accounts", err))
	}
	defer rows.Close()

	accounts := []*account.Account{}
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over accounts: %w", err)
	}

	return accounts, nil
}

// GenerateAccountNumber draws a number from the database generator
func (s *AccountStore) GenerateAccountNumber(ctx context.Context) (string, error) {
	var number string
	if err := s.querier.QueryRow(ctx, `SELECT generate_account_number()`).Scan(&number); err != nil {
		s.logger.Error("Failed to generate account number", "error", err)
		return "", fmt.Errorf("failed to generate account number: %w", classify("generate account number", err))
	}
	return number, nil
}

// Insert stores a new account. A collision on the one-active-account index is
// reported as account.ErrActiveAccountExists; a collision on the account number
// is transient, since a retry draws a new number.
func (s *AccountStore) Insert(ctx context.Context, acc *account.Account) error {
	query := `
		INSERT INTO bank_accounts (id, user_id, account_number, account_type, balance, currency, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.querier.Exec(ctx, query,
		acc.ID,
		acc.UserID,
		acc.AccountNumber,
		acc.Type,
		money.ToMinor(acc.Balance),
		acc.Currency,
		acc.IsActive,
		acc.CreatedAt,
		acc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, activeAccountIndex) {
			return account.ErrActiveAccountExists{UserID: acc.UserID}
		}
		if isUniqueViolation(err, "") {
			return fmt.Errorf("failed to insert account: %w", shared.NewTransientError("insert account", err))
		}
		s.logger.Error("Failed to insert account", "user_id", acc.UserID.String(), "error", err)
		return fmt.Errorf("failed to insert account: %w", classify("insert account", err))
	}

	return nil
}

// CreateManual calls the idempotent server-side provisioning routine and
// returns the id of the user's active account
func (s *AccountStore) CreateManual(ctx context.Context, userID uuid.UUID, accountType account.Type, currency string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.querier.QueryRow(ctx, `SELECT create_bank_account_manual($1, $2, $3)`, userID, accountType, currency).Scan(&id)
	if err != nil {
		s.logger.Error("Failed to provision account manually", "user_id", userID.String(), "error", err)
		return uuid.Nil, fmt.Errorf("failed to provision account manually: %w", classify("create account manually", err))
	}
	return id, nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		acc     account.Account
		balance int64
	)
	err := row.Scan(
		&acc.ID,
		&acc.UserID,
		&acc.AccountNumber,
		&acc.Type,
		&balance,
		&acc.Currency,
		&acc.IsActive,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	acc.Balance = money.ToMajor(balance)
	return &acc, nil
}
