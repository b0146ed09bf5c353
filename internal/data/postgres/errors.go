// Package postgres provides PostgreSQL implementations of the domain stores.
// Every statement is scoped to the owning user and runs either on the pool or
// inside a caller-supplied transaction.
package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bytebank-ledger/internal/domain/shared"
)

// PostgreSQL error codes the stores react to
const (
	codeUniqueViolation       = "23505"
	codeInsufficientPrivilege = "42501"
	codeSerializationFailure  = "40001"
	codeDeadlockDetected      = "40P01"
	classConnectionException  = "08"
)

// activeAccountIndex is the unique partial index on bank_accounts (user_id) WHERE is_active
const activeAccountIndex = "bank_accounts_one_active_per_user"

// classify marks retryable failures as shared.TransientError. A row-level security
// denial is retryable because a freshly issued session may not be visible yet.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeInsufficientPrivilege,
			pgErr.Code == codeSerializationFailure,
			pgErr.Code == codeDeadlockDetected,
			strings.HasPrefix(pgErr.Code, classConnectionException):
			return shared.NewTransientError(op, err)
		}
		return err
	}
	if pgconn.SafeToRetry(err) {
		return shared.NewTransientError(op, err)
	}
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
