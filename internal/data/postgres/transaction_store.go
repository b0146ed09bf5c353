package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bytebank-ledger/internal/domain/money"
	"github.com/bytebank-ledger/internal/domain/transaction"
	"github.com/bytebank-ledger/internal/platform/persistence"
)

const transactionColumns = `id, user_id, transaction_type, amount, currency, description, sender_name, category, status,
		from_account_id, to_account_id, reference_number, receipt_url, created_at, updated_at`

// TransactionStore implements transaction.Store for PostgreSQL. Amounts are
// stored as BIGINT minor units and converted at this boundary.
type TransactionStore struct {
	querier persistence.Querier // Can be the pool or a pgx.Tx
	logger  *slog.Logger
}

func NewTransactionStore(logger *slog.Logger, db *persistence.PostgresDB) transaction.Store {
	return &TransactionStore{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a store bound to tx
func (s *TransactionStore) WithTx(tx pgx.Tx) transaction.Store {
	return &TransactionStore{
		querier: tx,
		logger:  s.logger,
	}
}

// Insert stores t and fills in the server-assigned id and timestamps
func (s *TransactionStore) Insert(ctx context.Context, t *transaction.Transaction) error {
	query := `
		INSERT INTO transactions (user_id, transaction_type, amount, currency, description, sender_name, category, status,
			from_account_id, to_account_id, reference_number, receipt_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`

	err := s.querier.QueryRow(ctx, query,
		t.UserID,
		t.Type,
		money.ToMinor(t.Amount),
		t.Currency,
		t.Description,
		t.SenderName,
		t.Category,
		t.Status,
		t.FromAccountID,
		t.ToAccountID,
		t.ReferenceNumber,
		t.ReceiptURL,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		s.logger.Error("Failed to insert transaction", "user_id", t.UserID.String(), "error", err)
		return fmt.Errorf("failed to insert transaction: %w", classify("insert transaction", err))
	}

	return nil
}

// GetByID returns the transaction only when userID owns it
func (s *TransactionStore) GetByID(ctx context.Context, userID, id uuid.UUID) (*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = $1 AND user_id = $2
	`

	t, err := scanTransaction(s.querier.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{ID: id}
		}
		s.logger.Error("Failed to get transaction", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get transaction: %w", classify("get transaction", err))
	}

	return t, nil
}

// ListRecent returns the newest transactions of userID
func (s *TransactionStore) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := s.querier.Query(ctx, query, userID, limit)
	if err != nil {
		s.logger.Error("Failed to list recent transactions", "user_id", userID.String(), "error", err)
		return nil, fmt.Errorf("failed to list recent transactions: %w", classify("list transactions", err))
	}
	return s.collect(rows)
}

// List returns the window of rows matching q, newest first
func (s *TransactionStore) List(ctx context.Context, q transaction.Query) ([]*transaction.Transaction, error) {
	args := append(append([]any{}, q.Args...), q.Offset, q.Limit)
	query := fmt.Sprintf(`
		SELECT %s
		FROM transactions
		WHERE %s
		ORDER BY created_at DESC, id DESC
		OFFSET $%d LIMIT $%d
	`, transactionColumns, where(q), len(q.Args)+1, len(q.Args)+2)

	rows, err := s.querier.Query(ctx, query, args...)
	if err != nil {
		s.logger.Error("Failed to list transactions", "error", err)
		return nil, fmt.Errorf("failed to list transactions: %w", classify("list transactions", err))
	}
	return s.collect(rows)
}

// Count returns the exact number of rows matching q
func (s *TransactionStore) Count(ctx context.Context, q transaction.Query) (int64, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE ` + where(q)

	var total int64
	if err := s.querier.QueryRow(ctx, query, q.Args...).Scan(&total); err != nil {
		s.logger.Warn("Failed to count transactions", "error", err)
		return 0, fmt.Errorf("failed to count transactions: %w", classify("count transactions", err))
	}
	return total, nil
}

// Update overwrites the mutable columns of t; last write wins
func (s *TransactionStore) Update(ctx context.Context, t *transaction.Transaction) error {
	query := `
		UPDATE transactions
		SET transaction_type = $3, amount = $4, description = $5, category = $6, sender_name = $7,
			reference_number = $8, receipt_url = $9, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`

	err := s.querier.QueryRow(ctx, query,
		t.ID,
		t.UserID,
		t.Type,
		money.ToMinor(t.Amount),
		t.Description,
		t.Category,
		t.SenderName,
		t.ReferenceNumber,
		t.ReceiptURL,
	).Scan(&t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return transaction.ErrTransactionNotFound{ID: t.ID}
		}
		s.logger.Error("Failed to update transaction", "id", t.ID.String(), "error", err)
		return fmt.Errorf("failed to update transaction: %w", classify("update transaction", err))
	}

	return nil
}

// SetReceiptURL records or clears the receipt of a transaction
func (s *TransactionStore) SetReceiptURL(ctx context.Context, userID, id uuid.UUID, url *string) error {
	query := `
		UPDATE transactions
		SET receipt_url = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`

	result, err := s.querier.Exec(ctx, query, id, userID, url)
	if err != nil {
		s.logger.Error("Failed to set receipt url", "id", id.String(), "error", err)
		return fmt.Errorf("failed to set receipt url: %w", classify("set receipt url", err))
	}
	if result.RowsAffected() == 0 {
		return transaction.ErrTransactionNotFound{ID: id}
	}

	return nil
}

// Delete hard-deletes a transaction owned by userID
func (s *TransactionStore) Delete(ctx context.Context, userID, id uuid.UUID) error {
	query := `
		DELETE FROM transactions
		WHERE id = $1 AND user_id = $2
	`

	result, err := s.querier.Exec(ctx, query, id, userID)
	if err != nil {
		s.logger.Error("Failed to delete transaction", "id", id.String(), "error", err)
		return fmt.Errorf("failed to delete transaction: %w", classify("delete transaction", err))
	}
	if result.RowsAffected() == 0 {
		return transaction.ErrTransactionNotFound{ID: id}
	}

	return nil
}

// ExpensesByCategory totals completed outbound movements per category, largest first
func (s *TransactionStore) ExpensesByCategory(ctx context.Context, userID uuid.UUID, limit int) ([]transaction.CategoryTotal, error) {
	query := `
		SELECT category, SUM(amount), COUNT(*)
		FROM transactions
		WHERE user_id = $1 AND status = 'completed' AND transaction_type <> 'deposit'
		GROUP BY category
		ORDER BY SUM(amount) DESC, category ASC
		LIMIT $2
	`

	rows, err := s.querier.Query(ctx, query, userID, limit)
	if err != nil {
		s.logger.Error("Failed to aggregate expenses", "user_id", userID.String(), "error", err)
		return nil, fmt.Errorf("failed to aggregate expenses: %w", classify("aggregate expenses", err))
	}
	defer rows.Close()

	totals := []transaction.CategoryTotal{}
	for rows.Next() {
		var (
			category transaction.Category
			sum      int64
			count    int64
		)
		if err := rows.Scan(&category, &sum, &count); err != nil {
			return nil, fmt.Errorf("failed to scan expense total: %w", err)
		}
		totals = append(totals, transaction.CategoryTotal{
			Category: category.OrDefault(),
			Total:    money.ToMajor(sum),
			Count:    count,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over expense totals: %w", err)
	}

	return totals, nil
}

// MonthlySummary returns income, expenses and balance per UTC month since the given time
func (s *TransactionStore) MonthlySummary(ctx context.Context, userID uuid.UUID, since time.Time) ([]transaction.MonthlyTotal, error) {
	query := `
		SELECT date_trunc('month', created_at AT TIME ZONE 'UTC') AS month,
			COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'deposit'), 0) AS income,
			COALESCE(SUM(amount) FILTER (WHERE transaction_type <> 'deposit'), 0) AS expenses
		FROM transactions
		WHERE user_id = $1 AND status = 'completed' AND created_at >= $2
		GROUP BY month
		ORDER BY month ASC
	`

	rows, err := s.querier.Query(ctx, query, userID, since)
	if err != nil {
		s.logger.Error("Failed to summarize months", "user_id", userID.String(), "error", err)
		return nil, fmt.Errorf("failed to summarize months: %w", classify("summarize months", err))
	}
	defer rows.Close()

	totals := []transaction.MonthlyTotal{}
	for rows.Next() {
		var (
			month            time.Time
			income, expenses int64
		)
		if err := rows.Scan(&month, &income, &expenses); err != nil {
			return nil, fmt.Errorf("failed to scan monthly total: %w", err)
		}
		totals = append(totals, transaction.MonthlyTotal{
			Month:    time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC),
			Income:   money.ToMajor(income),
			Expenses: money.ToMajor(expenses),
			Balance:  money.ToMajor(income - expenses),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over monthly totals: %w", err)
	}

	return totals, nil
}

func (s *TransactionStore) collect(rows pgx.Rows) ([]*transaction.Transaction, error) {
	defer rows.Close()

	transactions := []*transaction.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			s.logger.Error("Failed to scan transaction", "error", err)
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}

	if err := rows.Err(); err != nil {
		s.logger.Error("Error iterating over transactions", "error", err)
		return nil, fmt.Errorf("error iterating over transactions: %w", err)
	}

	return transactions, nil
}

func scanTransaction(row pgx.Row) (*transaction.Transaction, error) {
	var (
		t      transaction.Transaction
		amount int64
	)
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Type,
		&amount,
		&t.Currency,
		&t.Description,
		&t.SenderName,
		&t.Category,
		&t.Status,
		&t.FromAccountID,
		&t.ToAccountID,
		&t.ReferenceNumber,
		&t.ReceiptURL,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Amount = money.ToMajor(amount)
	t.Category = t.Category.OrDefault()
	return &t, nil
}

func where(q transaction.Query) string {
	if len(q.Conditions) == 0 {
		return "FALSE"
	}
	return strings.Join(q.Conditions, " AND ")
}
