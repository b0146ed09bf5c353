package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store persists transactions. Every read and write is scoped to the owning user.
type Store interface {
	Insert(ctx context.Context, t *Transaction) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*Transaction, error)
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*Transaction, error)
	List(ctx context.Context, q Query) ([]*Transaction, error)
	Count(ctx context.Context, q Query) (int64, error)
	Update(ctx context.Context, t *Transaction) error
	SetReceiptURL(ctx context.Context, userID, id uuid.UUID, url *string) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
	ExpensesByCategory(ctx context.Context, userID uuid.UUID, limit int) ([]CategoryTotal, error)
	MonthlySummary(ctx context.Context, userID uuid.UUID, since time.Time) ([]MonthlyTotal, error)
	WithTx(tx pgx.Tx) Store
}

// ErrTransactionNotFound covers rows that are absent and rows owned by someone else
type ErrTransactionNotFound struct {
	ID uuid.UUID
}

func (e ErrTransactionNotFound) Error() string {
	return "transaction not found: " + e.ID.String()
}

// Is matches any ErrTransactionNotFound when the target ID is empty
func (e ErrTransactionNotFound) Is(target error) bool {
	t, ok := target.(ErrTransactionNotFound)
	if !ok {
		return false
	}
	if t.ID == uuid.Nil {
		return true
	}
	return e.ID == t.ID
}
