package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"

	"github.com/bytebank-ledger/internal/domain/account"
	"github.com/bytebank-ledger/internal/domain/identity"
	"github.com/bytebank-ledger/internal/domain/ledger"
	"github.com/bytebank-ledger/internal/domain/outbox"
	"github.com/bytebank-ledger/internal/domain/shared"
	"github.com/bytebank-ledger/internal/domain/transaction"
	"github.com/bytebank-ledger/internal/platform/cache"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func principalContext(userID uuid.UUID) context.Context {
	return identity.WithPrincipal(context.Background(), identity.Principal{UserID: userID, Email: "ana@example.com"})
}

func newTestCache(t *testing.T) *cache.MemoryCache {
	c := cache.NewMemoryCache(time.Minute)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// fakeTransactor runs fn without a real database transaction
type fakeTransactor struct {
	calls     int
	commitErr error
}

func (f *fakeTransactor) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	f.calls++
	if err := fn(nil); err != nil {
		return err
	}
	return f.commitErr
}

type MockTransactionStore struct {
	mock.Mock
}

func (m *MockTransactionStore) Insert(ctx context.Context, t *transaction.Transaction) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTransactionStore) GetByID(ctx context.Context, userID, id uuid.UUID) (*transaction.Transaction, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionStore) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*transaction.Transaction, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionStore) List(ctx context.Context, q transaction.Query) ([]*transaction.Transaction, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionStore) Count(ctx context.Context, q transaction.Query) (int64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTransactionStore) Update(ctx context.Context, t *transaction.Transaction) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTransactionStore) SetReceiptURL(ctx context.Context, userID, id uuid.UUID, url *string) error {
	args := m.Called(ctx, userID, id, url)
	return args.Error(0)
}

func (m *MockTransactionStore) Delete(ctx context.Context, userID, id uuid.UUID) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *MockTransactionStore) ExpensesByCategory(ctx context.Context, userID uuid.UUID, limit int) ([]transaction.CategoryTotal, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]transaction.CategoryTotal), args.Error(1)
}

func (m *MockTransactionStore) MonthlySummary(ctx context.Context, userID uuid.UUID, since time.Time) ([]transaction.MonthlyTotal, error) {
	args := m.Called(ctx, userID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]transaction.MonthlyTotal), args.Error(1)
}

func (m *MockTransactionStore) WithTx(tx pgx.Tx) transaction.Store {
	return m
}

type MockAccountStore struct {
	mock.Mock
}

func (m *MockAccountStore) GetActiveByUser(ctx context.Context, userID uuid.UUID) (*account.Account, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountStore) GetByNumber(ctx context.Context, accountNumber string) (*account.Account, error) {
	args := m.Called(ctx, accountNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*account.Account, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*account.Account), args.Error(1)
}

func (m *MockAccountStore) GenerateAccountNumber(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockAccountStore) Insert(ctx context.Context, acc *account.Account) error {
	args := m.Called(ctx, acc)
	return args.Error(0)
}

func (m *MockAccountStore) CreateManual(ctx context.Context, userID uuid.UUID, accountType account.Type, currency string) (uuid.UUID, error) {
	args := m.Called(ctx, userID, accountType, currency)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockAccountStore) WithTx(tx pgx.Tx) account.Store {
	return m
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Create(ctx context.Context, message *outbox.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepository) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockOutboxRepository) IncrementAttempts(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	return m
}

// eventOfType matches outbox messages carrying eventType
func eventOfType(eventType ledger.EventType) any {
	return mock.MatchedBy(func(msg *outbox.Message) bool {
		return msg.EventType == eventType
	})
}

type MockReceiptStore struct {
	mock.Mock
}

func (m *MockReceiptStore) Upload(ctx context.Context, objectPath, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, objectPath, contentType, data)
	return args.String(0), args.Error(1)
}

func (m *MockReceiptStore) Delete(ctx context.Context, publicURL string) error {
	args := m.Called(ctx, publicURL)
	return args.Error(0)
}

type MockActivityLog struct {
	mock.Mock
}

func (m *MockActivityLog) Record(ctx context.Context, event *ledger.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockActivityLog) GetByEventID(ctx context.Context, eventID uuid.UUID) (*ledger.Event, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Event), args.Error(1)
}

func (m *MockActivityLog) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ledger.Event, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.Event), args.Error(1)
}

func (m *MockActivityLog) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}
