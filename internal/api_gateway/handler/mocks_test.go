package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/bytebank-ledger/internal/api_gateway/service"
	"github.com/bytebank-ledger/internal/domain/account"
	"github.com/bytebank-ledger/internal/domain/identity"
	"github.com/bytebank-ledger/internal/domain/ledger"
	"github.com/bytebank-ledger/internal/domain/transaction"
	"github.com/bytebank-ledger/internal/session"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// asUser stands in for the Authenticate middleware
func asUser(userID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := identity.WithPrincipal(c.Request.Context(), identity.Principal{UserID: userID, Email: "ana@example.com"})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

type MockTransactionService struct {
	mock.Mock
}

func (m *MockTransactionService) ListRecent(ctx context.Context) ([]*transaction.Transaction, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionService) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionService) GetFilteredPage(ctx context.Context, filters transaction.FilterOptions, pagination transaction.PaginationOptions) (*transaction.PaginatedResult[*transaction.Transaction], error) {
	args := m.Called(ctx, filters, pagination)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.PaginatedResult[*transaction.Transaction]), args.Error(1)
}

func (m *MockTransactionService) Create(ctx context.Context, input transaction.NewTransaction) (*transaction.Transaction, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionService) Update(ctx context.Context, id uuid.UUID, patch transaction.Patch) (*transaction.Transaction, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionService) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) Ensure(ctx context.Context, userID uuid.UUID, accountType account.Type, currency string) (*account.Account, error) {
	args := m.Called(ctx, userID, accountType, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountService) ProvisionManually(ctx context.Context, userID uuid.UUID, accountType account.Type, currency string) (*account.Account, error) {
	args := m.Called(ctx, userID, accountType, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountService) HasActiveAccount(ctx context.Context, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountService) ListAccounts(ctx context.Context) ([]*account.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*account.Account), args.Error(1)
}

type MockReportService struct {
	mock.Mock
}

func (m *MockReportService) ExpensesByCategory(ctx context.Context) ([]transaction.CategoryTotal, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]transaction.CategoryTotal), args.Error(1)
}

func (m *MockReportService) MonthlySummary(ctx context.Context, months int) ([]transaction.MonthlyTotal, error) {
	args := m.Called(ctx, months)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]transaction.MonthlyTotal), args.Error(1)
}

type MockActivityService struct {
	mock.Mock
}

func (m *MockActivityService) Feed(ctx context.Context, pagination transaction.PaginationOptions) (*transaction.PaginatedResult[*ledger.Event], error) {
	args := m.Called(ctx, pagination)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.PaginatedResult[*ledger.Event]), args.Error(1)
}

type MockSession struct {
	mock.Mock
}

func (m *MockSession) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Session), args.Error(1)
}

func (m *MockSession) SignUp(ctx context.Context, email, password, fullName string) (*identity.User, *identity.Session, error) {
	args := m.Called(ctx, email, password, fullName)
	var user *identity.User
	if args.Get(0) != nil {
		user = args.Get(0).(*identity.User)
	}
	var tokens *identity.Session
	if args.Get(1) != nil {
		tokens = args.Get(1).(*identity.Session)
	}
	return user, tokens, args.Error(2)
}

func (m *MockSession) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSession) Restore(ctx context.Context, refreshToken string) (*identity.Session, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Session), args.Error(1)
}

func (m *MockSession) Principal(ctx context.Context) (identity.Principal, error) {
	args := m.Called(ctx)
	return args.Get(0).(identity.Principal), args.Error(1)
}

func (m *MockSession) State() session.State {
	args := m.Called()
	return args.Get(0).(session.State)
}

type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Create(ctx context.Context) (string, service.Session, error) {
	args := m.Called(ctx)
	if args.Get(1) == nil {
		return args.String(0), nil, args.Error(2)
	}
	return args.String(0), args.Get(1).(service.Session), args.Error(2)
}

func (m *MockSessionStore) Get(id string) (service.Session, bool) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(service.Session), args.Bool(1)
}

func (m *MockSessionStore) Remove(id string) {
	m.Called(id)
}
