package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bytebank-ledger/internal/config"
	"github.com/bytebank-ledger/internal/domain/account"
	"github.com/bytebank-ledger/internal/domain/ledger"
	"github.com/bytebank-ledger/internal/domain/shared"
)

type provisionerFixture struct {
	db          *fakeTransactor
	accounts    *MockAccountStore
	outbox      *MockOutboxRepository
	provisioner *AccountProvisioner
}

func newProvisionerFixture(t *testing.T) *provisionerFixture {
	f := &provisionerFixture{
		db:       &fakeTransactor{},
		accounts: new(MockAccountStore),
		outbox:   new(MockOutboxRepository),
	}
	f.provisioner = NewAccountProvisioner(
		newTestLogger(),
		f.db,
		f.accounts,
		f.outbox,
		newTestCache(t),
		&config.ProvisioningConfig{
			MaxAttempts:        3,
			Backoff:            0,
			TaskTimeout:        time.Second,
			DefaultAccountType: "checking",
			DefaultCurrency:    "BRL",
		},
		time.Minute,
	)
	return f
}

func activeAccount(userID uuid.UUID) *account.Account {
	return &account.Account{
		ID:            uuid.New(),
		UserID:        userID,
		AccountNumber: "00001234-4",
		Type:          account.TypeChecking,
		Balance:       decimal.Zero,
		Currency:      "BRL",
		IsActive:      true,
	}
}

func transientInsertError() error {
	return shared.NewTransientError("insert account", errors.New("new row violates row-level security policy"))
}

func TestAccountProvisioner_Ensure(t *testing.T) {
	t.Run("ExistingAccountReturnedUnchanged", func(t *testing.T) {
		f := newProvisionerFixture(t)
		userID := uuid.New()
		existing := activeAccount(userID)

		f.accounts.On("GetActiveByUser", mock.Anything, userID).Return(existing, nil).Once()

		acc, err := f.provisioner.Ensure(principalContext(userID), userID, "", "")
		require.NoError(t, err)
		assert.Same(t, existing, acc)
		f.accounts.AssertNotCalled(t, "GenerateAccountNumber", mock.Anything)
		assert.Zero(t, f.db.calls)
	})

	t.Run("CreatesWithDefaults", func(t *testing.T) {
		f := newProvisionerFixture(t)
		userID := uuid.New()

		f.accounts.On("GetActiveByUser", mock.Anything, userID).Return(nil, account.ErrAccountNotFound{UserID: userID}).Once()
		f.accounts.On("GenerateAccountNumber", mock.Anything).Return("00000007-7", nil).Once()
		f.accounts.On("Insert", mock.Anything, mock.MatchedBy(func(acc *account.Account) bool {
			return acc.UserID == userID &&
				acc.AccountNumber == "00000007-7" &&
				acc.Type == account.TypeChecking &&
				acc.Currency == "BRL" &&
				acc.Balance.IsZero() &&
				acc.IsActive
		})).Return(nil).Once()
		f.outbox.On("Create", mock.Anything, eventOfType(ledger.EventAccountProvisioned)).Return(nil).Once()

		acc, err := f.provisioner.Ensure(principalContext(userID), userID, "", "")
		require.NoError(t, err)
		assert.Equal(t, "00000007-7", acc.AccountNumber)
		assert.Equal(t, 1, f.db.calls)
		f.accounts.AssertExpectations(t)
		f.outbox.AssertExpectations(t)
	})

	t.Run("IdempotentAcrossCalls", func(t *testing.T) {
		f := newProvisionerFixture(t)
		userID := uuid.New()
		var inserted *account.Account

		f.accounts.On("GetActiveByUser", mock.Anything, userID).Return(nil, account.ErrAccountNotFound{UserID: userID}).Once()
		f.accounts.On("GenerateAccountNumber", mock.Anything).Return("00000008-8", nil).Once()
		f.accounts.On("Insert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			inserted = args.Get(1).(*account.Account)
		}).Return(nil).Once()
		f.outbox.On("Create", mock.Anything, mock.Anything).Return(nil).Once()

		ctx := principalContext(userID)
		first, err := f.provisioner.Ensure(ctx, userID, account.TypeChecking, "BRL")
		require.NoError(t, err)

		f.accounts.On("GetActiveByUser", mock.Anything, userID).Return(inserted, nil).Once()
		second, err := f.provisioner.Ensure(ctx, userID, account.TypeChecking, "BRL")
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		f.accounts.AssertNumberOfCalls(t, "Insert", 1)
	})

	t.Run("RetriesTransientFailures", func(t *testing.T) {
		f := newProvisionerFixture(t)
		userID := uuid.New()

		f.accounts.On("GetActiveByUser", mock.Anything, userID).Return(nil, account.ErrAccountNotFound{UserID: userID}).Once()
		f.accounts.On("GenerateAccountNumber", mock.Anything).Return("00000001-1", nil).Once()
		f.accounts.On("GenerateAccountNumber", mock.Anything).Return("00000002-2", nil).Once()
		f.accounts.On("Insert", mock.Anything, mock.Anything).Return(transientInsertError()).Once()
		f.accounts.On("Insert", mock.Anything, mock.Anything).Return(nil).Once()
		f.outbox.On("Create", mock.Anything, mock.Anything).Return(nil).Once()

		acc, err := f.provisioner.Ensure(principalContext(userID), userID, "", "")
		require.NoError(t, err)
		assert.Equal(t, "00000002-2", acc.AccountNumber)
		assert.Equal(t, 2, f.db.calls)
	})

	t.Run("LostRaceReturnsWinner", func(t *testing.T) {
		f := newProvisionerFixture(t)
		userID := uuid.New()
		winner := activeAccount(userID)

		f.accounts.On("GetActiveByUser", mock.Anything, userID).Return(nil, account.ErrAccountNotFound{UserID: userID}).Once()
		f.accounts.On("GenerateAccountNumber", mock.Anything).Return("00000003-3", nil).Once()
		f.accounts.On("Insert", mock.Anything, mock.Anything).Return(account.ErrActiveAccountExists{UserID: userID}).Once()
		f.accounts.On("GetActiveByUser", mock.Anything, userID).Return(winner, nil).Once()

		acc, err := f.provisioner.Ensure(principalContext(userID), userID, "", "")
		require.NoError(t, err)
		assert.Equal(t, winner.ID, acc.ID)
		f.accounts.AssertNumberOfCalls(t, "Insert", 1)
		f.outbox.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("ExhaustedAttempts", func(t *testing.T) {
		f := newProvisionerFixture(t)
		userID := uuid.New()

		f.accounts.On("GetActiveByUser", mock.Anything, userID).Return(nil, account.ErrAccountNotFound{UserID: userID}).Once()
		f.accounts.On("GenerateAccountNumber", mock.Anything).Return("00000004-4", nil)
		f.accounts.On("Insert", mock.Anything, mock.Anything).Return(transientInsertError())

		acc, err := f.provisioner.Ensure(principalContext(userID), userID, "", "")
		assert.Nil(t, acc)

		var failed *account.ProvisioningFailedError
		require.ErrorAs(t, err, &failed)
		assert.Equal(t, userID, failed.UserID)
		assert.Equal(t, 3, failed.Attempts)
		assert.True(t, shared.IsTransient(err))
		f.accounts.AssertNumberOfCalls(t, "Insert", 3)
	})

	t.Run("PermanentFailureStopsImmediately", func(t *testing.T) {
		f := newProvisionerFixture(t)
		userID := uuid.New()

		f.accounts.On("GetActiveByUser", mock.Anything, userID).Return(nil, account.ErrAccountNotFound{UserID: userID}).Once()
		f.accounts.On("GenerateAccountNumber", mock.Anything).Return("", errors.New("function generate_account_number() does not exist")).Once()

		_, err := f.provisioner.Ensure(principalContext(userID), userID, "", "")

		var failed *account.ProvisioningFailedError
		require.ErrorAs(t, err, &failed)
		assert.Equal(t, 1, failed.Attempts)
		assert.Zero(t, f.db.calls)
	})

	t.Run("OtherUsersAccountRejected", func(t *testing.T) {
		f := newProvisionerFixture(t)

		_, err := f.provisioner.Ensure(principalContext(uuid.New()), uuid.New(), "", "")
		assert.ErrorIs(t, err, shared.ErrAuthenticationRequired)
		f.accounts.AssertNotCalled(t, "GetActiveByUser", mock.Anything, mock.Anything)
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		f := newProvisionerFixture(t)

		_, err := f.provisioner.Ensure(context.Background(), uuid.New(), "", "")
		assert.ErrorIs(t, err, shared.ErrAuthenticationRequired)
	})

	t.Run("InvalidOptions", func(t *testing.T) {
		f := newProvisionerFixture(t)
		userID := uuid.New()

		_, err := f.provisioner.Ensure(principalContext(userID), userID, "crypto", "")
		assert.ErrorIs(t, err, shared.ValidationError{Field: "account_type"})

		_, err = f.provisioner.Ensure(principalContext(userID), userID, "", "REAL")
		assert.ErrorIs(t, err, shared.ValidationError{Field: "currency"})
	})
}

func TestAccountProvisioner_ProvisionManually(t *testing.T) {
	f := newProvisionerFixture(t)
	userID := uuid.New()
	acc := activeAccount(userID)

	f.accounts.On("CreateManual", mock.Anything, userID, account.TypeSavings, "BRL").Return(acc.ID, nil).Once()
	f.accounts.On("GetActiveByUser", mock.Anything, userID).Return(acc, nil).Once()

	got, err := f.provisioner.ProvisionManually(principalContext(userID), userID, account.TypeSavings, "brl")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
	f.accounts.AssertExpectations(t)
}

func TestAccountProvisioner_HasActiveAccount(t *testing.T) {
	f := newProvisionerFixture(t)
	userID := uuid.New()
	ctx := principalContext(userID)

	f.accounts.On("GetActiveByUser", mock.Anything, userID).Return(nil, account.ErrAccountNotFound{UserID: userID}).Once()
	has, err := f.provisioner.HasActiveAccount(ctx, userID)
	require.NoError(t, err)
	assert.False(t, has)

	f.accounts.On("GetActiveByUser", mock.Anything, userID).Return(activeAccount(userID), nil).Once()
	has, err = f.provisioner.HasActiveAccount(ctx, userID)
	require.NoError(t, err)
	assert.True(t, has)

	dbErr := errors.New("connection refused")
	f.accounts.On("GetActiveByUser", mock.Anything, userID).Return(nil, dbErr).Once()
	_, err = f.provisioner.HasActiveAccount(ctx, userID)
	assert.ErrorIs(t, err, dbErr)
}

func TestAccountProvisioner_ListAccounts(t *testing.T) {
	f := newProvisionerFixture(t)
	userID := uuid.New()
	ctx := principalContext(userID)
	accounts := []*account.Account{activeAccount(userID)}

	f.accounts.On("ListByUser", mock.Anything, userID).Return(accounts, nil).Twice()

	_, err := f.provisioner.ListAccounts(ctx)
	require.NoError(t, err)
	listed, err := f.provisioner.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, accounts[0].AccountNumber, listed[0].AccountNumber)
	f.accounts.AssertNumberOfCalls(t, "ListByUser", 1)

	// Provisioning drops the cached list
	f.accounts.On("CreateManual", mock.Anything, userID, account.TypeChecking, "BRL").Return(accounts[0].ID, nil).Once()
	f.accounts.On("GetActiveByUser", mock.Anything, userID).Return(accounts[0], nil).Once()
	_, err = f.provisioner.ProvisionManually(ctx, userID, "", "")
	require.NoError(t, err)

	_, err = f.provisioner.ListAccounts(ctx)
	require.NoError(t, err)
	f.accounts.AssertNumberOfCalls(t, "ListByUser", 2)
}
