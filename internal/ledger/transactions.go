// Package ledger exposes the caller-scoped ledger operations: transaction reads
// and writes, account provisioning, dashboard reports and the activity feed.
// Every operation acts on behalf of the identity.Principal carried by its context.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bytebank-ledger/internal/config"
	"github.com/bytebank-ledger/internal/domain/account"
	"github.com/bytebank-ledger/internal/domain/identity"
	"github.com/bytebank-ledger/internal/domain/ledger"
	"github.com/bytebank-ledger/internal/domain/money"
	"github.com/bytebank-ledger/internal/domain/outbox"
	"github.com/bytebank-ledger/internal/domain/receipt"
	"github.com/bytebank-ledger/internal/domain/shared"
	"github.com/bytebank-ledger/internal/domain/transaction"
	"github.com/bytebank-ledger/internal/ledgerquery"
	"github.com/bytebank-ledger/internal/platform/cache"
	"github.com/bytebank-ledger/internal/platform/persistence"
)

// RecentLimit caps the unfiltered recent listing
const RecentLimit = 50

// TransactionRepository reads and writes the caller's transactions. Reads are
// cached per user; every successful write drops the user's listings and reports.
type TransactionRepository struct {
	db       persistence.Transactor
	store    transaction.Store
	accounts account.Store
	outbox   *outboxWriter
	receipts *receiptUploader
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewTransactionRepository wires the repository. c may be nil to disable caching.
func NewTransactionRepository(
	logger *slog.Logger,
	db persistence.Transactor,
	store transaction.Store,
	accounts account.Store,
	outboxRepo outbox.Repository,
	receipts receipt.Store,
	c cache.Cache,
	receiptsCfg *config.ReceiptsConfig,
	cacheTTL time.Duration,
) *TransactionRepository {
	logger = logger.With("component", "transaction_repository")
	return &TransactionRepository{
		db:       db,
		store:    store,
		accounts: accounts,
		outbox:   &outboxWriter{repo: outboxRepo, logger: logger},
		receipts: newReceiptUploader(receipts, receiptsCfg.UploadMaxAttempts, receiptsCfg.UploadBackoff, receiptsCfg.MaxSizeBytes, logger),
		cache:    c,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// ListRecent returns the caller's newest transactions, at most RecentLimit
func (r *TransactionRepository) ListRecent(ctx context.Context) ([]*transaction.Transaction, error) {
	principal, err := identity.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	return readThrough(ctx, r.cache, r.logger, principal.UserID, recentKey(principal.UserID), r.cacheTTL, func() ([]*transaction.Transaction, error) {
		return r.store.ListRecent(ctx, principal.UserID, RecentLimit)
	})
}

// GetByID returns one of the caller's transactions. Rows owned by someone else
// are reported exactly like absent rows.
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	principal, err := identity.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	return readThrough(ctx, r.cache, r.logger, principal.UserID, transactionKey(principal.UserID, id), r.cacheTTL, func() (*transaction.Transaction, error) {
		return r.store.GetByID(ctx, principal.UserID, id)
	})
}

// GetFilteredPage returns one page of the caller's transactions matching filters.
// A failed count degrades the page metadata to a heuristic instead of failing.
func (r *TransactionRepository) GetFilteredPage(ctx context.Context, filters transaction.FilterOptions, pagination transaction.PaginationOptions) (*transaction.PaginatedResult[*transaction.Transaction], error) {
	principal, err := identity.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	q, window, err := ledgerquery.Build(principal.UserID, filters, pagination)
	if err != nil {
		return nil, err
	}

	key := pageKey(principal.UserID, filters, pagination)
	return readThrough(ctx, r.cache, r.logger, principal.UserID, key, r.cacheTTL, func() (*transaction.PaginatedResult[*transaction.Transaction], error) {
		rows, err := r.store.List(ctx, q)
		if err != nil {
			return nil, err
		}

		var total *int64
		count, err := r.store.Count(ctx, q)
		if err != nil {
			r.logger.Warn("Falling back to heuristic pagination", "user_id", principal.UserID.String(), "error", err)
		} else {
			total = &count
		}

		return &transaction.PaginatedResult[*transaction.Transaction]{
			Data:       rows,
			Pagination: ledgerquery.Paginate(window, len(rows), total),
		}, nil
	})
}

// Create records a completed transaction for the caller. The row and its
// transaction.created event commit together; an attached receipt is uploaded
// afterwards. When only the upload fails, the saved transaction is returned
// together with a *receipt.UploadFailedError.
func (r *TransactionRepository) Create(ctx context.Context, input transaction.NewTransaction) (*transaction.Transaction, error) {
	principal, err := identity.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	if err := validateStruct(input); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, shared.NewValidationError("amount", "must be greater than zero")
	}
	if !money.InRange(input.Amount) {
		return nil, shared.NewValidationError("amount", "exceeds the largest storable amount")
	}
	if input.Receipt != nil {
		if err := r.receipts.validate(input.Receipt); err != nil {
			return nil, err
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = transaction.DefaultCurrency
	}

	t := &transaction.Transaction{
		UserID:          principal.UserID,
		Type:            input.Type,
		Amount:          money.ToMajor(money.ToMinor(input.Amount)),
		Currency:        currency,
		Description:     strings.TrimSpace(input.Description),
		SenderName:      input.SenderName,
		Category:        input.Category.OrDefault(),
		Status:          transaction.StatusCompleted,
		ReferenceNumber: input.ReferenceNumber,
	}

	if t.FromAccountID, err = r.resolveSource(ctx, principal.UserID, input.FromAccountID); err != nil {
		return nil, err
	}
	if input.Type == transaction.TypeTransfer {
		if t.FromAccountID == nil {
			return nil, shared.NewValidationError("from_account_id", "no active account to transfer from")
		}
		if t.ToAccountID, err = r.resolveDestination(ctx, input.ToAccountNumber, t.FromAccountID); err != nil {
			return nil, err
		}
	}

	err = r.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := r.store.WithTx(tx).Insert(ctx, t); err != nil {
			return err
		}
		return r.outbox.enqueue(ctx, tx, transactionEvent(ledger.EventTransactionCreated, t))
	})
	if err != nil {
		r.logger.Error("Failed to create transaction", "user_id", principal.UserID.String(), "error", err)
		return nil, err
	}
	r.invalidateTransactions(ctx, principal.UserID)

	r.logger.Info("Transaction created",
		"transaction_id", t.ID.String(),
		"user_id", principal.UserID.String(),
		"transaction_type", string(t.Type),
	)

	if input.Receipt == nil {
		return t, nil
	}

	url, err := r.receipts.upload(ctx, principal.UserID, t.ID, input.Receipt)
	if err == nil {
		err = r.store.SetReceiptURL(ctx, principal.UserID, t.ID, &url)
		if err != nil {
			r.receipts.discard(ctx, url)
		}
	}
	if err != nil {
		return t, &receipt.UploadFailedError{TransactionID: t.ID, Err: err}
	}

	t.ReceiptURL = &url
	r.invalidateTransactions(ctx, principal.UserID)
	return t, nil
}

// Update applies patch to one of the caller's transactions, last write wins.
// A receipt that fails to upload is logged and left unchanged; a replaced
// receipt is deleted from the store.
func (r *TransactionRepository) Update(ctx context.Context, id uuid.UUID, patch transaction.Patch) (*transaction.Transaction, error) {
	principal, err := identity.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	if err := validateStruct(patch); err != nil {
		return nil, err
	}
	if patch.Amount != nil {
		if !patch.Amount.IsPositive() {
			return nil, shared.NewValidationError("amount", "must be greater than zero")
		}
		if !money.InRange(*patch.Amount) {
			return nil, shared.NewValidationError("amount", "exceeds the largest storable amount")
		}
	}
	if patch.Description != nil {
		trimmed := strings.TrimSpace(*patch.Description)
		if trimmed == "" {
			return nil, shared.NewValidationError("description", "is required")
		}
		patch.Description = &trimmed
	}
	if patch.Receipt != nil {
		if err := r.receipts.validate(patch.Receipt); err != nil {
			return nil, err
		}
	}

	var updated *transaction.Transaction
	err = r.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		store := r.store.WithTx(tx)

		current, err := store.GetByID(ctx, principal.UserID, id)
		if err != nil {
			return err
		}

		patch.Apply(current)
		if patch.Amount != nil {
			current.Amount = money.ToMajor(money.ToMinor(*patch.Amount))
		}
		if err := store.Update(ctx, current); err != nil {
			return err
		}

		updated = current
		return r.outbox.enqueue(ctx, tx, transactionEvent(ledger.EventTransactionUpdated, current))
	})
	if err != nil {
		if !errors.Is(err, transaction.ErrTransactionNotFound{}) {
			r.logger.Error("Failed to update transaction", "transaction_id", id.String(), "error", err)
		}
		return nil, err
	}
	r.invalidateTransactions(ctx, principal.UserID)

	if patch.Receipt != nil {
		r.replaceReceipt(ctx, updated, patch.Receipt)
	}

	r.logger.Info("Transaction updated", "transaction_id", id.String(), "user_id", principal.UserID.String())
	return updated, nil
}

// Delete removes one of the caller's transactions and, after commit, its receipt
func (r *TransactionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	principal, err := identity.RequirePrincipal(ctx)
	if err != nil {
		return err
	}

	var deleted *transaction.Transaction
	err = r.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		store := r.store.WithTx(tx)

		current, err := store.GetByID(ctx, principal.UserID, id)
		if err != nil {
			return err
		}
		if err := store.Delete(ctx, principal.UserID, id); err != nil {
			return err
		}

		deleted = current
		return r.outbox.enqueue(ctx, tx, transactionEvent(ledger.EventTransactionDeleted, current))
	})
	if err != nil {
		if !errors.Is(err, transaction.ErrTransactionNotFound{}) {
			r.logger.Error("Failed to delete transaction", "transaction_id", id.String(), "error", err)
		}
		return err
	}
	r.invalidateTransactions(ctx, principal.UserID)

	if deleted.ReceiptURL != nil {
		r.receipts.discard(ctx, *deleted.ReceiptURL)
	}

	r.logger.Info("Transaction deleted", "transaction_id", id.String(), "user_id", principal.UserID.String())
	return nil
}

// replaceReceipt uploads a new attachment for t and links it. Failures keep the
// previous receipt.
func (r *TransactionRepository) replaceReceipt(ctx context.Context, t *transaction.Transaction, a *receipt.Attachment) {
	url, err := r.receipts.upload(ctx, t.UserID, t.ID, a)
	if err != nil {
		r.logger.Warn("Receipt replacement skipped", "transaction_id", t.ID.String(), "error", err)
		return
	}

	if err := r.store.SetReceiptURL(ctx, t.UserID, t.ID, &url); err != nil {
		r.logger.Warn("Failed to link replacement receipt", "transaction_id", t.ID.String(), "error", err)
		r.receipts.discard(ctx, url)
		return
	}

	previous := t.ReceiptURL
	t.ReceiptURL = &url
	r.invalidateTransactions(ctx, t.UserID)
	if previous != nil && *previous != url {
		r.receipts.discard(ctx, *previous)
	}
}

// resolveSource defaults the debited account to the caller's active account and
// rejects accounts the caller does not hold
func (r *TransactionRepository) resolveSource(ctx context.Context, userID uuid.UUID, requested *uuid.UUID) (*uuid.UUID, error) {
	if requested == nil {
		active, err := r.accounts.GetActiveByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, account.ErrAccountNotFound{}) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to resolve source account: %w", err)
		}
		return &active.ID, nil
	}

	owned, err := r.accounts.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source account: %w", err)
	}
	for _, acc := range owned {
		if acc.ID == *requested {
			return requested, nil
		}
	}
	return nil, shared.NewValidationError("from_account_id", "account not found")
}

// resolveDestination maps the human-entered account number of a transfer to the
// account id. Unknown numbers are validation failures, never retried.
func (r *TransactionRepository) resolveDestination(ctx context.Context, accountNumber string, source *uuid.UUID) (*uuid.UUID, error) {
	accountNumber = strings.TrimSpace(accountNumber)
	if accountNumber == "" {
		return nil, shared.NewValidationError("to_account_number", "is required")
	}

	dest, err := r.accounts.GetByNumber(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound{}) {
			return nil, shared.NewValidationError("to_account_number", "no active account with this number")
		}
		return nil, fmt.Errorf("failed to resolve destination account: %w", err)
	}
	if source != nil && dest.ID == *source {
		return nil, shared.NewValidationError("to_account_number", "cannot transfer to the source account")
	}
	return &dest.ID, nil
}

func (r *TransactionRepository) invalidateTransactions(ctx context.Context, userID uuid.UUID) {
	invalidate(ctx, r.cache, r.logger, userID, TransactionsPrefix(userID), SummaryPrefix(userID))
}

func transactionEvent(eventType ledger.EventType, t *transaction.Transaction) *ledger.Event {
	event := ledger.NewEvent(eventType, t.UserID, t.ID)
	amount := money.ToMinor(t.Amount)
	event.Amount = &amount
	event.Currency = t.Currency
	event.TransactionType = string(t.Type)
	return event
}
