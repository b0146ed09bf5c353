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
	"github.com/shopspring/decimal"

	"github.com/bytebank-ledger/internal/config"
	"github.com/bytebank-ledger/internal/domain/account"
	"github.com/bytebank-ledger/internal/domain/identity"
	"github.com/bytebank-ledger/internal/domain/ledger"
	"github.com/bytebank-ledger/internal/domain/money"
	"github.com/bytebank-ledger/internal/domain/outbox"
	"github.com/bytebank-ledger/internal/domain/shared"
	"github.com/bytebank-ledger/internal/platform/cache"
	"github.com/bytebank-ledger/internal/platform/persistence"
	"github.com/bytebank-ledger/internal/platform/retry"
)

// AccountProvisioner gives every user one active bank account. The unique
// partial index on active accounts is the real guard; the lookup before insert
// only avoids needless work.
type AccountProvisioner struct {
	db                 persistence.Transactor
	accounts           account.Store
	outbox             *outboxWriter
	cache              cache.Cache
	cacheTTL           time.Duration
	policy             retry.Policy
	defaultAccountType account.Type
	defaultCurrency    string
	logger             *slog.Logger
}

// NewAccountProvisioner wires the provisioner. c may be nil to disable caching.
func NewAccountProvisioner(
	logger *slog.Logger,
	db persistence.Transactor,
	accounts account.Store,
	outboxRepo outbox.Repository,
	c cache.Cache,
	cfg *config.ProvisioningConfig,
	cacheTTL time.Duration,
) *AccountProvisioner {
	logger = logger.With("component", "account_provisioner")
	return &AccountProvisioner{
		db:       db,
		accounts: accounts,
		outbox:   &outboxWriter{repo: outboxRepo, logger: logger},
		cache:    c,
		cacheTTL: cacheTTL,
		policy: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			Backoff:     cfg.Backoff,
			ShouldRetry: shared.IsTransient,
		},
		defaultAccountType: account.Type(cfg.DefaultAccountType),
		defaultCurrency:    cfg.DefaultCurrency,
		logger:             logger,
	}
}

// Ensure returns the user's active account, creating it when missing. Insert
// failures caused by a session the database cannot see yet are retried; losing
// a race to a concurrent insert returns the winner's account.
func (p *AccountProvisioner) Ensure(ctx context.Context, userID uuid.UUID, accountType account.Type, currency string) (*account.Account, error) {
	if err := requireSelf(ctx, userID); err != nil {
		return nil, err
	}

	opts, err := p.options(accountType, currency)
	if err != nil {
		return nil, err
	}

	existing, err := p.accounts.GetActiveByUser(ctx, userID)
	if err == nil {
		p.logger.Debug("Active account already provisioned", "user_id", userID.String(), "account_id", existing.ID.String())
		return existing, nil
	}
	if !errors.Is(err, account.ErrAccountNotFound{}) {
		return nil, fmt.Errorf("failed to look up active account: %w", err)
	}

	var created *account.Account
	attempts, err := retry.Do(ctx, p.policy, func(ctx context.Context, attempt int) error {
		number, err := p.accounts.GenerateAccountNumber(ctx)
		if err != nil {
			return err
		}

		acc, err := account.NewAccount(userID, number, opts)
		if err != nil {
			return err
		}

		err = p.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
			if err := p.accounts.WithTx(tx).Insert(ctx, acc); err != nil {
				return err
			}
			return p.outbox.enqueue(ctx, tx, accountEvent(acc))
		})
		if err != nil {
			if shared.IsTransient(err) {
				p.logger.Warn("Account provisioning attempt failed",
					"user_id", userID.String(),
					"attempt", attempt,
					"error", err,
				)
			}
			return err
		}

		created = acc
		return nil
	})

	switch {
	case err == nil:
		invalidate(ctx, p.cache, p.logger, userID, AccountsPrefix(userID))
		p.logger.Info("Account provisioned",
			"user_id", userID.String(),
			"account_id", created.ID.String(),
			"account_number", created.AccountNumber,
			"attempts", attempts,
		)
		return created, nil

	case errors.Is(err, account.ErrActiveAccountExists{}):
		p.logger.Info("Account provisioned concurrently, returning existing", "user_id", userID.String())
		invalidate(ctx, p.cache, p.logger, userID, AccountsPrefix(userID))
		return p.accounts.GetActiveByUser(ctx, userID)

	default:
		p.logger.Error("Failed to provision account",
			"user_id", userID.String(),
			"attempts", attempts,
			"error", err,
		)
		return nil, &account.ProvisioningFailedError{UserID: userID, Attempts: attempts, Err: err}
	}
}

// ProvisionManually runs the server-side provisioning routine, which is
// idempotent and does not depend on client retries. It is the remediation path
// for users left without an account.
func (p *AccountProvisioner) ProvisionManually(ctx context.Context, userID uuid.UUID, accountType account.Type, currency string) (*account.Account, error) {
	if err := requireSelf(ctx, userID); err != nil {
		return nil, err
	}

	opts, err := p.options(accountType, currency)
	if err != nil {
		return nil, err
	}

	accountID, err := p.accounts.CreateManual(ctx, userID, opts.Type, opts.Currency)
	if err != nil {
		return nil, err
	}
	invalidate(ctx, p.cache, p.logger, userID, AccountsPrefix(userID))

	acc, err := p.accounts.GetActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Account provisioned manually", "user_id", userID.String(), "account_id", accountID.String())
	return acc, nil
}

// HasActiveAccount reports whether the user already holds an active account
func (p *AccountProvisioner) HasActiveAccount(ctx context.Context, userID uuid.UUID) (bool, error) {
	if err := requireSelf(ctx, userID); err != nil {
		return false, err
	}

	_, err := p.accounts.GetActiveByUser(ctx, userID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, account.ErrAccountNotFound{}) {
		return false, nil
	}
	return false, err
}

// ListAccounts returns the caller's accounts, active first
func (p *AccountProvisioner) ListAccounts(ctx context.Context) ([]*account.Account, error) {
	principal, err := identity.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	return readThrough(ctx, p.cache, p.logger, principal.UserID, accountsKey(principal.UserID), p.cacheTTL, func() ([]*account.Account, error) {
		return p.accounts.ListByUser(ctx, principal.UserID)
	})
}

// options applies configured defaults and validates the result
func (p *AccountProvisioner) options(accountType account.Type, currency string) (account.Options, error) {
	if accountType == "" {
		accountType = p.defaultAccountType
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = p.defaultCurrency
	}

	if !accountType.Valid() {
		return account.Options{}, shared.NewValidationError("account_type", account.ErrInvalidAccountType.Error())
	}
	if len(currency) != 3 {
		return account.Options{}, shared.NewValidationError("currency", account.ErrInvalidCurrencyFormat.Error())
	}
	return account.Options{Type: accountType, Currency: currency, InitialBalance: decimal.Zero}, nil
}

// requireSelf allows operations on userID only for that user's own session
func requireSelf(ctx context.Context, userID uuid.UUID) error {
	principal, err := identity.RequirePrincipal(ctx)
	if err != nil {
		return err
	}
	if principal.UserID != userID {
		return shared.ErrAuthenticationRequired
	}
	return nil
}

func accountEvent(acc *account.Account) *ledger.Event {
	event := ledger.NewEvent(ledger.EventAccountProvisioned, acc.UserID, acc.ID)
	balance := money.ToMinor(acc.Balance)
	event.Amount = &balance
	event.Currency = acc.Currency
	event.AccountNumber = acc.AccountNumber
	return event
}
