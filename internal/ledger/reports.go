package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/bytebank-ledger/internal/domain/identity"
	"github.com/bytebank-ledger/internal/domain/money"
	"github.com/bytebank-ledger/internal/domain/shared"
	"github.com/bytebank-ledger/internal/domain/transaction"
	"github.com/bytebank-ledger/internal/platform/cache"
)

const (
	// TopExpenseCategories bounds the expenses-by-category report
	TopExpenseCategories = 5
	// DefaultSummaryMonths is used when the caller does not pick a range
	DefaultSummaryMonths = 6
	// MaxSummaryMonths bounds the monthly summary
	MaxSummaryMonths = 24
)

// Reports computes the dashboard aggregates over completed transactions
type Reports struct {
	store    transaction.Store
	cache    cache.Cache
	cacheTTL time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewReports wires the reports. c may be nil to disable caching.
func NewReports(logger *slog.Logger, store transaction.Store, c cache.Cache, cacheTTL time.Duration) *Reports {
	return &Reports{
		store:    store,
		cache:    c,
		cacheTTL: cacheTTL,
		now:      time.Now,
		logger:   logger.With("component", "reports"),
	}
}

// ExpensesByCategory returns the caller's largest outbound categories
func (r *Reports) ExpensesByCategory(ctx context.Context) ([]transaction.CategoryTotal, error) {
	principal, err := identity.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	return readThrough(ctx, r.cache, r.logger, principal.UserID, expensesKey(principal.UserID), r.cacheTTL, func() ([]transaction.CategoryTotal, error) {
		return r.store.ExpensesByCategory(ctx, principal.UserID, TopExpenseCategories)
	})
}

// MonthlySummary returns income, expenses and balance for the current month and
// the months-1 before it. Months without movements are reported as zero.
func (r *Reports) MonthlySummary(ctx context.Context, months int) ([]transaction.MonthlyTotal, error) {
	principal, err := identity.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	if months == 0 {
		months = DefaultSummaryMonths
	}
	if months < 1 || months > MaxSummaryMonths {
		return nil, shared.NewValidationError("months", "must be between 1 and 24")
	}

	now := r.now().UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)

	return readThrough(ctx, r.cache, r.logger, principal.UserID, monthlyKey(principal.UserID, months), r.cacheTTL, func() ([]transaction.MonthlyTotal, error) {
		totals, err := r.store.MonthlySummary(ctx, principal.UserID, first)
		if err != nil {
			return nil, err
		}
		return fillMonths(first, months, totals), nil
	})
}

// fillMonths lays totals over a dense run of months starting at first
func fillMonths(first time.Time, months int, totals []transaction.MonthlyTotal) []transaction.MonthlyTotal {
	byMonth := make(map[time.Time]transaction.MonthlyTotal, len(totals))
	for _, t := range totals {
		month := time.Date(t.Month.Year(), t.Month.Month(), 1, 0, 0, 0, 0, time.UTC)
		byMonth[month] = t
	}

	zero := money.ToMajor(0)
	out := make([]transaction.MonthlyTotal, 0, months)
	for i := 0; i < months; i++ {
		month := first.AddDate(0, i, 0)
		t, ok := byMonth[month]
		if !ok {
			t = transaction.MonthlyTotal{Income: zero, Expenses: zero, Balance: zero}
		}
		t.Month = month
		out = append(out, t)
	}
	return out
}
