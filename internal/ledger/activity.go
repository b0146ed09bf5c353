package ledger

import (
	"context"
	"log/slog"

	"github.com/bytebank-ledger/internal/domain/identity"
	"github.com/bytebank-ledger/internal/domain/ledger"
	"github.com/bytebank-ledger/internal/domain/transaction"
	"github.com/bytebank-ledger/internal/ledgerquery"
)

// Activity pages through the caller's delivered ledger events
type Activity struct {
	log    ledger.ActivityLog
	logger *slog.Logger
}

func NewActivity(logger *slog.Logger, log ledger.ActivityLog) *Activity {
	return &Activity{
		log:    log,
		logger: logger.With("component", "activity"),
	}
}

// Feed returns one page of the caller's events, newest first
func (a *Activity) Feed(ctx context.Context, pagination transaction.PaginationOptions) (*transaction.PaginatedResult[*ledger.Event], error) {
	principal, err := identity.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	window := ledgerquery.ResolveWindow(false, pagination)
	events, err := a.log.ListByUser(ctx, principal.UserID, window.Limit(), window.From)
	if err != nil {
		return nil, err
	}

	var total *int64
	count, err := a.log.CountByUser(ctx, principal.UserID)
	if err != nil {
		a.logger.Warn("Falling back to heuristic pagination", "user_id", principal.UserID.String(), "error", err)
	} else {
		total = &count
	}

	return &transaction.PaginatedResult[*ledger.Event]{
		Data:       events,
		Pagination: ledgerquery.Paginate(window, len(events), total),
	}, nil
}
