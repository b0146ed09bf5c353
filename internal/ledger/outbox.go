package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/bytebank-ledger/internal/domain/ledger"
	"github.com/bytebank-ledger/internal/domain/outbox"
)

// outboxWriter records ledger events in the same database transaction as the
// change they describe
type outboxWriter struct {
	repo   outbox.Repository
	logger *slog.Logger
}

func (w *outboxWriter) enqueue(ctx context.Context, tx pgx.Tx, event *ledger.Event) error {
	logger := w.logger
	if event.CorrelationID == "" {
		event.CorrelationID = ledger.CorrelationIDFrom(ctx)
	}
	if event.CorrelationID != "" {
		logger = w.logger.With("correlation_id", event.CorrelationID)
	}

	message, err := outbox.NewMessage(event)
	if err != nil {
		logger.Error("Failed to create outbox message (marshal payload)",
			"event_id", event.EventID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to create outbox message payload for %s: %w", event.Type, err)
	}

	if err := w.repo.WithTx(tx).Create(ctx, message); err != nil {
		logger.Error("Failed to create outbox message",
			"event_type", string(event.Type),
			"aggregate_id", event.AggregateID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to create outbox message for %s: %w", event.Type, err)
	}

	logger.Debug("Outbox message created",
		"event_type", string(event.Type),
		"aggregate_id", event.AggregateID.String(),
		"outbox_id", message.ID,
	)
	return nil
}
