package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/bytebank-ledger/internal/domain/ledger"
	"github.com/bytebank-ledger/internal/domain/outbox"
	"github.com/bytebank-ledger/internal/domain/shared"
	"github.com/bytebank-ledger/internal/platform/messaging/producers"
)

// errMalformedPayload marks an outbox row whose payload is not a ledger event.
// Such rows are dead-lettered at once instead of being retried.
var errMalformedPayload = errors.New("malformed outbox payload")

// Publisher delivers one outbox message: it publishes the event to Kafka, records
// it in the activity log and marks the row processed
type Publisher struct {
	events   producers.EventPublisher
	dlq      producers.DeadLetterPublisher
	activity ledger.ActivityLog
	logger   *slog.Logger
}

func NewPublisher(
	logger *slog.Logger,
	events producers.EventPublisher,
	dlq producers.DeadLetterPublisher,
	activity ledger.ActivityLog,
) *Publisher {
	return &Publisher{
		events:   events,
		dlq:      dlq,
		activity: activity,
		logger:   logger,
	}
}

// Publish delivers message. repo must be bound to the transaction that claimed the row.
func (p *Publisher) Publish(ctx context.Context, repo outbox.Repository, message *outbox.Message) error {
	event, err := message.GetEvent()
	if err != nil {
		p.logger.Error("Failed to decode ledger event from outbox payload", "outbox_id", message.ID, "error", err)
		p.deadLetter(ctx, message, fmt.Sprintf("malformed payload: %v", err))
		if updateErr := repo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			p.logger.Error("Failed to mark malformed outbox message as FAILED_TO_PUBLISH", "outbox_id", message.ID, "error", updateErr)
			return fmt.Errorf("mark malformed outbox %d failed: %w", message.ID, updateErr)
		}
		return fmt.Errorf("outbox %d: %w", message.ID, errMalformedPayload)
	}

	logger := p.logger.With("outbox_id", message.ID, "event_id", event.EventID.String(), "event_type", string(event.Type))
	if event.CorrelationID != "" {
		logger = logger.With("correlation_id", event.CorrelationID)
	}

	if err := p.events.PublishEvent(ctx, event); err != nil {
		return fmt.Errorf("publish event %s: %w", event.EventID, err)
	}

	if err := p.activity.Record(ctx, event); err != nil {
		if !errors.Is(err, ledger.ErrDuplicateEvent{}) {
			logger.Error("Failed to record ledger event in activity log", "error", err)
			return fmt.Errorf("record event %s: %w", event.EventID, err)
		}
		logger.Info("Ledger event already recorded, treating as delivered")
	}

	if err := repo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Failed to mark outbox message as PROCESSED", "error", err)
		return fmt.Errorf("event %s delivered, but failed to mark outbox %d as PROCESSED: %w", event.EventID, message.ID, err)
	}

	logger.Info("Outbox message delivered")
	return nil
}

// deadLetter parks the raw payload on the DLQ topic. Failures are only logged.
func (p *Publisher) deadLetter(ctx context.Context, message *outbox.Message, reason string) {
	if p.dlq == nil {
		return
	}
	key := strconv.FormatInt(message.ID, 10)
	if err := p.dlq.PublishToDLQ(ctx, key, message.Payload, reason); err != nil {
		if errors.Is(err, producers.ErrDLQDisabled) {
			p.logger.Debug("Dead-lettering disabled, dropping outbox message", "outbox_id", message.ID)
			return
		}
		p.logger.Error("Failed to dead-letter outbox message", "outbox_id", message.ID, "error", err)
	}
}
