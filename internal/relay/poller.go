// Package relay moves ledger events from the Postgres outbox to Kafka and the
// MongoDB activity log.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bytebank-ledger/internal/config"
	"github.com/bytebank-ledger/internal/domain/outbox"
	"github.com/bytebank-ledger/internal/domain/shared"
	"github.com/bytebank-ledger/internal/platform/persistence"
)

// Poller claims pending outbox rows in batches and hands each to the Publisher.
// A batch runs in one database transaction so concurrent replicas skip rows
// that are already claimed.
type Poller struct {
	db               persistence.Transactor
	outboxRepo       outbox.Repository
	publisher        *Publisher
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

func NewPoller(
	logger *slog.Logger,
	cfg *config.OutboxConfig,
	db persistence.Transactor,
	outboxRepo outbox.Repository,
	publisher *Publisher,
) *Poller {
	return &Poller{
		db:               db,
		outboxRepo:       outboxRepo,
		publisher:        publisher,
		logger:           logger.With("component", "outbox_poller"),
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
}

// Start polls until ctx is cancelled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting outbox poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox poller stopping")
			return
		case <-ticker.C:
			if _, err := p.processBatch(ctx); err != nil {
				p.logger.Error("Error during outbox batch", "error", err)
			}
		}
	}
}

// processBatch delivers one batch and returns how many messages were delivered
func (p *Poller) processBatch(ctx context.Context) (int, error) {
	delivered := 0
	err := p.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		repo := p.outboxRepo.WithTx(tx)

		messages, err := repo.GetPending(ctx, p.batchSize)
		if err != nil {
			return fmt.Errorf("failed to get pending outbox messages: %w", err)
		}
		if len(messages) == 0 {
			p.logger.Debug("No pending outbox messages")
			return nil
		}
		p.logger.Info("Claimed pending outbox messages", "count", len(messages))

		for _, msg := range messages {
			if err := p.publisher.Publish(ctx, repo, msg); err != nil {
				p.handleFailure(ctx, repo, msg, err)
				continue
			}
			delivered++
		}
		return nil
	})
	return delivered, err
}

// handleFailure counts the attempt and gives up on the message once it has
// used every retry
func (p *Poller) handleFailure(ctx context.Context, repo outbox.Repository, msg *outbox.Message, cause error) {
	if errors.Is(cause, errMalformedPayload) {
		return
	}

	p.logger.Error("Failed to deliver outbox message",
		"outbox_id", msg.ID,
		"aggregate_id", msg.AggregateID.String(),
		"current_attempts", msg.Attempts,
		"error", cause,
	)

	if err := repo.IncrementAttempts(ctx, msg.ID); err != nil {
		p.logger.Error("Failed to increment attempts for outbox message", "outbox_id", msg.ID, "error", err)
		return
	}
	msg.IncrementAttempts()

	if msg.Attempts < p.maxRetryAttempts {
		return
	}

	p.logger.Warn("Max retry attempts reached for outbox message, marking as FAILED_TO_PUBLISH",
		"outbox_id", msg.ID,
		"attempts_made", msg.Attempts,
	)
	p.publisher.deadLetter(ctx, msg, fmt.Sprintf("max retry attempts reached: %v", cause))
	if err := repo.UpdateStatus(ctx, msg.ID, shared.OutboxStatusFailedToPublish); err != nil {
		p.logger.Error("Failed to update outbox status to FAILED_TO_PUBLISH", "outbox_id", msg.ID, "error", err)
		return
	}
	msg.MarkAsFailed()
}
