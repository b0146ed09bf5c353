// Package cachesync keeps a process-local read cache consistent with writes made
// by other gateway replicas by consuming the ledger events topic.
package cachesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/bytebank-ledger/internal/domain/ledger"
	ledgercache "github.com/bytebank-ledger/internal/ledger"
	"github.com/bytebank-ledger/internal/platform/cache"
	"github.com/bytebank-ledger/internal/platform/messaging/consumers"
	"github.com/bytebank-ledger/internal/platform/messaging/producers"
)

// Handler drops the cache families an event makes stale
type Handler struct {
	cache  cache.Cache
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger, c cache.Cache) *Handler {
	return &Handler{
		cache:  c,
		logger: logger.With("component", "cache_sync"),
	}
}

// Handle implements consumers.MessageHandler
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	var event ledger.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("decode ledger event at offset %d: %v: %w", msg.Offset, err, consumers.ErrPoison)
	}
	if !event.Type.Valid() {
		return fmt.Errorf("unknown ledger event type %q: %w", event.Type, consumers.ErrPoison)
	}

	var prefixes []string
	if event.Type.AffectsTransactions() {
		prefixes = []string{ledgercache.TransactionsPrefix(event.UserID), ledgercache.SummaryPrefix(event.UserID)}
	} else {
		prefixes = []string{ledgercache.AccountsPrefix(event.UserID)}
	}

	if err := ledgercache.Invalidate(ctx, h.cache, event.UserID, prefixes...); err != nil {
		return fmt.Errorf("drop cache for user %s: %w", event.UserID, err)
	}

	h.logger.Debug("Dropped stale cache entries",
		"event_id", event.EventID.String(),
		"event_type", string(event.Type),
		"user_id", event.UserID.String(),
	)
	return nil
}

// DeadLetterTo forwards poison messages to the DLQ topic. A disabled DLQ
// silently drops them.
func DeadLetterTo(dlq producers.DeadLetterPublisher) consumers.DeadLetterFunc {
	return func(ctx context.Context, msg kafka.Message, reason string) error {
		err := dlq.PublishToDLQ(ctx, string(msg.Key), msg.Value, reason)
		if errors.Is(err, producers.ErrDLQDisabled) {
			return nil
		}
		return err
	}
}
