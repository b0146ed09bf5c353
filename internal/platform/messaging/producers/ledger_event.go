package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/bytebank-ledger/internal/config"
	"github.com/bytebank-ledger/internal/domain/ledger"
)

var _ EventPublisher = (*LedgerEventProducer)(nil)

// LedgerEventProducer writes ledger events keyed by user id, so one user's
// events stay ordered within a partition
type LedgerEventProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

// NewLedgerEventProducer ensures the topic exists and opens a synchronous writer.
// The relay only marks an outbox row processed once the broker has acknowledged it.
func NewLedgerEventProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*LedgerEventProducer, error) {
	if cfg.LedgerEventsTopic == "" {
		return nil, fmt.Errorf("kafka ledger events topic is not configured")
	}

	if err := ensureTopic(cfg, cfg.LedgerEventsTopic, logger); err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.LedgerEventsTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return newLedgerEventProducer(writer, cfg.LedgerEventsTopic, logger), nil
}

func newLedgerEventProducer(writer KafkaWriter, topic string, logger *slog.Logger) *LedgerEventProducer {
	return &LedgerEventProducer{
		logger: logger,
		writer: writer,
		topic:  topic,
	}
}

func (p *LedgerEventProducer) PublishEvent(ctx context.Context, event *ledger.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger event %s: %w", event.EventID, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(event.Type)},
		},
	}
	if event.CorrelationID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: HeaderCorrelationID, Value: []byte(event.CorrelationID)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish ledger event",
			"topic", p.topic,
			"event_id", event.EventID,
			"event_type", event.Type,
			"error", err,
		)
		return fmt.Errorf("failed to publish ledger event to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published ledger event",
		"topic", p.topic,
		"event_id", event.EventID,
		"event_type", event.Type,
	)
	return nil
}

func (p *LedgerEventProducer) Close() error {
	p.logger.Info("Closing ledger event producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
