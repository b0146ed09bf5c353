package producers

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/bytebank-ledger/internal/domain/ledger"
)

// EventPublisher publishes ledger events to the ledger events topic
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *ledger.Event) error
	Close() error
}

// DeadLetterPublisher handles publishing messages to a Dead Letter Queue
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
	Close() error
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Header keys carried on every ledger event message
const (
	HeaderEventType     = "event-type"
	HeaderCorrelationID = "correlation-id"
	HeaderDLQReason     = "dlq-reason"
)
