package consumers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bytebank-ledger/internal/config"
)

// MessageHandler processes one message. Returning ErrPoison hands the message to
// the dead-letter hook and commits it; any other error leaves it uncommitted.
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// ErrPoison marks a message that can never be processed
var ErrPoison = errors.New("unprocessable message")

// DeadLetterFunc receives poison messages before they are committed
type DeadLetterFunc func(ctx context.Context, msg kafka.Message, reason string) error

// Consumer defines the message queue consumer interface
type Consumer interface {
	Run(ctx context.Context, handler MessageHandler) error
	Close() error
}

// KafkaReader wraps kafka.Reader methods for testing
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer implements Consumer using a consumer-group reader
type KafkaConsumer struct {
	reader     KafkaReader
	deadLetter DeadLetterFunc
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewKafkaConsumer reads the ledger events topic. Without an explicit start
// offset a new group starts at the newest message.
func NewKafkaConsumer(logger *slog.Logger, cfg *config.KafkaConfig, groupID string, deadLetter DeadLetterFunc) *KafkaConsumer {
	startOffset := kafka.LastOffset
	if cfg.StartOffset != 0 {
		startOffset = cfg.StartOffset
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{cfg.Brokers},
		Topic:       cfg.LedgerEventsTopic,
		GroupID:     groupID,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
		StartOffset: startOffset,
	})
	return newKafkaConsumer(reader, deadLetter, logger)
}

func newKafkaConsumer(reader KafkaReader, deadLetter DeadLetterFunc, logger *slog.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader:     reader,
		deadLetter: deadLetter,
		retryDelay: time.Second,
		logger:     logger,
	}
}

// Run fetches and handles messages until ctx is cancelled
func (c *KafkaConsumer) Run(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Kafka consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Context canceled, stopping consumer")
				return nil
			}
			c.logger.Error("Failed to fetch message from Kafka", "error", err)
			if !sleepCtx(ctx, c.retryDelay) {
				return nil
			}
			continue
		}

		c.logger.Debug("Received message from Kafka",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
		)

		if err := handler(ctx, msg); err != nil {
			if !errors.Is(err, ErrPoison) {
				c.logger.Error("Failed to process message, will not commit offset",
					"topic", msg.Topic,
					"partition", msg.Partition,
					"offset", msg.Offset,
					"error", err,
				)
				continue
			}

			c.logger.Warn("Dropping unprocessable message", "offset", msg.Offset, "error", err)
			if c.deadLetter != nil {
				if dlqErr := c.deadLetter(ctx, msg, err.Error()); dlqErr != nil {
					c.logger.Error("Failed to dead-letter message", "offset", msg.Offset, "error", dlqErr)
				}
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
