package producers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bytebank-ledger/internal/config"
)

const (
	partitionReadAttempts = 5
	partitionReadBackoff  = 2 * time.Second
)

// topicAdmin is the part of *kafka.Conn used to inspect and create topics
type topicAdmin interface {
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	CreateTopics(topics ...kafka.TopicConfig) error
}

func ensureTopic(cfg *config.KafkaConfig, topic string, logger *slog.Logger) error {
	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return fmt.Errorf("failed to dial kafka: %w", err)
	}
	defer conn.Close()

	return createTopicIfNotExists(conn, kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}, partitionReadBackoff, logger)
}

// createTopicIfNotExists creates the topic when its partitions cannot be read,
// retrying the read a few times first since a fresh broker may still be electing leaders
func createTopicIfNotExists(admin topicAdmin, topicConfig kafka.TopicConfig, backoff time.Duration, logger *slog.Logger) error {
	var partitions []kafka.Partition
	var err error

	for attempt := 1; attempt <= partitionReadAttempts; attempt++ {
		partitions, err = admin.ReadPartitions(topicConfig.Topic)
		if err == nil {
			break
		}
		logger.Warn("Failed to read partitions, retrying", "topic", topicConfig.Topic, "attempt", attempt, "error", err)
		time.Sleep(backoff)
	}

	if len(partitions) > 0 {
		logger.Info("Kafka topic already exists", "topic", topicConfig.Topic, "partitions", len(partitions))
		return nil
	}

	if topicConfig.NumPartitions == 0 {
		topicConfig.NumPartitions = 1
	}
	if topicConfig.ReplicationFactor == 0 {
		topicConfig.ReplicationFactor = 1
	}

	logger.Info("Creating Kafka topic", "topic", topicConfig.Topic, "partitions", topicConfig.NumPartitions, "last_read_error", err)
	if err := admin.CreateTopics(topicConfig); err != nil {
		return fmt.Errorf("failed to create kafka topic %s: %w", topicConfig.Topic, err)
	}
	return nil
}
