package producers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDLQProducer_PublishToDLQ(t *testing.T) {
	dlqTopic := "ledger_events_dlq"
	ctx := context.Background()

	t.Run("SuccessfulPublishToDLQ", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &DLQProducer{logger: newTestLogger(), writer: mockWriter, dlqTopic: dlqTopic}

		key := "outbox-42"
		originalMessageValue := []byte(`{"event_id":"abc"}`)
		reason := "max publish attempts exceeded"

		mockWriter.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 {
				return false
			}
			var payload map[string]string
			if err := json.Unmarshal(msgs[0].Value, &payload); err != nil {
				return false
			}
			return string(msgs[0].Key) == key &&
				payload["original_value"] == string(originalMessageValue) &&
				payload["dlq_reason"] == reason &&
				payload["timestamp"] != "" &&
				headerValue(msgs[0], HeaderDLQReason) == reason
		})).Return(nil).Once()

		require.NoError(t, producer.PublishToDLQ(ctx, key, originalMessageValue, reason))
		mockWriter.AssertExpectations(t)
	})

	t.Run("WriterError", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &DLQProducer{logger: newTestLogger(), writer: mockWriter, dlqTopic: dlqTopic}
		writerError := errors.New("kafka DLQ write error")

		mockWriter.On("WriteMessages", ctx, mock.AnythingOfType("[]kafka.Message")).Return(writerError).Once()

		err := producer.PublishToDLQ(ctx, "k", []byte("v"), "reason")
		assert.ErrorIs(t, err, writerError)
		mockWriter.AssertExpectations(t)
	})

	t.Run("Disabled", func(t *testing.T) {
		var producer *DLQProducer

		err := producer.PublishToDLQ(ctx, "k", []byte("v"), "reason")
		assert.ErrorIs(t, err, ErrDLQDisabled)
		assert.NoError(t, producer.Close())
	})
}

func TestDLQProducer_Close(t *testing.T) {
	mockWriter := new(MockKafkaWriter)
	producer := &DLQProducer{logger: newTestLogger(), writer: mockWriter, dlqTopic: "dlq"}

	mockWriter.On("Close").Return(nil).Once()
	require.NoError(t, producer.Close())
	mockWriter.AssertExpectations(t)
}
