// Package ledger defines the events emitted whenever a user's ledger changes.
// Events travel through the outbox to Kafka and are recorded in the activity log.
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// EventType names what happened to an aggregate
type EventType string

const (
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionUpdated EventType = "transaction.updated"
	EventTransactionDeleted EventType = "transaction.deleted"
	EventAccountProvisioned EventType = "account.provisioned"
)

// Valid reports whether t is a known event type
func (t EventType) Valid() bool {
	switch t {
	case EventTransactionCreated, EventTransactionUpdated, EventTransactionDeleted, EventAccountProvisioned:
		return true
	}
	return false
}

// AffectsTransactions reports whether the event changes transaction listings or summaries
func (t EventType) AffectsTransactions() bool {
	return t == EventTransactionCreated || t == EventTransactionUpdated || t == EventTransactionDeleted
}

// Event is one change to a user's ledger. Amount is in minor units.
type Event struct {
	EventID         uuid.UUID  `json:"event_id" bson:"event_id"`
	Type            EventType  `json:"type" bson:"type"`
	UserID          uuid.UUID  `json:"user_id" bson:"user_id"`
	AggregateID     uuid.UUID  `json:"aggregate_id" bson:"aggregate_id"`
	TransactionType string     `json:"transaction_type,omitempty" bson:"transaction_type,omitempty"`
	Amount          *int64     `json:"amount,omitempty" bson:"amount,omitempty"`
	Currency        string     `json:"currency,omitempty" bson:"currency,omitempty"`
	AccountNumber   string     `json:"account_number,omitempty" bson:"account_number,omitempty"`
	CorrelationID   string     `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	OccurredAt      time.Time  `json:"occurred_at" bson:"occurred_at"`
	RecordedAt      *time.Time `json:"recorded_at,omitempty" bson:"recorded_at,omitempty"`
}

// NewEvent creates an event with a fresh ID
func NewEvent(eventType EventType, userID, aggregateID uuid.UUID) *Event {
	return &Event{
		EventID:     uuid.New(),
		Type:        eventType,
		UserID:      userID,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
	}
}
