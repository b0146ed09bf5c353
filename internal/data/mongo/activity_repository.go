// Package mongo provides the MongoDB activity log of delivered ledger events.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bytebank-ledger/internal/domain/ledger"
)

const (
	// ActivityCollectionName is the name of the activity collection in MongoDB
	ActivityCollectionName = "ledger_activity"
)

var _ ledger.ActivityLog = (*ActivityRepository)(nil)

// ActivityRepository implements ledger.ActivityLog for MongoDB
type ActivityRepository struct {
	db     *mongo.Database
	logger *slog.Logger
	now    func() time.Time
}

// NewActivityRepository creates a new MongoDB activity repository
func NewActivityRepository(logger *slog.Logger, db *mongo.Database) *ActivityRepository {
	return &ActivityRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// EnsureIndexes creates the unique event index that makes Record idempotent and
// the per-user feed index
func (r *ActivityRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("event_id_unique"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "occurred_at", Value: -1}},
			Options: options.Index().SetName("user_feed"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create activity indexes: %w", err)
	}
	return nil
}

// Record stores a delivered event. Redelivery of the same event returns ErrDuplicateEvent.
func (r *ActivityRepository) Record(ctx context.Context, event *ledger.Event) error {
	recordedAt := r.now().UTC()
	doc := *event
	doc.RecordedAt = &recordedAt

	if _, err := r.collection().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ledger.ErrDuplicateEvent{EventID: event.EventID}
		}
		r.logger.Error("Failed to record ledger event",
			"event_id", event.EventID.String(),
			"error", err)
		return fmt.Errorf("failed to record ledger event: %w", err)
	}

	event.RecordedAt = &recordedAt
	return nil
}

// GetByEventID retrieves one recorded event
func (r *ActivityRepository) GetByEventID(ctx context.Context, eventID uuid.UUID) (*ledger.Event, error) {
	var event ledger.Event
	err := r.collection().FindOne(ctx, bson.M{"event_id": eventID}).Decode(&event)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ledger.ErrEventNotFound{EventID: eventID}
		}
		r.logger.Error("Failed to get ledger event",
			"event_id", eventID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get ledger event: %w", err)
	}

	return &event, nil
}

// ListByUser returns a page of the user's feed, newest first
func (r *ActivityRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ledger.Event, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}, {Key: "event_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.collection().Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		r.logger.Error("Failed to list ledger events",
			"user_id", userID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to list ledger events: %w", err)
	}
	defer cursor.Close(ctx)

	events := []*ledger.Event{}
	if err := cursor.All(ctx, &events); err != nil {
		r.logger.Error("Failed to decode ledger events",
			"user_id", userID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode ledger events: %w", err)
	}

	return events, nil
}

// CountByUser counts the user's recorded events
func (r *ActivityRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := r.collection().CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		r.logger.Error("Failed to count ledger events",
			"user_id", userID.String(),
			"error", err)
		return 0, fmt.Errorf("failed to count ledger events: %w", err)
	}

	return count, nil
}

func (r *ActivityRepository) collection() *mongo.Collection {
	return r.db.Collection(ActivityCollectionName)
}
