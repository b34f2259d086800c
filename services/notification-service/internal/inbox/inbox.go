// Package inbox remembers which events were already handled so redelivered Kafka messages
// are processed once.
package inbox

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type record struct {
	EventID    string    `bson:"event_id"`
	EventType  string    `bson:"event_type"`
	ReceivedAt time.Time `bson:"received_at"`
}

type Repository struct {
	coll *mongo.Collection
}

func NewRepository(db *mongo.Database) *Repository {
	return &Repository{coll: db.Collection("inbox_events")}
}

func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "event_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("event_id_unique"),
	})
	if err != nil {
		return fmt.Errorf("create inbox index: %w", err)
	}
	return nil
}

// Claim records eventID and reports false when it was already recorded.
func (r *Repository) Claim(ctx context.Context, eventID, eventType string) (bool, error) {
	_, err := r.coll.InsertOne(ctx, record{EventID: eventID, EventType: eventType, ReceivedAt: time.Now().UTC()})
	if err == nil {
		return true, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	return false, err
}

// Release forgets eventID so a later delivery can retry it.
func (r *Repository) Release(ctx context.Context, eventID string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"event_id": eventID})
	return err
}
