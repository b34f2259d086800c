package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Notification is an in-app message addressed to a provider.
type Notification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Content   string             `bson:"content"`
	User      int64              `bson:"user"`
	Read      bool               `bson:"read"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

type Notifications struct {
	coll *mongo.Collection
}

func NewNotifications(db *mongo.Database) *Notifications {
	return &Notifications{coll: db.Collection("notifications")}
}

// EnsureIndexes supports the provider's unread list, newest first.
func (r *Notifications) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user", Value: 1}, {Key: "read", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("user_read_created_idx"),
	})
	if err != nil {
		return fmt.Errorf("create notification indexes: %w", err)
	}
	return nil
}

// Create stores an unread notification for user.
func (r *Notifications) Create(ctx context.Context, user int64, content string, at time.Time) (Notification, error) {
	n := Notification{
		Content:   content,
		User:      user,
		Read:      false,
		CreatedAt: at,
		UpdatedAt: at,
	}
	res, err := r.coll.InsertOne(ctx, n)
	if err != nil {
		return Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		n.ID = id
	}
	return n, nil
}
