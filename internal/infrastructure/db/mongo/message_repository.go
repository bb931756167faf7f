package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/intranet/realtime-system/internal/core/domain"
	"github.com/intranet/realtime-system/internal/core/ports"
)

const collectionMessages = "messages"

type MessageRepository struct {
	col *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{col: db.Collection(collectionMessages)}
}

// Create inserts a new message document.
func (r *MessageRepository) Create(ctx context.Context, m *domain.Message) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.InsertOne(ctx, m)
	return err
}

// ListByRoom returns up to limit messages of the room, newest first. A
// non-zero cursor restricts the page to messages ordered before it on
// (created_at, _id).
func (r *MessageRepository) ListByRoom(ctx context.Context, roomID string, before ports.MessageCursor, limit int) ([]*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := historyFilter(roomID, before)

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var msgs []*domain.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func historyFilter(roomID string, before ports.MessageCursor) bson.M {
	filter := bson.M{"room_id": roomID}
	if before.IsZero() {
		return filter
	}
	at := before.CreatedAt.UTC()
	if before.ID == "" {
		filter["created_at"] = bson.M{"$lt": at}
		return filter
	}
	filter["$or"] = bson.A{
		bson.M{"created_at": bson.M{"$lt": at}},
		bson.M{"created_at": at, "_id": bson.M{"$lt": before.ID}},
	}
	return filter
}

// EnsureIndexes creates necessary indexes on the messages collection.
func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
