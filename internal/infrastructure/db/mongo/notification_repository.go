package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/intranet/realtime-system/internal/core/domain"
	"github.com/intranet/realtime-system/internal/core/ports"
)

const collectionNotifications = "notifications"

type NotificationRepository struct {
	col *mongo.Collection
}

func NewNotificationRepository(db *mongo.Database) *NotificationRepository {
	return &NotificationRepository{col: db.Collection(collectionNotifications)}
}

// InsertMany writes the rows in a single unordered batch, so one bad row does
// not stop the rest. Per-row write errors are reported through the results.
func (r *NotificationRepository) InsertMany(ctx context.Context, ns []*domain.Notification) ([]ports.InsertResult, error) {
	results := make([]ports.InsertResult, len(ns))
	for i := range results {
		results[i].Index = i
	}
	if len(ns) == 0 {
		return results, nil
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	docs := lo.Map(ns, func(n *domain.Notification, _ int) any { return n })
	_, err := r.col.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return results, nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || len(bwe.WriteErrors) == 0 {
		return nil, err
	}
	for _, we := range bwe.WriteErrors {
		if we.Index >= 0 && we.Index < len(results) {
			results[we.Index].Err = we
		}
	}
	return results, nil
}

func (r *NotificationRepository) List(ctx context.Context, f ports.NotificationFilter) ([]*domain.Notification, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"user_id": f.UserID}
	if f.UnreadOnly {
		filter["is_read"] = false
	}

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((f.Page - 1) * f.Limit)).
		SetLimit(int64(f.Limit))

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	items := []*domain.Notification{}
	if err := cur.All(ctx, &items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return r.col.CountDocuments(ctx, bson.M{"user_id": userID, "is_read": false})
}

// SetRead flips the read flag of a notification owned by userID. A
// notification of another user is reported as not found.
func (r *NotificationRepository) SetRead(ctx context.Context, userID, id string, read bool) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var update bson.M
	if read {
		update = bson.M{"$set": bson.M{"is_read": true, "read_at": time.Now().UTC()}}
	} else {
		update = bson.M{"$set": bson.M{"is_read": false}, "$unset": bson.M{"read_at": ""}}
	}

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id, "user_id": userID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateMany(ctx,
		bson.M{"user_id": userID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": time.Now().UTC()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *NotificationRepository) Delete(ctx context.Context, userID, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

// EnsureIndexes creates necessary indexes on the notifications collection.
func (r *NotificationRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "is_read", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
