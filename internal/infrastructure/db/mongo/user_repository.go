package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/intranet/realtime-system/internal/core/domain"
	"github.com/intranet/realtime-system/internal/core/ports"
)

const collectionUsers = "users"

// UserRepository implements ports.UserRepository using MongoDB.
type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(collectionUsers)}
}

// Upsert refreshes the profile fields of the user and inserts it when it
// does not exist yet. Role, active flag and creation time are only written
// on insert, so admin edits survive later syncs.
func (r *UserRepository) Upsert(ctx context.Context, u *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{
		"email":      u.Email,
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"updated_at": u.UpdatedAt,
	}
	if u.ImageURL != "" {
		set["image_url"] = u.ImageURL
	}
	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"role":       u.Role,
			"active":     u.Active,
			"sector":     u.Sector,
			"extension":  u.Extension,
			"created_at": u.CreatedAt,
		},
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out domain.User
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": u.ID}, update, opts).Decode(&out); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &out, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var u domain.User
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) FindByIDs(ctx context.Context, ids []string) ([]*domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var users []*domain.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CountExisting counts the ids that belong to a stored user.
func (r *UserRepository) CountExisting(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return r.col.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

// Search does a case-insensitive substring match on names and email over
// active users.
func (r *UserRepository) Search(ctx context.Context, query string, limit int) ([]*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"active": true}
	if query != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(query), "$options": "i"}
		filter["$or"] = bson.A{
			bson.M{"first_name": pattern},
			bson.M{"last_name": pattern},
			bson.M{"email": pattern},
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "first_name", Value: 1}, {Key: "last_name", Value: 1}}).
		SetLimit(int64(limit))

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	users := []*domain.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) Update(ctx context.Context, id string, patch ports.UserPatch) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{"updated_at": time.Now().UTC()}
	if patch.FirstName != nil {
		set["first_name"] = *patch.FirstName
	}
	if patch.LastName != nil {
		set["last_name"] = *patch.LastName
	}
	if patch.Sector != nil {
		set["sector"] = *patch.Sector
	}
	if patch.Role != nil {
		set["role"] = *patch.Role
	}
	if patch.Extension != nil {
		set["extension"] = *patch.Extension
	}
	if patch.Active != nil {
		set["active"] = *patch.Active
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var u domain.User
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// EnsureIndexes creates necessary indexes on the users collection.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}},
		{Keys: bson.D{{Key: "active", Value: 1}, {Key: "first_name", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
