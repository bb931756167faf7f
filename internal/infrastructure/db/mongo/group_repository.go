package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/intranet/realtime-system/internal/core/domain"
)

const (
	collectionGroups       = "groups"
	collectionGroupMembers = "group_members"
)

// GroupRepository implements ports.GroupRepository using MongoDB. Memberships
// live in their own collection with a unique (group_id, user_id) index.
type GroupRepository struct {
	groups  *mongo.Collection
	members *mongo.Collection
}

func NewGroupRepository(db *mongo.Database) *GroupRepository {
	return &GroupRepository{
		groups:  db.Collection(collectionGroups),
		members: db.Collection(collectionGroupMembers),
	}
}

// Create inserts the group and its initial memberships. If the memberships
// cannot be written the group document is removed again.
func (r *GroupRepository) Create(ctx context.Context, g *domain.Group, members []domain.Membership) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.groups.InsertOne(ctx, g); err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	if len(members) == 0 {
		return nil
	}

	docs := lo.Map(members, func(m domain.Membership, _ int) any { return m })
	if _, err := r.members.InsertMany(ctx, docs); err != nil {
		_, _ = r.groups.DeleteOne(ctx, bson.M{"_id": g.ID})
		_, _ = r.members.DeleteMany(ctx, bson.M{"group_id": g.ID})
		return fmt.Errorf("insert group members: %w", err)
	}
	return nil
}

func (r *GroupRepository) FindByID(ctx context.Context, id string) (*domain.Group, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var g domain.Group
	err := r.groups.FindOne(ctx, bson.M{"_id": id}).Decode(&g)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrGroupNotFound
		}
		return nil, err
	}
	return &g, nil
}

// ListForUser returns the groups the user belongs to, sorted by name.
func (r *GroupRepository) ListForUser(ctx context.Context, userID string) ([]*domain.Group, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.members.Find(ctx, bson.M{"user_id": userID}, options.Find().SetProjection(bson.M{"group_id": 1}))
	if err != nil {
		return nil, err
	}
	var ms []domain.Membership
	if err := cur.All(ctx, &ms); err != nil {
		return nil, err
	}
	groups := []*domain.Group{}
	if len(ms) == 0 {
		return groups, nil
	}

	ids := lo.Map(ms, func(m domain.Membership, _ int) string { return m.GroupID })
	gcur, err := r.groups.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	if err := gcur.All(ctx, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *GroupRepository) Members(ctx context.Context, groupID string) ([]domain.Membership, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.members.Find(ctx, bson.M{"group_id": groupID}, options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	ms := []domain.Membership{}
	if err := cur.All(ctx, &ms); err != nil {
		return nil, err
	}
	return ms, nil
}

func (r *GroupRepository) FindMembership(ctx context.Context, groupID, userID string) (*domain.Membership, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var m domain.Membership
	err := r.members.FindOne(ctx, bson.M{"group_id": groupID, "user_id": userID}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotMember
		}
		return nil, err
	}
	return &m, nil
}

func (r *GroupRepository) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	n, err := r.members.CountDocuments(ctx, bson.M{"group_id": groupID, "user_id": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *GroupRepository) AddMember(ctx context.Context, m domain.Membership) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.members.InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyMember
		}
		return err
	}
	return nil
}

func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.members.DeleteOne(ctx, bson.M{"group_id": groupID, "user_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotMember
	}
	return nil
}

// EnsureIndexes creates necessary indexes on the group collections.
func (r *GroupRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	_, err := r.members.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	})
	return err
}
