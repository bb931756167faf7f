package ports

import (
	"context"

	"github.com/intranet/realtime-system/internal/core/domain"
)

// CreateGroupInput carries the data needed to create a group. The creator is
// always added as a group admin.
type CreateGroupInput struct {
	CreatorID   string
	Name        string
	Description string
	MemberIDs   []string
}

// GroupDetail is a group with its member list.
type GroupDetail struct {
	Group   *domain.Group
	Members []domain.Membership
}

// GroupService defines use-case operations for chat groups.
type GroupService interface {
	Create(ctx context.Context, input CreateGroupInput) (*GroupDetail, error)
	Get(ctx context.Context, actorID, groupID string) (*GroupDetail, error)
	ListForUser(ctx context.Context, userID string) ([]*domain.Group, error)
	AddMember(ctx context.Context, actorID, actorRole, groupID, userID string) error
	RemoveMember(ctx context.Context, actorID, actorRole, groupID, userID string) error
}
