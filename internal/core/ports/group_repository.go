package ports

import (
	"context"

	"github.com/intranet/realtime-system/internal/core/domain"
)

// GroupRepository persists chat groups and the membership table.
type GroupRepository interface {
	Create(ctx context.Context, group *domain.Group, members []domain.Membership) error
	FindByID(ctx context.Context, id string) (*domain.Group, error)
	ListForUser(ctx context.Context, userID string) ([]*domain.Group, error)
	Members(ctx context.Context, groupID string) ([]domain.Membership, error)
	FindMembership(ctx context.Context, groupID, userID string) (*domain.Membership, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	AddMember(ctx context.Context, m domain.Membership) error
	RemoveMember(ctx context.Context, groupID, userID string) error
}
