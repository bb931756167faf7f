package ports

import (
	"context"

	"github.com/intranet/realtime-system/internal/core/domain"
)

// UserRepository persists intranet users.
type UserRepository interface {
	// Upsert creates the user on first sync and refreshes profile fields on
	// later syncs. Role and Active are only set on insert.
	Upsert(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]*domain.User, error)
	// CountExisting returns how many of ids belong to an existing user.
	CountExisting(ctx context.Context, ids []string) (int64, error)
	Search(ctx context.Context, query string, limit int) ([]*domain.User, error)
	Update(ctx context.Context, id string, patch UserPatch) (*domain.User, error)
}

// UserPatch carries the admin-editable user fields. Nil means unchanged.
type UserPatch struct {
	FirstName *string
	LastName  *string
	Sector    *string
	Role      *string
	Extension *string
	Active    *bool
}
