package ports

import (
	"context"

	"github.com/intranet/realtime-system/internal/core/domain"
)

// SyncUserInput is the identity asserted by the identity provider, optionally
// enriched by the client on first login.
type SyncUserInput struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	ImageURL  string
	Sector    string
	Extension string
}

// UserService covers user sync and administration.
type UserService interface {
	Sync(ctx context.Context, input SyncUserInput) (*domain.User, error)
	Get(ctx context.Context, id string) (*domain.User, error)
	Search(ctx context.Context, query string, limit int) ([]*domain.User, error)
	Update(ctx context.Context, actorRole, id string, patch UserPatch) (*domain.User, error)
	Deactivate(ctx context.Context, actorRole, id string) error
}
