package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/intranet/realtime-system/internal/core/domain"
	"github.com/intranet/realtime-system/internal/core/ports"
)

const maxSearchLimit = 100

// UserService implements user sync and administration.
type UserService struct {
	repo ports.UserRepository
	log  zerolog.Logger
}

func NewUserService(repo ports.UserRepository, log zerolog.Logger) *UserService {
	return &UserService{repo: repo, log: log}
}

// Sync upserts the user asserted by the identity provider. New users start
// as active members; existing users only get their profile fields refreshed.
func (s *UserService) Sync(ctx context.Context, in ports.SyncUserInput) (*domain.User, error) {
	if strings.TrimSpace(in.ID) == "" {
		return nil, domain.ErrInvalidUser
	}

	now := time.Now().UTC()
	user, err := s.repo.Upsert(ctx, &domain.User{
		ID:        in.ID,
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		ImageURL:  in.ImageURL,
		Sector:    in.Sector,
		Extension: in.Extension,
		Role:      domain.RoleMember,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("sync user: %w", err)
	}
	if !user.Active {
		return nil, domain.ErrUserInactive
	}

	s.log.Debug().Str("user_id", user.ID).Msg("user synced")
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *UserService) Search(ctx context.Context, query string, limit int) ([]*domain.User, error) {
	if limit <= 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return s.repo.Search(ctx, strings.TrimSpace(query), limit)
}

// Update applies an admin edit.
func (s *UserService) Update(ctx context.Context, actorRole, id string, patch ports.UserPatch) (*domain.User, error) {
	if actorRole != domain.RoleAdmin {
		return nil, domain.ErrForbidden
	}
	if patch.Role != nil && !domain.ValidRole(*patch.Role) {
		return nil, domain.ErrInvalidUser
	}

	user, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	s.log.Info().Str("user_id", id).Msg("user updated")
	return user, nil
}

// Deactivate soft-deletes a user. Users are never removed.
func (s *UserService) Deactivate(ctx context.Context, actorRole, id string) error {
	inactive := false
	_, err := s.Update(ctx, actorRole, id, ports.UserPatch{Active: &inactive})
	return err
}
