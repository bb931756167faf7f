package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/intranet/realtime-system/internal/core/domain"
	"github.com/intranet/realtime-system/internal/core/ports"
)

type GroupService struct {
	groups ports.GroupRepository
	users  ports.UserRepository
	log    zerolog.Logger
}

func NewGroupService(groups ports.GroupRepository, users ports.UserRepository, log zerolog.Logger) *GroupService {
	return &GroupService{groups: groups, users: users, log: log}
}

// Create stores a new group. The creator becomes its admin; every other
// listed user becomes a member and must exist.
func (s *GroupService) Create(ctx context.Context, in ports.CreateGroupInput) (*ports.GroupDetail, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.CreatorID == "" {
		return nil, domain.ErrInvalidGroup
	}

	memberIDs := lo.Uniq(lo.Filter(in.MemberIDs, func(id string, _ int) bool {
		return id != "" && id != in.CreatorID
	}))
	if len(memberIDs) > 0 {
		n, err := s.users.CountExisting(ctx, memberIDs)
		if err != nil {
			return nil, fmt.Errorf("create group: %w", err)
		}
		if n != int64(len(memberIDs)) {
			return nil, domain.ErrUserNotFound
		}
	}

	now := time.Now().UTC()
	group := &domain.Group{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		CreatedBy:   in.CreatorID,
		CreatedAt:   now,
	}
	members := make([]domain.Membership, 0, len(memberIDs)+1)
	members = append(members, domain.Membership{
		GroupID: group.ID, UserID: in.CreatorID, Role: domain.GroupRoleAdmin, JoinedAt: now,
	})
	for _, id := range memberIDs {
		members = append(members, domain.Membership{
			GroupID: group.ID, UserID: id, Role: domain.GroupRoleMember, JoinedAt: now,
		})
	}

	if err := s.groups.Create(ctx, group, members); err != nil {
		s.log.Error().Err(err).Msg("failed to create group")
		return nil, fmt.Errorf("create group: %w", err)
	}

	s.log.Info().Str("group_id", group.ID).Int("members", len(members)).Msg("group created")
	return &ports.GroupDetail{Group: group, Members: members}, nil
}

// Get returns a group and its members. Only members may read it.
func (s *GroupService) Get(ctx context.Context, actorID, groupID string) (*ports.GroupDetail, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	ok, err := s.groups.IsMember(ctx, groupID, actorID)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	if !ok {
		return nil, domain.ErrForbidden
	}
	members, err := s.groups.Members(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("get group members: %w", err)
	}
	return &ports.GroupDetail{Group: group, Members: members}, nil
}

func (s *GroupService) ListForUser(ctx context.Context, userID string) ([]*domain.Group, error) {
	return s.groups.ListForUser(ctx, userID)
}

// AddMember lets a group admin (or a global admin) add a user to the group.
func (s *GroupService) AddMember(ctx context.Context, actorID, actorRole, groupID, userID string) error {
	if err := s.requireGroupAdmin(ctx, actorID, actorRole, groupID); err != nil {
		return err
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return err
	}

	err := s.groups.AddMember(ctx, domain.Membership{
		GroupID:  groupID,
		UserID:   userID,
		Role:     domain.GroupRoleMember,
		JoinedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	s.log.Info().Str("group_id", groupID).Str("user_id", userID).Msg("member added")
	return nil
}

// RemoveMember removes a user from the group. Users may always remove
// themselves; removing others needs group or global admin rights.
func (s *GroupService) RemoveMember(ctx context.Context, actorID, actorRole, groupID, userID string) error {
	if actorID != userID {
		if err := s.requireGroupAdmin(ctx, actorID, actorRole, groupID); err != nil {
			return err
		}
	} else if _, err := s.groups.FindByID(ctx, groupID); err != nil {
		return err
	}

	if err := s.groups.RemoveMember(ctx, groupID, userID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	s.log.Info().Str("group_id", groupID).Str("user_id", userID).Msg("member removed")
	return nil
}

func (s *GroupService) requireGroupAdmin(ctx context.Context, actorID, actorRole, groupID string) error {
	if _, err := s.groups.FindByID(ctx, groupID); err != nil {
		return err
	}
	if actorRole == domain.RoleAdmin {
		return nil
	}
	m, err := s.groups.FindMembership(ctx, groupID, actorID)
	if errors.Is(err, domain.ErrNotMember) {
		return domain.ErrForbidden
	}
	if err != nil {
		return fmt.Errorf("check group admin: %w", err)
	}
	if m.Role != domain.GroupRoleAdmin {
		return domain.ErrForbidden
	}
	return nil
}
