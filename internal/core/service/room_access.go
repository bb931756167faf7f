package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/intranet/realtime-system/internal/core/domain"
	"github.com/intranet/realtime-system/internal/core/ports"
	"github.com/intranet/realtime-system/internal/pkg/metrics"
)

// RoomAuthorizer decides whether a user may use a room.
type RoomAuthorizer interface {
	Authorize(ctx context.Context, userID, roomID string) (domain.RoomKey, error)
}

// RoomAccess checks room membership against the user and group stores.
type RoomAccess struct {
	users  ports.UserRepository
	groups ports.GroupRepository
	log    zerolog.Logger
}

// NewRoomAccess returns a RoomAccess validator.
func NewRoomAccess(users ports.UserRepository, groups ports.GroupRepository, log zerolog.Logger) *RoomAccess {
	return &RoomAccess{users: users, groups: groups, log: log}
}

// Authorize parses roomID and verifies userID may join it or send to it:
//   - group rooms need a membership row for (group, user).
//   - private rooms need the caller to be one of the two participants, and
//     both participants must exist.
//   - global and any other rooms are open.
func (a *RoomAccess) Authorize(ctx context.Context, userID, roomID string) (domain.RoomKey, error) {
	key, err := domain.ParseRoomKey(roomID)
	if err != nil {
		metrics.RoomAccessDeniedTotal.WithLabelValues("invalid").Inc()
		return domain.RoomKey{}, err
	}
	if userID == "" {
		return key, a.deny(key, userID, "missing user")
	}

	switch key.Kind {
	case domain.RoomGroup:
		ok, err := a.groups.IsMember(ctx, key.GroupID, userID)
		if err != nil {
			return key, fmt.Errorf("authorize %s: %w", key.Raw, err)
		}
		if !ok {
			return key, a.deny(key, userID, "not a group member")
		}

	case domain.RoomPrivate:
		if !key.HasMember(userID) {
			return key, a.deny(key, userID, "not a participant")
		}
		members := lo.Uniq(key.Members[:])
		n, err := a.users.CountExisting(ctx, members)
		if err != nil {
			return key, fmt.Errorf("authorize %s: %w", key.Raw, err)
		}
		if n != int64(len(members)) {
			return key, a.deny(key, userID, "participant does not exist")
		}
	}

	return key, nil
}

func (a *RoomAccess) deny(key domain.RoomKey, userID, reason string) error {
	metrics.RoomAccessDeniedTotal.WithLabelValues(string(key.Kind)).Inc()
	a.log.Warn().
		Str("room", key.Raw).
		Str("user_id", userID).
		Str("reason", reason).
		Msg("room access denied")
	return domain.ErrRoomAccessDenied
}
