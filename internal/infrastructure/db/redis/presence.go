package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/intranet/realtime-system/internal/core/domain"
)

const defaultPresenceTTL = 90 * time.Second

// PresenceStore keeps the connection to room mapping in Redis so every
// instance sees the same rooms.
//
// Keys:
//
//	presence:conn:<connID>  hash {user_id, room_id, joined_at, last_seen}, expires after ttl
//	presence:room:<roomID>  zset of "<connID>|<userID>" scored by last seen (unix ms)
//
// Room members whose score is older than ttl belong to instances that died
// without cleaning up and are pruned on read.
type PresenceStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewPresenceStore creates a PresenceStore. ttl <= 0 selects the default.
func NewPresenceStore(client *redis.Client, ttl time.Duration) *PresenceStore {
	if ttl <= 0 {
		ttl = defaultPresenceTTL
	}
	return &PresenceStore{client: client, ttl: ttl, now: time.Now}
}

func connKey(connID string) string { return "presence:conn:" + connID }
func roomKey(roomID string) string { return "presence:room:" + roomID }

func member(connID, userID string) string { return connID + "|" + userID }

// Join moves the connection into entry.RoomID and returns its previous entry.
func (s *PresenceStore) Join(ctx context.Context, entry domain.PresenceEntry) (*domain.PresenceEntry, error) {
	prev, err := s.Get(ctx, entry.ConnID)
	if err != nil && !errors.Is(err, domain.ErrPresenceNotFound) {
		return nil, err
	}

	now := s.now()
	if entry.JoinedAt.IsZero() {
		entry.JoinedAt = now
	}
	entry.LastSeen = now

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if prev != nil {
			p.ZRem(ctx, roomKey(prev.RoomID), member(prev.ConnID, prev.UserID))
		}
		p.HSet(ctx, connKey(entry.ConnID),
			"user_id", entry.UserID,
			"room_id", entry.RoomID,
			"joined_at", entry.JoinedAt.UnixMilli(),
			"last_seen", entry.LastSeen.UnixMilli(),
		)
		p.Expire(ctx, connKey(entry.ConnID), s.ttl)
		p.ZAdd(ctx, roomKey(entry.RoomID), redis.Z{
			Score:  float64(entry.LastSeen.UnixMilli()),
			Member: member(entry.ConnID, entry.UserID),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("presence join: %w", err)
	}
	return prev, nil
}

func (s *PresenceStore) Leave(ctx context.Context, connID string) (*domain.PresenceEntry, error) {
	entry, err := s.Get(ctx, connID)
	if err != nil {
		return nil, err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, connKey(connID))
		p.ZRem(ctx, roomKey(entry.RoomID), member(connID, entry.UserID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("presence leave: %w", err)
	}
	return entry, nil
}

func (s *PresenceStore) Get(ctx context.Context, connID string) (*domain.PresenceEntry, error) {
	fields, err := s.client.HGetAll(ctx, connKey(connID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence get: %w", err)
	}
	entry, ok := decodeEntry(connID, fields)
	if !ok {
		return nil, domain.ErrPresenceNotFound
	}
	return entry, nil
}

// Touch refreshes the last seen time of the connection.
func (s *PresenceStore) Touch(ctx context.Context, connID string) error {
	entry, err := s.Get(ctx, connID)
	if err != nil {
		return err
	}
	now := s.now().UnixMilli()
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, connKey(connID), "last_seen", now)
		p.Expire(ctx, connKey(connID), s.ttl)
		p.ZAdd(ctx, roomKey(entry.RoomID), redis.Z{Score: float64(now), Member: member(connID, entry.UserID)})
		return nil
	})
	if err != nil {
		return fmt.Errorf("presence touch: %w", err)
	}
	return nil
}

// InRoom prunes stale members and returns the live entries of the room.
func (s *PresenceStore) InRoom(ctx context.Context, roomID string) ([]domain.PresenceEntry, error) {
	key := roomKey(roomID)
	cutoff := s.now().Add(-s.ttl).UnixMilli()

	if err := s.client.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return nil, fmt.Errorf("presence prune: %w", err)
	}
	members, err := s.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("presence list: %w", err)
	}
	if len(members) == 0 {
		return []domain.PresenceEntry{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(members))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, m := range members {
			connID, _, _ := strings.Cut(m, "|")
			cmds[i] = p.HGetAll(ctx, connKey(connID))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("presence list: %w", err)
	}

	entries := make([]domain.PresenceEntry, 0, len(members))
	var stale []any
	for i, m := range members {
		connID, _, _ := strings.Cut(m, "|")
		entry, ok := decodeEntry(connID, cmds[i].Val())
		if !ok || entry.RoomID != roomID {
			stale = append(stale, m)
			continue
		}
		entries = append(entries, *entry)
	}
	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, key, stale...).Err()
	}
	return entries, nil
}

func decodeEntry(connID string, fields map[string]string) (*domain.PresenceEntry, bool) {
	if fields["user_id"] == "" || fields["room_id"] == "" {
		return nil, false
	}
	return &domain.PresenceEntry{
		ConnID:   connID,
		UserID:   fields["user_id"],
		RoomID:   fields["room_id"],
		JoinedAt: parseMillis(fields["joined_at"]),
		LastSeen: parseMillis(fields["last_seen"]),
	}, true
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
