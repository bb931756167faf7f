package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/intranet/realtime-system/internal/core/domain"
)

func newTestPresence(t *testing.T, ttl time.Duration) (*PresenceStore, *redis.Client, *time.Time) {
	t.Helper()
	_, client := newTestClient(t)
	store := NewPresenceStore(client, ttl)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	return store, client, &now
}

func TestPresenceStore_JoinAndGet(t *testing.T) {
	store, _, _ := newTestPresence(t, time.Minute)
	ctx := context.Background()

	prev, err := store.Join(ctx, domain.PresenceEntry{ConnID: "c1", UserID: "A", RoomID: "global"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if prev != nil {
		t.Errorf("first join has no previous entry, got %+v", prev)
	}

	entry, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.UserID != "A" || entry.RoomID != "global" || entry.JoinedAt.IsZero() {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestPresenceStore_JoinMovesRoom(t *testing.T) {
	store, _, _ := newTestPresence(t, time.Minute)
	ctx := context.Background()

	if _, err := store.Join(ctx, domain.PresenceEntry{ConnID: "c1", UserID: "A", RoomID: "global"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	prev, err := store.Join(ctx, domain.PresenceEntry{ConnID: "c1", UserID: "A", RoomID: "group_g1"})
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if prev == nil || prev.RoomID != "global" {
		t.Fatalf("expected previous room global, got %+v", prev)
	}

	old, _ := store.InRoom(ctx, "global")
	cur, _ := store.InRoom(ctx, "group_g1")
	if len(old) != 0 || len(cur) != 1 {
		t.Errorf("connection must be in exactly one room, got old=%d new=%d", len(old), len(cur))
	}
}

func TestPresenceStore_Leave(t *testing.T) {
	store, _, _ := newTestPresence(t, time.Minute)
	ctx := context.Background()

	if _, err := store.Join(ctx, domain.PresenceEntry{ConnID: "c1", UserID: "A", RoomID: "global"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	entry, err := store.Leave(ctx, "c1")
	if err != nil || entry.RoomID != "global" {
		t.Fatalf("leave: %+v (%v)", entry, err)
	}
	if _, err := store.Leave(ctx, "c1"); !errors.Is(err, domain.ErrPresenceNotFound) {
		t.Errorf("expected ErrPresenceNotFound, got: %v", err)
	}
	if entries, _ := store.InRoom(ctx, "global"); len(entries) != 0 {
		t.Errorf("room should be empty, got %+v", entries)
	}
}

func TestPresenceStore_InRoomMultipleConnections(t *testing.T) {
	store, _, _ := newTestPresence(t, time.Minute)
	ctx := context.Background()

	for _, e := range []domain.PresenceEntry{
		{ConnID: "a1", UserID: "A", RoomID: "global"},
		{ConnID: "a2", UserID: "A", RoomID: "global"},
		{ConnID: "b1", UserID: "B", RoomID: "global"},
		{ConnID: "c1", UserID: "C", RoomID: "lobby"},
	} {
		if _, err := store.Join(ctx, e); err != nil {
			t.Fatalf("join %s: %v", e.ConnID, err)
		}
	}

	entries, err := store.InRoom(ctx, "global")
	if err != nil {
		t.Fatalf("in room: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("expected 3 connections, got %d", len(entries))
	}
}

func TestPresenceStore_InRoomPrunesStale(t *testing.T) {
	store, _, now := newTestPresence(t, time.Minute)
	ctx := context.Background()

	if _, err := store.Join(ctx, domain.PresenceEntry{ConnID: "old", UserID: "A", RoomID: "global"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	*now = now.Add(2 * time.Minute)
	if _, err := store.Join(ctx, domain.PresenceEntry{ConnID: "fresh", UserID: "B", RoomID: "global"}); err != nil {
		t.Fatalf("join: %v", err)
	}

	entries, err := store.InRoom(ctx, "global")
	if err != nil {
		t.Fatalf("in room: %v", err)
	}
	if len(entries) != 1 || entries[0].ConnID != "fresh" {
		t.Errorf("expected only the fresh connection, got %+v", entries)
	}
}

func TestPresenceStore_InRoomDropsMismatchedMembers(t *testing.T) {
	store, client, now := newTestPresence(t, time.Minute)
	ctx := context.Background()

	if _, err := store.Join(ctx, domain.PresenceEntry{ConnID: "c1", UserID: "A", RoomID: "lobby"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	// A leftover member pointing at a connection that now lives elsewhere.
	client.ZAdd(ctx, roomKey("global"), redis.Z{Score: float64(now.UnixMilli()), Member: member("c1", "A")})

	entries, err := store.InRoom(ctx, "global")
	if err != nil {
		t.Fatalf("in room: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %+v", entries)
	}
	if n, _ := client.ZCard(ctx, roomKey("global")).Result(); n != 0 {
		t.Errorf("mismatched member should be removed, %d left", n)
	}
}

func TestPresenceStore_TouchKeepsAlive(t *testing.T) {
	store, _, now := newTestPresence(t, time.Minute)
	ctx := context.Background()

	if _, err := store.Join(ctx, domain.PresenceEntry{ConnID: "c1", UserID: "A", RoomID: "global"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	*now = now.Add(50 * time.Second)
	if err := store.Touch(ctx, "c1"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	*now = now.Add(50 * time.Second)

	entries, err := store.InRoom(ctx, "global")
	if err != nil {
		t.Fatalf("in room: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("touched connection should survive, got %+v", entries)
	}

	if err := store.Touch(ctx, "nope"); !errors.Is(err, domain.ErrPresenceNotFound) {
		t.Errorf("expected ErrPresenceNotFound, got: %v", err)
	}
}
