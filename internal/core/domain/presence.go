package domain

import "time"

// PresenceEntry records which room a live connection is attached to.
// A connection is in at most one room at a time.
type PresenceEntry struct {
	ConnID   string    `json:"conn_id"`
	UserID   string    `json:"user_id"`
	RoomID   string    `json:"room_id"`
	JoinedAt time.Time `json:"joined_at"`
	LastSeen time.Time `json:"last_seen"`
}
