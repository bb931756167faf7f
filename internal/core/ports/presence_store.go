package ports

import (
	"context"

	"github.com/intranet/realtime-system/internal/core/domain"
)

// PresenceStore tracks which room each live connection is in. It is shared by
// every instance of the service.
type PresenceStore interface {
	// Join attaches the connection to entry.RoomID, detaching it from any
	// previous room. The previous entry, if any, is returned.
	Join(ctx context.Context, entry domain.PresenceEntry) (*domain.PresenceEntry, error)
	// Leave detaches the connection and returns the entry it had.
	// domain.ErrPresenceNotFound is returned when there was none.
	Leave(ctx context.Context, connID string) (*domain.PresenceEntry, error)
	Get(ctx context.Context, connID string) (*domain.PresenceEntry, error)
	// Touch marks the connection as alive.
	Touch(ctx context.Context, connID string) error
	// InRoom returns the live entries of a room.
	InRoom(ctx context.Context, roomID string) ([]domain.PresenceEntry, error)
}
