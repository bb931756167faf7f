package ports

import (
	"context"

	"github.com/intranet/realtime-system/internal/core/domain"
)

// Broadcaster delivers socket events to connected clients.
type Broadcaster interface {
	// Attach and Detach keep the local room index of a connection in sync
	// with the presence store.
	Attach(connID, roomID string)
	Detach(connID string)
	// SendToConn delivers an event to a single connection.
	SendToConn(ctx context.Context, connID string, evt domain.Event) error
	// BroadcastToRoom delivers to every socket in the room except exceptConnID
	// (empty = nobody excluded).
	BroadcastToRoom(ctx context.Context, roomID string, evt domain.Event, exceptConnID string) error
	// SendToUser delivers to every socket of the user.
	SendToUser(ctx context.Context, userID string, evt domain.Event) error
}
