package ports

import (
	"context"
	"time"

	"github.com/intranet/realtime-system/internal/core/domain"
)

// MessageCursor points at the oldest message of a history page. Messages
// are ordered by (CreatedAt, ID), so rows sharing a timestamp with the
// cursor are still split correctly between pages. An empty ID falls back to
// the timestamp alone.
type MessageCursor struct {
	CreatedAt time.Time
	ID        string
}

func (c MessageCursor) IsZero() bool { return c.CreatedAt.IsZero() }

// After reports whether m sorts before the cursor, i.e. belongs to the
// older page.
func (c MessageCursor) After(m *domain.Message) bool {
	if c.IsZero() {
		return true
	}
	if m.CreatedAt.Before(c.CreatedAt) {
		return true
	}
	return c.ID != "" && m.CreatedAt.Equal(c.CreatedAt) && m.ID < c.ID
}

// MessageRepository persists chat messages.
type MessageRepository interface {
	Create(ctx context.Context, m *domain.Message) error
	// ListByRoom returns up to limit messages older than before (zero = now),
	// newest first.
	ListByRoom(ctx context.Context, roomID string, before MessageCursor, limit int) ([]*domain.Message, error)
}
