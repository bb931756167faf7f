package ports

import (
	"context"

	"github.com/intranet/realtime-system/internal/core/domain"
)

// InsertResult reports the outcome of one row of a batched insert.
// Index refers to the position in the input slice.
type InsertResult struct {
	Index int
	Err   error
}

// NotificationFilter selects a page of a user's notifications.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Page       int // 1-based
	Limit      int
}

// NotificationRepository persists notifications.
type NotificationRepository interface {
	// InsertMany writes all rows in one unordered batch. It returns one
	// result per input row; err is non-nil only when the batch as a whole
	// could not be attempted.
	InsertMany(ctx context.Context, ns []*domain.Notification) ([]InsertResult, error)
	List(ctx context.Context, filter NotificationFilter) ([]*domain.Notification, int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	SetRead(ctx context.Context, userID, id string, read bool) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, userID, id string) error
}
