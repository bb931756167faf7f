package ports

import (
	"context"

	"github.com/intranet/realtime-system/internal/core/domain"
)

// FanoutJob asks for one chat notification per recipient.
type FanoutJob struct {
	Message    domain.MessageView
	Recipients []string
}

// FanoutScheduler hands fan-out jobs to background workers.
type FanoutScheduler interface {
	Schedule(ctx context.Context, job FanoutJob) error
}

// DeliveryResult is the outcome for a single recipient.
type DeliveryResult struct {
	UserID         string
	NotificationID string
	Err            error
}

// FanoutReport collects per-recipient results of a fan-out.
type FanoutReport struct {
	Results []DeliveryResult
}

// Created returns the number of notifications written.
func (r *FanoutReport) Created() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the results that could not be written.
func (r *FanoutReport) Failed() []DeliveryResult {
	if r == nil {
		return nil
	}
	var out []DeliveryResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// CreateNotificationInput is used by producers other than chat.
type CreateNotificationInput struct {
	UserIDs    []string
	Title      string
	Message    string
	Type       domain.NotificationType
	Channel    string
	EntityID   string
	EntityType string
	ActionURL  string
}

// ListNotificationsInput selects a page of the caller's inbox.
type ListNotificationsInput struct {
	UserID     string
	UnreadOnly bool
	Page       int
	Limit      int
}

// NotificationPage is a page of notifications.
type NotificationPage struct {
	Items      []*domain.Notification
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// NotificationService manages notification fan-out and the user inbox.
type NotificationService interface {
	FanOutChatMessage(ctx context.Context, job FanoutJob) (*FanoutReport, error)
	Create(ctx context.Context, input CreateNotificationInput) (*FanoutReport, error)
	List(ctx context.Context, input ListNotificationsInput) (*NotificationPage, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	SetRead(ctx context.Context, userID, id string, read bool) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, userID, id string) error
}
