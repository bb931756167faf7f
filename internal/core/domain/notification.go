package domain

import (
	"time"
	"unicode/utf8"
)

// NotificationType identifies the producer of a notification.
type NotificationType string

const (
	NotificationChat       NotificationType = "chat"
	NotificationSystem     NotificationType = "system"
	NotificationSuggestion NotificationType = "suggestion"
	NotificationKPI        NotificationType = "kpi"
)

// IsValid reports whether t is a known notification type.
func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationChat, NotificationSystem, NotificationSuggestion, NotificationKPI:
		return true
	}
	return false
}

const (
	ChannelInApp = "in_app"
	ChannelChat  = "chat"

	EntityChatMessage = "chat_message"
)

// Notification is a per-user inbox entry. Only IsRead/ReadAt change after
// creation; the owner may delete it.
type Notification struct {
	ID         string           `json:"id" bson:"_id"`
	Title      string           `json:"title" bson:"title"`
	Message    string           `json:"message" bson:"message"`
	Type       NotificationType `json:"type" bson:"type"`
	Channel    string           `json:"channel" bson:"channel"`
	UserID     string           `json:"user_id" bson:"user_id"`
	EntityID   string           `json:"entity_id,omitempty" bson:"entity_id,omitempty"`
	EntityType string           `json:"entity_type,omitempty" bson:"entity_type,omitempty"`
	ActionURL  string           `json:"action_url,omitempty" bson:"action_url,omitempty"`
	IsRead     bool             `json:"is_read" bson:"is_read"`
	ReadAt     *time.Time       `json:"read_at,omitempty" bson:"read_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at" bson:"created_at"`
}

const ellipsis = "..."

// Preview shortens text to at most limit runes, appending an ellipsis when
// anything was cut. Text within the limit is returned unchanged.
func Preview(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + ellipsis
}
