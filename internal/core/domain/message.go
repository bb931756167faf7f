package domain

import "time"

// Message is a persisted chat message. Messages are never edited.
type Message struct {
	ID        string    `json:"id" bson:"_id"`
	Content   *string   `json:"content" bson:"content"`
	ImageURL  string    `json:"image_url,omitempty" bson:"image_url,omitempty"`
	UserID    string    `json:"user_id" bson:"user_id"`
	RoomID    string    `json:"room_id" bson:"room_id"`
	GroupID   *string   `json:"group_id,omitempty" bson:"group_id,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Text returns the message content, or "" for image-only messages.
func (m *Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// MessageView is a message joined with its sender's display fields.
type MessageView struct {
	Message
	User Sender `json:"user"`
}
