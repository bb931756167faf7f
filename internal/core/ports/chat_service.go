package ports

import (
	"context"
	"time"

	"github.com/intranet/realtime-system/internal/core/domain"
)

// JoinInput is a joinChat request from an authenticated connection.
type JoinInput struct {
	ConnID string
	UserID string
	RoomID string
}

// SendMessageInput is a sendMessage request. ConnID is empty when the message
// arrives over HTTP.
type SendMessageInput struct {
	ConnID          string
	UserID          string
	RoomID          string
	Content         *string
	ImageURL        string
	ClientMessageID string
}

// TypingInput is a typing indicator update.
type TypingInput struct {
	ConnID   string
	UserID   string
	RoomID   string
	IsTyping bool
}

// HistoryInput selects a page of room history.
type HistoryInput struct {
	UserID   string
	RoomID   string
	Before   time.Time
	BeforeID string
	Limit    int
}

// HistoryResult is a page of messages in chronological order.
type HistoryResult struct {
	Items []domain.MessageView
	// NextBefore and NextBeforeID are the cursor for the previous page;
	// zero when exhausted.
	NextBefore   time.Time
	NextBeforeID string
}

// ChatService implements the real-time chat flow.
type ChatService interface {
	Join(ctx context.Context, input JoinInput) (*domain.PresenceEntry, error)
	Leave(ctx context.Context, connID string) (*domain.PresenceEntry, error)
	SendMessage(ctx context.Context, input SendMessageInput) (*domain.MessageView, error)
	Typing(ctx context.Context, input TypingInput) error
	Heartbeat(ctx context.Context, connID string) error
	History(ctx context.Context, input HistoryInput) (*HistoryResult, error)
	Presence(ctx context.Context, userID, roomID string) ([]domain.PresenceEntry, error)
}
