package handler

import (
	"time"

	"github.com/intranet/realtime-system/internal/core/domain"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

// --- Users ---

type syncUserRequest struct {
	Email     string `json:"email"      validate:"omitempty,email"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name"  validate:"max=100"`
	ImageURL  string `json:"image_url"  validate:"omitempty,url"`
	Sector    string `json:"sector"     validate:"max=100"`
	Extension string `json:"extension"  validate:"max=20"`
}

type updateUserRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name"  validate:"omitempty,max=100"`
	Sector    *string `json:"sector"     validate:"omitempty,max=100"`
	Role      *string `json:"role"       validate:"omitempty,role"`
	Extension *string `json:"extension"  validate:"omitempty,max=20"`
	Active    *bool   `json:"active"`
}

type userListResponse struct {
	Items []*domain.User `json:"items"`
}

// --- Groups ---

type createGroupRequest struct {
	Name        string   `json:"name"        validate:"required,max=100"`
	Description string   `json:"description" validate:"max=500"`
	MemberIDs   []string `json:"member_ids"  validate:"dive,required"`
}

type addMemberRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type groupResponse struct {
	*domain.Group
	RoomID  string              `json:"room_id"`
	Members []domain.Membership `json:"members,omitempty"`
}

type groupListResponse struct {
	Items []groupResponse `json:"items"`
}

// --- Chat ---

type sendMessageRequest struct {
	Content         *string `json:"content"           validate:"omitempty,max=4000"`
	ImageURL        string  `json:"image_url"         validate:"omitempty,url"`
	ClientMessageID string  `json:"client_message_id" validate:"omitempty,max=100"`
}

type historyResponse struct {
	Items        []domain.MessageView `json:"items"`
	NextBefore   *time.Time           `json:"next_before,omitempty"`
	NextBeforeID string               `json:"next_before_id,omitempty"`
}

type presenceResponse struct {
	RoomID  string                 `json:"room_id"`
	UserIDs []string               `json:"user_ids"`
	Entries []domain.PresenceEntry `json:"entries"`
}

// --- Notifications ---

type createNotificationRequest struct {
	UserIDs    []string `json:"user_ids"    validate:"required,min=1,dive,required"`
	Title      string   `json:"title"       validate:"required,max=200"`
	Message    string   `json:"message"     validate:"required,max=2000"`
	Type       string   `json:"type"        validate:"omitempty,notification_type"`
	Channel    string   `json:"channel"     validate:"omitempty,max=50"`
	EntityID   string   `json:"entity_id"`
	EntityType string   `json:"entity_type"`
	ActionURL  string   `json:"action_url"`
}

type notificationPageResponse struct {
	Items      []*domain.Notification `json:"items"`
	Total      int64                  `json:"total"`
	Page       int                    `json:"page"`
	Limit      int                    `json:"limit"`
	TotalPages int                    `json:"total_pages"`
}

type unreadCountResponse struct {
	Count int64 `json:"count"`
}

type markAllReadResponse struct {
	Updated int64 `json:"updated"`
}

type deliveryResponse struct {
	UserID         string `json:"user_id"`
	NotificationID string `json:"notification_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

type createNotificationResponse struct {
	Created int                `json:"created"`
	Failed  int                `json:"failed"`
	Results []deliveryResponse `json:"results"`
}
