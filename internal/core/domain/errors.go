package domain

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserInactive         = errors.New("user is inactive")
	ErrForbidden            = errors.New("access forbidden")
	ErrInvalidRoomKey       = errors.New("invalid room key")
	ErrRoomAccessDenied     = errors.New("room access denied")
	ErrNotInRoom            = errors.New("connection is not in room")
	ErrEmptyMessage         = errors.New("message must have content or an image")
	ErrMessageTooLong       = errors.New("message content too long")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrDuplicateMessage     = errors.New("duplicate message")
	ErrGroupNotFound        = errors.New("group not found")
	ErrAlreadyMember        = errors.New("user is already a group member")
	ErrNotMember            = errors.New("user is not a group member")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrPresenceNotFound     = errors.New("presence entry not found")
	ErrInvalidGroup         = errors.New("invalid group")
	ErrInvalidNotification  = errors.New("invalid notification")
	ErrInvalidUser          = errors.New("invalid user")
)
