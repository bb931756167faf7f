package domain

// Socket event names.
const (
	EventJoinChat    = "joinChat"
	EventLeaveChat   = "leaveChat"
	EventSendMessage = "sendMessage"
	EventTyping      = "typing"

	EventJoinedRoom      = "joinedRoom"
	EventLeftRoom        = "leftRoom"
	EventUserJoined      = "userJoined"
	EventUserLeft        = "userLeft"
	EventReceiveMessage  = "receiveMessage"
	EventMessageError    = "messageError"
	EventUserTyping      = "userTyping"
	EventNewNotification = "newNotification"
	EventError           = "error"
)

// Event is an outbound socket frame.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// RoomUserPayload is the body of joinedRoom, leftRoom, userJoined and userLeft.
type RoomUserPayload struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

// TypingPayload is the body of userTyping.
type TypingPayload struct {
	UserID   string `json:"userId"`
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

// ErrorPayload is the body of error and messageError.
type ErrorPayload struct {
	Message string `json:"message"`
}
