package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/intranet/realtime-system/internal/core/domain"
	"github.com/intranet/realtime-system/internal/core/ports"
	"github.com/intranet/realtime-system/internal/infrastructure/ws"
	"github.com/intranet/realtime-system/internal/pkg/metrics"
)

const errUnauthorizedPayload = "userId does not match the authenticated user"

// SocketHandler upgrades authenticated requests to WebSocket connections and
// routes their events to the chat service.
type SocketHandler struct {
	chat           ports.ChatService
	hub            *ws.Hub
	upgrader       websocket.Upgrader
	maxMessageSize int64
	log            zerolog.Logger
}

func NewSocketHandler(chat ports.ChatService, hub *ws.Hub, origins *ws.OriginChecker, maxMessageSize int64, log zerolog.Logger) *SocketHandler {
	return &SocketHandler{
		chat: chat,
		hub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Check,
		},
		maxMessageSize: maxMessageSize,
		log:            log,
	}
}

type roomEventPayload struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

type sendEventPayload struct {
	Content         *string `json:"content"`
	ImageURL        string  `json:"imageUrl"`
	UserID          string  `json:"userId"`
	RoomID          string  `json:"roomId"`
	ClientMessageID string  `json:"clientMessageId"`
}

type typingEventPayload struct {
	UserID   string `json:"userId"`
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

// Serve handles GET /ws.
//
// @Summary      Open the chat WebSocket
// @Description  Frames are JSON envelopes {"event": "...", "data": {...}}. Inbound events: joinChat, leaveChat, sendMessage, typing.
// @Tags         chat
// @Param        token  query  string  false  "JWT, when the Authorization header cannot be set"
// @Success      101
// @Failure      401  {object}  errorResponse
// @Router       /ws [get]
func (h *SocketHandler) Serve(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.log.Debug().Err(err).Str("user_id", id.UserID).Msg("websocket upgrade failed")
		return nil
	}

	h.hub.Register(ws.NewClient(conn, h.hub, h, id.UserID, id.Role, h.maxMessageSize))
	return nil
}

// HandleEvent dispatches one inbound frame.
func (h *SocketHandler) HandleEvent(ctx context.Context, c *ws.Client, event string, data json.RawMessage) {
	var err error
	switch event {
	case domain.EventJoinChat:
		err = h.join(ctx, c, data)
	case domain.EventLeaveChat:
		err = h.leave(ctx, c, data)
	case domain.EventSendMessage:
		err = h.send(ctx, c, data)
	case domain.EventTyping:
		err = h.typing(ctx, c, data)
	default:
		metrics.SocketEventsTotal.WithLabelValues("unknown", "error").Inc()
		c.Emit(ctx, domain.EventError, domain.ErrorPayload{Message: "unknown event"})
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
		reply := domain.EventError
		if event == domain.EventSendMessage {
			reply = domain.EventMessageError
		}
		c.Emit(ctx, reply, domain.ErrorPayload{Message: h.socketError(c, event, err)})
	}
	metrics.SocketEventsTotal.WithLabelValues(event, result).Inc()
}

func (h *SocketHandler) join(ctx context.Context, c *ws.Client, data json.RawMessage) error {
	var p roomEventPayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	if err := checkSender(c, p.UserID); err != nil {
		return err
	}

	entry, err := h.chat.Join(ctx, ports.JoinInput{ConnID: c.ID(), UserID: c.UserID(), RoomID: p.RoomID})
	if err != nil {
		return err
	}
	c.Emit(ctx, domain.EventJoinedRoom, domain.RoomUserPayload{UserID: c.UserID(), RoomID: entry.RoomID})
	return nil
}

func (h *SocketHandler) leave(ctx context.Context, c *ws.Client, data json.RawMessage) error {
	var p roomEventPayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	if err := checkSender(c, p.UserID); err != nil {
		return err
	}

	entry, err := h.chat.Leave(ctx, c.ID())
	if err != nil {
		return err
	}
	room := p.RoomID
	if entry != nil {
		room = entry.RoomID
	}
	c.Emit(ctx, domain.EventLeftRoom, domain.RoomUserPayload{UserID: c.UserID(), RoomID: room})
	return nil
}

func (h *SocketHandler) send(ctx context.Context, c *ws.Client, data json.RawMessage) error {
	var p sendEventPayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	if err := checkSender(c, p.UserID); err != nil {
		return err
	}

	// The stored message reaches the sender through the room broadcast.
	_, err := h.chat.SendMessage(ctx, ports.SendMessageInput{
		ConnID:          c.ID(),
		UserID:          c.UserID(),
		RoomID:          p.RoomID,
		Content:         p.Content,
		ImageURL:        p.ImageURL,
		ClientMessageID: p.ClientMessageID,
	})
	return err
}

func (h *SocketHandler) typing(ctx context.Context, c *ws.Client, data json.RawMessage) error {
	var p typingEventPayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	if err := checkSender(c, p.UserID); err != nil {
		return err
	}
	return h.chat.Typing(ctx, ports.TypingInput{
		ConnID:   c.ID(),
		UserID:   c.UserID(),
		RoomID:   p.RoomID,
		IsTyping: p.IsTyping,
	})
}

// HandlePong keeps the connection's presence alive.
func (h *SocketHandler) HandlePong(ctx context.Context, c *ws.Client) {
	if err := h.chat.Heartbeat(ctx, c.ID()); err != nil {
		h.log.Debug().Err(err).Str("conn_id", c.ID()).Msg("heartbeat failed")
	}
}

// HandleDisconnect removes the connection from its room.
func (h *SocketHandler) HandleDisconnect(ctx context.Context, c *ws.Client) {
	if _, err := h.chat.Leave(ctx, c.ID()); err != nil {
		h.log.Warn().Err(err).Str("conn_id", c.ID()).Msg("failed to clear presence on disconnect")
	}
}

var (
	errInvalidPayload = errors.New("invalid payload")
	errSenderMismatch = errors.New(errUnauthorizedPayload)
)

// clientErrors are reported to the client verbatim.
var clientErrors = []error{
	domain.ErrEmptyMessage,
	domain.ErrMessageTooLong,
	domain.ErrRateLimited,
	domain.ErrDuplicateMessage,
	domain.ErrNotInRoom,
}

func decodePayload(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errInvalidPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errInvalidPayload
	}
	return nil
}

// checkSender allows an omitted userId; a present one must be the caller.
func checkSender(c *ws.Client, userID string) error {
	if userID != "" && userID != c.UserID() {
		return errSenderMismatch
	}
	return nil
}

// socketError turns err into the message sent back to the client. Unknown
// errors are logged and hidden.
func (h *SocketHandler) socketError(c *ws.Client, event string, err error) string {
	switch {
	case errors.Is(err, errInvalidPayload), errors.Is(err, errSenderMismatch):
		return err.Error()
	case errors.Is(err, domain.ErrRoomAccessDenied):
		return "access to room denied"
	case errors.Is(err, domain.ErrInvalidRoomKey):
		return "invalid room"
	}
	for _, known := range clientErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}

	h.log.Error().Err(err).
		Str("conn_id", c.ID()).
		Str("user_id", c.UserID()).
		Str("event", event).
		Msg("socket event failed")
	return http.StatusText(http.StatusInternalServerError)
}
