package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/intranet/realtime-system/internal/core/domain"
	"github.com/intranet/realtime-system/internal/core/ports"
)

// ChatHandler exposes room history, presence and an HTTP send path.
type ChatHandler struct {
	service ports.ChatService
}

func NewChatHandler(service ports.ChatService) *ChatHandler {
	return &ChatHandler{service: service}
}

// History handles GET /v1/rooms/:room/messages.
//
// @Summary      Room history
// @Description  Returns messages in chronological order. Use next_before to fetch the previous page.
// @Tags         chat
// @Produce      json
// @Security     BearerAuth
// @Param        room       path      string  true   "Room key (global, group_<id>, private_user_<a>_user_<b>)"
// @Param        before     query     string  false  "RFC3339 cursor; only older messages are returned"
// @Param        before_id  query     string  false  "Id of the oldest message already seen, from next_before_id"
// @Param        limit      query     int     false  "Page size (default 50, max 200)"
// @Success      200        {object}  historyResponse
// @Failure      400        {object}  errorResponse
// @Failure      403        {object}  errorResponse
// @Router       /v1/rooms/{room}/messages [get]
func (h *ChatHandler) History(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	var before time.Time
	if raw := c.QueryParam("before"); raw != "" {
		before, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "before must be an RFC3339 timestamp"})
		}
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	res, err := h.service.History(c.Request().Context(), ports.HistoryInput{
		UserID:   id.UserID,
		RoomID:   c.Param("room"),
		Before:   before,
		BeforeID: c.QueryParam("before_id"),
		Limit:    limit,
	})
	if err != nil {
		return err
	}

	resp := historyResponse{Items: res.Items}
	if !res.NextBefore.IsZero() {
		resp.NextBefore = &res.NextBefore
		resp.NextBeforeID = res.NextBeforeID
	}
	return c.JSON(http.StatusOK, resp)
}

// Send handles POST /v1/rooms/:room/messages.
//
// @Summary      Send a message to a room
// @Description  Same flow as the sendMessage socket event: persisted, broadcast to the room and notified to present users.
// @Tags         chat
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        room  path      string              true  "Room key"
// @Param        body  body      sendMessageRequest  true  "Message"
// @Success      201   {object}  domain.MessageView
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Router       /v1/rooms/{room}/messages [post]
func (h *ChatHandler) Send(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	view, err := h.service.SendMessage(c.Request().Context(), ports.SendMessageInput{
		UserID:          id.UserID,
		RoomID:          c.Param("room"),
		Content:         req.Content,
		ImageURL:        req.ImageURL,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, view)
}

// Presence handles GET /v1/rooms/:room/presence.
//
// @Summary      Users currently connected to a room
// @Tags         chat
// @Produce      json
// @Security     BearerAuth
// @Param        room  path      string  true  "Room key"
// @Success      200   {object}  presenceResponse
// @Failure      403   {object}  errorResponse
// @Router       /v1/rooms/{room}/presence [get]
func (h *ChatHandler) Presence(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	room := c.Param("room")

	entries, err := h.service.Presence(c.Request().Context(), id.UserID, room)
	if err != nil {
		return err
	}
	userIDs := lo.Uniq(lo.Map(entries, func(e domain.PresenceEntry, _ int) string { return e.UserID }))
	return c.JSON(http.StatusOK, presenceResponse{RoomID: room, UserIDs: userIDs, Entries: entries})
}
