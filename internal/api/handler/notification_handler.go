package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/intranet/realtime-system/internal/core/domain"
	"github.com/intranet/realtime-system/internal/core/ports"
)

// NotificationHandler handles the notification inbox endpoints.
type NotificationHandler struct {
	service ports.NotificationService
}

func NewNotificationHandler(service ports.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// List handles GET /v1/notifications.
//
// @Summary      List the caller's notifications, newest first
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Param        unread  query     bool  false  "Only unread"
// @Param        page    query     int   false  "Page (1-based)"
// @Param        limit   query     int   false  "Page size (default 20, max 100)"
// @Success      200     {object}  notificationPageResponse
// @Router       /v1/notifications [get]
func (h *NotificationHandler) List(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	unread, _ := strconv.ParseBool(c.QueryParam("unread"))
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	res, err := h.service.List(c.Request().Context(), ports.ListNotificationsInput{
		UserID:     id.UserID,
		UnreadOnly: unread,
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notificationPageResponse{
		Items:      res.Items,
		Total:      res.Total,
		Page:       res.Page,
		Limit:      res.Limit,
		TotalPages: res.TotalPages,
	})
}

// UnreadCount handles GET /v1/notifications/unread-count.
//
// @Summary      Number of unread notifications
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  unreadCountResponse
// @Router       /v1/notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	n, err := h.service.UnreadCount(c.Request().Context(), id.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, unreadCountResponse{Count: n})
}

// MarkRead handles PATCH /v1/notifications/:id/read.
//
// @Summary      Mark a notification as read
// @Tags         notifications
// @Security     BearerAuth
// @Param        id  path  string  true  "Notification id"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Router       /v1/notifications/{id}/read [patch]
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	return h.setRead(c, true)
}

// MarkUnread handles PATCH /v1/notifications/:id/unread.
//
// @Summary      Mark a notification as unread
// @Tags         notifications
// @Security     BearerAuth
// @Param        id  path  string  true  "Notification id"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Router       /v1/notifications/{id}/unread [patch]
func (h *NotificationHandler) MarkUnread(c echo.Context) error {
	return h.setRead(c, false)
}

func (h *NotificationHandler) setRead(c echo.Context, read bool) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	if err := h.service.SetRead(c.Request().Context(), id.UserID, c.Param("id"), read); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// MarkAllRead handles POST /v1/notifications/read-all.
//
// @Summary      Mark every notification of the caller as read
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  markAllReadResponse
// @Router       /v1/notifications/read-all [post]
func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	n, err := h.service.MarkAllRead(c.Request().Context(), id.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, markAllReadResponse{Updated: n})
}

// Delete handles DELETE /v1/notifications/:id.
//
// @Summary      Delete a notification
// @Tags         notifications
// @Security     BearerAuth
// @Param        id  path  string  true  "Notification id"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Router       /v1/notifications/{id} [delete]
func (h *NotificationHandler) Delete(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.Request().Context(), id.UserID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Create handles POST /v1/notifications.
//
// @Summary      Create notifications for a list of users (admin)
// @Description  Producer endpoint for system, suggestion and kpi notifications. Failures are reported per user.
// @Tags         notifications
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createNotificationRequest  true  "Notification"
// @Success      201   {object}  createNotificationResponse
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /v1/notifications [post]
func (h *NotificationHandler) Create(c echo.Context) error {
	var req createNotificationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	report, err := h.service.Create(c.Request().Context(), ports.CreateNotificationInput{
		UserIDs:    req.UserIDs,
		Title:      req.Title,
		Message:    req.Message,
		Type:       domain.NotificationType(req.Type),
		Channel:    req.Channel,
		EntityID:   req.EntityID,
		EntityType: req.EntityType,
		ActionURL:  req.ActionURL,
	})
	if err != nil {
		return err
	}

	results := lo.Map(report.Results, func(r ports.DeliveryResult, _ int) deliveryResponse {
		out := deliveryResponse{UserID: r.UserID, NotificationID: r.NotificationID}
		if r.Err != nil {
			out.Error = "not created"
		}
		return out
	})
	return c.JSON(http.StatusCreated, createNotificationResponse{
		Created: report.Created(),
		Failed:  len(report.Failed()),
		Results: results,
	})
}
