package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/intranet/realtime-system/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := resolveError(err, log, c)
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	// Known domain errors → deterministic HTTP codes.
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrGroupNotFound),
		errors.Is(err, domain.ErrNotificationNotFound),
		errors.Is(err, domain.ErrNotMember):
		return http.StatusNotFound, rootMessage(err)
	case errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrRoomAccessDenied),
		errors.Is(err, domain.ErrUserInactive):
		return http.StatusForbidden, rootMessage(err)
	case errors.Is(err, domain.ErrInvalidRoomKey),
		errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrInvalidGroup),
		errors.Is(err, domain.ErrInvalidNotification),
		errors.Is(err, domain.ErrInvalidUser):
		return http.StatusBadRequest, rootMessage(err)
	case errors.Is(err, domain.ErrMessageTooLong):
		return http.StatusRequestEntityTooLarge, rootMessage(err)
	case errors.Is(err, domain.ErrAlreadyMember),
		errors.Is(err, domain.ErrDuplicateMessage):
		return http.StatusConflict, rootMessage(err)
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, rootMessage(err)
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, "internal server error"
}

// rootMessage strips the wrapping context added by the services so only the
// domain message reaches the client.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
