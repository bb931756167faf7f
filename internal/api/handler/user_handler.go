package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/intranet/realtime-system/internal/core/ports"
)

// UserHandler handles HTTP requests for user sync and administration.
type UserHandler struct {
	service ports.UserService
}

func NewUserHandler(service ports.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// Sync handles POST /v1/users/sync.
//
// @Summary      Create or refresh the caller's user record
// @Description  Called by the client after login. Identity comes from the token; the body may add profile fields.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      syncUserRequest  false  "Profile fields"
// @Success      200   {object}  domain.User
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /v1/users/sync [post]
func (h *UserHandler) Sync(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	var req syncUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	in := ports.SyncUserInput{
		ID:        id.UserID,
		Email:     firstNonEmpty(id.Email, req.Email),
		FirstName: firstNonEmpty(id.FirstName, req.FirstName),
		LastName:  firstNonEmpty(id.LastName, req.LastName),
		ImageURL:  req.ImageURL,
		Sector:    req.Sector,
		Extension: req.Extension,
	}
	user, err := h.service.Sync(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// Me handles GET /v1/users/me.
//
// @Summary      Get the caller's user record
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.User
// @Failure      404  {object}  errorResponse
// @Router       /v1/users/me [get]
func (h *UserHandler) Me(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	user, err := h.service.Get(c.Request().Context(), id.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// Search handles GET /v1/users.
//
// @Summary      Search active users by name or email
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        search  query     string  false  "Substring of first name, last name or email"
// @Param        limit   query     int     false  "Max results (default 100)"
// @Success      200     {object}  userListResponse
// @Router       /v1/users [get]
func (h *UserHandler) Search(c echo.Context) error {
	if _, err := ctxIdentity(c); err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	users, err := h.service.Search(c.Request().Context(), c.QueryParam("search"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userListResponse{Items: users})
}

// Update handles PATCH /v1/users/:id.
//
// @Summary      Edit a user (admin)
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string             true  "User id"
// @Param        body  body      updateUserRequest  true  "Fields to change"
// @Success      200   {object}  domain.User
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /v1/users/{id} [patch]
func (h *UserHandler) Update(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	var req updateUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	user, err := h.service.Update(c.Request().Context(), id.Role, c.Param("id"), ports.UserPatch{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Sector:    req.Sector,
		Role:      req.Role,
		Extension: req.Extension,
		Active:    req.Active,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// Deactivate handles DELETE /v1/users/:id.
//
// @Summary      Deactivate a user (admin)
// @Tags         users
// @Security     BearerAuth
// @Param        id  path  string  true  "User id"
// @Success      204
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/users/{id} [delete]
func (h *UserHandler) Deactivate(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	if err := h.service.Deactivate(c.Request().Context(), id.Role, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
