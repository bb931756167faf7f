package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/intranet/realtime-system/internal/core/domain"
	"github.com/intranet/realtime-system/internal/core/ports"
)

// GroupHandler handles HTTP requests for chat groups and their members.
type GroupHandler struct {
	service ports.GroupService
}

func NewGroupHandler(service ports.GroupService) *GroupHandler {
	return &GroupHandler{service: service}
}

// Create handles POST /v1/groups.
//
// @Summary      Create a chat group
// @Description  The caller becomes the group admin. Listed users are added as members.
// @Tags         groups
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createGroupRequest  true  "Group"
// @Success      201   {object}  groupResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /v1/groups [post]
func (h *GroupHandler) Create(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	var req createGroupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	detail, err := h.service.Create(c.Request().Context(), ports.CreateGroupInput{
		CreatorID:   id.UserID,
		Name:        req.Name,
		Description: req.Description,
		MemberIDs:   req.MemberIDs,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toGroupResponse(detail.Group, detail.Members))
}

// List handles GET /v1/groups.
//
// @Summary      List the caller's groups
// @Tags         groups
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  groupListResponse
// @Router       /v1/groups [get]
func (h *GroupHandler) List(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	groups, err := h.service.ListForUser(c.Request().Context(), id.UserID)
	if err != nil {
		return err
	}
	items := lo.Map(groups, func(g *domain.Group, _ int) groupResponse { return toGroupResponse(g, nil) })
	return c.JSON(http.StatusOK, groupListResponse{Items: items})
}

// Get handles GET /v1/groups/:id.
//
// @Summary      Get a group with its members
// @Tags         groups
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Group id"
// @Success      200  {object}  groupResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/groups/{id} [get]
func (h *GroupHandler) Get(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	detail, err := h.service.Get(c.Request().Context(), id.UserID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toGroupResponse(detail.Group, detail.Members))
}

// AddMember handles POST /v1/groups/:id/members.
//
// @Summary      Add a member to a group (group admin)
// @Tags         groups
// @Accept       json
// @Security     BearerAuth
// @Param        id    path  string            true  "Group id"
// @Param        body  body  addMemberRequest  true  "Member"
// @Success      204
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /v1/groups/{id}/members [post]
func (h *GroupHandler) AddMember(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	var req addMemberRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	if err := h.service.AddMember(c.Request().Context(), id.UserID, id.Role, c.Param("id"), req.UserID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// RemoveMember handles DELETE /v1/groups/:id/members/:user_id.
//
// @Summary      Remove a member from a group
// @Description  Members may remove themselves; removing others needs group admin rights.
// @Tags         groups
// @Security     BearerAuth
// @Param        id       path  string  true  "Group id"
// @Param        user_id  path  string  true  "User id"
// @Success      204
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/groups/{id}/members/{user_id} [delete]
func (h *GroupHandler) RemoveMember(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	if err := h.service.RemoveMember(c.Request().Context(), id.UserID, id.Role, c.Param("id"), c.Param("user_id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func toGroupResponse(g *domain.Group, members []domain.Membership) groupResponse {
	return groupResponse{Group: g, RoomID: g.RoomID(), Members: members}
}
