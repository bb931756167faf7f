package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/intranet/realtime-system/internal/api/middleware"
)

// identity is the caller as asserted by the identity provider token.
type identity struct {
	UserID    string
	Role      string
	Email     string
	FirstName string
	LastName  string
}

// ctxIdentity extracts the auth claims injected by the Auth middleware. A
// missing subject means the middleware did not run; reject with 401 before
// any service call.
func ctxIdentity(c echo.Context) (identity, error) {
	id := identity{}
	id.UserID, _ = c.Get(middleware.CtxUserID).(string)
	if id.UserID == "" {
		return identity{}, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	id.Role, _ = c.Get(middleware.CtxRole).(string)
	id.Email, _ = c.Get(middleware.CtxEmail).(string)
	id.FirstName, _ = c.Get(middleware.CtxFirstName).(string)
	id.LastName, _ = c.Get(middleware.CtxLastName).(string)
	return id, nil
}
