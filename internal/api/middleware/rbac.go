package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

// RBAC lets the request through only when the role set by Auth is one of
// allowedRoles. It must run after Auth.
func RBAC(allowedRoles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(CtxRole).(string)
			if role == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
			}
			if !lo.Contains(allowedRoles, role) {
				return echo.NewHTTPError(http.StatusForbidden, "forbidden")
			}
			return next(c)
		}
	}
}
