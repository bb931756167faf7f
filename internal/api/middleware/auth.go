package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Context keys set by Auth.
const (
	CtxUserID    = "user_id"
	CtxRole      = "role"
	CtxEmail     = "email"
	CtxFirstName = "first_name"
	CtxLastName  = "last_name"
)

const defaultRole = "member"

// Auth validates the identity provider JWT and injects its claims into the
// context. The token is read from the Authorization header, or from the
// token query parameter for WebSocket upgrades, where browsers cannot set
// headers.
func Auth(jwtSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := bearerToken(c)
			if err != nil {
				return err
			}

			claims := jwt.MapClaims{}
			tkn, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
				if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
					return nil, jwt.ErrTokenSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !tkn.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			sub, _ := claims.GetSubject()
			if sub == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token missing subject")
			}
			role := claimString(claims, "role")
			if role == "" {
				role = defaultRole
			}

			c.Set(CtxUserID, sub)
			c.Set(CtxRole, role)
			c.Set(CtxEmail, claimString(claims, "email"))
			c.Set(CtxFirstName, claimString(claims, "given_name"))
			c.Set(CtxLastName, claimString(claims, "family_name"))

			return next(c)
		}
	}
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if q := c.QueryParam("token"); q != "" {
			return q, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
	}
	return parts[1], nil
}

func claimString(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}
