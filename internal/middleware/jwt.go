package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/plant-maintenance/internal/auth"
)

// JWTAuth returns an Echo middleware that validates an access token and
// injects the verified identity into the request context under the keys
// "user_id" (uint64), "email", "role" and "plant". Protected handlers
// read identity only from these keys.
//
// The token is normally carried as `Authorization: Bearer <token>`.
// A `?token=` query parameter is accepted as a fallback for field
// devices (QR kiosks and embedded browsers) that cannot set request
// headers. The header wins when both are present.
//
// Expired and invalid tokens are not distinguished in the response;
// both produce the same 401 body.
func JWTAuth(issuer *auth.Issuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := ""
			if h := c.Request().Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				raw = strings.TrimPrefix(h, "Bearer ")
			} else if q := c.QueryParam("token"); q != "" {
				raw = q
			}
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}

			id, err := issuer.VerifyAccessToken(raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			c.Set("user_id", id.ID)
			c.Set("email", id.Email)
			c.Set("role", id.Role)
			c.Set("plant", id.AssignedPlant)
			return next(c)
		}
	}
}
