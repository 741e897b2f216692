package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"popdesk/internal/common"
	"popdesk/internal/models"
)

// RequireAdmin gates user-administration routes. It runs after LoadAccount,
// which put the role in the request context.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := common.GetUserRoleFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
			}
			if role != models.RoleAdmin {
				return echo.NewHTTPError(http.StatusForbidden, "Insufficient permissions")
			}
			return next(c)
		}
	}
}
