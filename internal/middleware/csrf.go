package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"popdesk/internal/common"
	"popdesk/internal/services"
)

// CSRFHeader is where clients echo the token issued at login.
const CSRFHeader = "X-CSRF-Token"

// RequireCSRF rejects mutating requests whose CSRF header does not match
// the token issued for the session. Safe methods pass through. Runs after
// LoadAccount.
func RequireCSRF(sessions services.SessionService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			sessionID, ok := common.GetSessionIDFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
			}
			token := c.Request().Header.Get(CSRFHeader)
			if err := sessions.VerifyCSRF(c.Request().Context(), sessionID, token); err != nil {
				return echo.NewHTTPError(http.StatusForbidden, "CSRF token mismatch")
			}
			return next(c)
		}
	}
}

// RequireAnonymousCSRF guards the pre-login form endpoints. The client
// first calls the CSRF issue endpoint, then sends the pair back in the
// X-CSRF-ID and X-CSRF-Token headers.
func RequireAnonymousCSRF(sessions services.SessionService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get("X-CSRF-ID")
			token := c.Request().Header.Get(CSRFHeader)
			if err := sessions.VerifyAnonymousCSRF(c.Request().Context(), id, token); err != nil {
				return echo.NewHTTPError(http.StatusForbidden, "CSRF token mismatch")
			}
			return next(c)
		}
	}
}
