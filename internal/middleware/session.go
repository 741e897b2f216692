package middleware

import (
	"context"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"popdesk/internal/common"
	"popdesk/internal/services"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "popdesk_session"

// Session validates the session cookie and parses its claims. It only
// proves the token was signed by us and has not expired; LoadAccount does
// the account checks.
func Session(jwtSecret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:  []byte(jwtSecret),
		TokenLookup: "cookie:" + SessionCookieName,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(services.SessionClaims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing or invalid session")
		},
	})
}

// LoadAccount resolves the session claims against the user directory and
// stashes email, role and session ID into the request context. Sessions for
// deactivated or deleted accounts are rejected even when the cookie is
// still cryptographically valid.
func LoadAccount(users services.UserService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing session")
			}
			claims, ok := token.Claims.(*services.SessionClaims)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid session claims")
			}

			user, err := users.Get(c.Request().Context(), claims.Email)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "User directory unavailable")
			}
			if user == nil || !user.IsActive {
				return echo.NewHTTPError(http.StatusUnauthorized, "Account no longer active")
			}

			ctx := context.WithValue(c.Request().Context(), common.UserEmailKey, user.Email)
			ctx = context.WithValue(ctx, common.UserRoleKey, user.Role)
			ctx = context.WithValue(ctx, common.SessionIDKey, claims.ID)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}
