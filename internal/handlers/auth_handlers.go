package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"popdesk/internal/common"
	"popdesk/internal/middleware"
	"popdesk/internal/services"
)

// AuthHandlers handles login, registration and password-reset requests.
type AuthHandlers struct {
	sessions services.SessionService
	users    services.UserService
	mailer   services.Mailer
	baseURL  string
}

// NewAuthHandlers creates a new auth handlers instance. baseURL is the
// externally reachable address used inside password-reset emails.
func NewAuthHandlers(sessions services.SessionService, users services.UserService, mailer services.Mailer, baseURL string) *AuthHandlers {
	return &AuthHandlers{
		sessions: sessions,
		users:    users,
		mailer:   mailer,
		baseURL:  baseURL,
	}
}

// CSRFResponse is the anonymous CSRF pair for pre-login forms.
type CSRFResponse struct {
	ID    string `json:"csrf_id"`
	Token string `json:"csrf_token"`
}

// IssueCSRF hands out a CSRF pair for the login/register/forgot/reset forms.
func (h *AuthHandlers) IssueCSRF(c echo.Context) error {
	id, token, err := h.sessions.IssueAnonymousCSRF(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to issue CSRF token")
	}
	return c.JSON(http.StatusOK, CSRFResponse{ID: id, Token: token})
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login authenticates against the user directory and sets the session
// cookie. Unknown accounts and wrong passwords get the same answer.
func (h *AuthHandlers) Login(c echo.Context) error {
	ctx := c.Request().Context()

	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Email and password are required")
	}

	session, err := h.sessions.Login(ctx, req.Email, req.Password, c.RealIP())
	if err != nil {
		var authErr *common.AuthError
		if errors.As(err, &authErr) {
			return echo.NewHTTPError(http.StatusUnauthorized, authErr.Reason)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Login failed")
	}

	h.setSessionCookie(c, session)
	return c.JSON(http.StatusOK, session)
}

// RegisterRequest represents the self-registration payload
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name"`
}

// Register creates a customer account and logs it straight in. The role is
// fixed; admins are promoted later through the user admin API.
func (h *AuthHandlers) Register(c echo.Context) error {
	ctx := c.Request().Context()

	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	user, err := h.users.Create(ctx, req.Email, req.Password, req.Name, "customer")
	if err != nil {
		return err
	}

	session, err := h.sessions.Establish(ctx, user)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to establish session")
	}

	h.setSessionCookie(c, session)
	return c.JSON(http.StatusCreated, session)
}

// Logout discards the session state and clears the cookie.
func (h *AuthHandlers) Logout(c echo.Context) error {
	ctx := c.Request().Context()

	sessionID, ok := common.GetSessionIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	if err := h.sessions.Logout(ctx, sessionID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to log out")
	}

	h.clearSessionCookie(c)
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Logged out successfully",
	})
}

// ForgotRequest represents the forgot-password payload
type ForgotRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Forgot starts a password reset. The response never reveals whether the
// email exists; the reset link only goes out by mail.
func (h *AuthHandlers) Forgot(c echo.Context) error {
	ctx := c.Request().Context()

	var req ForgotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if req.Email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Email is required")
	}

	token, err := h.users.StartPasswordReset(ctx, req.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to start password reset")
	}
	if token != "" {
		link := fmt.Sprintf("%s/reset?token=%s", h.baseURL, url.QueryEscape(token))
		body := fmt.Sprintf("<p>A password reset was requested for this account.</p>"+
			"<p><a href=%q>Reset your password</a> (the link expires in 2 hours).</p>"+
			"<p>If you did not request this, ignore this email.</p>", link)
		go h.mailer.Send("Password reset", body, []string{req.Email})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "If the account exists, a reset email has been sent",
	})
}

// ResetRequest represents the reset-completion payload
type ResetRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// Reset completes a password reset with the emailed token.
func (h *AuthHandlers) Reset(c echo.Context) error {
	ctx := c.Request().Context()

	var req ResetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if req.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Token is required")
	}

	email, err := h.users.CompletePasswordReset(ctx, req.Token, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "Password updated",
		"email":   email,
	})
}

// Me returns the authenticated account's profile.
func (h *AuthHandlers) Me(c echo.Context) error {
	ctx := c.Request().Context()

	email, ok := common.GetUserEmailFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	user, err := h.users.Get(ctx, email)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "User directory unavailable")
	}
	if user == nil {
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	}

	return c.JSON(http.StatusOK, user)
}

func (h *AuthHandlers) setSessionCookie(c echo.Context, session *services.Session) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandlers) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
