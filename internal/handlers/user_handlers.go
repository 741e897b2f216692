package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"popdesk/internal/common"
	"popdesk/internal/services"
)

// UserHandlers is the admin surface over the user directory.
type UserHandlers struct {
	users services.UserService
}

// NewUserHandlers creates a new user handlers instance
func NewUserHandlers(users services.UserService) *UserHandlers {
	return &UserHandlers{users: users}
}

// List returns every account, including deactivated ones.
func (h *UserHandlers) List(c echo.Context) error {
	users, err := h.users.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

// CreateUserRequest is the admin account-creation payload.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// Create adds an account with an explicit role.
func (h *UserHandlers) Create(c echo.Context) error {
	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	user, err := h.users.Create(c.Request().Context(), req.Email, req.Password, req.Name, req.Role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, user)
}

// UpdateUserRequest carries optional field changes; absent fields are left
// untouched.
type UpdateUserRequest struct {
	Name     *string `json:"name"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
	Password *string `json:"password"`
}

// Update patches an account's profile fields or resets its password.
func (h *UserHandlers) Update(c echo.Context) error {
	ctx := c.Request().Context()
	email := c.Param("email")

	var req UpdateUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	user, err := h.users.Update(ctx, email, services.UserUpdate{
		Name:     req.Name,
		Role:     req.Role,
		IsActive: req.IsActive,
	})
	if err != nil {
		return err
	}

	if req.Password != nil {
		if err := h.users.SetPassword(ctx, email, *req.Password); err != nil {
			return err
		}
	}

	return c.JSON(http.StatusOK, user)
}

// Deactivate soft-deletes an account. The row stays on the sheet so the
// audit trail survives; admins cannot deactivate themselves.
func (h *UserHandlers) Deactivate(c echo.Context) error {
	ctx := c.Request().Context()
	email := c.Param("email")

	if self, ok := common.GetUserEmailFromContext(ctx); ok && common.NormalizeEmail(email) == self {
		return echo.NewHTTPError(http.StatusBadRequest, "Cannot deactivate your own account")
	}

	if err := h.users.Deactivate(ctx, email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "User deactivated",
	})
}
