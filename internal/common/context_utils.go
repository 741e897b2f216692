package common

import (
	"context"
	"strings"
)

type contextKey string

const (
	// UserEmailKey carries the authenticated account's email.
	UserEmailKey contextKey = "user_email"
	// UserRoleKey carries the authenticated account's role.
	UserRoleKey contextKey = "user_role"
	// SessionIDKey carries the session identifier from the session cookie.
	SessionIDKey contextKey = "session_id"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	} `json:"error"`
}

// CreateErrorResponse creates a standardized error response
func CreateErrorResponse(code string, message string, details map[string]string) *ErrorResponse {
	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	resp.Error.Details = details
	return &resp
}

// NormalizeEmail lowercases and trims an address. Every lookup and every
// stored row goes through this, so "  Foo@Bar.COM " and "foo@bar.com" are
// the same account.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmailFormat is a cheap plausibility check, not RFC validation: one
// "@" with non-empty local part and a domain containing a dot.
func ValidEmailFormat(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	if strings.Contains(domain, "@") {
		return false
	}
	dot := strings.Index(domain, ".")
	return dot > 0 && dot < len(domain)-1
}

// GetUserEmailFromContext extracts the authenticated email from the request context
func GetUserEmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(UserEmailKey).(string)
	return email, ok && email != ""
}

// GetUserRoleFromContext extracts the authenticated role from the request context
func GetUserRoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(UserRoleKey).(string)
	return role, ok && role != ""
}

// GetSessionIDFromContext extracts the session ID from the request context
func GetSessionIDFromContext(ctx context.Context) (string, bool) {
	sid, ok := ctx.Value(SessionIDKey).(string)
	return sid, ok && sid != ""
}
