package common

import (
	"errors"
	"fmt"
)

// ErrInvalidToken marks a password-reset token that is unknown, already
// used, or past its expiry.
var ErrInvalidToken = errors.New("invalid or expired token")

// ValidationError reports bad caller input: malformed email, short password,
// missing required column, unknown dataset.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for one field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports an absent resource: unknown email, unknown or
// expired upload token. An empty search result is not a NotFoundError.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// NewNotFoundError builds a NotFoundError for the named resource.
func NewNotFoundError(resource string) *NotFoundError {
	return &NotFoundError{Resource: resource}
}

// AuthError reports rejected credentials or a CSRF mismatch.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return e.Reason
}

// NewAuthError builds an AuthError with the given reason.
func NewAuthError(reason string) *AuthError {
	return &AuthError{Reason: reason}
}

// UpstreamError wraps a failure talking to the spreadsheet backend.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError wraps err as an UpstreamError for operation op.
func NewUpstreamError(op string, err error) *UpstreamError {
	return &UpstreamError{Op: op, Err: err}
}

// RateLimitError is a transient backend rejection (HTTP 429 family). Writes
// retry these with backoff; once retries are exhausted the caller escalates
// to UpstreamError.
type RateLimitError struct {
	Op  string
	Err error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited during %s: %v", e.Op, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// NewRateLimitError wraps err as a RateLimitError for operation op.
func NewRateLimitError(op string, err error) *RateLimitError {
	return &RateLimitError{Op: op, Err: err}
}

// IsRateLimit reports whether err is (or wraps) a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
