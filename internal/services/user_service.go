package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"popdesk/internal/common"
	"popdesk/internal/models"
	"popdesk/internal/passhash"
	"popdesk/internal/repositories"
)

const (
	// MinPasswordLength is enforced on create, set-password and reset.
	MinPasswordLength = 8
	// ResetTokenTTL bounds how long a password-reset token stays usable.
	ResetTokenTTL = 2 * time.Hour
)

// UserUpdate carries the mutable profile fields. Email and password hash
// cannot be changed through Update; password changes go through SetPassword.
type UserUpdate struct {
	Name     *string
	Role     *string
	IsActive *bool
}

// UserService implements the account directory on top of the accounts tab.
type UserService interface {
	// Get returns the account for a (case/whitespace normalized) email, or
	// nil when unknown.
	Get(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Create(ctx context.Context, email, password, name, role string) (*models.User, error)
	Update(ctx context.Context, email string, fields UserUpdate) (*models.User, error)
	Deactivate(ctx context.Context, email string) error
	SetPassword(ctx context.Context, email, newPassword string) error
	// Authenticate never returns an error: unknown accounts, deactivated
	// accounts and wrong passwords all report false.
	Authenticate(ctx context.Context, email, password string) bool
	// StartPasswordReset returns an empty token for unknown emails so the
	// caller cannot distinguish them, and the latest issued token always
	// replaces any earlier one.
	StartPasswordReset(ctx context.Context, email string) (string, error)
	// CompletePasswordReset returns the email whose password was changed.
	CompletePasswordReset(ctx context.Context, token, newPassword string) (string, error)
}

type userService struct {
	repo  repositories.UserRepository
	clock clockwork.Clock
}

// NewUserService creates the account directory service.
func NewUserService(repo repositories.UserRepository, clock clockwork.Clock) UserService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &userService{repo: repo, clock: clock}
}

func (s *userService) Get(ctx context.Context, email string) (*models.User, error) {
	em := common.NormalizeEmail(email)
	users, err := s.repo.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Email == em {
			return u, nil
		}
	}
	return nil, nil
}

func (s *userService) List(ctx context.Context) ([]*models.User, error) {
	return s.repo.LoadAll(ctx)
}

func (s *userService) Create(ctx context.Context, email, password, name, role string) (*models.User, error) {
	em := common.NormalizeEmail(email)
	if em == "" || !common.ValidEmailFormat(em) {
		return nil, common.NewValidationError("email", "invalid email address")
	}
	if len(password) < MinPasswordLength {
		return nil, common.NewValidationError("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if role != models.RoleAdmin && role != models.RoleCustomer {
		role = models.RoleCustomer
	}

	users, err := s.repo.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Email == em {
			return nil, common.NewValidationError("email", "an account with that email already exists")
		}
	}

	hash, err := passhash.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        em,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    s.clock.Now().UTC().Format(time.RFC3339),
	}
	users = append(users, user)

	if err := s.repo.ReplaceAll(ctx, users); err != nil {
		return nil, err
	}
	return user.Clone(), nil
}

func (s *userService) Update(ctx context.Context, email string, fields UserUpdate) (*models.User, error) {
	em := common.NormalizeEmail(email)
	users, err := s.repo.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	var target *models.User
	for _, u := range users {
		if u.Email == em {
			target = u
			break
		}
	}
	if target == nil {
		return nil, common.NewNotFoundError("user")
	}

	if fields.Name != nil {
		target.Name = strings.TrimSpace(*fields.Name)
	}
	if fields.Role != nil {
		role := strings.TrimSpace(*fields.Role)
		if role != models.RoleAdmin && role != models.RoleCustomer {
			return nil, common.NewValidationError("role", "role must be admin or customer")
		}
		target.Role = role
	}
	if fields.IsActive != nil {
		target.IsActive = *fields.IsActive
	}

	if err := s.repo.ReplaceAll(ctx, users); err != nil {
		return nil, err
	}
	return target.Clone(), nil
}

func (s *userService) Deactivate(ctx context.Context, email string) error {
	inactive := false
	_, err := s.Update(ctx, email, UserUpdate{IsActive: &inactive})
	return err
}

func (s *userService) SetPassword(ctx context.Context, email, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return common.NewValidationError("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	em := common.NormalizeEmail(email)
	users, err := s.repo.LoadAll(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.Email != em {
			continue
		}
		hash, err := passhash.Hash(newPassword)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		// The new hash and the cleared reset state land in the same
		// rewrite, so a pending reset token cannot survive a password
		// change.
		u.PasswordHash = hash
		u.ResetToken = ""
		u.ResetExpires = ""
		return s.repo.ReplaceAll(ctx, users)
	}
	return common.NewNotFoundError("user")
}

func (s *userService) Authenticate(ctx context.Context, email, password string) bool {
	user, err := s.Get(ctx, email)
	if err != nil {
		log.Printf("WARN: authenticate load failed for %s: %v", common.NormalizeEmail(email), err)
		return false
	}
	if user == nil || !user.IsActive {
		return false
	}
	return passhash.Verify(password, user.PasswordHash)
}

func (s *userService) StartPasswordReset(ctx context.Context, email string) (string, error) {
	em := common.NormalizeEmail(email)
	users, err := s.repo.LoadAll(ctx)
	if err != nil {
		return "", err
	}

	for _, u := range users {
		if u.Email != em {
			continue
		}
		token, err := newResetToken()
		if err != nil {
			return "", err
		}
		u.ResetToken = token
		u.ResetExpires = s.clock.Now().UTC().Add(ResetTokenTTL).Format(time.RFC3339)
		if err := s.repo.ReplaceAll(ctx, users); err != nil {
			return "", err
		}
		return token, nil
	}
	// Unknown email: empty token, no error, so callers can answer with the
	// same message either way.
	return "", nil
}

func (s *userService) CompletePasswordReset(ctx context.Context, token, newPassword string) (string, error) {
	if len(newPassword) < MinPasswordLength {
		return "", common.NewValidationError("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if strings.TrimSpace(token) == "" {
		return "", common.ErrInvalidToken
	}

	users, err := s.repo.LoadAll(ctx)
	if err != nil {
		return "", err
	}

	now := s.clock.Now().UTC()
	for _, u := range users {
		if u.ResetToken == "" || u.ResetToken != token {
			continue
		}
		expires, err := time.Parse(time.RFC3339, u.ResetExpires)
		if err != nil || now.After(expires) {
			return "", common.ErrInvalidToken
		}
		hash, err := passhash.Hash(newPassword)
		if err != nil {
			return "", fmt.Errorf("failed to hash password: %w", err)
		}
		u.PasswordHash = hash
		u.ResetToken = ""
		u.ResetExpires = ""
		if err := s.repo.ReplaceAll(ctx, users); err != nil {
			return "", err
		}
		return u.Email, nil
	}
	return "", common.ErrInvalidToken
}

func newResetToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
