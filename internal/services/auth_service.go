package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"popdesk/internal/caching"
	"popdesk/internal/common"
	"popdesk/internal/models"
)

const (
	// DefaultSessionTTL is how long a login stays valid.
	DefaultSessionTTL = 12 * time.Hour

	// Login throttling per client IP.
	loginAttemptLimit  = 10
	loginAttemptWindow = 15 * time.Minute

	// Anonymous CSRF pairs cover the pre-login form flows.
	anonymousCSRFTTL = time.Hour
)

// SessionClaims are the JWT claims carried by the session cookie. The JWT
// ID doubles as the session identifier that keys the CSRF token.
type SessionClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Session is an established login: the signed cookie value, the CSRF token
// the client must echo on mutating requests, and the account it belongs to.
type Session struct {
	Token     string       `json:"-"`
	CSRF      string       `json:"csrf_token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// SessionService manages login sessions and the CSRF state tied to them.
type SessionService interface {
	// Login authenticates and establishes a session. Bad credentials and
	// throttled clients both come back as AuthError.
	Login(ctx context.Context, email, password, clientIP string) (*Session, error)
	// Establish creates a session for an already-verified account (used
	// right after registration).
	Establish(ctx context.Context, user *models.User) (*Session, error)
	Logout(ctx context.Context, sessionID string) error
	VerifyCSRF(ctx context.Context, sessionID, token string) error

	// Anonymous CSRF pairs guard login/register/forgot/reset, which run
	// before any session exists.
	IssueAnonymousCSRF(ctx context.Context) (id, token string, err error)
	VerifyAnonymousCSRF(ctx context.Context, id, token string) error

	SessionTTL() time.Duration
}

type sessionService struct {
	users     UserService
	cacheSvc  caching.CacheService
	jwtSecret []byte
	ttl       time.Duration
}

// NewSessionService creates the session manager. A zero ttl means
// DefaultSessionTTL.
func NewSessionService(users UserService, cacheSvc caching.CacheService, jwtSecret string, ttl time.Duration) SessionService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &sessionService{
		users:     users,
		cacheSvc:  cacheSvc,
		jwtSecret: []byte(jwtSecret),
		ttl:       ttl,
	}
}

func (s *sessionService) SessionTTL() time.Duration {
	return s.ttl
}

func (s *sessionService) Login(ctx context.Context, email, password, clientIP string) (*Session, error) {
	// Keyed per account and source address so one flooded account does not
	// throttle everyone behind the same NAT.
	limitKey := "login:" + common.NormalizeEmail(email) + ":" + clientIP
	limited, err := s.cacheSvc.IsRateLimited(ctx, limitKey, loginAttemptLimit, loginAttemptWindow)
	if err != nil {
		// Redis being down must not lock everyone out.
		log.Printf("WARN: login rate limit check failed: %v", err)
	} else if limited {
		return nil, common.NewAuthError("too many login attempts, try again later")
	}

	if !s.users.Authenticate(ctx, email, password) {
		return nil, common.NewAuthError("invalid credentials")
	}
	user, err := s.users.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, common.NewAuthError("invalid credentials")
	}
	return s.Establish(ctx, user)
}

func (s *sessionService) Establish(ctx context.Context, user *models.User) (*Session, error) {
	now := time.Now()
	sessionID := uuid.NewString()
	expiresAt := now.Add(s.ttl)

	claims := SessionClaims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "popdesk-auth",
			Subject:   user.Email,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %v", err)
	}

	csrf, err := randomToken()
	if err != nil {
		return nil, err
	}
	if err := s.cacheSvc.SetString(ctx, "csrf:"+sessionID, csrf, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to store CSRF token: %v", err)
	}

	return &Session{
		Token:     token,
		CSRF:      csrf,
		ExpiresAt: expiresAt,
		User:      user,
	}, nil
}

func (s *sessionService) Logout(ctx context.Context, sessionID string) error {
	return s.cacheSvc.Delete(ctx, "csrf:"+sessionID)
}

func (s *sessionService) VerifyCSRF(ctx context.Context, sessionID, token string) error {
	stored, err := s.cacheSvc.GetString(ctx, "csrf:"+sessionID)
	if err != nil {
		return fmt.Errorf("failed to load CSRF token: %v", err)
	}
	if stored == "" || token == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
		return common.NewAuthError("CSRF token mismatch")
	}
	return nil
}

func (s *sessionService) IssueAnonymousCSRF(ctx context.Context) (string, string, error) {
	id := uuid.NewString()
	token, err := randomToken()
	if err != nil {
		return "", "", err
	}
	if err := s.cacheSvc.SetString(ctx, "csrf:anon:"+id, token, anonymousCSRFTTL); err != nil {
		return "", "", fmt.Errorf("failed to store CSRF token: %v", err)
	}
	return id, token, nil
}

func (s *sessionService) VerifyAnonymousCSRF(ctx context.Context, id, token string) error {
	if id == "" {
		return common.NewAuthError("CSRF token mismatch")
	}
	stored, err := s.cacheSvc.GetString(ctx, "csrf:anon:"+id)
	if err != nil {
		return fmt.Errorf("failed to load CSRF token: %v", err)
	}
	if stored == "" || token == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
		return common.NewAuthError("CSRF token mismatch")
	}
	return nil
}

func randomToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
