package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultSessionTTL = 30 * time.Minute

var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrLoginLocked reports a lockout with the instant it lifts.
type ErrLoginLocked struct {
	Until time.Time
}

func (e ErrLoginLocked) Error() string {
	return "login temporarily locked"
}

// Service owns the interactive login flow: it consults the lockout
// limiter before the password comparison and records exactly one of
// failure or success after it. Successful logins yield a short-lived
// session token used by the token-management endpoints.
type Service struct {
	repo       *Repository
	lockouts   *LockoutLimiter
	jwtSecret  []byte
	sessionTTL time.Duration
}

func NewService(repo *Repository, lockouts *LockoutLimiter, jwtSecret string) *Service {
	return &Service{
		repo:       repo,
		lockouts:   lockouts,
		jwtSecret:  []byte(jwtSecret),
		sessionTTL: defaultSessionTTL,
	}
}

func (s *Service) WithSessionTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.sessionTTL = ttl
	}
	return s
}

func (s *Service) Login(ctx context.Context, username, password string) (SessionToken, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	password = strings.TrimSpace(password)

	if username == "" || password == "" {
		return SessionToken{}, ErrInvalidCredentials
	}

	if status := s.lockouts.CheckAllowed(username); !status.Allowed {
		return SessionToken{}, lockedError(status)
	}

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionToken{}, s.failLogin(username)
		}
		return SessionToken{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return SessionToken{}, s.failLogin(username)
	}

	s.lockouts.RecordSuccess(username)

	return s.issueSession(user.ID)
}

// failLogin records the failed attempt; a failure that trips the
// lockout surfaces as the lockout error instead of bad credentials.
func (s *Service) failLogin(username string) error {
	if status := s.lockouts.RecordFailure(username); !status.Allowed {
		return lockedError(status)
	}
	return ErrInvalidCredentials
}

func lockedError(status AttemptStatus) error {
	return ErrLoginLocked{Until: time.Now().UTC().Add(time.Duration(status.RetryAfter) * time.Second)}
}

func (s *Service) issueSession(userID string) (SessionToken, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(s.sessionTTL).Unix(),
		"typ": "session",
	}
	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return SessionToken{}, fmt.Errorf("sign session jwt: %w", err)
	}

	return SessionToken{
		AccessToken: encoded,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.sessionTTL.Seconds()),
	}, nil
}

// BootstrapFromEnv provisions the admin owner account when both values
// are present; both empty is a no-op.
func (s *Service) BootstrapFromEnv(ctx context.Context, adminUsername, adminPassword string) error {
	adminUsername = strings.TrimSpace(strings.ToLower(adminUsername))
	adminPassword = strings.TrimSpace(adminPassword)

	if adminUsername == "" && adminPassword == "" {
		return nil
	}
	if adminUsername == "" || adminPassword == "" {
		return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD are required together")
	}

	return s.repo.UpsertUser(ctx, adminUsername, adminPassword)
}
