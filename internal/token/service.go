package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"showcase-api/internal/observability"
)

const (
	defaultMaxActivePerOwner = 10
	defaultCandidateCap      = 16
	touchTimeout             = 5 * time.Second
)

var (
	// ErrUnauthorized covers malformed, unmatched, expired, and revoked
	// secrets alike; callers cannot tell these apart.
	ErrUnauthorized = errors.New("unauthorized")

	ErrTokenNotFound      = errors.New("token not found")
	ErrNotOwner           = errors.New("token belongs to another owner")
	ErrAlreadyRevoked     = errors.New("token already revoked")
	ErrTokenLimitExceeded = errors.New("active token limit exceeded")
)

// Service issues, verifies, and revokes bearer tokens.
type Service struct {
	store        Store
	logger       *observability.Logger
	maxActive    int
	candidateCap int
	hashCost     int
	now          func() time.Time
}

func NewService(store Store, logger *observability.Logger) *Service {
	return &Service{
		store:        store,
		logger:       logger,
		maxActive:    defaultMaxActivePerOwner,
		candidateCap: defaultCandidateCap,
		hashCost:     bcrypt.DefaultCost,
		now:          time.Now,
	}
}

func (s *Service) WithLimits(maxActive, candidateCap int) *Service {
	if maxActive > 0 {
		s.maxActive = maxActive
	}
	if candidateCap > 0 {
		s.candidateCap = candidateCap
	}
	return s
}

// WithClock replaces the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Issue creates a new token for ownerID and returns the record together
// with the plaintext secret. The plaintext is shown exactly once; it is
// never stored and cannot be reconstructed.
func (s *Service) Issue(ctx context.Context, ownerID, name string, permissions []Permission, expiresAt *time.Time) (Token, string, error) {
	if len(permissions) == 0 {
		return Token{}, "", fmt.Errorf("permission set must not be empty")
	}
	for _, permission := range permissions {
		if _, err := ParsePermission(string(permission)); err != nil {
			return Token{}, "", err
		}
	}

	active, err := s.store.CountActiveByOwner(ctx, ownerID)
	if err != nil {
		return Token{}, "", fmt.Errorf("count active tokens: %w", err)
	}
	if active >= s.maxActive {
		return Token{}, "", ErrTokenLimitExceeded
	}

	plaintext, lookupPrefix, err := newSecret()
	if err != nil {
		return Token{}, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.hashCost)
	if err != nil {
		return Token{}, "", fmt.Errorf("hash token secret: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Token{}, "", fmt.Errorf("generate token id: %w", err)
	}

	t := Token{
		ID:           id.String(),
		OwnerID:      ownerID,
		Name:         name,
		LookupPrefix: lookupPrefix,
		SecretHash:   string(hash),
		Permissions:  permissions,
		CreatedAt:    s.now().UTC(),
	}
	if expiresAt != nil {
		utc := expiresAt.UTC()
		t.ExpiresAt = &utc
	}

	if err := s.store.Create(ctx, t); err != nil {
		return Token{}, "", err
	}

	return t, plaintext, nil
}

// Verify resolves a plaintext secret to the identity it authenticates.
// Malformed input is rejected before any store access.
func (s *Service) Verify(ctx context.Context, plaintext string) (Identity, error) {
	body, ok := parseSecret(plaintext)
	if !ok {
		return Identity{}, ErrUnauthorized
	}
	lookupPrefix := body[:LookupPrefixLen]

	candidates, err := s.store.FindActiveByPrefix(ctx, lookupPrefix, s.candidateCap)
	if err != nil {
		return Identity{}, fmt.Errorf("find token candidates: %w", err)
	}
	if len(candidates) >= s.candidateCap {
		s.logger.Warn("token_prefix_bucket_at_cap", map[string]any{
			"lookup_prefix": lookupPrefix,
			"candidates":    len(candidates),
		})
	}

	now := s.now().UTC()
	for _, candidate := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(candidate.SecretHash), []byte(plaintext)) != nil {
			continue
		}
		if candidate.ExpiredAt(now) {
			return Identity{}, ErrUnauthorized
		}

		s.touchLastUsed(candidate.ID, now)

		return Identity{
			OwnerID:     candidate.OwnerID,
			TokenID:     candidate.ID,
			Permissions: candidate.Permissions,
		}, nil
	}

	return Identity{}, ErrUnauthorized
}

// touchLastUsed records the usage instant off the request path. Failures
// are logged and captured but never reach the caller.
func (s *Service) touchLastUsed(id string, at time.Time) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("token_touch_panic", map[string]any{"token_id": id, "panic": rec})
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()

		if err := s.store.TouchLastUsed(ctx, id, at); err != nil {
			sentry.CaptureException(err)
			s.logger.Error("token_touch_failed", map[string]any{"token_id": id, "error": err.Error()})
		}
	}()
}

// Revoke permanently deactivates a token. Revocation is monotonic: a
// revoked token is never reactivated, only superseded by a new one.
func (s *Service) Revoke(ctx context.Context, tokenID, requesterOwnerID string) error {
	t, err := s.store.FindByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ErrTokenRowNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("find token: %w", err)
	}

	if t.OwnerID != requesterOwnerID {
		return ErrNotOwner
	}
	if t.Revoked() {
		return ErrAlreadyRevoked
	}

	if err := s.store.MarkRevoked(ctx, tokenID, s.now().UTC()); err != nil {
		if errors.Is(err, ErrTokenRowNotFound) {
			// Lost the race against a concurrent revocation.
			return ErrAlreadyRevoked
		}
		return fmt.Errorf("revoke token: %w", err)
	}

	return nil
}

// List returns every token the owner has ever issued, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]Token, error) {
	tokens, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}

	return tokens, nil
}
