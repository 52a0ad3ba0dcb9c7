// Package access is the single entry point the HTTP layer consults per
// API request: resolve the bearer secret to an identity, then throttle
// by that identity. Authentication runs first so unauthenticated callers
// can neither consume nor observe another identity's rate budget.
package access

import (
	"context"
	"errors"
	"strings"
	"time"

	"showcase-api/internal/ratelimit"
	"showcase-api/internal/token"
)

type Code string

const (
	CodeAdmitted      Code = "admitted"
	CodeUnauthorized  Code = "unauthorized"
	CodeForbidden     Code = "forbidden"
	CodeRateLimited   Code = "rate_limited"
	CodeInternalError Code = "internal_error"
)

type Decision struct {
	Code       Code
	Message    string
	Identity   token.Identity
	Rate       *ratelimit.Result
	RetryAfter int
	err        error
}

func (d Decision) Admitted() bool {
	return d.Code == CodeAdmitted
}

// Err returns the underlying infrastructure failure for an
// internal-error decision.
func (d Decision) Err() error {
	return d.err
}

// Verifier resolves a plaintext bearer secret to an identity.
type Verifier interface {
	Verify(ctx context.Context, plaintext string) (token.Identity, error)
}

type Facade struct {
	vault   Verifier
	limiter *ratelimit.Limiter
	limit   int
	window  time.Duration
}

func NewFacade(vault Verifier, limiter *ratelimit.Limiter, limit int, window time.Duration) *Facade {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}

	return &Facade{
		vault:   vault,
		limiter: limiter,
		limit:   limit,
		window:  window,
	}
}

// Authorize turns a raw Authorization header value into an admit/deny
// decision. A missing or malformed header never reaches the vault.
func (f *Facade) Authorize(ctx context.Context, bearerHeaderValue string) Decision {
	plaintext, ok := extractBearer(bearerHeaderValue)
	if !ok {
		return Decision{Code: CodeUnauthorized, Message: "missing or malformed authorization header"}
	}

	identity, err := f.vault.Verify(ctx, plaintext)
	if err != nil {
		if errors.Is(err, token.ErrUnauthorized) {
			return Decision{Code: CodeUnauthorized, Message: "invalid token"}
		}
		return Decision{Code: CodeInternalError, Message: "authorization unavailable", err: err}
	}

	result := f.limiter.Check(identity.TokenID, f.limit, f.window)
	if !result.Allowed {
		return Decision{
			Code:       CodeRateLimited,
			Message:    "rate limit exceeded",
			Identity:   identity,
			Rate:       &result,
			RetryAfter: result.RetryAfter,
		}
	}

	return Decision{Code: CodeAdmitted, Identity: identity, Rate: &result}
}

func extractBearer(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	plaintext := strings.TrimSpace(parts[1])
	if plaintext == "" {
		return "", false
	}

	return plaintext, true
}
