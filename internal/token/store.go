package token

import (
	"context"
	"errors"
	"time"
)

// ErrTokenRowNotFound is returned by Store implementations when a lookup
// by id matches nothing.
var ErrTokenRowNotFound = errors.New("token row not found")

// Store is the persistent credential store. Rows are never physically
// deleted; revocation and last-used touches are the only mutations.
type Store interface {
	Create(ctx context.Context, t Token) error
	FindByID(ctx context.Context, id string) (Token, error)
	FindActiveByPrefix(ctx context.Context, lookupPrefix string, limit int) ([]Token, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Token, error)
	MarkRevoked(ctx context.Context, id string, at time.Time) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
	CountActiveByOwner(ctx context.Context, ownerID string) (int, error)
}
