package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository is the Postgres-backed Store.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, t Token) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_tokens (id, owner_id, name, lookup_prefix, secret_hash, permissions, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.OwnerID, t.Name, t.LookupPrefix, t.SecretHash, joinPermissions(t.Permissions), nullableTime(t.ExpiresAt), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert api token: %w", err)
	}

	return nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (Token, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, lookup_prefix, secret_hash, permissions, expires_at, revoked_at, last_used_at, created_at
		FROM api_tokens
		WHERE id = $1
	`, id)

	t, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Token{}, ErrTokenRowNotFound
		}
		return Token{}, fmt.Errorf("query api token by id: %w", err)
	}

	return t, nil
}

func (r *Repository) FindActiveByPrefix(ctx context.Context, lookupPrefix string, limit int) ([]Token, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, name, lookup_prefix, secret_hash, permissions, expires_at, revoked_at, last_used_at, created_at
		FROM api_tokens
		WHERE lookup_prefix = $1 AND revoked_at IS NULL
		ORDER BY created_at ASC
		LIMIT $2
	`, lookupPrefix, limit)
	if err != nil {
		return nil, fmt.Errorf("query api tokens by prefix: %w", err)
	}
	defer rows.Close()

	return collectTokens(rows)
}

func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]Token, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, name, lookup_prefix, secret_hash, permissions, expires_at, revoked_at, last_used_at, created_at
		FROM api_tokens
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query api tokens by owner: %w", err)
	}
	defer rows.Close()

	return collectTokens(rows)
}

func (r *Repository) MarkRevoked(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE api_tokens
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("mark api token revoked: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoked rows affected: %w", err)
	}
	if affected == 0 {
		return ErrTokenRowNotFound
	}

	return nil
}

func (r *Repository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE api_tokens
		SET last_used_at = $2
		WHERE id = $1
	`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("touch api token last used: %w", err)
	}

	return nil
}

func (r *Repository) CountActiveByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM api_tokens
		WHERE owner_id = $1 AND revoked_at IS NULL
	`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active api tokens: %w", err)
	}

	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (Token, error) {
	var t Token
	var permissions string
	var expiresAt, revokedAt, lastUsedAt sql.NullTime

	err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.LookupPrefix, &t.SecretHash, &permissions, &expiresAt, &revokedAt, &lastUsedAt, &t.CreatedAt)
	if err != nil {
		return Token{}, err
	}

	parsed, err := ParsePermissions(strings.Split(permissions, ","))
	if err != nil {
		return Token{}, fmt.Errorf("stored permissions for token %s: %w", t.ID, err)
	}
	t.Permissions = parsed

	t.ExpiresAt = timePtr(expiresAt)
	t.RevokedAt = timePtr(revokedAt)
	t.LastUsedAt = timePtr(lastUsedAt)

	return t, nil
}

func collectTokens(rows *sql.Rows) ([]Token, error) {
	tokens := make([]Token, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api token: %w", err)
		}
		tokens = append(tokens, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api tokens: %w", err)
	}

	return tokens, nil
}

func joinPermissions(permissions []Permission) string {
	parts := make([]string, 0, len(permissions))
	for _, permission := range permissions {
		parts = append(parts, string(permission))
	}
	return strings.Join(parts, ",")
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC()
}

func timePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	utc := value.Time.UTC()
	return &utc
}
