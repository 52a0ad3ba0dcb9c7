package token

import (
	"fmt"
	"time"
)

// Permission is one capability an API token grants over showcase data.
type Permission string

const (
	PermissionRead   Permission = "read"
	PermissionCreate Permission = "create"
	PermissionUpdate Permission = "update"
	PermissionDelete Permission = "delete"
)

func ParsePermission(value string) (Permission, error) {
	switch Permission(value) {
	case PermissionRead, PermissionCreate, PermissionUpdate, PermissionDelete:
		return Permission(value), nil
	default:
		return "", fmt.Errorf("unknown permission %q", value)
	}
}

// ParsePermissions validates raw permission strings into the closed
// enumeration, rejecting unknown values and empty sets. Duplicates are
// collapsed, preserving first-seen order.
func ParsePermissions(values []string) ([]Permission, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("permission set must not be empty")
	}

	seen := make(map[Permission]bool, len(values))
	permissions := make([]Permission, 0, len(values))
	for _, value := range values {
		permission, err := ParsePermission(value)
		if err != nil {
			return nil, err
		}
		if seen[permission] {
			continue
		}
		seen[permission] = true
		permissions = append(permissions, permission)
	}

	return permissions, nil
}

// Token is one issued bearer credential. The plaintext secret exists
// only at issuance; rows are kept after revocation for audit.
type Token struct {
	ID           string       `json:"id"`
	OwnerID      string       `json:"-"`
	Name         string       `json:"name"`
	LookupPrefix string       `json:"lookup_prefix"`
	SecretHash   string       `json:"-"`
	Permissions  []Permission `json:"permissions"`
	ExpiresAt    *time.Time   `json:"expires_at,omitempty"`
	RevokedAt    *time.Time   `json:"revoked_at,omitempty"`
	LastUsedAt   *time.Time   `json:"last_used_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

func (t Token) Revoked() bool {
	return t.RevokedAt != nil
}

func (t Token) ExpiredAt(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// Identity is the result of a successful verification: who owns the
// token and what it may do.
type Identity struct {
	OwnerID     string       `json:"owner_id"`
	TokenID     string       `json:"token_id"`
	Permissions []Permission `json:"permissions"`
}

func (i Identity) Can(required Permission) bool {
	for _, permission := range i.Permissions {
		if permission == required {
			return true
		}
	}
	return false
}

func (i Identity) CanAll(required ...Permission) bool {
	for _, permission := range required {
		if !i.Can(permission) {
			return false
		}
	}
	return true
}

func (i Identity) CanAny(required ...Permission) bool {
	for _, permission := range required {
		if i.Can(permission) {
			return true
		}
	}
	return false
}
