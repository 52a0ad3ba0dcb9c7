package token

import (
	"strings"
	"testing"
)

func TestNewSecret_Format(t *testing.T) {
	plaintext, lookupPrefix, err := newSecret()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(plaintext, "shc_") {
		t.Fatalf("expected shc_ prefix, got %q", plaintext)
	}
	body := strings.TrimPrefix(plaintext, "shc_")
	if len(body) != 32 {
		t.Fatalf("expected 32-character body, got %d", len(body))
	}
	if lookupPrefix != body[:8] {
		t.Fatalf("expected lookup prefix %q, got %q", body[:8], lookupPrefix)
	}

	parsed, ok := parseSecret(plaintext)
	if !ok || parsed != body {
		t.Fatalf("expected generated secret to round-trip through parseSecret")
	}
}

func TestNewSecret_Distinct(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		plaintext, _, err := newSecret()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[plaintext] {
			t.Fatalf("generated duplicate secret after %d draws", i+1)
		}
		seen[plaintext] = true
	}
}

func TestParseSecret_RejectsMalformed(t *testing.T) {
	cases := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"wrong prefix", "tok_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},
		{"missing prefix", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},
		{"short body", "shc_AAAAAAAA"},
		{"long body", "shc_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},
		{"bad character", "shc_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA!"},
		{"whitespace", "shc_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := parseSecret(tc.value); ok {
				t.Fatalf("expected %q to be rejected", tc.value)
			}
		})
	}
}

func TestParsePermissions(t *testing.T) {
	permissions, err := ParsePermissions([]string{"read", "create", "read"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(permissions) != 2 || permissions[0] != PermissionRead || permissions[1] != PermissionCreate {
		t.Fatalf("expected deduplicated [read create], got %v", permissions)
	}

	if _, err := ParsePermissions(nil); err == nil {
		t.Fatalf("expected empty set to be rejected")
	}
	if _, err := ParsePermissions([]string{"read", "admin"}); err == nil {
		t.Fatalf("expected unknown permission to be rejected")
	}
}

func TestIdentity_PermissionChecks(t *testing.T) {
	identity := Identity{Permissions: []Permission{PermissionRead, PermissionCreate}}

	if !identity.Can(PermissionRead) || identity.Can(PermissionDelete) {
		t.Fatalf("unexpected Can results")
	}
	if !identity.CanAll(PermissionRead, PermissionCreate) {
		t.Fatalf("expected CanAll to hold for granted set")
	}
	if identity.CanAll(PermissionRead, PermissionDelete) {
		t.Fatalf("expected CanAll to fail on missing permission")
	}
	if !identity.CanAny(PermissionDelete, PermissionCreate) {
		t.Fatalf("expected CanAny to hold when one permission matches")
	}
	if identity.CanAny(PermissionDelete, PermissionUpdate) {
		t.Fatalf("expected CanAny to fail when nothing matches")
	}
}
