package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// Secret text format: "shc_" followed by a 32-character random body over
// the URL-safe base64 alphabet. The first 8 body characters double as the
// stored lookup prefix; the remaining 24 characters plus the one-way hash
// carry the security margin.
const (
	secretPrefix    = "shc_"
	secretBodyLen   = 32
	LookupPrefixLen = 8
)

func newSecret() (plaintext, lookupPrefix string, err error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate secret body: %w", err)
	}

	body := base64.RawURLEncoding.EncodeToString(raw)
	return secretPrefix + body, body[:LookupPrefixLen], nil
}

// parseSecret validates the textual format and returns the random body.
// Wrong prefix, wrong length, or characters outside the alphabet all
// fail identically; callers must not distinguish malformed input from
// an unmatched secret.
func parseSecret(plaintext string) (body string, ok bool) {
	if !strings.HasPrefix(plaintext, secretPrefix) {
		return "", false
	}

	body = plaintext[len(secretPrefix):]
	if len(body) != secretBodyLen {
		return "", false
	}
	for _, c := range body {
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return "", false
		}
	}

	return body, true
}
