package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey struct{}

var ownerIDKey contextKey

// OwnerIDFromContext returns the owner id placed by SessionMiddleware.
func OwnerIDFromContext(ctx context.Context) (string, bool) {
	ownerID, ok := ctx.Value(ownerIDKey).(string)
	return ownerID, ok
}

// SessionMiddleware guards the token-management endpoints with the
// short-lived session JWT issued at login.
func SessionMiddleware(jwtSecret string, next http.Handler) http.Handler {
	secret := []byte(jwtSecret)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "invalid authorization token")
			return
		}

		claims := jwt.MapClaims{}
		parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !parsed.Valid {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if tokenType, _ := claims["typ"].(string); tokenType != "session" {
			writeError(w, http.StatusUnauthorized, "invalid token type")
			return
		}
		subject, _ := claims["sub"].(string)
		if subject == "" {
			writeError(w, http.StatusUnauthorized, "invalid token subject")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerIDKey, subject)))
	})
}
