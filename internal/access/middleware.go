package access

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"

	"showcase-api/internal/ratelimit"
	"showcase-api/internal/token"
)

type contextKey struct{}

var identityKey contextKey

// IdentityFromContext returns the identity admitted by Require.
func IdentityFromContext(ctx context.Context) (token.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(token.Identity)
	return identity, ok
}

// Require authorizes the request through the facade and additionally
// demands every listed permission. Rate-limit headers are set on
// admitted responses as well as on denials.
func (f *Facade) Require(next http.Handler, required ...token.Permission) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := f.Authorize(r.Context(), r.Header.Get("Authorization"))

		if decision.Rate != nil {
			setRateHeaders(w, decision.Rate)
		}

		switch decision.Code {
		case CodeAdmitted:
		case CodeUnauthorized:
			writeError(w, http.StatusUnauthorized, decision.Message)
			return
		case CodeRateLimited:
			w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter))
			writeError(w, http.StatusTooManyRequests, decision.Message)
			return
		default:
			sentry.CaptureException(decision.Err())
			writeError(w, http.StatusInternalServerError, decision.Message)
			return
		}

		if !decision.Identity.CanAll(required...) {
			writeError(w, http.StatusForbidden, "insufficient permissions")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, decision.Identity)))
	})
}

func setRateHeaders(w http.ResponseWriter, rate *ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rate.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rate.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rate.ResetAt, 10))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
