package access

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"showcase-api/internal/ratelimit"
	"showcase-api/internal/token"
)

// stubVault counts Verify calls and resolves one known secret.
type stubVault struct {
	calls    int
	secret   string
	identity token.Identity
	err      error
}

func (s *stubVault) Verify(_ context.Context, plaintext string) (token.Identity, error) {
	s.calls++
	if s.err != nil {
		return token.Identity{}, s.err
	}
	if plaintext == s.secret {
		return s.identity, nil
	}
	return token.Identity{}, token.ErrUnauthorized
}

func newTestFacade(vault *stubVault, limit int, window time.Duration) *Facade {
	return NewFacade(vault, ratelimit.NewLimiter(time.Minute, time.Hour), limit, window)
}

func TestFacade_MalformedHeaderSkipsVault(t *testing.T) {
	vault := &stubVault{}
	facade := newTestFacade(vault, 10, time.Minute)
	ctx := context.Background()

	for _, header := range []string{"", "Bearer", "Bearer ", "Basic abc", "shc_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"} {
		decision := facade.Authorize(ctx, header)
		if decision.Code != CodeUnauthorized {
			t.Fatalf("expected unauthorized for header %q, got %v", header, decision.Code)
		}
	}

	if vault.calls != 0 {
		t.Fatalf("expected malformed headers to skip the vault, got %d calls", vault.calls)
	}
}

func TestFacade_AdmitCarriesIdentityAndRate(t *testing.T) {
	vault := &stubVault{
		secret:   "shc_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		identity: token.Identity{OwnerID: "owner-1", TokenID: "tok-1", Permissions: []token.Permission{token.PermissionRead}},
	}
	facade := newTestFacade(vault, 10, time.Minute)

	decision := facade.Authorize(context.Background(), "Bearer "+vault.secret)
	if !decision.Admitted() {
		t.Fatalf("expected admit, got %+v", decision)
	}
	if decision.Identity.TokenID != "tok-1" {
		t.Fatalf("unexpected identity: %+v", decision.Identity)
	}
	if decision.Rate == nil || decision.Rate.Remaining != 9 {
		t.Fatalf("expected rate state on admit, got %+v", decision.Rate)
	}
}

func TestFacade_UnknownSecretConsumesNoBudget(t *testing.T) {
	vault := &stubVault{
		secret:   "shc_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		identity: token.Identity{OwnerID: "owner-1", TokenID: "tok-1"},
	}
	facade := newTestFacade(vault, 1, time.Minute)
	ctx := context.Background()

	// Failed authentications must not touch any identity's budget.
	for i := 0; i < 5; i++ {
		if decision := facade.Authorize(ctx, "Bearer shc_BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"); decision.Code != CodeUnauthorized {
			t.Fatalf("expected unauthorized, got %v", decision.Code)
		}
	}

	if decision := facade.Authorize(ctx, "Bearer "+vault.secret); !decision.Admitted() {
		t.Fatalf("expected full budget for real identity, got %+v", decision)
	}
}

func TestFacade_RateLimitDenial(t *testing.T) {
	vault := &stubVault{
		secret:   "shc_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		identity: token.Identity{OwnerID: "owner-1", TokenID: "tok-1"},
	}
	facade := newTestFacade(vault, 2, time.Minute)
	ctx := context.Background()

	facade.Authorize(ctx, "Bearer "+vault.secret)
	facade.Authorize(ctx, "Bearer "+vault.secret)

	decision := facade.Authorize(ctx, "Bearer "+vault.secret)
	if decision.Code != CodeRateLimited {
		t.Fatalf("expected rate-limited decision, got %v", decision.Code)
	}
	if decision.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %d", decision.RetryAfter)
	}
}

func TestFacade_StoreFailureIsInternalError(t *testing.T) {
	vault := &stubVault{err: context.DeadlineExceeded}
	facade := newTestFacade(vault, 10, time.Minute)

	decision := facade.Authorize(context.Background(), "Bearer shc_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	if decision.Code != CodeInternalError {
		t.Fatalf("expected internal error, got %v", decision.Code)
	}
	if decision.Err() == nil {
		t.Fatalf("expected underlying error to be carried")
	}
}

func TestRequire_PermissionEnforcement(t *testing.T) {
	vault := &stubVault{
		secret:   "shc_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		identity: token.Identity{OwnerID: "owner-1", TokenID: "tok-1", Permissions: []token.Permission{token.PermissionRead}},
	}
	facade := newTestFacade(vault, 10, time.Minute)

	var sawIdentity bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawIdentity = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	// Granted permission passes through with rate headers set.
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/projects", nil)
	request.Header.Set("Authorization", "Bearer "+vault.secret)
	facade.Require(next, token.PermissionRead).ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK || !sawIdentity {
		t.Fatalf("expected admitted request with identity in context, got %d", recorder.Code)
	}
	if recorder.Header().Get("X-RateLimit-Remaining") == "" {
		t.Fatalf("expected rate headers on admitted response")
	}

	// Missing permission is forbidden, not unauthorized.
	recorder = httptest.NewRecorder()
	request = httptest.NewRequest(http.MethodPost, "/projects", nil)
	request.Header.Set("Authorization", "Bearer "+vault.secret)
	facade.Require(next, token.PermissionCreate).ServeHTTP(recorder, request)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for missing permission, got %d", recorder.Code)
	}

	// No header at all is unauthorized.
	recorder = httptest.NewRecorder()
	request = httptest.NewRequest(http.MethodGet, "/projects", nil)
	facade.Require(next, token.PermissionRead).ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing header, got %d", recorder.Code)
	}
}

func TestRequire_RateLimitedResponseHeaders(t *testing.T) {
	vault := &stubVault{
		secret:   "shc_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		identity: token.Identity{OwnerID: "owner-1", TokenID: "tok-1", Permissions: []token.Permission{token.PermissionRead}},
	}
	facade := newTestFacade(vault, 1, time.Minute)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := facade.Require(next, token.PermissionRead)

	request := httptest.NewRequest(http.MethodGet, "/projects", nil)
	request.Header.Set("Authorization", "Bearer "+vault.secret)

	handler.ServeHTTP(httptest.NewRecorder(), request)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", recorder.Code)
	}
	if recorder.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header on 429")
	}
	if recorder.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected zero remaining, got %q", recorder.Header().Get("X-RateLimit-Remaining"))
	}
}
