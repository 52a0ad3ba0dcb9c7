package maintenance

import (
	"encoding/json"
	"net/http"
	"strings"

	"showcase-api/internal/auth"
	"showcase-api/internal/observability"
	"showcase-api/internal/ratelimit"
)

// LimiterHandler exposes the in-memory limiter state to operators:
// inspect entry counts, reset one identity, or clear everything. Guarded
// by a static bearer secret; the routes 404 when no secret is set.
type LimiterHandler struct {
	requests   *ratelimit.Limiter
	lockouts   *auth.LockoutLimiter
	logger     *observability.Logger
	cronSecret string
}

func NewLimiterHandler(
	requests *ratelimit.Limiter,
	lockouts *auth.LockoutLimiter,
	logger *observability.Logger,
	cronSecret string,
) *LimiterHandler {
	return &LimiterHandler{
		requests:   requests,
		lockouts:   lockouts,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
	}
}

type resetRequest struct {
	Identity string `json:"identity"`
}

func (h *LimiterHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"tracked_request_identities": h.requests.Tracked(),
			"tracked_login_identities":   h.lockouts.Tracked(),
		})
	case http.MethodPost:
		h.reset(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// reset drops one identity's request-window state, or all limiter state
// when no identity is given.
func (h *LimiterHandler) reset(w http.ResponseWriter, r *http.Request) {
	var body resetRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}

	body.Identity = strings.TrimSpace(body.Identity)
	if body.Identity != "" {
		h.requests.Reset(body.Identity)
		h.logger.Info("limiter_identity_reset", map[string]any{"identity": body.Identity})
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	h.requests.Clear()
	h.lockouts.Clear()
	h.logger.Info("limiter_state_cleared", nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
