package token

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"showcase-api/internal/auth"
)

var tokenNameRegex = regexp.MustCompile(`^[a-zA-Z0-9 _.-]{1,64}$`)

const maxJSONBodyBytes = 1 << 20

// Handler exposes token management to authenticated owners: issue,
// list, revoke. The plaintext secret appears in exactly one response.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type issueRequest struct {
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

type issueResponse struct {
	Token  Token  `json:"token"`
	Secret string `json:"secret"`
}

func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing session")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body issueRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	body.Name = strings.TrimSpace(body.Name)
	if !tokenNameRegex.MatchString(body.Name) {
		writeError(w, http.StatusBadRequest, "token name is invalid")
		return
	}

	permissions, err := ParsePermissions(body.Permissions)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if body.ExpiresAt != nil && !body.ExpiresAt.After(time.Now().UTC()) {
		writeError(w, http.StatusBadRequest, "expiration must be in the future")
		return
	}

	issued, plaintext, err := h.service.Issue(r.Context(), ownerID, body.Name, permissions, body.ExpiresAt)
	if err != nil {
		if errors.Is(err, ErrTokenLimitExceeded) {
			writeError(w, http.StatusConflict, "active token limit reached, revoke one first")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusCreated, issueResponse{Token: issued, Secret: plaintext})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing session")
		return
	}

	tokens, err := h.service.List(r.Context(), ownerID)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list tokens")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}

func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing session")
		return
	}

	tokenID := strings.TrimSpace(r.PathValue("id"))
	if tokenID == "" {
		writeError(w, http.StatusBadRequest, "token id is required")
		return
	}

	if err := h.service.Revoke(r.Context(), tokenID, ownerID); err != nil {
		switch {
		case errors.Is(err, ErrTokenNotFound):
			writeError(w, http.StatusNotFound, "token not found")
		case errors.Is(err, ErrNotOwner):
			writeError(w, http.StatusForbidden, "token belongs to another owner")
		case errors.Is(err, ErrAlreadyRevoked):
			writeError(w, http.StatusConflict, "token already revoked")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to revoke token")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
