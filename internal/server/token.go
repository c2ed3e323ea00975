package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmony/internal/metrics"
	"github.com/desertthunder/harmony/internal/session"
	"github.com/desertthunder/harmony/internal/shared"
	"github.com/goccy/go-json"
)

type refreshRequest struct {
	UserID string `json:"user_id"`
}

type refreshResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// TokenHandler refreshes a user's stored provider session on POST /token/refresh.
//
// Request body: {"user_id": "..."}. The stored session is updated on success.
type TokenHandler struct {
	creds  shared.SpotifyConfig
	store  session.Store
	opts   []session.RefresherOption
	logger *log.Logger
}

// NewTokenHandler creates a [TokenHandler]. opts are passed to every [session.OAuthRefresher].
func NewTokenHandler(creds shared.SpotifyConfig, store session.Store, logger *log.Logger, opts ...session.RefresherOption) *TokenHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &TokenHandler{creds: creds, store: store, opts: opts, logger: logger}
}

func (h *TokenHandler) Routes() []string {
	return []string{"/token/refresh"}
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed"})
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_input", Field: "user_id"})
		return
	}

	start := time.Now()
	tok, err := session.NewOAuthRefresher(h.creds, h.store, req.UserID, h.opts...).Refresh(r.Context())
	if err == nil || !shared.IsConfigError(err) {
		metrics.RecordTokenRefresh(err, time.Since(start))
	}

	if err != nil {
		status, body := refreshFailure(err)
		h.logger.Error("token refresh failed", "user", req.UserID, "error", err)
		writeJSON(w, status, body)
		return
	}

	h.logger.Info("token refreshed", "user", req.UserID, "expires", tok.Expiry)
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresAt:   tok.Expiry,
	})
}

func refreshFailure(err error) (int, errorResponse) {
	var ce *shared.ConfigError
	switch {
	case errors.As(err, &ce):
		return http.StatusInternalServerError, errorResponse{Error: "missing_config", Field: ce.Field}
	case errors.Is(err, shared.ErrNotAuthenticated):
		return http.StatusUnauthorized, errorResponse{Error: "not_authenticated"}
	case errors.Is(err, shared.ErrRefreshFailed):
		return http.StatusBadGateway, errorResponse{Error: "refresh_failed"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal"}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
