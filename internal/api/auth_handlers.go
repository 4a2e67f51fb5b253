package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/STRATINT/echoloop/internal/auth"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	config auth.Config
	logger *slog.Logger
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(config auth.Config, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		config: config,
		logger: logger,
	}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h.logger, http.MethodPost) {
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&req); err != nil {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if !h.config.Authenticate(req.Password) {
		h.logger.Warn("failed login attempt", "ip", r.RemoteAddr, "admin_enabled", h.config.Enabled())
		writeJSON(w, h.logger, http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
		return
	}

	token, expiresAt, err := auth.GenerateToken("admin", h.config.JWTSecret, h.config.TokenDuration)
	if err != nil {
		h.logger.Error("failed to generate token", "error", err)
		writeJSON(w, h.logger, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	h.logger.Info("successful login", "ip", r.RemoteAddr)
	writeJSON(w, h.logger, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expiresAt})
}

// ValidateToken handles GET /api/auth/validate. The middleware has already
// accepted the token when this runs.
func (h *AuthHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h.logger, http.MethodGet) {
		return
	}
	userID, _ := auth.GetUserIDFromContext(r.Context())
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"valid":   true,
		"user_id": userID,
	})
}
