package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/STRATINT/echoloop/internal/config"
)

func TestNewConfigHashesPlainPassword(t *testing.T) {
	cfg, err := NewConfig(config.AuthConfig{AdminPassword: "hunter2"})
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}

	if cfg.JWTSecret == "" {
		t.Error("expected a generated secret")
	}
	if cfg.TokenDuration != 24*time.Hour {
		t.Errorf("expected default token duration, got %v", cfg.TokenDuration)
	}
	if !cfg.Authenticate("hunter2") {
		t.Error("expected configured password to authenticate")
	}
	if cfg.Authenticate("wrong") {
		t.Error("expected wrong password to be rejected")
	}
}

func TestNewConfigPrefersHash(t *testing.T) {
	hash, err := HashPassword("from-hash")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}

	cfg, err := NewConfig(config.AuthConfig{JWTSecret: "s", AdminPasswordHash: hash, AdminPassword: "plain"})
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if !cfg.Authenticate("from-hash") || cfg.Authenticate("plain") {
		t.Error("expected the bcrypt hash to take precedence")
	}
}

func TestDisabledWithoutPassword(t *testing.T) {
	cfg, err := NewConfig(config.AuthConfig{JWTSecret: "s"})
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if cfg.Enabled() || cfg.Authenticate("") || cfg.Authenticate("admin") {
		t.Error("expected admin auth disabled")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	token, expiresAt, err := GenerateToken("admin", "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Errorf("expected future expiry, got %v", expiresAt)
	}

	userID, err := ValidateToken(token, "secret")
	if err != nil || userID != "admin" {
		t.Fatalf("expected admin, got %q, %v", userID, err)
	}

	if _, err := ValidateToken(token, "other-secret"); err == nil {
		t.Error("expected signature mismatch to fail")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, _, err := GenerateToken("admin", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}
	if _, err := ValidateToken(token, "secret"); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestMiddleware(t *testing.T) {
	cfg := Config{JWTSecret: "secret", TokenDuration: time.Hour}
	token, _, err := GenerateToken("admin", cfg.JWTSecret, cfg.TokenDuration)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}

	handler := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := GetUserIDFromContext(r.Context()); !ok || id != "admin" {
			t.Errorf("expected user id in context, got %q", id)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := map[string]struct {
		header string
		want   int
	}{
		"missing":   {"", http.StatusUnauthorized},
		"malformed": {"Token " + token, http.StatusUnauthorized},
		"invalid":   {"Bearer not-a-jwt", http.StatusUnauthorized},
		"valid":     {"Bearer " + token, http.StatusNoContent},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/scheduler/start", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}
