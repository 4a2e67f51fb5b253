package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/STRATINT/echoloop/internal/config"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const userIDContextKey contextKey = "userID"

const issuer = "echoloop"

// Config holds authentication configuration
type Config struct {
	JWTSecret     string
	PasswordHash  string
	TokenDuration time.Duration
}

// NewConfig builds the admin auth config. A plain ADMIN_PASSWORD is hashed
// once here so that only bcrypt comparisons happen at login. Without a
// secret a random one is generated, which invalidates tokens on restart.
// Without any password the admin API rejects every login.
func NewConfig(cfg config.AuthConfig) (Config, error) {
	out := Config{
		JWTSecret:     cfg.JWTSecret,
		PasswordHash:  cfg.AdminPasswordHash,
		TokenDuration: cfg.TokenDuration,
	}

	if out.JWTSecret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return Config{}, fmt.Errorf("failed to generate jwt secret: %w", err)
		}
		out.JWTSecret = hex.EncodeToString(buf)
	}

	if out.PasswordHash == "" && cfg.AdminPassword != "" {
		hash, err := HashPassword(cfg.AdminPassword)
		if err != nil {
			return Config{}, fmt.Errorf("failed to hash admin password: %w", err)
		}
		out.PasswordHash = hash
	}

	if out.TokenDuration <= 0 {
		out.TokenDuration = 24 * time.Hour
	}
	return out, nil
}

// Enabled reports whether an admin password is configured.
func (c Config) Enabled() bool {
	return c.PasswordHash != ""
}

// Authenticate checks an admin password.
func (c Config) Authenticate(password string) bool {
	if !c.Enabled() || password == "" {
		return false
	}
	return CheckPassword(password, c.PasswordHash)
}

// Claims represents the JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// GenerateToken creates a new JWT token
func GenerateToken(userID string, secret string, duration time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(duration)
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the user ID
func ValidateToken(tokenString string, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims.UserID, nil
	}

	return "", fmt.Errorf("invalid token")
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares a password with a hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Middleware rejects requests without a valid bearer token.
func Middleware(config Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || tokenString == "" {
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			userID, err := ValidateToken(tokenString, config.JWTSecret)
			if err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	return userID, ok
}
