package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// AuthMiddleware guards the bridge with a static bearer token.
// An empty token disables the check.
type AuthMiddleware struct {
	token string
}

// NewAuthMiddleware creates new auth middleware
func NewAuthMiddleware(token string) *AuthMiddleware {
	return &AuthMiddleware{token: token}
}

// Authenticate verifies the token from the Authorization header.
// Supports "Bearer xxx" or a raw token, plus the X-API-Key header.
// Browsers cannot set headers on websocket upgrades, so a "token"
// query parameter is accepted as well.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.token == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := extractAPIKey(r)
		if key == "" {
			writeAuthError(w, http.StatusUnauthorized, "missing token", "provide Authorization header with Bearer token or X-API-Key header")
			return
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(m.token)) != 1 {
			LoggerFromContext(r.Context()).Warn("invalid token attempt", "key_prefix", maskKey(key), "remote_addr", r.RemoteAddr)
			writeAuthError(w, http.StatusUnauthorized, "invalid token", "the provided token is not valid")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractAPIKey extracts the token from request headers
func extractAPIKey(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
		return authHeader
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("token")
}

// maskKey returns first 8 chars of key for safe logging
func maskKey(key string) string {
	if len(key) < 8 {
		return "***"
	}
	return key[:8] + "..."
}

// AuthError represents an authentication error response
type AuthError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeAuthError(w http.ResponseWriter, status int, error, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(AuthError{
		Error:   error,
		Message: message,
	})
}
