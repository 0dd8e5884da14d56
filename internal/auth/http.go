// ABOUTME: HTTP middleware requiring a bearer JWT on API endpoints
// ABOUTME: Puts the token's user id on the request context

package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return "", "invalid authorization header format"
	}
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// Middleware rejects requests without a valid bearer token with 401.
func Middleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				writeUnauthorized(w, errMsg)
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, ErrExpiredToken) {
					msg = "token expired"
				}
				writeUnauthorized(w, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
