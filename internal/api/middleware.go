package api

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"newsroom/internal/auth"
	"newsroom/internal/models"
)

type contextKey string

const claimsKey contextKey = "claims"

// AuthMiddleware verifies access tokens statelessly. No store lookup happens
// per request.
type AuthMiddleware struct {
	tokens *auth.TokenIssuer
}

func NewAuthMiddleware(tokens *auth.TokenIssuer) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, reason := bearerToken(r)
		if reason != "" {
			unauthorized(w, reason)
			return
		}

		claims, err := m.tokens.ValidateAccessToken(token)
		if err != nil {
			unauthorized(w, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// RequireRole admits only callers whose token role is in roles. It
// authenticates on its own, so it can be used without RequireAuth.
func (m *AuthMiddleware) RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r)
			if claims == nil || !slices.Contains(roles, claims.Role) {
				forbidden(w, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// OptionalAuth attaches claims when a valid bearer token is present and
// otherwise continues as an anonymous caller.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, reason := bearerToken(r)
		if reason == "" {
			if claims, err := m.tokens.ValidateAccessToken(token); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), claimsKey, claims))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken returns the token or a client-facing reason it is missing.
func bearerToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "Authorization header required"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", "Invalid authorization header format"
	}

	return strings.TrimSpace(parts[1]), ""
}

func GetClaims(r *http.Request) *auth.Claims {
	if claims, ok := r.Context().Value(claimsKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}

func GetUserID(r *http.Request) string {
	if claims := GetClaims(r); claims != nil {
		return claims.UserID
	}
	return ""
}
