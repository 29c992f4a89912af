package middleware

import (
	"context"
	"net/http"
	"strings"

	"media_gateway/internal/auth"
	"media_gateway/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

const (
	ClaimsKey ContextKey = "claims"
	UserIDKey ContextKey = "userID"
)

const (
	msgSignIn       = "no auth, please sign in"
	msgUnauthorized = "Unauthorized"
)

// bearerToken extracts the token from "Authorization: Bearer <token>"
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireUser validates the caller's bearer JWT and stores its claims in the
// request context.
func RequireUser(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, msgSignIn)
				return
			}

			claims, err := auth.ValidateJWT(token, secret)
			if err != nil {
				utils.RespondWithError(w, http.StatusUnauthorized, msgSignIn)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole must run after RequireUser
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaims(r.Context())
			if !ok {
				utils.RespondWithError(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}
			if !claims.HasRole(role) {
				utils.RespondWithError(w, http.StatusForbidden, msgUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClaims retrieves the caller's claims from the request context
func GetClaims(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*auth.Claims)
	return claims, ok
}

// GetUserID retrieves the caller's user ID from the request context
func GetUserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDKey).(string)
	return id, ok && id != ""
}

// WithUserID returns a context that carries userID, for callers outside the
// HTTP stack.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}
