package middleware

import (
	"net/http"

	"media_gateway/internal/auth"
	"media_gateway/internal/utils"
)

// RequireCronSecret guards scheduler-only endpoints. The scheduler sends
// "Authorization: Bearer <secret>". An empty secret disables the check.
func RequireCronSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret != "" && !auth.SecretsEqual(bearerToken(r), secret) {
				utils.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
