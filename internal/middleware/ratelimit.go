package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"media_gateway/internal/ratelimit"
	"media_gateway/internal/utils"
)

// RateLimit caps requests per authenticated user. It must run after
// RequireUser. A limit of 0 disables it.
//
// Limiter failures let the request through; they are logged.
func RateLimit(limiter ratelimit.Limiter, scope string, limit int) func(http.Handler) http.Handler {
	logger := utils.NewLogger("ratelimit")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := GetUserID(r.Context())
			if !ok || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			allowed, remaining, resetAt, err := limiter.AllowWithDetails(r.Context(), scope+":"+userID, limit)
			if err != nil {
				logger.Warn("Rate limiter unavailable", "user_id", userID, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			if remaining >= 0 {
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			}
			if !resetAt.IsZero() {
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
			}

			if !allowed {
				retryAfter := int(math.Ceil(time.Until(resetAt).Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				utils.RespondWithError(w, http.StatusTooManyRequests, "too many requests, please slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
