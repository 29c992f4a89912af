package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"media_gateway/internal/ratelimit"
)

type failingLimiter struct{}

func (failingLimiter) AllowWithDetails(ctx context.Context, key string, limit int) (bool, int, time.Time, error) {
	return false, 0, time.Time{}, errors.New("redis down")
}

func limitedHandler(limiter ratelimit.Limiter, limit int) http.Handler {
	return Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), RequireUser(testSecret), RateLimit(limiter, "generate", limit))
}

func TestRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	handler := limitedHandler(ratelimit.NewRateLimiter(client), 2)
	alice := mustToken(t, "alice")
	bob := mustToken(t, "bob")

	call := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/ai/generate", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := call(alice); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, w.Code)
		}
	}

	w := call(alice)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}

	if w := call(bob); w.Code != http.StatusOK {
		t.Errorf("other user: status = %d, want 200", w.Code)
	}
}

func TestRateLimit_FailsOpen(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/ai/generate", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, "alice"))
	w := httptest.NewRecorder()
	limitedHandler(failingLimiter{}, 1).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/api/ai/generate", nil)
		req.Header.Set("Authorization", "Bearer "+mustToken(t, "alice"))
		w := httptest.NewRecorder()
		limitedHandler(failingLimiter{}, 0).ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	}
}
