package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Window is the sliding window length
const Window = time.Minute

// Limiter enforces per-key request limits.
type Limiter interface {
	// AllowWithDetails records a request for key and reports whether it fits
	// in limit. remaining is -1 and resetAt zero when limit is 0 (unlimited).
	AllowWithDetails(ctx context.Context, key string, limit int) (allowed bool, remaining int, resetAt time.Time, err error)
}

// NoopLimiter allows all requests.
type NoopLimiter struct{}

func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

func (l *NoopLimiter) Allow(ctx context.Context, key string) bool {
	return true
}

func (l *NoopLimiter) AllowWithDetails(ctx context.Context, key string, limit int) (bool, int, time.Time, error) {
	return true, -1, time.Time{}, nil
}

// RateLimiter implements distributed rate limiting using Redis.
// Each key is a sorted set of request timestamps (sliding window).
type RateLimiter struct {
	client *redis.Client
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

func redisKey(key string) string {
	return fmt.Sprintf("ratelimit:%s", key)
}

// AllowWithDetails checks and records a request. Rejected requests are not counted.
func (rl *RateLimiter) AllowWithDetails(ctx context.Context, key string, limit int) (bool, int, time.Time, error) {
	if limit <= 0 {
		return true, -1, time.Time{}, nil
	}

	k := redisKey(key)
	now := time.Now()
	windowStart := now.Add(-Window)

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, k, "0", strconv.FormatInt(windowStart.UnixMilli(), 10))
	countCmd := pipe.ZCard(ctx, k)
	oldestCmd := pipe.ZRangeWithScores(ctx, k, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := int(countCmd.Val())
	resetAt := now.Add(Window)
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		resetAt = time.UnixMilli(int64(oldest[0].Score)).Add(Window)
	}

	if count >= limit {
		return false, 0, resetAt, nil
	}

	pipe = rl.client.Pipeline()
	pipe.ZAdd(ctx, k, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString(),
	})
	pipe.Expire(ctx, k, 2*Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit record failed: %w", err)
	}

	return true, limit - count - 1, resetAt, nil
}

// GetCurrentUsage returns the current request count in the window
func (rl *RateLimiter) GetCurrentUsage(ctx context.Context, key string) (int64, error) {
	k := redisKey(key)
	windowStart := time.Now().Add(-Window)

	if err := rl.client.ZRemRangeByScore(ctx, k, "0", strconv.FormatInt(windowStart.UnixMilli(), 10)).Err(); err != nil {
		return 0, fmt.Errorf("failed to clean old entries: %w", err)
	}

	count, err := rl.client.ZCard(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get current usage: %w", err)
	}
	return count, nil
}

// Reset clears the window for a key
func (rl *RateLimiter) Reset(ctx context.Context, key string) error {
	return rl.client.Del(ctx, redisKey(key)).Err()
}
