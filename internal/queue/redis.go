package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"media_gateway/internal/utils"
)

// RedisQueue implements Queue using a Redis list of JSON documents
type RedisQueue[T any] struct {
	client *redis.Client
	qKey   string
	logger *utils.Logger
}

// NewRedisQueue creates a Redis-backed queue on a shared client.
// The client is owned by the caller; Close does not close it.
func NewRedisQueue[T any](client *redis.Client, name string) *RedisQueue[T] {
	return &RedisQueue[T]{
		client: client,
		qKey:   fmt.Sprintf("queue:%s", name),
		logger: utils.NewLogger("redis-queue").With("queue", name),
	}
}

// Enqueue adds an item to the queue
func (q *RedisQueue[T]) Enqueue(ctx context.Context, item T) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	if err := q.client.RPush(ctx, q.qKey, data).Err(); err != nil {
		return fmt.Errorf("failed to push to Redis: %w", err)
	}

	return nil
}

// DequeueWithTimeout retrieves items with a timeout
func (q *RedisQueue[T]) DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]T, error) {
	result, err := q.client.BLPop(ctx, timeout, q.qKey).Result()
	if errors.Is(err, redis.Nil) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from Redis: %w", err)
	}

	// result[0] is the key, result[1] is the value
	items := make([]T, 0, maxItems)
	items = q.appendDecoded(items, result[1])

	for len(items) < maxItems {
		raw, err := q.client.LPop(ctx, q.qKey).Result()
		if err != nil {
			// redis.Nil means drained; other errors end the batch early
			break
		}
		items = q.appendDecoded(items, raw)
	}

	return items, nil
}

// appendDecoded drops undecodable payloads; they can never succeed.
func (q *RedisQueue[T]) appendDecoded(items []T, raw string) []T {
	var item T
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		q.logger.Error("Dropping malformed queue item", "error", err)
		return items
	}
	return append(items, item)
}

// Length returns the current queue length
func (q *RedisQueue[T]) Length(ctx context.Context) (int, error) {
	length, err := q.client.LLen(ctx, q.qKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return int(length), nil
}

// Close is a no-op; the Redis client is shared
func (q *RedisQueue[T]) Close() error {
	return nil
}

// RedisDeadLetterQueue implements DeadLetterQueue using a Redis hash
type RedisDeadLetterQueue[T any] struct {
	client *redis.Client
	dlKey  string
}

// NewRedisDeadLetterQueue creates a Redis-backed dead letter queue on a shared client
func NewRedisDeadLetterQueue[T any](client *redis.Client, name string) *RedisDeadLetterQueue[T] {
	return &RedisDeadLetterQueue[T]{
		client: client,
		dlKey:  fmt.Sprintf("dlq:%s", name),
	}
}

// Add adds a failed item to the dead letter queue
func (q *RedisDeadLetterQueue[T]) Add(ctx context.Context, item T, err error, retries int) error {
	dlItem := newDeadLetterItem(item, err, retries)

	data, marshalErr := json.Marshal(dlItem)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal dead letter item: %w", marshalErr)
	}

	if err := q.client.HSet(ctx, q.dlKey, dlItem.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to add to dead letter queue: %w", err)
	}

	return nil
}

// List retrieves items from the dead letter queue
func (q *RedisDeadLetterQueue[T]) List(ctx context.Context, maxItems int) ([]DeadLetterItem[T], error) {
	results, err := q.client.HGetAll(ctx, q.dlKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letter items: %w", err)
	}

	items := make([]DeadLetterItem[T], 0, len(results))
	for _, data := range results {
		var dlItem DeadLetterItem[T]
		if err := json.Unmarshal([]byte(data), &dlItem); err != nil {
			continue // Skip malformed items
		}
		items = append(items, dlItem)

		if maxItems > 0 && len(items) >= maxItems {
			break
		}
	}

	return items, nil
}

// Remove removes an item from the dead letter queue
func (q *RedisDeadLetterQueue[T]) Remove(ctx context.Context, id string) error {
	n, err := q.client.HDel(ctx, q.dlKey, id).Result()
	if err != nil {
		return fmt.Errorf("failed to remove from dead letter queue: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Close is a no-op; the Redis client is shared
func (q *RedisDeadLetterQueue[T]) Close() error {
	return nil
}
