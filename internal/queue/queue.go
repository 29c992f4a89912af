// Package queue provides typed work queues for background side effects with
// two backends:
//
//  1. Memory (channel-based): no persistence, for development and tests.
//  2. Redis (list-based): survives restarts and is shared by every replica.
//
// A Worker drains a queue in batches, retries each item with exponential
// backoff and parks items that keep failing in a dead-letter queue.
//
//	Orchestrator ──► refunds queue ──► refund worker ──► credit ledger
//	             └─► cleanup queue ──► cleanup worker ──► object storage
//	                                        │ (retry)
//	                                        ▼
//	                                       DLQ
package queue

import (
	"context"
	"time"
)

// Queue is a FIFO of items of type T
type Queue[T any] interface {
	// Enqueue adds an item to the queue
	Enqueue(ctx context.Context, item T) error

	// DequeueWithTimeout waits up to timeout for the first item, then takes
	// whatever else is immediately available up to maxItems.
	// Returns an empty slice on timeout.
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]T, error)

	// Length returns the current queue length
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue
	Close() error
}

// DeadLetterQueue holds items that exhausted their retries
type DeadLetterQueue[T any] interface {
	// Add adds a failed item with the last error
	Add(ctx context.Context, item T, err error, retries int) error

	// List returns up to maxItems items; maxItems <= 0 returns all
	List(ctx context.Context, maxItems int) ([]DeadLetterItem[T], error)

	// Remove deletes an item by id
	Remove(ctx context.Context, id string) error

	// Close shuts down the dead letter queue
	Close() error
}

// DeadLetterItem is a failed item with its failure details
type DeadLetterItem[T any] struct {
	ID        string    `json:"id"`
	Item      T         `json:"item"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	Retries   int       `json:"retries"`
}

// Config holds queue and worker configuration
type Config struct {
	// QueueName is the name/key for the queue
	QueueName string

	// BatchSize is the maximum number of items to process in a batch
	BatchSize int

	// BatchTimeout is how long to wait for the first item of a batch
	BatchTimeout time.Duration

	// MaxRetries is the maximum number of retry attempts per item
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries
	RetryBackoff time.Duration
}

// DefaultConfig returns default queue configuration
func DefaultConfig(queueName string) *Config {
	return &Config{
		QueueName:    queueName,
		BatchSize:    50,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
	}
}
