package queue

import (
	"context"
	"errors"

	"media_gateway/internal/utils"
)

var (
	// ErrQueueClosed is returned when operating on a closed queue
	ErrQueueClosed = errors.New("queue is closed")

	// ErrItemNotFound is returned when an item is not found
	ErrItemNotFound = errors.New("item not found")

	// ErrMaxRetriesExceeded is returned when max retries are exceeded
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrDLQNotConfigured is returned by dead-letter operations on a worker without a DLQ
	ErrDLQNotConfigured = errors.New("dead letter queue not configured")
)

// permanentError marks a handler error that retrying cannot fix
type permanentError struct {
	err error
}

func (e *permanentError) Error() string     { return e.err.Error() }
func (e *permanentError) Unwrap() error     { return e.err }
func (e *permanentError) Recoverable() bool { return false }

// Permanent wraps err so the worker sends the item to the DLQ without retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// shouldRetry retries unclassified errors. Errors that know whether a retry
// can help, and cancellations, are judged by utils.IsRecoverableError.
func shouldRetry(err error) bool {
	if IsPermanent(err) {
		return false
	}
	var r interface{ Recoverable() bool }
	if errors.As(err, &r) || errors.Is(err, context.Canceled) {
		return utils.IsRecoverableError(err)
	}
	return true
}

// IsPermanent reports whether err was wrapped with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
