package utils

import (
	"context"
	"errors"
	"net"
)

// recoverable is implemented by errors that know whether a retry can help,
// e.g. upstream HTTP errors (5xx and 429 are recoverable, 4xx are not).
type recoverable interface {
	Recoverable() bool
}

// IsRecoverableError reports whether retrying the failed operation may succeed.
// Cancellation is never recoverable; timeouts and transient network errors are.
func IsRecoverableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var r recoverable
	if errors.As(err, &r) {
		return r.Recoverable()
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
