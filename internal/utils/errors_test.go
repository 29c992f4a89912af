package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

type statusError struct {
	status int
}

func (e *statusError) Error() string { return fmt.Sprintf("upstream returned %d", e.status) }

func (e *statusError) Recoverable() bool { return e.status >= 500 || e.status == 429 }

func TestIsRecoverableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil",
			err:      nil,
			expected: false,
		},
		{
			name:     "plain error",
			err:      errors.New("invalid input"),
			expected: false,
		},
		{
			name:     "cancelled",
			err:      fmt.Errorf("refund: %w", context.Canceled),
			expected: false,
		},
		{
			name:     "deadline exceeded",
			err:      fmt.Errorf("refund: %w", context.DeadlineExceeded),
			expected: true,
		},
		{
			name:     "upstream 503",
			err:      fmt.Errorf("query: %w", &statusError{status: 503}),
			expected: true,
		},
		{
			name:     "upstream 429",
			err:      &statusError{status: 429},
			expected: true,
		},
		{
			name:     "upstream 400",
			err:      &statusError{status: 400},
			expected: false,
		},
		{
			name:     "network error",
			err:      &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsRecoverableError(tt.err)
			if result != tt.expected {
				t.Errorf("IsRecoverableError(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}
