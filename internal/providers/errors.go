package providers

import (
	"errors"
	"fmt"
	"net/http"

	"media_gateway/internal/models"
)

var (
	// ErrMissingTaskID is returned when a vendor response or webhook carries no task id
	ErrMissingTaskID = errors.New("missing task id")
	// ErrPromptRequired is returned when neither a prompt nor seed media is supplied
	ErrPromptRequired = errors.New("prompt is required")
	// ErrInvalidCallback is returned when a webhook body cannot be decoded
	ErrInvalidCallback = errors.New("invalid callback")
	// ErrCallbacksNotSupported is returned by providers that never send webhooks
	ErrCallbacksNotSupported = errors.New("provider does not send callbacks")
	// ErrUnknownProvider is returned when no adapter is registered under a name
	ErrUnknownProvider = errors.New("unknown provider")
)

// UnsupportedMediaTypeError is returned when a provider cannot generate a media type
type UnsupportedMediaTypeError struct {
	Provider  string
	MediaType models.MediaType
}

func (e *UnsupportedMediaTypeError) Error() string {
	return fmt.Sprintf("%s does not support media type %q", e.Provider, e.MediaType)
}

// UpstreamError is a non-success answer from a vendor API
type UpstreamError struct {
	Provider   string
	Operation  string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("%s %s failed: status=%d, body=%s", e.Provider, e.Operation, e.StatusCode, body)
}

// Recoverable reports whether retrying the call may succeed
func (e *UpstreamError) Recoverable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
