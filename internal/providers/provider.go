package providers

import (
	"context"
	"net/http"
	"time"

	"media_gateway/internal/models"
)

// GenerateParams is a normalized generation request handed to a provider.
type GenerateParams struct {
	MediaType   models.MediaType
	Model       string         // provider-specific model id
	Prompt      string
	Scene       string
	Options     map[string]any // generic keys: image_input, image_urls, resolution, duration, aspect_ratio
	CallbackURL string
}

// QueryParams identifies a remote task to poll.
type QueryParams struct {
	TaskID    string
	MediaType models.MediaType
	Model     string
}

// TaskResult is a provider's normalized view of a remote task.
type TaskResult struct {
	TaskID string
	Status models.TaskStatus
	Info   models.TaskInfo
	Raw    models.JSONB // vendor payload as received
}

// Provider is implemented by each media generation vendor (EvoLink, Fal, Replicate, Kie, Gemini).
type Provider interface {
	// Name returns the provider name used in routes and task rows
	Name() string

	// MediaTypes lists the media types this provider can generate
	MediaTypes() []models.MediaType

	// Generate starts a remote task
	Generate(ctx context.Context, params GenerateParams) (*TaskResult, error)

	// Query fetches the current state of a remote task
	Query(ctx context.Context, params QueryParams) (*TaskResult, error)

	// ParseCallback interprets a webhook body sent by the vendor
	ParseCallback(body []byte) (*TaskResult, error)

	// Close performs cleanup when the provider is no longer needed
	Close() error
}

// DownloadAuthorizer is implemented by providers whose media URLs need the
// provider credential to download.
type DownloadAuthorizer interface {
	AuthorizeDownload(req *http.Request)
}

// MediaSaver re-hosts a remote file under key and returns its durable URL.
type MediaSaver func(ctx context.Context, url, key, contentType string) (string, error)

// ProviderConfig holds configuration for creating a provider instance
type ProviderConfig struct {
	Name          string
	APIKey        string
	BaseURL       string
	Timeout       time.Duration
	CustomStorage bool       // EvoLink: re-host results through Saver
	Saver         MediaSaver // used when CustomStorage is set
}

// supports reports whether mediaType is in types
func supports(types []models.MediaType, mediaType models.MediaType) bool {
	for _, t := range types {
		if t == mediaType {
			return true
		}
	}
	return false
}
