package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"media_gateway/internal/models"
	"media_gateway/internal/utils"
)

const replicateDefaultBaseURL = "https://api.replicate.com"

var replicateStatuses = statusTable{
	"starting":   models.TaskStatusPending,
	"processing": models.TaskStatusProcessing,
	"succeeded":  models.TaskStatusSuccess,
	"failed":     models.TaskStatusFailed,
	"canceled":   models.TaskStatusFailed,
	"aborted":    models.TaskStatusFailed,
}

// ReplicateProvider runs predictions on Replicate
type ReplicateProvider struct {
	name   string
	rest   *restClient
	logger *utils.Logger
}

// NewReplicateProvider creates a new Replicate provider instance
func NewReplicateProvider(config ProviderConfig) (Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("api_token is required for Replicate provider")
	}

	baseURL := replicateDefaultBaseURL
	if config.BaseURL != "" {
		baseURL = config.BaseURL
	}

	return &ReplicateProvider{
		name:   string(models.ProviderReplicate),
		rest:   newRESTClient("replicate", baseURL, NewSimpleAPIKeyAuth(config.APIKey, "Authorization", "Bearer "), config.Timeout),
		logger: utils.NewLogger("replicate"),
	}, nil
}

// Name returns the provider name
func (p *ReplicateProvider) Name() string {
	return p.name
}

// MediaTypes returns the supported media types
func (p *ReplicateProvider) MediaTypes() []models.MediaType {
	return []models.MediaType{models.MediaTypeVideo, models.MediaTypeImage, models.MediaTypeMusic}
}

// replicatePrediction is the prediction object returned by the API and sent to webhooks
type replicatePrediction struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Output    json.RawMessage `json:"output"`
	Error     json.RawMessage `json:"error"`
	CreatedAt *time.Time      `json:"created_at"`
}

// Generate creates a prediction. "owner/name" models use the model endpoint,
// "owner/name:version" pins a version.
func (p *ReplicateProvider) Generate(ctx context.Context, params GenerateParams) (*TaskResult, error) {
	if !supports(p.MediaTypes(), params.MediaType) {
		return nil, &UnsupportedMediaTypeError{Provider: p.name, MediaType: params.MediaType}
	}
	if err := requirePrompt(params); err != nil {
		return nil, err
	}
	if params.Model == "" {
		return nil, fmt.Errorf("replicate generate: model is required")
	}

	input := map[string]any{}
	if params.Prompt != "" {
		input["prompt"] = params.Prompt
	}
	if images := imageInputs(params.Options); len(images) > 0 {
		input["image"] = images[0]
		if len(images) > 1 {
			input["last_frame_image"] = images[len(images)-1]
		}
	}
	if v := videoInput(params.Options); v != "" {
		input["video"] = v
	}
	if d, ok := intOption(params.Options, "duration"); ok {
		input["duration"] = d
	}
	if res := stringOption(params.Options, "resolution"); res != "" {
		input["resolution"] = res
	}
	if ar := stringOption(params.Options, "aspect_ratio"); ar != "" {
		input["aspect_ratio"] = ar
	}

	payload := map[string]any{"input": input}
	if params.CallbackURL != "" {
		payload["webhook"] = params.CallbackURL
		payload["webhook_events_filter"] = []string{"completed"}
	}

	path := "/v1/models/" + strings.Trim(params.Model, "/") + "/predictions"
	if _, version, ok := strings.Cut(params.Model, ":"); ok {
		payload["version"] = version
		path = "/v1/predictions"
	}

	var pred replicatePrediction
	raw, err := p.rest.doJSON(ctx, "generate", http.MethodPost, path, payload, &pred)
	if err != nil {
		return nil, err
	}

	taskID := extractTaskID(raw)
	if taskID == "" {
		return nil, fmt.Errorf("replicate generate: %w", ErrMissingTaskID)
	}
	pred.ID = taskID
	if pred.Status == "" {
		pred.Status = "starting"
	}

	p.logger.Info("Created prediction", "prediction_id", taskID, "model", params.Model)
	return p.toResult(pred, params.MediaType, raw), nil
}

// Query fetches a prediction
func (p *ReplicateProvider) Query(ctx context.Context, params QueryParams) (*TaskResult, error) {
	if params.TaskID == "" {
		return nil, ErrMissingTaskID
	}

	var pred replicatePrediction
	raw, err := p.rest.doJSON(ctx, "query", http.MethodGet, "/v1/predictions/"+url.PathEscape(params.TaskID), nil, &pred)
	if err != nil {
		return nil, err
	}
	if pred.ID == "" {
		pred.ID = params.TaskID
	}
	return p.toResult(pred, params.MediaType, raw), nil
}

// ParseCallback interprets a prediction webhook. The body is the prediction
// itself, which carries no media type, so outputs are classified by extension.
func (p *ReplicateProvider) ParseCallback(body []byte) (*TaskResult, error) {
	var pred replicatePrediction
	if err := json.Unmarshal(body, &pred); err != nil {
		return nil, fmt.Errorf("%w from replicate: %w", ErrInvalidCallback, err)
	}
	if pred.ID == "" {
		return nil, ErrMissingTaskID
	}
	return p.toResult(pred, "", rawPayload(body)), nil
}

// Close cleans up resources
func (p *ReplicateProvider) Close() error {
	p.rest.close()
	return nil
}

func (p *ReplicateProvider) toResult(pred replicatePrediction, mediaType models.MediaType, raw models.JSONB) *TaskResult {
	result := &TaskResult{
		TaskID: pred.ID,
		Status: replicateStatuses.resolve(p.logger, pred.Status),
		Info:   models.TaskInfo{Status: pred.Status, CreateTime: pred.CreatedAt},
		Raw:    raw,
	}

	switch result.Status {
	case models.TaskStatusSuccess:
		urls := replicateOutputURLs(pred.Output)
		if mediaType == "" {
			mediaType = guessMediaType(urls)
		}
		items := make([]models.MediaItem, 0, len(urls))
		for _, u := range urls {
			items = append(items, models.MediaItem{URL: u})
		}
		result.Info = result.Info.WithMedia(mediaType, items)
	case models.TaskStatusFailed:
		result.Info.ErrorMessage = errorText(pred.Error)
		if result.Info.ErrorMessage == "" && pred.Status == "canceled" {
			result.Info.ErrorMessage = "Prediction was canceled."
		}
	}
	return result
}

// replicateOutputURLs accepts the output shapes models return: a URL, a list
// of URLs, or an object of URLs.
func replicateOutputURLs(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		var urls []string
		for _, v := range obj {
			if s, ok := v.(string); ok && strings.HasPrefix(s, "http") {
				urls = append(urls, s)
			}
		}
		return urls
	}
	return nil
}

// guessMediaType classifies outputs by file extension, defaulting to video
func guessMediaType(urls []string) models.MediaType {
	if len(urls) == 0 {
		return models.MediaTypeVideo
	}
	u := strings.ToLower(urls[0])
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".webp", ".gif"} {
		if strings.HasSuffix(u, ext) {
			return models.MediaTypeImage
		}
	}
	for _, ext := range []string{".mp3", ".wav", ".flac", ".ogg", ".m4a"} {
		if strings.HasSuffix(u, ext) {
			return models.MediaTypeMusic
		}
	}
	return models.MediaTypeVideo
}
