package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"media_gateway/internal/models"
	"media_gateway/internal/utils"
)

const (
	evolinkDefaultBaseURL = "https://api.evolink.ai"
	evolinkDefaultModel   = "seedance-1.5-pro"
)

var evolinkStatuses = statusTable{
	"pending":    models.TaskStatusPending,
	"processing": models.TaskStatusProcessing,
	"completed":  models.TaskStatusSuccess,
	"failed":     models.TaskStatusFailed,
}

// EvolinkProvider generates video through the EvoLink API
type EvolinkProvider struct {
	name          string
	rest          *restClient
	customStorage bool
	saver         MediaSaver
	logger        *utils.Logger
}

// NewEvolinkProvider creates a new EvoLink provider instance
func NewEvolinkProvider(config ProviderConfig) (Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for EvoLink provider")
	}
	if config.CustomStorage && config.Saver == nil {
		return nil, fmt.Errorf("custom storage requires a media saver")
	}

	baseURL := evolinkDefaultBaseURL
	if config.BaseURL != "" {
		baseURL = config.BaseURL
	}

	return &EvolinkProvider{
		name:          string(models.ProviderEvolink),
		rest:          newRESTClient("evolink", baseURL, NewSimpleAPIKeyAuth(config.APIKey, "Authorization", "Bearer "), config.Timeout),
		customStorage: config.CustomStorage,
		saver:         config.Saver,
		logger:        utils.NewLogger("evolink"),
	}, nil
}

// Name returns the provider name
func (p *EvolinkProvider) Name() string {
	return p.name
}

// MediaTypes returns the supported media types
func (p *EvolinkProvider) MediaTypes() []models.MediaType {
	return []models.MediaType{models.MediaTypeVideo}
}

// Generate submits a video task. The number of image_urls selects the mode:
// none is text-to-video, one is image-to-video, two is first/last frame.
func (p *EvolinkProvider) Generate(ctx context.Context, params GenerateParams) (*TaskResult, error) {
	if !supports(p.MediaTypes(), params.MediaType) {
		return nil, &UnsupportedMediaTypeError{Provider: p.name, MediaType: params.MediaType}
	}
	if err := requirePrompt(params); err != nil {
		return nil, err
	}

	model := params.Model
	if model == "" {
		model = evolinkDefaultModel
	}

	payload := map[string]any{
		"model":  model,
		"prompt": params.Prompt,
	}
	if images := imageInputs(params.Options); len(images) > 0 {
		payload["image_urls"] = images
	}
	// EvoLink calls resolution "quality"
	if res := stringOption(params.Options, "resolution"); res != "" {
		payload["quality"] = res
	}
	if d, ok := intOption(params.Options, "duration"); ok {
		payload["duration"] = d
	}
	if ar := stringOption(params.Options, "aspect_ratio"); ar != "" {
		payload["aspect_ratio"] = ar
	}
	if params.CallbackURL != "" {
		payload["callback_url"] = params.CallbackURL
	}

	var resp struct {
		Status string `json:"status"`
	}
	raw, err := p.rest.doJSON(ctx, "generate", http.MethodPost, "/v1/videos/generations", payload, &resp)
	if err != nil {
		return nil, err
	}

	taskID := extractTaskID(raw)
	if taskID == "" {
		return nil, fmt.Errorf("evolink generate: %w", ErrMissingTaskID)
	}

	status := resp.Status
	if status == "" {
		status = "pending"
	}

	p.logger.Info("Submitted task", "task_id", taskID, "model", model)
	return &TaskResult{
		TaskID: taskID,
		Status: evolinkStatuses.resolve(p.logger, status),
		Info:   models.TaskInfo{Status: status},
		Raw:    raw,
	}, nil
}

type evolinkTask struct {
	ID       string   `json:"id"`
	Status   string   `json:"status"`
	Progress *int     `json:"progress"`
	Results  []string `json:"results"`
	Created  int64    `json:"created"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Query polls a task
func (p *EvolinkProvider) Query(ctx context.Context, params QueryParams) (*TaskResult, error) {
	if params.TaskID == "" {
		return nil, ErrMissingTaskID
	}

	var task evolinkTask
	raw, err := p.rest.doJSON(ctx, "query", http.MethodGet, "/v1/tasks/"+url.PathEscape(params.TaskID), nil, &task)
	if err != nil {
		return nil, err
	}
	if task.Status == "" {
		return nil, fmt.Errorf("evolink query: invalid response")
	}

	status := evolinkStatuses.resolve(p.logger, task.Status)
	info := models.TaskInfo{Status: task.Status, Progress: task.Progress}
	if task.Error != nil {
		info.ErrorMessage = task.Error.Message
	}
	if task.Created > 0 {
		created := time.Unix(task.Created, 0).UTC()
		info.CreateTime = &created
	}
	for i, u := range task.Results {
		info.Videos = append(info.Videos, models.MediaItem{ID: fmt.Sprintf("%s-%d", params.TaskID, i), URL: u})
	}

	if status == models.TaskStatusSuccess && p.customStorage && len(info.Videos) > 0 {
		info.Videos = p.rehost(ctx, info.Videos)
	}

	return &TaskResult{TaskID: params.TaskID, Status: status, Info: info, Raw: raw}, nil
}

// rehost copies produced videos through the configured saver. Items that
// fail keep their vendor URL and are migrated later by the caller.
func (p *EvolinkProvider) rehost(ctx context.Context, videos []models.MediaItem) []models.MediaItem {
	out := make([]models.MediaItem, len(videos))
	copy(out, videos)
	for i := range out {
		if out[i].URL == "" {
			continue
		}
		key := fmt.Sprintf("evolink/video/%s.mp4", uuid.NewString())
		saved, err := p.saver(ctx, out[i].URL, key, "video/mp4")
		if err != nil {
			p.logger.Warn("Custom storage upload failed", "key", key, "error", err)
			continue
		}
		out[i].URL = saved
		out[i].StorageKey = key
	}
	return out
}

type evolinkCallback struct {
	TaskID    string          `json:"task_id"`
	TaskIDAlt string          `json:"taskId"`
	Status    string          `json:"status"`
	VideoURL  string          `json:"video_url"`
	CoverURL  string          `json:"cover_url"`
	Error     json.RawMessage `json:"error"`
	Message   string          `json:"message"`
	Progress  *int            `json:"progress"`
	Output    struct {
		VideoURL string `json:"video_url"`
		CoverURL string `json:"cover_url"`
	} `json:"output"`
}

// ParseCallback interprets an EvoLink webhook
func (p *EvolinkProvider) ParseCallback(body []byte) (*TaskResult, error) {
	var cb evolinkCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("%w from evolink: %w", ErrInvalidCallback, err)
	}

	taskID := cb.TaskID
	if taskID == "" {
		taskID = cb.TaskIDAlt
	}
	if taskID == "" {
		return nil, ErrMissingTaskID
	}

	result := &TaskResult{TaskID: taskID, Raw: rawPayload(body)}
	result.Info.Status = cb.Status

	switch cb.Status {
	case "succeed", "success", "completed":
		result.Status = models.TaskStatusSuccess
		video := firstNonEmpty(cb.VideoURL, cb.Output.VideoURL)
		if video != "" {
			result.Info.Videos = []models.MediaItem{{
				URL:          video,
				ThumbnailURL: firstNonEmpty(cb.CoverURL, cb.Output.CoverURL),
			}}
		}
	case "failed":
		result.Status = models.TaskStatusFailed
		result.Info.ErrorMessage = firstNonEmpty(errorText(cb.Error), cb.Message)
	default:
		result.Status = models.TaskStatusProcessing
		result.Info.Progress = cb.Progress
	}
	return result, nil
}

// Close cleans up resources
func (p *EvolinkProvider) Close() error {
	p.rest.close()
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// errorText reads an error field that vendors send either as a string or as {message}
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return firstNonEmpty(obj.Message, obj.Detail)
	}
	return string(raw)
}
