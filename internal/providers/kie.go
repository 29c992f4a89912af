package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"media_gateway/internal/models"
	"media_gateway/internal/utils"
)

const kieDefaultBaseURL = "https://api.kie.ai"

var kieStatuses = statusTable{
	"waiting":    models.TaskStatusPending,
	"queuing":    models.TaskStatusPending,
	"generating": models.TaskStatusProcessing,
	"success":    models.TaskStatusSuccess,
	"fail":       models.TaskStatusFailed,
}

// KieProvider generates media through the Kie.ai jobs API
type KieProvider struct {
	name   string
	rest   *restClient
	logger *utils.Logger
}

// NewKieProvider creates a new Kie provider instance
func NewKieProvider(config ProviderConfig) (Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for Kie provider")
	}

	baseURL := kieDefaultBaseURL
	if config.BaseURL != "" {
		baseURL = config.BaseURL
	}

	return &KieProvider{
		name:   string(models.ProviderKie),
		rest:   newRESTClient("kie", baseURL, NewSimpleAPIKeyAuth(config.APIKey, "Authorization", "Bearer "), config.Timeout),
		logger: utils.NewLogger("kie"),
	}, nil
}

// Name returns the provider name
func (p *KieProvider) Name() string {
	return p.name
}

// MediaTypes returns the supported media types
func (p *KieProvider) MediaTypes() []models.MediaType {
	return []models.MediaType{models.MediaTypeVideo, models.MediaTypeImage, models.MediaTypeMusic}
}

// kieEnvelope wraps every Kie response; code 200 means success
type kieEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type kieRecord struct {
	TaskID     string `json:"taskId"`
	State      string `json:"state"`
	ResultJSON string `json:"resultJson"`
	FailCode   string `json:"failCode"`
	FailMsg    string `json:"failMsg"`
	Progress   *int   `json:"progress"`
	CreateTime int64  `json:"createTime"` // milliseconds
}

// Generate creates a job
func (p *KieProvider) Generate(ctx context.Context, params GenerateParams) (*TaskResult, error) {
	if !supports(p.MediaTypes(), params.MediaType) {
		return nil, &UnsupportedMediaTypeError{Provider: p.name, MediaType: params.MediaType}
	}
	if err := requirePrompt(params); err != nil {
		return nil, err
	}
	if params.Model == "" {
		return nil, fmt.Errorf("kie generate: model is required")
	}

	input := map[string]any{}
	if params.Prompt != "" {
		input["prompt"] = params.Prompt
	}
	if images := imageInputs(params.Options); len(images) > 0 {
		input["image_urls"] = images
	}
	if v := videoInput(params.Options); v != "" {
		input["video_url"] = v
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

	payload := map[string]any{
		"model": params.Model,
		"input": input,
	}
	if params.CallbackURL != "" {
		payload["callBackUrl"] = params.CallbackURL
	}

	var env kieEnvelope
	raw, err := p.rest.doJSON(ctx, "generate", http.MethodPost, "/api/v1/jobs/createTask", payload, &env)
	if err != nil {
		return nil, err
	}
	if env.Code != 0 && env.Code != http.StatusOK {
		return nil, &UpstreamError{Provider: p.name, Operation: "generate", StatusCode: env.Code, Body: env.Msg}
	}

	taskID := extractTaskID(raw)
	if taskID == "" {
		return nil, fmt.Errorf("kie generate: %w", ErrMissingTaskID)
	}

	p.logger.Info("Created job", "task_id", taskID, "model", params.Model)
	return &TaskResult{
		TaskID: taskID,
		Status: models.TaskStatusPending,
		Info:   models.TaskInfo{Status: "waiting"},
		Raw:    raw,
	}, nil
}

// Query fetches the job record
func (p *KieProvider) Query(ctx context.Context, params QueryParams) (*TaskResult, error) {
	if params.TaskID == "" {
		return nil, ErrMissingTaskID
	}

	var env kieEnvelope
	raw, err := p.rest.doJSON(ctx, "query", http.MethodGet, "/api/v1/jobs/recordInfo?taskId="+url.QueryEscape(params.TaskID), nil, &env)
	if err != nil {
		return nil, err
	}
	if env.Code != 0 && env.Code != http.StatusOK {
		return nil, &UpstreamError{Provider: p.name, Operation: "query", StatusCode: env.Code, Body: env.Msg}
	}

	var rec kieRecord
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		return nil, fmt.Errorf("kie query: invalid response: %w", err)
	}
	if rec.TaskID == "" {
		rec.TaskID = params.TaskID
	}
	return p.toResult(rec, params.MediaType, raw), nil
}

// ParseCallback interprets a job callback, which mirrors the recordInfo body
func (p *KieProvider) ParseCallback(body []byte) (*TaskResult, error) {
	var env kieEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w from kie: %w", ErrInvalidCallback, err)
	}

	var rec kieRecord
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &rec); err != nil {
			return nil, fmt.Errorf("%w data from kie: %w", ErrInvalidCallback, err)
		}
	}
	if rec.TaskID == "" {
		return nil, ErrMissingTaskID
	}
	if rec.State == "" {
		// Older callbacks only carry the envelope code
		if env.Code == http.StatusOK {
			rec.State = "success"
		} else {
			rec.State = "fail"
			rec.FailMsg = firstNonEmpty(rec.FailMsg, env.Msg)
		}
	}
	return p.toResult(rec, "", rawPayload(body)), nil
}

// Close cleans up resources
func (p *KieProvider) Close() error {
	p.rest.close()
	return nil
}

func (p *KieProvider) toResult(rec kieRecord, mediaType models.MediaType, raw models.JSONB) *TaskResult {
	result := &TaskResult{
		TaskID: rec.TaskID,
		Status: kieStatuses.resolve(p.logger, rec.State),
		Info:   models.TaskInfo{Status: rec.State, Progress: rec.Progress},
		Raw:    raw,
	}
	if rec.CreateTime > 0 {
		created := time.UnixMilli(rec.CreateTime).UTC()
		result.Info.CreateTime = &created
	}

	switch result.Status {
	case models.TaskStatusSuccess:
		var out struct {
			ResultURLs []string `json:"resultUrls"`
		}
		if rec.ResultJSON != "" {
			if err := json.Unmarshal([]byte(rec.ResultJSON), &out); err != nil {
				p.logger.Warn("Invalid resultJson", "task_id", rec.TaskID, "error", err)
			}
		}
		if mediaType == "" {
			mediaType = guessMediaType(out.ResultURLs)
		}
		items := make([]models.MediaItem, 0, len(out.ResultURLs))
		for _, u := range out.ResultURLs {
			items = append(items, models.MediaItem{URL: u})
		}
		result.Info = result.Info.WithMedia(mediaType, items)
	case models.TaskStatusFailed:
		result.Info.ErrorMessage = firstNonEmpty(rec.FailMsg, rec.FailCode)
	}
	return result
}
