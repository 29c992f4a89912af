package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"media_gateway/internal/models"
	"media_gateway/internal/utils"
)

const falDefaultBaseURL = "https://queue.fal.run"

var falStatuses = statusTable{
	"IN_QUEUE":    models.TaskStatusPending,
	"IN_PROGRESS": models.TaskStatusProcessing,
	"COMPLETED":   models.TaskStatusSuccess,
	"OK":          models.TaskStatusSuccess,
	"ERROR":       models.TaskStatusFailed,
	"FAILED":      models.TaskStatusFailed,
}

// FalProvider generates media through the fal.ai queue API
type FalProvider struct {
	name   string
	rest   *restClient
	logger *utils.Logger
}

// NewFalProvider creates a new Fal provider instance
func NewFalProvider(config ProviderConfig) (Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for Fal provider")
	}

	baseURL := falDefaultBaseURL
	if config.BaseURL != "" {
		baseURL = config.BaseURL
	}

	return &FalProvider{
		name:   string(models.ProviderFal),
		rest:   newRESTClient("fal", baseURL, NewSimpleAPIKeyAuth(config.APIKey, "Authorization", "Key "), config.Timeout),
		logger: utils.NewLogger("fal"),
	}, nil
}

// Name returns the provider name
func (p *FalProvider) Name() string {
	return p.name
}

// MediaTypes returns the supported media types
func (p *FalProvider) MediaTypes() []models.MediaType {
	return []models.MediaType{models.MediaTypeVideo, models.MediaTypeImage, models.MediaTypeMusic}
}

// falAppID returns the "{owner}/{app}" prefix that status and result URLs live under
func falAppID(model string) string {
	parts := strings.Split(strings.Trim(model, "/"), "/")
	if len(parts) < 2 {
		return strings.Trim(model, "/")
	}
	return parts[0] + "/" + parts[1]
}

// Generate submits a request to the queue
func (p *FalProvider) Generate(ctx context.Context, params GenerateParams) (*TaskResult, error) {
	if !supports(p.MediaTypes(), params.MediaType) {
		return nil, &UnsupportedMediaTypeError{Provider: p.name, MediaType: params.MediaType}
	}
	if err := requirePrompt(params); err != nil {
		return nil, err
	}
	if params.Model == "" {
		return nil, fmt.Errorf("fal generate: model is required")
	}

	payload := map[string]any{}
	if params.Prompt != "" {
		payload["prompt"] = params.Prompt
	}
	if images := imageInputs(params.Options); len(images) > 0 {
		payload["image_url"] = images[0]
		if len(images) > 1 {
			payload["image_urls"] = images
			payload["tail_image_url"] = images[len(images)-1]
		}
	}
	if v := videoInput(params.Options); v != "" {
		payload["video_url"] = v
	}
	if d, ok := intOption(params.Options, "duration"); ok {
		payload["duration"] = strconv.Itoa(d)
	}
	if res := stringOption(params.Options, "resolution"); res != "" {
		payload["resolution"] = res
	}
	if ar := stringOption(params.Options, "aspect_ratio"); ar != "" {
		payload["aspect_ratio"] = ar
	}

	path := "/" + strings.Trim(params.Model, "/")
	if params.CallbackURL != "" {
		path += "?fal_webhook=" + url.QueryEscape(params.CallbackURL)
	}

	var resp struct {
		Status string `json:"status"`
	}
	raw, err := p.rest.doJSON(ctx, "generate", http.MethodPost, path, payload, &resp)
	if err != nil {
		return nil, err
	}

	taskID := extractTaskID(raw)
	if taskID == "" {
		return nil, fmt.Errorf("fal generate: %w", ErrMissingTaskID)
	}

	status := resp.Status
	if status == "" {
		status = "IN_QUEUE"
	}

	p.logger.Info("Submitted request", "request_id", taskID, "model", params.Model)
	return &TaskResult{
		TaskID: taskID,
		Status: falStatuses.resolve(p.logger, status),
		Info:   models.TaskInfo{Status: status},
		Raw:    raw,
	}, nil
}

// Query polls the request status and, once completed, fetches the result
func (p *FalProvider) Query(ctx context.Context, params QueryParams) (*TaskResult, error) {
	if params.TaskID == "" {
		return nil, ErrMissingTaskID
	}
	if params.Model == "" {
		return nil, fmt.Errorf("fal query: model is required")
	}

	base := "/" + falAppID(params.Model) + "/requests/" + url.PathEscape(params.TaskID)

	var st struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	raw, err := p.rest.doJSON(ctx, "status", http.MethodGet, base+"/status", nil, &st)
	if err != nil {
		return nil, err
	}

	status := falStatuses.resolve(p.logger, st.Status)
	result := &TaskResult{TaskID: params.TaskID, Status: status, Info: models.TaskInfo{Status: st.Status}, Raw: raw}

	if status != models.TaskStatusSuccess {
		return result, nil
	}
	if st.Error != "" {
		result.Status = models.TaskStatusFailed
		result.Info.ErrorMessage = st.Error
		return result, nil
	}

	body, err := p.rest.do(ctx, "result", http.MethodGet, base, nil)
	if err != nil {
		var upstream *UpstreamError
		// A failed request answers the result endpoint with a client error
		if errors.As(err, &upstream) && !upstream.Recoverable() {
			result.Status = models.TaskStatusFailed
			result.Info.ErrorMessage = falErrorDetail(upstream.Body)
			return result, nil
		}
		return nil, err
	}

	result.Raw = rawPayload(body)
	result.Info = result.Info.WithMedia(params.MediaType, falMedia(body))
	return result, nil
}

type falCallback struct {
	RequestID    string          `json:"request_id"`
	Status       string          `json:"status"`
	Payload      json.RawMessage `json:"payload"`
	Error        string          `json:"error"`
	PayloadError string          `json:"payload_error"`
}

// ParseCallback interprets a fal_webhook delivery
func (p *FalProvider) ParseCallback(body []byte) (*TaskResult, error) {
	var cb falCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("%w from fal: %w", ErrInvalidCallback, err)
	}
	if cb.RequestID == "" {
		return nil, ErrMissingTaskID
	}

	result := &TaskResult{
		TaskID: cb.RequestID,
		Status: falStatuses.resolve(p.logger, cb.Status),
		Info:   models.TaskInfo{Status: cb.Status},
		Raw:    rawPayload(body),
	}

	switch result.Status {
	case models.TaskStatusSuccess:
		if len(cb.Payload) > 0 {
			result.Info.Videos, result.Info.Images, result.Info.Songs = splitFalMedia(cb.Payload)
		}
	case models.TaskStatusFailed:
		result.Info.ErrorMessage = firstNonEmpty(cb.Error, cb.PayloadError, falErrorDetail(string(cb.Payload)))
	}
	return result, nil
}

// Close cleans up resources
func (p *FalProvider) Close() error {
	p.rest.close()
	return nil
}

type falFile struct {
	URL string `json:"url"`
}

type falOutput struct {
	Video     *falFile  `json:"video"`
	Videos    []falFile `json:"videos"`
	Image     *falFile  `json:"image"`
	Images    []falFile `json:"images"`
	Audio     *falFile  `json:"audio"`
	AudioFile *falFile  `json:"audio_file"`
	Thumbnail *falFile  `json:"thumbnail"`
}

func (o falOutput) videos() []models.MediaItem {
	var items []models.MediaItem
	if o.Video != nil && o.Video.URL != "" {
		item := models.MediaItem{URL: o.Video.URL}
		if o.Thumbnail != nil {
			item.ThumbnailURL = o.Thumbnail.URL
		}
		items = append(items, item)
	}
	for _, v := range o.Videos {
		if v.URL != "" {
			items = append(items, models.MediaItem{URL: v.URL})
		}
	}
	return items
}

func (o falOutput) images() []models.MediaItem {
	var items []models.MediaItem
	if o.Image != nil && o.Image.URL != "" {
		items = append(items, models.MediaItem{URL: o.Image.URL})
	}
	for _, v := range o.Images {
		if v.URL != "" {
			items = append(items, models.MediaItem{URL: v.URL})
		}
	}
	return items
}

func (o falOutput) songs() []models.MediaItem {
	for _, f := range []*falFile{o.Audio, o.AudioFile} {
		if f != nil && f.URL != "" {
			return []models.MediaItem{{URL: f.URL}}
		}
	}
	return nil
}

// falMedia returns whichever kind of media the result carries, preferring video
func falMedia(body []byte) []models.MediaItem {
	var out falOutput
	if err := json.Unmarshal(body, &out); err != nil {
		return nil
	}
	if v := out.videos(); len(v) > 0 {
		return v
	}
	if i := out.images(); len(i) > 0 {
		return i
	}
	return out.songs()
}

// splitFalMedia sorts a webhook payload into videos, images and songs
func splitFalMedia(body []byte) (videos, images, songs []models.MediaItem) {
	var out falOutput
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, nil, nil
	}
	return out.videos(), out.images(), out.songs()
}

// falErrorDetail pulls a readable message out of a fal error body
func falErrorDetail(body string) string {
	var e struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		return body
	}
	if e.Error != "" {
		return e.Error
	}
	var list []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(e.Detail, &list); err == nil && len(list) > 0 {
		return list[0].Msg
	}
	if detail := errorText(e.Detail); detail != "" {
		return detail
	}
	return body
}
