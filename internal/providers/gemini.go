package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"media_gateway/internal/models"
	"media_gateway/internal/utils"
)

const (
	geminiDefaultModel = "veo-3.0-generate-001"
	geminiMaxImage     = 20 << 20
)

// veoClient is the part of the genai SDK used for video generation
type veoClient interface {
	GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	GetVideosOperation(ctx context.Context, name string) (*genai.GenerateVideosOperation, error)
}

type genaiVeoClient struct {
	client *genai.Client
}

func (c *genaiVeoClient) GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return c.client.Models.GenerateVideos(ctx, model, prompt, image, config)
}

func (c *genaiVeoClient) GetVideosOperation(ctx context.Context, name string) (*genai.GenerateVideosOperation, error) {
	return c.client.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: name}, nil)
}

// GeminiProvider generates video with Veo through the Gemini API.
// Veo runs as a long-running operation; the operation name is the task id.
type GeminiProvider struct {
	name   string
	apiKey string
	veo    veoClient
	http   *http.Client
	logger *utils.Logger
}

// NewGeminiProvider creates a new Gemini provider instance
func NewGeminiProvider(config ProviderConfig) (Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for Gemini provider")
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return newGeminiProvider(config.APIKey, &genaiVeoClient{client: client}, timeout), nil
}

func newGeminiProvider(apiKey string, veo veoClient, timeout time.Duration) *GeminiProvider {
	return &GeminiProvider{
		name:   string(models.ProviderGemini),
		apiKey: apiKey,
		veo:    veo,
		http:   &http.Client{Timeout: timeout},
		logger: utils.NewLogger("gemini"),
	}
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return p.name
}

// MediaTypes returns the supported media types
func (p *GeminiProvider) MediaTypes() []models.MediaType {
	return []models.MediaType{models.MediaTypeVideo}
}

// Generate starts a Veo operation
func (p *GeminiProvider) Generate(ctx context.Context, params GenerateParams) (*TaskResult, error) {
	if !supports(p.MediaTypes(), params.MediaType) {
		return nil, &UnsupportedMediaTypeError{Provider: p.name, MediaType: params.MediaType}
	}
	if err := requirePrompt(params); err != nil {
		return nil, err
	}

	model := params.Model
	if model == "" {
		model = geminiDefaultModel
	}

	config := &genai.GenerateVideosConfig{NumberOfVideos: 1}
	if ar := stringOption(params.Options, "aspect_ratio"); ar != "" {
		config.AspectRatio = ar
	}
	if res := stringOption(params.Options, "resolution"); res != "" {
		config.Resolution = res
	}
	if d, ok := intOption(params.Options, "duration"); ok {
		seconds := int32(d)
		config.DurationSeconds = &seconds
	}

	var image *genai.Image
	if images := imageInputs(params.Options); len(images) > 0 {
		img, err := p.fetchImage(ctx, images[0])
		if err != nil {
			return nil, err
		}
		image = img
	}

	op, err := p.veo.GenerateVideos(ctx, model, params.Prompt, image, config)
	if err != nil {
		return nil, geminiError("generate", err)
	}
	if op == nil || op.Name == "" {
		return nil, fmt.Errorf("gemini generate: %w", ErrMissingTaskID)
	}

	p.logger.Info("Started operation", "operation", op.Name, "model", model)
	return p.toResult(op), nil
}

// Query polls the operation
func (p *GeminiProvider) Query(ctx context.Context, params QueryParams) (*TaskResult, error) {
	if params.TaskID == "" {
		return nil, ErrMissingTaskID
	}

	op, err := p.veo.GetVideosOperation(ctx, params.TaskID)
	if err != nil {
		return nil, geminiError("query", err)
	}
	if op.Name == "" {
		op.Name = params.TaskID
	}
	return p.toResult(op), nil
}

// ParseCallback is unsupported; Veo operations are only polled
func (p *GeminiProvider) ParseCallback(body []byte) (*TaskResult, error) {
	return nil, ErrCallbacksNotSupported
}

// AuthorizeDownload adds the API key to requests for generated video URIs
func (p *GeminiProvider) AuthorizeDownload(req *http.Request) {
	req.Header.Set("x-goog-api-key", p.apiKey)
}

// Close cleans up resources
func (p *GeminiProvider) Close() error {
	p.http.CloseIdleConnections()
	return nil
}

func (p *GeminiProvider) toResult(op *genai.GenerateVideosOperation) *TaskResult {
	result := &TaskResult{TaskID: op.Name, Raw: operationPayload(op)}

	switch {
	case !op.Done:
		result.Status = models.TaskStatusProcessing
		result.Info.Status = "running"
	case op.Error != nil:
		result.Status = models.TaskStatusFailed
		result.Info.Status = "error"
		if msg, ok := op.Error["message"].(string); ok {
			result.Info.ErrorMessage = msg
		}
	default:
		result.Info.Status = "done"
		var videos []models.MediaItem
		if op.Response != nil {
			for _, gv := range op.Response.GeneratedVideos {
				if gv != nil && gv.Video != nil && gv.Video.URI != "" {
					videos = append(videos, models.MediaItem{URL: gv.Video.URI})
				}
			}
		}
		if len(videos) == 0 {
			result.Status = models.TaskStatusFailed
			result.Info.ErrorMessage = "No video was generated."
			if op.Response != nil && len(op.Response.RAIMediaFilteredReasons) > 0 {
				result.Info.ErrorMessage = strings.Join(op.Response.RAIMediaFilteredReasons, "; ")
			}
			break
		}
		result.Status = models.TaskStatusSuccess
		result.Info.Videos = videos
	}
	return result
}

// fetchImage downloads a seed image; the Gemini API takes image bytes, not URLs
func (p *GeminiProvider) fetchImage(ctx context.Context, url string) (*genai.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image url: %w", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, geminiMaxImage))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	return &genai.Image{ImageBytes: data, MIMEType: mimeType}, nil
}

// operationPayload stores the operation as returned by the SDK
func operationPayload(op *genai.GenerateVideosOperation) models.JSONB {
	b, err := json.Marshal(op)
	if err != nil {
		return models.JSONB{"name": op.Name, "done": op.Done}
	}
	return rawPayload(b)
}

// geminiError converts SDK API errors into UpstreamError
func geminiError(operation string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{Provider: "gemini", Operation: operation, StatusCode: apiErr.Code, Body: apiErr.Message}
	}
	return fmt.Errorf("gemini %s failed: %w", operation, err)
}
