package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"media_gateway/internal/models"
	"media_gateway/internal/utils"
)

const defaultTimeout = 60 * time.Second

// restClient is the JSON-over-HTTP plumbing shared by the REST vendors
type restClient struct {
	provider string
	baseURL  string
	auth     Authenticator
	client   *http.Client
}

func newRESTClient(provider, baseURL string, auth Authenticator, timeout time.Duration) *restClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &restClient{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		auth:     auth,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// do sends a JSON request and returns the raw body of a 2xx response.
// Any other status becomes an *UpstreamError.
func (c *restClient) do(ctx context.Context, operation, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	url := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		url = c.baseURL + path
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	authCtx, err := c.auth.Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if err := authCtx.ApplyToRequest(ctx, httpReq); err != nil {
		return nil, fmt.Errorf("failed to apply auth: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s request failed: %w", c.provider, operation, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{
			Provider:   c.provider,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}
	return respBody, nil
}

// doJSON is do followed by decoding into out and raw
func (c *restClient) doJSON(ctx context.Context, operation, method, path string, payload, out any) (models.JSONB, error) {
	respBody, err := c.do(ctx, operation, method, path, payload)
	if err != nil {
		return nil, err
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, fmt.Errorf("%s %s: invalid response: %w", c.provider, operation, err)
		}
	}
	return rawPayload(respBody), nil
}

func (c *restClient) close() {
	c.client.CloseIdleConnections()
}

// rawPayload decodes a vendor body for storage, keeping non-object bodies under "body"
func rawPayload(body []byte) models.JSONB {
	var raw models.JSONB
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return models.JSONB{"body": string(body)}
	}
	return raw
}

// statusTable maps a vendor's status vocabulary onto task statuses
type statusTable map[string]models.TaskStatus

// resolve maps raw, treating unknown values as pending
func (t statusTable) resolve(logger *utils.Logger, raw string) models.TaskStatus {
	if s, ok := t[raw]; ok {
		return s
	}
	logger.Warn("Unknown vendor status, treating as pending", "status", raw)
	return models.TaskStatusPending
}

// extractTaskID finds the remote id in a decoded response, trying every
// spelling vendors use.
func extractTaskID(raw map[string]any) string {
	for _, key := range []string{"id", "task_id", "request_id", "taskId"} {
		if s, ok := raw[key].(string); ok && s != "" {
			return s
		}
	}
	if data, ok := raw["data"].(map[string]any); ok {
		for _, key := range []string{"taskId", "task_id", "id"} {
			if s, ok := data[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
