// Package generation is the HTTP client for the external image generation
// service. The service is slow, rate limited and sometimes down; callers are
// expected to invoke it only through the circuit breaker.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mockforge/internal/domain"
	"mockforge/internal/infra"
)

// Options controls how the generation client is configured.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client translates render requests into calls against the generation API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *infra.Logger
}

// RenderRequest carries everything the service needs to produce one mockup.
type RenderRequest struct {
	JobID      string         `json:"job_id"`
	MockupID   string         `json:"mockup_id"`
	TemplateID string         `json:"template_id"`
	SourceKey  string         `json:"source_key"`
	Operation  domain.JobType `json:"operation"`
}

// RenderResult is the normalized success response.
type RenderResult struct {
	ResultKey   string `json:"result_key"`
	CreditsUsed int64  `json:"credits_used"`
}

type renderErrorResponse struct {
	Error struct {
		Code    string `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("generation: base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
		logger:     opts.Logger,
	}, nil
}

// Render submits one render and blocks until the service answers or ctx
// expires. The breaker supplies ctx with the per-dependency timeout.
func (c *Client) Render(ctx context.Context, req RenderRequest) (RenderResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return RenderResult{}, fmt.Errorf("generation: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/render", bytes.NewReader(body))
	if err != nil {
		return RenderResult{}, fmt.Errorf("generation: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return RenderResult{}, fmt.Errorf("generation: render call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return RenderResult{}, fmt.Errorf("generation: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr renderErrorResponse
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error.Message != "" {
			return RenderResult{}, fmt.Errorf("generation: render failed (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return RenderResult{}, fmt.Errorf("generation: render failed with status %d", resp.StatusCode)
	}

	var result RenderResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return RenderResult{}, fmt.Errorf("generation: decode response: %w", err)
	}
	if result.ResultKey == "" {
		return RenderResult{}, fmt.Errorf("generation: response missing result key")
	}
	if c.logger != nil {
		c.logger.Debug().
			Str("job_id", req.JobID).
			Str("result_key", result.ResultKey).
			Int64("credits_used", result.CreditsUsed).
			Msg("generation: render succeeded")
	}
	return result, nil
}
