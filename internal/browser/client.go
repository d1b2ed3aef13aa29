package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client communicates with the browser engine service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *Signer
	logger     *slog.Logger
}

// ClientConfig holds configuration for the browser engine client.
type ClientConfig struct {
	BaseURL string
	Secret  string
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewClient creates a new browser engine client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		signer: NewSigner(cfg.Secret),
		logger: logger,
	}
}

// RenderContext identifies the tenant and job a render belongs to.
// It travels in signed headers, never in the payload.
type RenderContext struct {
	TenantID string
	Tier     string
	JobID    string
}

// RenderResult is a finished artifact from the engine.
type RenderResult struct {
	Data        []byte
	ContentType string
	PageCount   int // PDF only; 0 for screenshots
}

// EngineError is a structured failure returned by the engine.
type EngineError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("browser engine: %s: %s", e.Code, e.Message)
}

// HealthResponse is the response from the engine health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health checks the engine health and returns version info.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}

	return &health, nil
}

// Screenshot renders a screenshot. The payload is the validated capture
// request; the engine streams the image back as the response body.
func (c *Client) Screenshot(ctx context.Context, rc RenderContext, payload any) (*RenderResult, error) {
	return c.render(ctx, rc, "/v1/screenshot", payload)
}

// PDF renders a PDF document. Page count comes back in a response header.
func (c *Client) PDF(ctx context.Context, rc RenderContext, payload any) (*RenderResult, error) {
	return c.render(ctx, rc, "/v1/pdf", payload)
}

func (c *Client) render(ctx context.Context, rc RenderContext, path string, payload any) (*RenderResult, error) {
	startTime := time.Now()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	sig := c.signer.Sign(rc.TenantID, rc.Tier, rc.JobID, body)
	httpReq.Header.Set("X-Snapdock-Signature", sig.Signature)
	httpReq.Header.Set("X-Snapdock-Timestamp", sig.Timestamp)
	httpReq.Header.Set("X-Snapdock-Tenant-ID", sig.TenantID)
	httpReq.Header.Set("X-Snapdock-Tier", sig.Tier)
	httpReq.Header.Set("X-Snapdock-Job-ID", sig.JobID)

	c.logger.Info("browser render request",
		"tenant_id", rc.TenantID,
		"job_id", rc.JobID,
		"path", path,
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("browser render failed",
			"tenant_id", rc.TenantID,
			"job_id", rc.JobID,
			"path", path,
			"error", err,
			"duration_ms", time.Since(startTime).Milliseconds(),
		)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &EngineError{Code: "TIMEOUT", Message: "render timed out", StatusCode: http.StatusGatewayTimeout}
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	durationMs := time.Since(startTime).Milliseconds()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("browser engine error",
			"tenant_id", rc.TenantID,
			"job_id", rc.JobID,
			"path", path,
			"status_code", resp.StatusCode,
			"duration_ms", durationMs,
		)
		return nil, parseEngineError(resp.StatusCode, respBody)
	}

	pageCount, _ := strconv.Atoi(resp.Header.Get("X-Snapdock-Page-Count"))

	c.logger.Info("browser render completed",
		"tenant_id", rc.TenantID,
		"job_id", rc.JobID,
		"path", path,
		"bytes", len(respBody),
		"duration_ms", durationMs,
	)

	return &RenderResult{
		Data:        respBody,
		ContentType: resp.Header.Get("Content-Type"),
		PageCount:   pageCount,
	}, nil
}

// parseEngineError maps an engine failure body onto an EngineError.
// Unstructured bodies become a generic BROWSER_ERROR.
func parseEngineError(statusCode int, body []byte) error {
	var wrapper struct {
		Error EngineError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Code != "" {
		wrapper.Error.StatusCode = statusCode
		return &wrapper.Error
	}

	var direct EngineError
	if err := json.Unmarshal(body, &direct); err == nil && direct.Code != "" {
		direct.StatusCode = statusCode
		return &direct
	}

	msg := string(body)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	code := "BROWSER_ERROR"
	if statusCode == http.StatusGatewayTimeout {
		code = "NAVIGATION_TIMEOUT"
	}
	return &EngineError{Code: code, Message: msg, StatusCode: statusCode}
}
