// Package systemzero is a thin Go client for the monitor HTTP API.
//
// Design goals:
//   - stdlib-only HTTP
//   - consistent headers (API key, request id)
//   - bounded request/response IO
//   - consistent {"detail": ...} error decoding
package systemzero

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	APIKeyHeader    = "X-API-Key"
	RequestIDHeader = "X-Request-ID"

	DefaultMaxRequestBytes  = int64(10 * 1024 * 1024)
	DefaultMaxResponseBytes = int64(16 * 1024 * 1024)
	DefaultTimeout          = 15 * time.Second
)

// Client is a bounded HTTP client for one monitor instance.
type Client struct {
	BaseURL string

	// APIKey is sent on every request when set. Read-only endpoints work
	// without one.
	APIKey string

	// Optional static headers applied to every request.
	StaticHeaders map[string]string

	// HTTP client; a safe default is used when nil.
	HTTP *http.Client

	MaxRequestBytes  int64
	MaxResponseBytes int64
}

// NewClient constructs a client with safe defaults.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:          strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		APIKey:           strings.TrimSpace(apiKey),
		HTTP:             &http.Client{Timeout: DefaultTimeout},
		MaxRequestBytes:  DefaultMaxRequestBytes,
		MaxResponseBytes: DefaultMaxResponseBytes,
		StaticHeaders:    map[string]string{},
	}
}

// APIError is returned for any non-2xx response.
type APIError struct {
	Status    int
	Detail    string
	RequestID string
}

func (e *APIError) Error() string {
	detail := e.Detail
	if detail == "" {
		detail = "request failed"
	}
	return fmt.Sprintf("systemzero api error: status=%d detail=%s", e.Status, detail)
}

////////////////////////////////////////////////////////////////////////////////
// Typed endpoints
////////////////////////////////////////////////////////////////////////////////

// Status mirrors GET /status.
type Status struct {
	Status      string           `json:"status"`
	Version     string           `json:"version"`
	LogEntries  int              `json:"log_entries"`
	Templates   int              `json:"templates"`
	Integrity   string           `json:"integrity"`
	Quarantined bool             `json:"quarantined"`
	Recent      []map[string]any `json:"recent_events"`
}

// CaptureResult mirrors the POST /captures response.
type CaptureResult struct {
	CaptureID     string            `json:"capture_id"`
	ScreenID      string            `json:"screen_id"`
	Matched       bool              `json:"matched"`
	Score         float64           `json:"score"`
	Signatures    map[string]string `json:"signatures"`
	DriftDetected bool              `json:"drift_detected"`
	Events        []map[string]any  `json:"events"`
}

// Token mirrors the POST /auth/token response.
type Token struct {
	APIKey string `json:"api_key"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// Status fetches the service status, including log integrity.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	err := c.DoJSON(ctx, http.MethodGet, "/status", nil, &out)
	return out, err
}

// Health returns the raw health report body.
func (c *Client) Health(ctx context.Context) ([]byte, error) {
	return c.doRaw(ctx, http.MethodGet, "/health", nil)
}

// SubmitCapture runs a raw accessibility tree through the drift pipeline.
// Requires an operator or admin key.
func (c *Client) SubmitCapture(ctx context.Context, capture map[string]any) (CaptureResult, error) {
	var out CaptureResult
	err := c.DoJSON(ctx, http.MethodPost, "/captures", capture, &out)
	return out, err
}

// Templates lists the loaded template screen ids.
func (c *Client) Templates(ctx context.Context) ([]string, error) {
	var out struct {
		Templates []string `json:"templates"`
	}
	err := c.DoJSON(ctx, http.MethodGet, "/templates", nil, &out)
	return out.Templates, err
}

// Template fetches one template by screen id.
func (c *Client) Template(ctx context.Context, screenID string) (map[string]any, error) {
	var out map[string]any
	err := c.DoJSON(ctx, http.MethodGet, "/templates/"+url.PathEscape(screenID), nil, &out)
	return out, err
}

// Logs fetches a window of log entries.
func (c *Client) Logs(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	var out struct {
		Entries []map[string]any `json:"entries"`
	}
	path := fmt.Sprintf("/logs?limit=%d&offset=%d", limit, offset)
	err := c.DoJSON(ctx, http.MethodGet, path, nil, &out)
	return out.Entries, err
}

// ExportLog downloads the log in the given format (json, csv, html).
func (c *Client) ExportLog(ctx context.Context, format string) ([]byte, error) {
	return c.doRaw(ctx, http.MethodGet, "/logs/export?format="+url.QueryEscape(format), nil)
}

// CreateToken mints a new API key. Requires an admin key.
func (c *Client) CreateToken(ctx context.Context, name, role, description string) (Token, error) {
	var out Token
	err := c.DoJSON(ctx, http.MethodPost, "/auth/token", map[string]string{
		"name":        name,
		"role":        role,
		"description": description,
	}, &out)
	return out, err
}

// ValidateKey introspects the client's own key.
func (c *Client) ValidateKey(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.DoJSON(ctx, http.MethodPost, "/auth/validate", nil, &out)
	return out, err
}

// RevokeKey revokes a plaintext key. Requires an admin key.
func (c *Client) RevokeKey(ctx context.Context, apiKey string) (bool, error) {
	var out struct {
		Revoked bool `json:"revoked"`
	}
	err := c.DoJSON(ctx, http.MethodPost, "/auth/revoke", map[string]string{"api_key": apiKey}, &out)
	return out.Revoked, err
}

////////////////////////////////////////////////////////////////////////////////
// Request execution
////////////////////////////////////////////////////////////////////////////////

// DoJSON performs a request with an optional JSON body, decoding a JSON
// response into out when out is non-nil. Non-2xx responses return *APIError.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.doRaw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("systemzero sdk: decode response: %w", err)
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path string, body any) ([]byte, error) {
	if c == nil {
		return nil, errors.New("systemzero sdk: nil client")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if c.HTTP == nil {
		c.HTTP = &http.Client{Timeout: DefaultTimeout}
	}
	maxReq := c.MaxRequestBytes
	if maxReq <= 0 {
		maxReq = DefaultMaxRequestBytes
	}
	maxResp := c.MaxResponseBytes
	if maxResp <= 0 {
		maxResp = DefaultMaxResponseBytes
	}
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return nil, errors.New("systemzero sdk: base url required")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var reqBody io.Reader
	if body != nil && method != http.MethodGet && method != http.MethodHead {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("systemzero sdk: encode request: %w", err)
		}
		if int64(len(b)) > maxReq {
			return nil, fmt.Errorf("systemzero sdk: request body too large (%d>%d)", len(b), maxReq)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, reqBody)
	if err != nil {
		return nil, err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.StaticHeaders {
		if k = strings.TrimSpace(k); k != "" {
			req.Header.Set(k, strings.TrimSpace(v))
		}
	}
	if c.APIKey != "" {
		req.Header.Set(APIKeyHeader, c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResp+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxResp {
		return nil, fmt.Errorf("systemzero sdk: response body too large (>%d)", maxResp)
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return raw, nil
	}
	return nil, parseAPIError(resp, raw)
}

func parseAPIError(resp *http.Response, raw []byte) *APIError {
	out := &APIError{
		Status:    resp.StatusCode,
		RequestID: resp.Header.Get(RequestIDHeader),
	}
	var env struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &env); err == nil {
		out.Detail = env.Detail
	}
	return out
}
