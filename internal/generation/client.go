// ABOUTME: Shared HTTP plumbing for the external media generation services
// ABOUTME: Handles base URLs, bearer API keys, JSON decoding and upstream error mapping

package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned when a service has no base URL.
var ErrNotConfigured = errors.New("generation service not configured")

// ErrUpstream is matched by every failure reported by a generation service.
var ErrUpstream = errors.New("generation service failed")

// maxErrorBody bounds how much of an upstream error response is kept.
const maxErrorBody = 1024

// UpstreamError describes a failed call to a generation service.
type UpstreamError struct {
	Service    string
	StatusCode int // 0 when the request never got a response
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s service returned %d: %s", e.Service, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s service: %v", e.Service, e.Err)
	default:
		return e.Service + " service failed"
	}
}

// Unwrap exposes both ErrUpstream and the transport cause.
func (e *UpstreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUpstream, e.Err}
	}
	return []error{ErrUpstream}
}

// ServiceConfig locates one generation service.
type ServiceConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// serviceClient is the HTTP client shared by the concrete services.
type serviceClient struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func newServiceClient(name string, cfg ServiceConfig) *serviceClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &serviceClient{
		name:       name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *serviceClient) configured() bool {
	return c != nil && c.baseURL != ""
}

// postJSON sends payload as JSON and decodes a JSON response into out.
func (c *serviceClient) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", c.name, err)
	}
	return c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(body), out)
}

// getJSON fetches path and decodes a JSON response into out.
func (c *serviceClient) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, "", nil, out)
}

func (c *serviceClient) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	if !c.configured() {
		return ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building %s request: %w", c.name, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &UpstreamError{Service: c.name, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamError{
			Service:    c.name,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{Service: c.name, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
