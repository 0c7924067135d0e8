package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPGatewayOptions configures an HTTPGateway.
type HTTPGatewayOptions struct {
	// BaseURL is the remote execution engine endpoint, e.g.
	// "https://engine.example.com/api/v1".
	BaseURL string

	// AuthToken, when set, is sent as a bearer token on every request.
	AuthToken string

	// Timeout applies per request. Defaults to 30 seconds.
	Timeout time.Duration

	// Client overrides the HTTP client. When nil one is built from
	// Timeout.
	Client *http.Client
}

// HTTPGateway implements Gateway over JSON HTTP: submissions POST to
// /runs and result polls GET /runs/{id}/results.
type HTTPGateway struct {
	baseURL   string
	authToken string
	client    *http.Client
}

// NewHTTPGateway creates a gateway talking to a remote execution engine.
func NewHTTPGateway(opts HTTPGatewayOptions) (*HTTPGateway, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("gateway base URL required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid gateway base URL: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTPGateway{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		authToken: opts.AuthToken,
		client:    client,
	}, nil
}

// Submit implements Gateway.
func (g *HTTPGateway) Submit(ctx context.Context, req SubmitRequest) (*SubmitAck, error) {
	if req.RunID == "" {
		return nil, fmt.Errorf("run id required")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submit request: %w", err)
	}
	var ack SubmitAck
	if err := g.do(ctx, http.MethodPost, g.baseURL+"/runs", payload, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// FetchResults implements Gateway.
func (g *HTTPGateway) FetchResults(ctx context.Context, runID string) (*ResultBatch, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id required")
	}
	endpoint := fmt.Sprintf("%s/runs/%s/results", g.baseURL, url.PathEscape(runID))
	var batch ResultBatch
	if err := g.do(ctx, http.MethodGet, endpoint, nil, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

func (g *HTTPGateway) do(ctx context.Context, method, endpoint string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if g.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+g.authToken)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("engine returned %s: %s", resp.Status, summarizeBody(respBody))
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// summarizeBody trims an error response body down to something loggable.
func summarizeBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "(empty body)"
	}
	return s
}
