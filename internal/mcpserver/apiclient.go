package mcpserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fastgeoapi/internal/gate"
	"fastgeoapi/pkg/logging"
)

// DefaultTimeout bounds a single tool call into the API.
const DefaultTimeout = 30 * time.Second

// maxResponseBytes caps what a tool hands back to the model.
const maxResponseBytes = 4 << 20

// LoopbackBaseURL is where the tool server reaches the API it runs next to.
// The internal key is only honoured on loopback peers.
func LoopbackBaseURL(port int, apiContext string) string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", port, apiContext)
}

// APIClient calls the gated API on behalf of MCP tools.
type APIClient struct {
	baseURL    string
	key        *gate.InternalKey
	httpClient *http.Client
}

// Response is an API reply, with the body possibly truncated.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
	Truncated   bool
}

// NewAPIClient creates a client for baseURL. A nil key sends no bypass
// header, so calls go through the gate like any other client.
func NewAPIClient(baseURL string, key *gate.InternalKey, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		key:        key,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the API root the client targets.
func (c *APIClient) BaseURL() string {
	return c.baseURL
}

// Get performs a GET on path (relative to the API root) with query.
func (c *APIClient) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if v := c.key.Value(); v != "" {
		req.Header.Set(gate.InternalKeyHeader, v)
	}

	logging.Debug("mcpserver", "GET %s", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	out := &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}
	if len(body) > maxResponseBytes {
		out.Body = body[:maxResponseBytes]
		out.Truncated = true
	}
	return out, nil
}
