package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pmind-ai/pmind"
	"github.com/tidwall/gjson"
)

// Interface compliance check.
var _ pmind.Provider = (*Client)(nil)

// Client implements [pmind.Provider] for the chat server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	chunkSize  int
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the server base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithChunkSize sets the read buffer size used while streaming.
func WithChunkSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// New creates a new [Client].
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
		chunkSize:  defaultChunkSize,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Stream posts req to the chat endpoint and returns a [pmind.Stream] over
// the response body. A non-2xx status is returned as a *pmind.StatusError.
func (c *Client) Stream(ctx context.Context, req pmind.ChatRequest) (pmind.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	body, err := json.Marshal(buildRequestBody(req))
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ChatPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/plain")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, fmt.Errorf("chat: %w", parseHTTPError(resp))
	}
	return newStream(resp.Body, c.chunkSize), nil
}

func buildRequestBody(req pmind.ChatRequest) apiRequest {
	turns := make([]apiTurn, len(req.History))
	for i, t := range req.History {
		turns[i] = apiTurn{Role: string(t.Role), Content: t.Content}
	}
	return apiRequest{History: turns, Temperature: req.Temperature}
}

// parseHTTPError turns an error response into a *pmind.StatusError,
// extracting a message from the JSON shapes the server and its proxies use.
func parseHTTPError(resp *http.Response) error {
	se := &pmind.StatusError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		se.Message = fmt.Sprintf("failed to read body: %v", err)
		return se
	}
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "error", "detail", "message"} {
			if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String {
				se.Message = r.String()
				return se
			}
		}
	}
	se.Message = strings.TrimSpace(string(body))
	return se
}
