package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pmind-ai/pmind"
)

// Interface compliance check.
var _ pmind.Provider = (*Client)(nil)

// Client implements [pmind.Provider] for the Anthropic Messages API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	model      string
	system     string
	maxTokens  int
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the API base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithModel sets the model ID.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithSystemPrompt overrides [pmind.SystemInstruction]. An empty string
// sends no system prompt.
func WithSystemPrompt(s string) Option {
	return func(c *Client) { c.system = s }
}

// WithMaxTokens caps the reply length. Default is 4096.
func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// New creates a new Anthropic [Client] with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		model:      DefaultModel,
		system:     pmind.SystemInstruction,
		maxTokens:  defaultMaxTokens,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Model returns the configured model ID.
func (c *Client) Model() string { return c.model }

// Stream sends a streaming request to the Anthropic Messages API and returns
// a [pmind.Stream] of text deltas.
func (c *Client) Stream(ctx context.Context, req pmind.ChatRequest) (pmind.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	msgs := convertTurns(req.History)
	if len(msgs) == 0 {
		return nil, fmt.Errorf("anthropic: no user content in history: %w", pmind.ErrValidation)
	}

	// The Messages API accepts temperatures up to 1.
	temp := min(req.Temperature, 1)
	body, err := json.Marshal(apiRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Stream:      true,
		System:      c.system,
		Messages:    msgs,
		Temperature: &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)
	httpReq.Header.Set("Anthropic-Version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}

	return newStream(ctx, resp.Body), nil
}

// convertTurns maps wire turns onto Messages API messages. Blank turns are
// skipped, leading assistant turns are dropped and consecutive turns with
// the same role are merged, since the API requires alternating roles that
// start with the user.
func convertTurns(turns []pmind.Turn) []apiMessage {
	var result []apiMessage
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		role := "assistant"
		if t.Role == pmind.WireUser {
			role = "user"
		}
		if len(result) == 0 && role == "assistant" {
			continue
		}
		block := apiContentBlock{Type: "text", Text: t.Content}
		if n := len(result); n > 0 && result[n-1].Role == role {
			result[n-1].Content = append(result[n-1].Content, block)
			continue
		}
		result = append(result, apiMessage{Role: role, Content: []apiContentBlock{block}})
	}
	return result
}

// parseHTTPError turns an error response into a *pmind.StatusError. The
// status code decides whether it matches pmind.ErrQuotaExceeded.
func parseHTTPError(resp *http.Response) error {
	se := &pmind.StatusError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		se.Message = fmt.Sprintf("failed to read body: %v", err)
		return fmt.Errorf("anthropic: %w", se)
	}
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error.Message == "" {
		se.Message = strings.TrimSpace(string(body))
		return fmt.Errorf("anthropic: %w", se)
	}
	se.Message = apiErr.Error.Type + ": " + apiErr.Error.Message
	return fmt.Errorf("anthropic: %w", se)
}
