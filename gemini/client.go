package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"github.com/pmind-ai/pmind"
	"google.golang.org/genai"
)

// Interface compliance check.
var _ pmind.Provider = (*Client)(nil)

// contentStreamer is the part of *genai.Models the client uses.
type contentStreamer interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Client implements [pmind.Provider] for the Google Gemini API.
type Client struct {
	models    contentStreamer
	model     string
	system    string
	topP      float32
	maxTokens int32
}

// Option configures a [Client].
type Option func(*Client)

// WithModel sets the model ID. Default is gemini-flash-latest.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithSystemInstruction overrides [pmind.SystemInstruction]. An empty string sends
// no instruction.
func WithSystemInstruction(s string) Option {
	return func(c *Client) { c.system = s }
}

// WithTopP sets nucleus sampling. Default is 0.9.
func WithTopP(p float32) Option {
	return func(c *Client) { c.topP = p }
}

// WithMaxOutputTokens caps the reply length. Default is 4096.
func WithMaxOutputTokens(n int32) Option {
	return func(c *Client) { c.maxTokens = n }
}

// New creates a new Gemini [Client] with the given API key and options.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return newClient(gc.Models, opts...), nil
}

func newClient(models contentStreamer, opts ...Option) *Client {
	c := &Client{
		models:    models,
		model:     DefaultModel,
		system:    pmind.SystemInstruction,
		topP:      defaultTopP,
		maxTokens: defaultMaxTokens,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Model returns the configured model ID.
func (c *Client) Model() string { return c.model }

// Stream sends a streaming request to the Gemini API and returns a
// [pmind.Stream] of text chunks.
func (c *Client) Stream(ctx context.Context, req pmind.ChatRequest) (pmind.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	contents := ConvertHistory(req.History)
	if len(contents) == 0 {
		return nil, fmt.Errorf("gemini: no user content in history: %w", pmind.ErrValidation)
	}
	seq := c.models.GenerateContentStream(ctx, c.model, contents, c.buildConfig(req))
	return NewStreamFromIter(ctx, seq), nil
}

func (c *Client) buildConfig(req pmind.ChatRequest) *genai.GenerateContentConfig {
	temp := float32(req.Temperature)
	topP := c.topP
	config := &genai.GenerateContentConfig{
		Temperature:     &temp,
		TopP:            &topP,
		MaxOutputTokens: c.maxTokens,
	}
	if c.system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: c.system}},
		}
	}
	return config
}

// ConvertHistory converts wire turns to genai Contents. Blank turns are
// skipped and leading model turns are dropped because Gemini requires the
// conversation to open with the user.
// Exported for testing.
func ConvertHistory(turns []pmind.Turn) []*genai.Content {
	var result []*genai.Content
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		role := "model"
		if t.Role == pmind.WireUser {
			role = "user"
		}
		if len(result) == 0 && role == "model" {
			continue
		}
		result = append(result, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: t.Content}},
		})
	}
	return result
}

// mapError classifies SDK errors. Quota exhaustion matches
// pmind.ErrQuotaExceeded; everything else matches pmind.ErrUpstream.
func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("gemini: %w", err)
	}
	if isQuotaError(err) {
		return fmt.Errorf("gemini: %w: %w", pmind.ErrQuotaExceeded, err)
	}
	return fmt.Errorf("gemini: %w: %w", pmind.ErrUpstream, err)
}

func isQuotaError(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Status == statusResourceExhausted
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code == http.StatusTooManyRequests || apiErrPtr.Status == statusResourceExhausted
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, statusResourceExhausted)
}
