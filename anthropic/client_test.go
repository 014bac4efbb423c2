package anthropic_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pmind-ai/pmind"
	"github.com/pmind-ai/pmind/anthropic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const minimalSSE = "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_1\",\"type\":\"message\",\"role\":\"assistant\",\"content\":[],\"model\":\"m\",\"stop_reason\":null,\"stop_sequence\":null,\"usage\":{\"input_tokens\":0,\"output_tokens\":0}}}\n\nevent: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":0}}\n\nevent: message_stop\ndata: {\"type\":\"message_stop\"}\n\n"

// captureServer records the request body and answers with an empty reply.
func captureServer(t *testing.T, captured *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*captured = string(body)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(minimalSSE))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_RequestFormat(t *testing.T) {
	t.Parallel()

	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)

		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "test-api-key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("Anthropic-Version"))
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages", r.URL.Path)

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(minimalSSE))
	}))
	defer srv.Close()

	client := anthropic.New("test-api-key",
		anthropic.WithBaseURL(srv.URL+"/"),
		anthropic.WithModel("claude-opus-4-20250514"),
		anthropic.WithSystemPrompt("You are helpful."),
		anthropic.WithMaxTokens(1024),
	)
	s, err := client.Stream(context.Background(), pmind.ChatRequest{
		History: []pmind.Turn{
			{Role: pmind.WireUser, Content: "Hello"},
			{Role: pmind.WireModel, Content: "Hi"},
			{Role: pmind.WireUser, Content: "Thanks"},
		},
		Temperature: 0.7,
	})
	require.NoError(t, err)
	defer s.Close()

	body := gjson.ParseBytes(captured)
	assert.Equal(t, "claude-opus-4-20250514", body.Get("model").String())
	assert.Equal(t, int64(1024), body.Get("max_tokens").Int())
	assert.True(t, body.Get("stream").Bool())
	assert.Equal(t, "You are helpful.", body.Get("system").String())
	assert.InDelta(t, 0.7, body.Get("temperature").Float(), 1e-9)

	msgs := body.Get("messages").Array()
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[0].Get("role").String())
	assert.Equal(t, "text", msgs[0].Get("content.0.type").String())
	assert.Equal(t, "Hello", msgs[0].Get("content.0.text").String())
	assert.Equal(t, "assistant", msgs[1].Get("role").String())
	assert.Equal(t, "Hi", msgs[1].Get("content.0.text").String())
	assert.Equal(t, "user", msgs[2].Get("role").String())
}

func TestClient_Defaults(t *testing.T) {
	t.Parallel()

	var captured string
	srv := captureServer(t, &captured)

	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	assert.Equal(t, anthropic.DefaultModel, client.Model())

	s, err := client.Stream(context.Background(), pmind.ChatRequest{
		History:     []pmind.Turn{{Role: pmind.WireUser, Content: "Hi"}},
		Temperature: 1.6,
	})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, anthropic.DefaultModel, gjson.Get(captured, "model").String())
	assert.Equal(t, int64(4096), gjson.Get(captured, "max_tokens").Int())
	assert.Equal(t, pmind.SystemInstruction, gjson.Get(captured, "system").String())
	assert.InDelta(t, 1.0, gjson.Get(captured, "temperature").Float(), 1e-9, "temperature is capped at 1")
}

func TestClient_EmptySystemPromptOmitted(t *testing.T) {
	t.Parallel()

	var captured string
	srv := captureServer(t, &captured)

	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL), anthropic.WithSystemPrompt(""))
	s, err := client.Stream(context.Background(), pmind.ChatRequest{
		History: []pmind.Turn{{Role: pmind.WireUser, Content: "Hi"}},
	})
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, gjson.Get(captured, "system").Exists())
}

func TestClient_HistoryNormalized(t *testing.T) {
	t.Parallel()

	var captured string
	srv := captureServer(t, &captured)

	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	s, err := client.Stream(context.Background(), pmind.ChatRequest{
		History: []pmind.Turn{
			{Role: pmind.WireModel, Content: "Welcome!"},
			{Role: pmind.WireUser, Content: "one"},
			{Role: pmind.WireModel, Content: "  "},
			{Role: pmind.WireUser, Content: "two"},
			{Role: pmind.WireModel, Content: "reply"},
		},
	})
	require.NoError(t, err)
	defer s.Close()

	msgs := gjson.Get(captured, "messages").Array()
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Get("role").String())
	assert.Equal(t, []string{"one", "two"}, []string{
		msgs[0].Get("content.0.text").String(),
		msgs[0].Get("content.1.text").String(),
	})
	assert.Equal(t, "assistant", msgs[1].Get("role").String())
	assert.Equal(t, "reply", msgs[1].Get("content.0.text").String())
}

func TestClient_ValidatesBeforeSending(t *testing.T) {
	t.Parallel()

	client := anthropic.New("test-key", anthropic.WithBaseURL("http://127.0.0.1:1"))

	_, err := client.Stream(context.Background(), pmind.ChatRequest{})
	assert.ErrorIs(t, err, pmind.ErrValidation)

	_, err = client.Stream(context.Background(), pmind.ChatRequest{
		History: []pmind.Turn{{Role: pmind.WireModel, Content: "only the model spoke"}},
	})
	assert.ErrorIs(t, err, pmind.ErrValidation)
}

func TestClient_HTTPError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens: integer above 1 expected"}}`))
	}))
	defer srv.Close()

	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	_, err := client.Stream(context.Background(), pmind.ChatRequest{
		History: []pmind.Turn{{Role: pmind.WireUser, Content: "Hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_request_error")
	assert.Contains(t, err.Error(), "max_tokens")

	var se *pmind.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.False(t, pmind.Retryable(err))
}

func TestClient_HTTPErrorRateLimited(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	_, err := client.Stream(context.Background(), pmind.ChatRequest{
		History: []pmind.Turn{{Role: pmind.WireUser, Content: "Hi"}},
	})
	assert.ErrorIs(t, err, pmind.ErrQuotaExceeded)
	assert.True(t, pmind.Retryable(err))
}

func TestClient_HTTPErrorNonJSON(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal server error"))
	}))
	defer srv.Close()

	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	_, err := client.Stream(context.Background(), pmind.ChatRequest{
		History: []pmind.Turn{{Role: pmind.WireUser, Content: "Hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "internal server error")
	assert.ErrorIs(t, err, pmind.ErrUpstream)
	assert.True(t, pmind.Retryable(err))
}
