package server_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pmind-ai/pmind"
	pmindhttp "github.com/pmind-ai/pmind/http"
	"github.com/pmind-ai/pmind/mock"
	"github.com/pmind-ai/pmind/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func chunksProvider(got *pmind.ChatRequest, chunks ...string) *mock.Provider {
	return &mock.Provider{StreamFn: func(ctx context.Context, req pmind.ChatRequest) (pmind.Stream, error) {
		if got != nil {
			*got = req
		}
		return mock.Chunks(chunks...), nil
	}}
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChat_StreamsPlainText(t *testing.T) {
	t.Parallel()

	var got pmind.ChatRequest
	srv := server.New(chunksProvider(&got, "Hi", " there", "!"), server.WithLogger(quietLogger()))

	rec := post(t, srv, `{"history":[{"role":"user","content":"hello"}],"temperature":0.9}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Equal(t, "Hi there!", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, []pmind.Turn{{Role: pmind.WireUser, Content: "hello"}}, got.History)
	assert.InDelta(t, 0.9, got.Temperature, 1e-9)
}

func TestChat_DefaultsAndRoleMapping(t *testing.T) {
	t.Parallel()

	var got pmind.ChatRequest
	srv := server.New(chunksProvider(&got, "ok"), server.WithLogger(quietLogger()))

	rec := post(t, srv, `{"history":[{"role":"user","content":"Hi"},{"role":"assistant","content":"Hello!"},{"role":"user","content":"more"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, server.DefaultTemperature, got.Temperature, 1e-9)
	require.Len(t, got.History, 3)
	assert.Equal(t, pmind.WireModel, got.History[1].Role)
}

func TestChat_EmptyReply(t *testing.T) {
	t.Parallel()
	srv := server.New(chunksProvider(nil), server.WithLogger(quietLogger()))

	rec := post(t, srv, `{"history":[{"role":"user","content":"hello"}]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestChat_BadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"history":`},
		{"empty history", `{"history":[],"temperature":0.7}`},
		{"temperature out of range", `{"history":[{"role":"user","content":"x"}],"temperature":3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := server.New(&mock.Provider{}, server.WithLogger(quietLogger()))

			rec := post(t, srv, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, gjson.Get(rec.Body.String(), "error.message").String())
		})
	}
}

func TestChat_ProviderErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		streamFn func(ctx context.Context, req pmind.ChatRequest) (pmind.Stream, error)
		want     int
	}{
		{
			name: "quota on request",
			streamFn: func(ctx context.Context, req pmind.ChatRequest) (pmind.Stream, error) {
				return nil, pmind.ErrQuotaExceeded
			},
			want: http.StatusTooManyRequests,
		},
		{
			name: "quota on first read",
			streamFn: func(ctx context.Context, req pmind.ChatRequest) (pmind.Stream, error) {
				return mock.Failing(pmind.ErrQuotaExceeded), nil
			},
			want: http.StatusTooManyRequests,
		},
		{
			name: "upstream failure",
			streamFn: func(ctx context.Context, req pmind.ChatRequest) (pmind.Stream, error) {
				return nil, errors.New("model unavailable")
			},
			want: http.StatusBadGateway,
		},
		{
			name: "provider validation",
			streamFn: func(ctx context.Context, req pmind.ChatRequest) (pmind.Stream, error) {
				return nil, pmind.ErrValidation
			},
			want: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := server.New(&mock.Provider{StreamFn: tt.streamFn}, server.WithLogger(quietLogger()))

			rec := post(t, srv, `{"history":[{"role":"user","content":"hello"}]}`)

			assert.Equal(t, tt.want, rec.Code)
			assert.True(t, gjson.Get(rec.Body.String(), "error.message").Exists())
		})
	}
}

func TestChat_MidStreamFailureBreaksConnection(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{StreamFn: func(ctx context.Context, req pmind.ChatRequest) (pmind.Stream, error) {
		return mock.Failing(errors.New("model crashed"), "Hel", "lo"), nil
	}}
	ts := httptest.NewServer(server.New(p, server.WithLogger(quietLogger())))
	defer ts.Close()

	client := pmindhttp.New(pmindhttp.WithBaseURL(ts.URL))
	req := pmind.NewChatRequest(pmind.Conversation{{Role: pmind.RoleUser, Content: "hello"}}, pmind.ModeCreative)
	s, err := client.Stream(context.Background(), req)
	require.NoError(t, err)
	defer s.Close()

	acc := pmind.NewAccumulator(nil)
	err = acc.Drain(context.Background(), s)
	assert.Error(t, err)
	assert.Equal(t, "Hello", acc.Text())
}

func TestChat_EndToEndWithClient(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(server.New(chunksProvider(nil, "Bonjour", " ", "le chat"), server.WithLogger(quietLogger())))
	defer ts.Close()

	p := pmindhttp.New(pmindhttp.WithBaseURL(ts.URL))
	sess := pmind.NewSession(p, pmind.WithLogger(quietLogger()))
	require.NoError(t, sess.Send(context.Background(), "Translate 'the cat'"))

	last, _ := sess.Snapshot().Messages.Last()
	assert.Equal(t, "Bonjour le chat", last.Content)
	assert.NoError(t, sess.Snapshot().Err)
}

func TestChat_RateLimit(t *testing.T) {
	t.Parallel()
	srv := server.New(chunksProvider(nil, "ok"), server.WithLogger(quietLogger()), server.WithRateLimit(1))

	first := post(t, srv, `{"history":[{"role":"user","content":"hello"}]}`)
	second := post(t, srv, `{"history":[{"role":"user","content":"hello"}]}`)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "rate limit exceeded", gjson.Get(second.Body.String(), "error.message").String())
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv := server.New(&mock.Provider{}, server.WithLogger(quietLogger()))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", gjson.Get(rec.Body.String(), "status").String())
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	srv := server.New(&mock.Provider{}, server.WithLogger(quietLogger()))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNotFoundUsesErrorEnvelope(t *testing.T) {
	t.Parallel()
	srv := server.New(&mock.Provider{}, server.WithLogger(quietLogger()))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", gjson.Get(rec.Body.String(), "error.message").String())
}
