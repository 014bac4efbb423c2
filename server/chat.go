package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pmind-ai/pmind"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// chatRequest is the JSON body of POST /api/v1/chat. Any role other than
// "user" is treated as the model.
type chatRequest struct {
	History     []chatTurn `json:"history"`
	Temperature *float64   `json:"temperature"`
}

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (r chatRequest) toDomain() pmind.ChatRequest {
	temp := DefaultTemperature
	if r.Temperature != nil {
		temp = *r.Temperature
	}
	turns := make([]pmind.Turn, len(r.History))
	for i, t := range r.History {
		role := pmind.WireModel
		if t.Role == string(pmind.WireUser) {
			role = pmind.WireUser
		}
		turns[i] = pmind.Turn{Role: role, Content: t.Content}
	}
	return pmind.ChatRequest{History: turns, Temperature: temp}
}

func (s *Server) handleChat(c echo.Context) error {
	start := time.Now()
	ctx, span := s.tracer.Start(c.Request().Context(), "chat")
	defer span.End()

	var body chatRequest
	if err := c.Bind(&body); err != nil {
		s.record(c, span, start, "bad_request", 0, err)
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	req := body.toDomain()
	span.SetAttributes(
		attribute.Int("chat.history", len(req.History)),
		attribute.Float64("chat.temperature", req.Temperature),
	)
	if err := req.Validate(); err != nil {
		s.record(c, span, start, "bad_request", 0, err)
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	stream, err := s.provider.Stream(ctx, req)
	if err != nil {
		return s.failBeforeFirstChunk(c, span, start, err)
	}
	defer stream.Close()

	// The first chunk decides the status line.
	first, err := stream.Next()
	if err != nil && !errors.Is(err, io.EOF) {
		return s.failBeforeFirstChunk(c, span, start, err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("X-Content-Type-Options", "nosniff")
	res.WriteHeader(http.StatusOK)

	chunks := 0
	for err == nil {
		if _, werr := io.WriteString(res, first); werr != nil {
			s.record(c, span, start, "client_gone", chunks, werr)
			return nil
		}
		res.Flush()
		chunks++
		first, err = stream.Next()
	}
	if !errors.Is(err, io.EOF) {
		s.record(c, span, start, "aborted", chunks, err)
		// Abort the connection so the client sees a broken stream.
		panic(http.ErrAbortHandler)
	}
	s.record(c, span, start, "ok", chunks, nil)
	return nil
}

func (s *Server) failBeforeFirstChunk(c echo.Context, span trace.Span, start time.Time, err error) error {
	code := http.StatusBadGateway
	outcome := "upstream_error"
	msg := "upstream model error"
	switch {
	case errors.Is(err, pmind.ErrQuotaExceeded):
		code, outcome, msg = http.StatusTooManyRequests, "quota_exceeded", "model quota exceeded"
	case errors.Is(err, pmind.ErrValidation):
		code, outcome, msg = http.StatusBadRequest, "bad_request", err.Error()
	case c.Request().Context().Err() != nil:
		code, outcome, msg = http.StatusServiceUnavailable, "cancelled", "request cancelled"
	}
	s.record(c, span, start, outcome, 0, err)
	return errorJSON(c, code, msg)
}

// record finishes the span and metrics for one chat request.
func (s *Server) record(c echo.Context, span trace.Span, start time.Time, outcome string, chunks int, err error) {
	ctx := c.Request().Context()
	elapsed := time.Since(start)
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))

	span.SetAttributes(attribute.String("chat.outcome", outcome), attribute.Int("chat.chunks", chunks))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	if s.requests != nil {
		s.requests.Add(ctx, 1, attrs)
	}
	if s.chunks != nil && chunks > 0 {
		s.chunks.Add(ctx, int64(chunks))
	}
	if s.duration != nil {
		s.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}

	logAttrs := []slog.Attr{
		slog.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		slog.String("outcome", outcome),
		slog.Int("chunks", chunks),
		slog.Duration("elapsed", elapsed),
	}
	if err != nil {
		logAttrs = append(logAttrs, slog.String("error", fmt.Sprint(err)))
		s.logger.LogAttrs(ctx, slog.LevelWarn, "chat failed", logAttrs...)
		return
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "chat served", logAttrs...)
}
