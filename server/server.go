// Package server exposes a [pmind.Provider] as the streaming chat HTTP
// endpoint consumed by the chat client.
//
// POST /api/v1/chat accepts {"history":[{"role","content"}],"temperature"}
// and answers with a text/plain body that is flushed after every chunk.
// Failures before the first chunk produce a JSON error response; a failure
// after the first chunk aborts the connection so the client observes a
// broken stream rather than a truncated success.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pmind-ai/pmind"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"
)

// DefaultTemperature applies when a request omits the temperature.
const DefaultTemperature = 0.7

// Server is the chat HTTP server.
type Server struct {
	echo     *echo.Echo
	provider pmind.Provider
	logger   *slog.Logger
	tracer   trace.Tracer
	meter    metric.Meter

	rateLimit    int
	allowOrigins []string

	requests metric.Int64Counter
	chunks   metric.Int64Counter
	duration metric.Float64Histogram
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithTracer sets the tracer used for per-request spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// WithMeter sets the meter used for request metrics.
func WithMeter(m metric.Meter) Option {
	return func(s *Server) { s.meter = m }
}

// WithRateLimit limits each client address to n chat requests per minute.
// Zero disables limiting.
func WithRateLimit(n int) Option {
	return func(s *Server) { s.rateLimit = n }
}

// WithAllowOrigins restricts CORS to the given origins. Default is any
// origin.
func WithAllowOrigins(origins ...string) Option {
	return func(s *Server) { s.allowOrigins = origins }
}

// New creates a Server that answers chat requests with provider.
func New(provider pmind.Provider, opts ...Option) *Server {
	s := &Server{
		provider:     provider,
		logger:       slog.Default(),
		tracer:       tracenoop.NewTracerProvider().Tracer(""),
		meter:        metricnoop.NewMeterProvider().Meter(""),
		allowOrigins: []string{"*"},
	}
	for _, o := range opts {
		o(s)
	}
	s.initMetrics()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
				slog.String("remote_ip", v.RemoteIP),
			}
			level := slog.LevelInfo
			if v.Error != nil {
				level = slog.LevelWarn
				attrs = append(attrs, slog.Any("error", v.Error))
			}
			s.logger.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.allowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	chat := []echo.MiddlewareFunc{}
	if s.rateLimit > 0 {
		chat = append(chat, s.rateLimiter())
	}
	e.POST("/api/v1/chat", s.handleChat, chat...)
	e.GET("/healthz", s.handleHealth)

	s.echo = e
	return s
}

func (s *Server) initMetrics() {
	var err error
	if s.requests, err = s.meter.Int64Counter("chat.requests",
		metric.WithDescription("Chat requests by outcome")); err != nil {
		s.logger.Warn("failed to create counter", slog.String("name", "chat.requests"), slog.Any("error", err))
	}
	if s.chunks, err = s.meter.Int64Counter("chat.chunks",
		metric.WithDescription("Response chunks written")); err != nil {
		s.logger.Warn("failed to create counter", slog.String("name", "chat.chunks"), slog.Any("error", err))
	}
	if s.duration, err = s.meter.Float64Histogram("chat.duration",
		metric.WithDescription("Chat request duration in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		s.logger.Warn("failed to create histogram", slog.String("name", "chat.duration"), slog.Any("error", err))
	}
}

func (s *Server) rateLimiter() echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(s.rateLimit) / 60),
		Burst:     s.rateLimit,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		ErrorHandler: func(c echo.Context, err error) error {
			return errorJSON(c, http.StatusForbidden, "cannot identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			s.logger.Warn("rate limited", slog.String("client", identifier))
			return errorJSON(c, http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr and serves until Shutdown is called. It returns nil
// after a graceful shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("listening", slog.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleError renders echo errors in the same envelope as chat errors.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = errorJSON(c, code, msg)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
}

func errorJSON(c echo.Context, code int, msg string) error {
	return c.JSON(code, errorBody{Error: errorDetail{Message: msg}})
}
