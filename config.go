package pmind

import (
	"fmt"
	"time"
)

// Backend names the model API the chat server talks to.
type Backend string

const (
	BackendGemini    Backend = "gemini"
	BackendAnthropic Backend = "anthropic"
)

// ParseBackend parses a backend name. The empty string yields BackendGemini.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case "", BackendGemini:
		return BackendGemini, nil
	case BackendAnthropic:
		return BackendAnthropic, nil
	}
	return "", fmt.Errorf("unknown backend %q: %w", s, ErrValidation)
}

// Config holds settings shared by the chat client and the chat server.
type Config struct {
	// Client settings.
	ServerURL      string
	Mode           Mode
	RequestTimeout time.Duration
	FirebaseAPIKey string

	// Server settings.
	Listen          string
	Backend         Backend
	Model           string // empty selects the backend's default model
	GeminiAPIKey    string
	AnthropicAPIKey string
	RateLimit       int // requests per minute; 0 disables limiting

	// Files.
	LogFile      string
	TelemetryDir string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		ServerURL:      "http://localhost:10000",
		Mode:           ModeCreative,
		RequestTimeout: 5 * time.Minute,
		Listen:         ":10000",
		Backend:        BackendGemini,
		RateLimit:      60,
	}
}
