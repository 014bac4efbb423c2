// Package toml reads and writes the pmind configuration file.
//
// The file has three tables:
//
//	[client]
//	server_url = "http://localhost:10000"
//	mode = "creative"
//	request_timeout = "5m"
//	firebase_api_key = ""
//
//	[server]
//	listen = ":10000"
//	backend = "gemini"
//	model = ""
//	gemini_api_key = ""
//	anthropic_api_key = ""
//	rate_limit = 60
//
//	[log]
//	file = "~/.pmind/logs/pmind.log"
//	telemetry_dir = ""
//
// Keys absent from the file keep the values of the base configuration.
package toml

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pmind-ai/pmind"
)

type fileConfig struct {
	Client clientTable `toml:"client"`
	Server serverTable `toml:"server"`
	Log    logTable    `toml:"log"`
}

type clientTable struct {
	ServerURL      string `toml:"server_url"`
	Mode           string `toml:"mode"`
	RequestTimeout string `toml:"request_timeout"`
	FirebaseAPIKey string `toml:"firebase_api_key"`
}

type serverTable struct {
	Listen          string `toml:"listen"`
	Backend         string `toml:"backend"`
	Model           string `toml:"model"`
	GeminiAPIKey    string `toml:"gemini_api_key"`
	AnthropicAPIKey string `toml:"anthropic_api_key"`
	RateLimit       int    `toml:"rate_limit"`
}

type logTable struct {
	File         string `toml:"file"`
	TelemetryDir string `toml:"telemetry_dir"`
}

// Load decodes the file at path over base.
func Load(path string, base pmind.Config) (pmind.Config, error) {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return base, fmt.Errorf("decode %s: %w", path, err)
	}
	return apply(md, fc, base)
}

// Decode decodes TOML from r over base.
func Decode(r io.Reader, base pmind.Config) (pmind.Config, error) {
	var fc fileConfig
	md, err := toml.NewDecoder(r).Decode(&fc)
	if err != nil {
		return base, fmt.Errorf("decode: %w", err)
	}
	return apply(md, fc, base)
}

func apply(md toml.MetaData, fc fileConfig, cfg pmind.Config) (pmind.Config, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return cfg, fmt.Errorf("unknown keys: %s: %w", strings.Join(keys, ", "), pmind.ErrValidation)
	}

	if md.IsDefined("client", "server_url") {
		cfg.ServerURL = fc.Client.ServerURL
	}
	if md.IsDefined("client", "mode") {
		m, err := pmind.ParseMode(fc.Client.Mode)
		if err != nil {
			return cfg, fmt.Errorf("client.mode: %w", err)
		}
		cfg.Mode = m
	}
	if md.IsDefined("client", "request_timeout") {
		d, err := time.ParseDuration(fc.Client.RequestTimeout)
		if err != nil || d < 0 {
			return cfg, fmt.Errorf("client.request_timeout: invalid duration %q: %w", fc.Client.RequestTimeout, pmind.ErrValidation)
		}
		cfg.RequestTimeout = d
	}
	if md.IsDefined("client", "firebase_api_key") {
		cfg.FirebaseAPIKey = fc.Client.FirebaseAPIKey
	}

	if md.IsDefined("server", "listen") {
		cfg.Listen = fc.Server.Listen
	}
	if md.IsDefined("server", "backend") {
		b, err := pmind.ParseBackend(fc.Server.Backend)
		if err != nil {
			return cfg, fmt.Errorf("server.backend: %w", err)
		}
		cfg.Backend = b
	}
	if md.IsDefined("server", "model") {
		cfg.Model = fc.Server.Model
	}
	if md.IsDefined("server", "gemini_api_key") {
		cfg.GeminiAPIKey = fc.Server.GeminiAPIKey
	}
	if md.IsDefined("server", "anthropic_api_key") {
		cfg.AnthropicAPIKey = fc.Server.AnthropicAPIKey
	}
	if md.IsDefined("server", "rate_limit") {
		if fc.Server.RateLimit < 0 {
			return cfg, fmt.Errorf("server.rate_limit: must not be negative: %w", pmind.ErrValidation)
		}
		cfg.RateLimit = fc.Server.RateLimit
	}

	if md.IsDefined("log", "file") {
		cfg.LogFile = fc.Log.File
	}
	if md.IsDefined("log", "telemetry_dir") {
		cfg.TelemetryDir = fc.Log.TelemetryDir
	}
	return cfg, nil
}

// Encode writes cfg as TOML. Secrets are written as empty strings.
func Encode(w io.Writer, cfg pmind.Config) error {
	fc := fileConfig{
		Client: clientTable{
			ServerURL:      cfg.ServerURL,
			Mode:           string(cfg.Mode),
			RequestTimeout: cfg.RequestTimeout.String(),
		},
		Server: serverTable{
			Listen:    cfg.Listen,
			Backend:   string(cfg.Backend),
			Model:     cfg.Model,
			RateLimit: cfg.RateLimit,
		},
		Log: logTable{
			File:         cfg.LogFile,
			TelemetryDir: cfg.TelemetryDir,
		},
	}
	if err := toml.NewEncoder(w).Encode(fc); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
