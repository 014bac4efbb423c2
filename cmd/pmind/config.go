package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/pmind-ai/pmind"
	pmindtoml "github.com/pmind-ai/pmind/toml"
	"github.com/spf13/cobra"
)

// environ carries the environment. It is read once in main and passed
// down as values.
type environ struct {
	GeminiAPIKey    string
	AnthropicAPIKey string
	FirebaseAPIKey  string
	GoogleIDToken   string
	Server          string
	Config          string
	Home            string
}

// flags holds the command line values shared by the subcommands.
type flags struct {
	config    string
	logFile   string
	server    string
	mode      string
	backend   string
	model     string
	direct    bool
	timeout   time.Duration
	listen    string
	rateLimit int
}

// dataDir is where pmind keeps its files.
func (e environ) dataDir() string {
	return filepath.Join(e.Home, ".pmind")
}

// resolveConfig layers the built-in defaults, the config file, the
// environment and finally any flags set on cmd.
func resolveConfig(cmd *cobra.Command, env environ, f *flags) (pmind.Config, error) {
	cfg := pmind.DefaultConfig()
	cfg.LogFile = filepath.Join(env.dataDir(), "logs", "pmind.log")

	path, explicit := f.config, f.config != ""
	if path == "" && env.Config != "" {
		path, explicit = env.Config, true
	}
	if path == "" {
		path = filepath.Join(env.dataDir(), "config.toml")
	}
	loaded, err := pmindtoml.Load(path, cfg)
	switch {
	case err == nil:
		cfg = loaded
	case !explicit && errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, fmt.Errorf("config: %w", err)
	}

	if env.GeminiAPIKey != "" {
		cfg.GeminiAPIKey = env.GeminiAPIKey
	}
	if env.AnthropicAPIKey != "" {
		cfg.AnthropicAPIKey = env.AnthropicAPIKey
	}
	if env.FirebaseAPIKey != "" {
		cfg.FirebaseAPIKey = env.FirebaseAPIKey
	}
	if env.Server != "" {
		cfg.ServerURL = env.Server
	}

	changed := cmd.Flags().Changed
	if changed("server") {
		cfg.ServerURL = f.server
	}
	if changed("mode") {
		m, err := pmind.ParseMode(f.mode)
		if err != nil {
			return cfg, err
		}
		cfg.Mode = m
	}
	if changed("backend") {
		b, err := pmind.ParseBackend(f.backend)
		if err != nil {
			return cfg, err
		}
		cfg.Backend = b
	}
	if changed("model") {
		cfg.Model = f.model
	}
	if changed("timeout") {
		cfg.RequestTimeout = f.timeout
	}
	if changed("log-file") {
		cfg.LogFile = f.logFile
	}
	if changed("listen") {
		cfg.Listen = f.listen
	}
	if changed("rate-limit") {
		if f.rateLimit < 0 {
			return cfg, fmt.Errorf("rate limit must not be negative: %w", pmind.ErrValidation)
		}
		cfg.RateLimit = f.rateLimit
	}
	return cfg, nil
}
