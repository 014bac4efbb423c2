package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/pmind-ai/pmind"
	"github.com/pmind-ai/pmind/anthropic"
	"github.com/pmind-ai/pmind/firebase"
	"github.com/pmind-ai/pmind/gemini"
	pmindhttp "github.com/pmind-ai/pmind/http"
)

// modelProvider is a backend that reports the model it talks to.
type modelProvider interface {
	pmind.Provider
	Model() string
}

// resolveProvider returns the chat backend: the configured model API
// in-process when direct is set, the chat server otherwise.
func resolveProvider(ctx context.Context, cfg pmind.Config, direct bool) (pmind.Provider, error) {
	if !direct {
		return pmindhttp.New(pmindhttp.WithBaseURL(cfg.ServerURL)), nil
	}
	return backendProvider(ctx, cfg)
}

// backendProvider builds the client for cfg.Backend.
func backendProvider(ctx context.Context, cfg pmind.Config) (modelProvider, error) {
	switch cfg.Backend {
	case pmind.BackendAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY not set")
		}
		return anthropic.New(cfg.AnthropicAPIKey, anthropic.WithModel(cfg.Model)), nil
	default:
		if cfg.GeminiAPIKey == "" {
			return nil, errors.New("GEMINI_API_KEY not set")
		}
		client, err := gemini.New(ctx, cfg.GeminiAPIKey, gemini.WithModel(cfg.Model))
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		return client, nil
	}
}

// resolveIdentity returns the sign-in provider, or nil when sign-in is not
// configured. Without a Google ID token sign-in falls back to an
// anonymous account.
func resolveIdentity(cfg pmind.Config, env environ) pmind.IdentityProvider {
	if cfg.FirebaseAPIKey == "" {
		return nil
	}
	token := env.GoogleIDToken
	return firebase.New(cfg.FirebaseAPIKey,
		firebase.WithAnonymous(true),
		firebase.WithTokenSource(func(context.Context) (string, error) { return token, nil }),
	)
}

// systemTheme follows the terminal background.
func systemTheme() pmind.ThemeName {
	if lipgloss.HasDarkBackground() {
		return pmind.ThemeDark
	}
	return pmind.ThemeLight
}
