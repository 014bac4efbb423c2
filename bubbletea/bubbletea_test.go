package bubbletea_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pmind-ai/pmind"
	bt "github.com/pmind-ai/pmind/bubbletea"
	"github.com/pmind-ai/pmind/mock"
	"github.com/stretchr/testify/require"
)

// newSession creates a session whose provider replies with chunks.
func newSession(t *testing.T, chunks []string, opts ...pmind.SessionOption) *pmind.Session {
	t.Helper()
	provider := &mock.Provider{
		StreamFn: func(_ context.Context, _ pmind.ChatRequest) (pmind.Stream, error) {
			return mock.Chunks(chunks...), nil
		},
	}
	opts = append([]pmind.SessionOption{
		pmind.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		pmind.WithSystemTheme(func() pmind.ThemeName { return pmind.ThemeDark }),
	}, opts...)
	s := pmind.NewSession(provider, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// initModel creates a model and sends a WindowSizeMsg to initialize the viewport.
func initModel(t *testing.T, session *pmind.Session, opts ...bt.Option) bt.Model {
	t.Helper()
	return initModelWithSize(t, session, 80, 24, opts...)
}

// initModelWithSize creates a model with a custom terminal size.
func initModelWithSize(t *testing.T, session *pmind.Session, width, height int, opts ...bt.Option) bt.Model {
	t.Helper()
	m := bt.New(session, opts...)
	t.Cleanup(m.Close)
	return updateModel(t, m, tea.WindowSizeMsg{Width: width, Height: height})
}

// updateModel sends a message and returns the updated Model.
func updateModel(t *testing.T, m bt.Model, msg tea.Msg) bt.Model {
	t.Helper()
	updated, _ := m.Update(msg)
	model, ok := updated.(bt.Model)
	require.True(t, ok)
	return model
}

// updateWithCmd sends a message and returns the updated Model and command.
func updateWithCmd(t *testing.T, m bt.Model, msg tea.Msg) (bt.Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	model, ok := updated.(bt.Model)
	require.True(t, ok)
	return model, cmd
}
