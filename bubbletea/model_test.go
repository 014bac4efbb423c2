package bubbletea_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/pmind-ai/pmind"
	bt "github.com/pmind-ai/pmind/bubbletea"
	"github.com/pmind-ai/pmind/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	m := bt.New(newSession(t, nil))
	t.Cleanup(m.Close)

	assert.False(t, m.Snapshot().Loading)
	assert.Equal(t, pmind.ThemeDark, m.Snapshot().Theme)
	assert.Equal(t, "Initializing...", m.View())
}

func TestModel_ZeroState(t *testing.T) {
	t.Parallel()

	t.Run("shows greeting, agents and prompts", func(t *testing.T) {
		t.Parallel()

		m := initModelWithSize(t, newSession(t, nil), 80, 40)
		content := bt.RenderContent(m)
		assert.Contains(t, content, "Hello, there")
		assert.Contains(t, content, "/agent 1")
		assert.Contains(t, content, "AI Code Auditor")
		assert.Contains(t, content, "/prompt 6")
		assert.Contains(t, content, "Create video")
	})

	t.Run("asks to sign in when required", func(t *testing.T) {
		t.Parallel()

		session := newSession(t, nil, pmind.WithIdentityProvider(&mock.IdentityProvider{}))
		m := initModel(t, session, bt.WithSignInRequired(true))
		content := bt.RenderContent(m)
		assert.Contains(t, content, "/signin")
		assert.NotContains(t, content, "/agent 1")
	})

	t.Run("greets the signed in user", func(t *testing.T) {
		t.Parallel()

		m := initModelWithSize(t, newSession(t, nil), 80, 40)
		snap := m.Snapshot()
		snap.Identity = &pmind.Identity{DisplayName: "Pavan"}
		m = updateModel(t, m, bt.SnapshotMsg{Snapshot: snap})
		assert.Contains(t, bt.RenderContent(m), "Hello, Pavan")
	})
}

func TestModel_Update(t *testing.T) {
	t.Parallel()

	t.Run("window size resize updates viewport dimensions", func(t *testing.T) {
		t.Parallel()

		m := initModel(t, newSession(t, nil))
		assert.Equal(t, 80, m.Viewport.Width)
		assert.Equal(t, 20, m.Viewport.Height) // 24 - 1 - 1 - 2

		m = updateModel(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
		assert.Equal(t, 120, m.Viewport.Width)
		assert.Equal(t, 36, m.Viewport.Height)
	})

	t.Run("snapshot renders conversation", func(t *testing.T) {
		t.Parallel()

		m := initModel(t, newSession(t, nil))
		m = updateModel(t, m, bt.SnapshotMsg{Snapshot: pmind.Snapshot{
			ID:   "c1",
			Mode: pmind.ModeCreative,
			Messages: pmind.Conversation{
				{Role: pmind.RoleUser, Content: "what is go?"},
				{Role: pmind.RoleAssistant, Content: "A **programming** language."},
			},
		}})

		view := m.Viewport.View()
		assert.Contains(t, view, "what is go?")
		assert.Contains(t, view, "programming")
		assert.NotContains(t, view, "**")
		assert.NotContains(t, view, "AI Code Auditor")
	})

	t.Run("streaming snapshots extend the reply", func(t *testing.T) {
		t.Parallel()

		m := initModel(t, newSession(t, nil))
		for _, text := range []string{"", "Hel", "Hello, wor", "Hello, world"} {
			m = updateModel(t, m, bt.SnapshotMsg{Snapshot: pmind.Snapshot{
				ID:      "c1",
				Loading: true,
				Messages: pmind.Conversation{
					{Role: pmind.RoleUser, Content: "hi"},
					{Role: pmind.RoleAssistant, Content: text},
				},
			}})
		}
		assert.Contains(t, m.Viewport.View(), "Hello, world")
		assert.Contains(t, bt.StatusLine(m), "Generating")
	})

	t.Run("new conversation id drops old blocks", func(t *testing.T) {
		t.Parallel()

		m := initModel(t, newSession(t, nil))
		m = updateModel(t, m, bt.SnapshotMsg{Snapshot: pmind.Snapshot{
			ID:       "c1",
			Messages: pmind.Conversation{{Role: pmind.RoleUser, Content: "old question"}},
		}})
		m = updateModel(t, m, bt.SnapshotMsg{Snapshot: pmind.Snapshot{ID: "c2"}})
		content := bt.RenderContent(m)
		assert.NotContains(t, content, "old question")
		assert.Contains(t, content, "Hello, there")
	})

	t.Run("failed reply shows failure message and cause", func(t *testing.T) {
		t.Parallel()

		m := initModel(t, newSession(t, nil))
		m = updateModel(t, m, bt.SnapshotMsg{Snapshot: pmind.Snapshot{
			ID: "c1",
			Messages: pmind.Conversation{
				{Role: pmind.RoleUser, Content: "hi"},
				{Role: pmind.RoleAssistant, Content: pmind.FailureMessage},
			},
			Err: pmind.ErrQuotaExceeded,
		}})
		content := bt.RenderContent(m)
		assert.Contains(t, content, "System Quota Reached")
		assert.Contains(t, content, "Error: "+pmind.ErrQuotaExceeded.Error())
	})

	t.Run("ctrl+c when idle quits", func(t *testing.T) {
		t.Parallel()

		m := initModel(t, newSession(t, nil))
		_, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
		require.NotNil(t, cmd)
		_, isQuit := cmd().(tea.QuitMsg)
		assert.True(t, isQuit)
	})

	t.Run("ctrl+c while loading cancels instead of quitting", func(t *testing.T) {
		t.Parallel()

		m := initModel(t, newSession(t, nil))
		m = updateModel(t, m, bt.SnapshotMsg{Snapshot: pmind.Snapshot{ID: "c1", Loading: true}})
		_, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
		require.NotNil(t, cmd)
		_, isQuit := cmd().(tea.QuitMsg)
		assert.False(t, isQuit)
	})

	t.Run("enter with empty input does nothing", func(t *testing.T) {
		t.Parallel()

		m := initModel(t, newSession(t, nil))
		m.Input.SetValue("   ")
		_, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		assert.Nil(t, cmd)
	})

	t.Run("typing j does not scroll", func(t *testing.T) {
		t.Parallel()

		m := initModel(t, newSession(t, nil))
		m = updateModel(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
		assert.Equal(t, "j", m.Input.Value())
	})
}

func TestModel_Send(t *testing.T) {
	t.Parallel()

	t.Run("enter sends input through the session", func(t *testing.T) {
		t.Parallel()

		session := newSession(t, []string{"Hello", "!"})
		m := initModel(t, session)
		m.Input.SetValue("hi")

		m, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		assert.Empty(t, m.Input.Value())
		require.NotNil(t, cmd)

		done, ok := cmd().(bt.SendDoneMsg)
		require.True(t, ok)
		assert.NoError(t, done.Err)

		snap := session.Snapshot()
		require.Len(t, snap.Messages, 2)
		assert.Equal(t, "hi", snap.Messages[0].Content)
		assert.Equal(t, "Hello!", snap.Messages[1].Content)
	})

	t.Run("enter while loading keeps the input", func(t *testing.T) {
		t.Parallel()

		m := initModel(t, newSession(t, nil))
		m = updateModel(t, m, bt.SnapshotMsg{Snapshot: pmind.Snapshot{ID: "c1", Loading: true}})
		m.Input.SetValue("next question")
		m, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		assert.Nil(t, cmd)
		assert.Equal(t, "next question", m.Input.Value())
	})

	t.Run("signed out send restores input with a notice", func(t *testing.T) {
		t.Parallel()

		m := initModel(t, newSession(t, nil))
		m = updateModel(t, m, bt.SendDoneMsg{Text: "hello", Err: pmind.ErrSignedOut})
		assert.Equal(t, "hello", m.Input.Value())
		assert.Contains(t, m.Notice(), "/signin")
	})

	t.Run("busy send restores input silently", func(t *testing.T) {
		t.Parallel()

		m := initModel(t, newSession(t, nil))
		m = updateModel(t, m, bt.SendDoneMsg{Text: "hello", Err: pmind.ErrBusy})
		assert.Equal(t, "hello", m.Input.Value())
		assert.Empty(t, m.Notice())
	})

	t.Run("prompt command sends the canned text", func(t *testing.T) {
		t.Parallel()

		var got pmind.ChatRequest
		session := pmind.NewSession(&mock.Provider{
			StreamFn: func(_ context.Context, req pmind.ChatRequest) (pmind.Stream, error) {
				got = req
				return mock.Chunks("ok"), nil
			},
		})
		t.Cleanup(func() { _ = session.Close() })

		m := initModel(t, session)
		m.Input.SetValue("/prompt 2")
		_, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		require.NotNil(t, cmd)
		cmd()

		require.Len(t, got.History, 1)
		assert.Equal(t, pmind.QuickPrompts()[1].Text, got.History[0].Content)
	})
}

func TestModel_Commands(t *testing.T) {
	t.Parallel()

	t.Run("unknown command sets an error notice", func(t *testing.T) {
		t.Parallel()

		m := initModel(t, newSession(t, nil))
		m.Input.SetValue("/bogus")
		m, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		assert.Nil(t, cmd)
		assert.Contains(t, m.Notice(), "unknown command")
		assert.Empty(t, m.Input.Value())
	})

	t.Run("mode command switches mode", func(t *testing.T) {
		t.Parallel()

		session := newSession(t, nil)
		m := initModel(t, session)
		m.Input.SetValue("/mode precise")
		_, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		require.NotNil(t, cmd)
		cmd()
		assert.Equal(t, pmind.ModePrecise, session.Snapshot().Mode)
	})

	t.Run("ctrl+o toggles mode", func(t *testing.T) {
		t.Parallel()

		session := newSession(t, nil)
		m := initModel(t, session)
		_, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
		require.NotNil(t, cmd)
		cmd()
		assert.Equal(t, pmind.ModePrecise, session.Snapshot().Mode)
	})

	t.Run("ctrl+t toggles theme and restyles", func(t *testing.T) {
		t.Parallel()

		session := newSession(t, nil)
		m := initModel(t, session)
		_, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
		require.NotNil(t, cmd)
		assert.Nil(t, cmd())

		snap := session.Snapshot()
		assert.Equal(t, pmind.ThemeLight, snap.Theme)
		m = updateModel(t, m, bt.SnapshotMsg{Snapshot: snap})
		assert.Equal(t, pmind.ThemeLight, m.Snapshot().Theme)
		assert.Contains(t, bt.StatusLine(m), "light")
	})

	t.Run("theme save failure becomes a notice", func(t *testing.T) {
		t.Parallel()

		session := newSession(t, nil, pmind.WithThemeStore(&mock.ThemeStore{
			SaveThemeFn: func(pmind.ThemeName) error { return errors.New("disk full") },
		}))
		m := initModel(t, session)
		m.Input.SetValue("/theme light")
		_, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		require.NotNil(t, cmd)
		notice, ok := cmd().(bt.NoticeMsg)
		require.True(t, ok)
		assert.True(t, notice.Err)
		assert.Contains(t, notice.Text, "disk full")
	})

	t.Run("ctrl+n starts a new chat", func(t *testing.T) {
		t.Parallel()

		session := newSession(t, []string{"reply"})
		require.NoError(t, session.Send(context.Background(), "hi"))
		before := session.Snapshot().ID

		m := initModel(t, session)
		_, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
		require.NotNil(t, cmd)
		cmd()

		snap := session.Snapshot()
		assert.Empty(t, snap.Messages)
		assert.NotEqual(t, before, snap.ID)
	})

	t.Run("stats command reports the summary", func(t *testing.T) {
		t.Parallel()

		m := initModel(t, newSession(t, nil))
		m.Input.SetValue("/stats")
		_, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		require.NotNil(t, cmd)
		m = updateModel(t, m, cmd())
		assert.Equal(t, "Mode: creative | 0 exchanges | 0 messages", m.Notice())
	})

	t.Run("help lists commands until escape", func(t *testing.T) {
		t.Parallel()

		m := initModel(t, newSession(t, nil))
		m.Input.SetValue("/help")
		m = updateModel(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		assert.Contains(t, bt.RenderContent(m), "/theme [light|dark]")

		m = updateModel(t, m, tea.KeyMsg{Type: tea.KeyEsc})
		assert.NotContains(t, bt.RenderContent(m), "/theme [light|dark]")
	})

	t.Run("quit command quits", func(t *testing.T) {
		t.Parallel()

		m := initModel(t, newSession(t, nil))
		m.Input.SetValue("/quit")
		_, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		require.NotNil(t, cmd)
		_, isQuit := cmd().(tea.QuitMsg)
		assert.True(t, isQuit)
	})

	t.Run("sign in failure surfaces a notice", func(t *testing.T) {
		t.Parallel()

		session := newSession(t, nil, pmind.WithIdentityProvider(&mock.IdentityProvider{
			SignInFn: func(context.Context) (pmind.Identity, error) {
				return pmind.Identity{}, errors.New("popup closed")
			},
		}))
		m := initModel(t, session)
		m.Input.SetValue("/signin")
		m, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		assert.Equal(t, "Signing in...", m.Notice())
		require.NotNil(t, cmd)

		m = updateModel(t, m, cmd())
		assert.Contains(t, m.Notice(), "Sign-in failed")
		assert.Contains(t, m.Notice(), "popup closed")
	})
}

func TestModel_Copy(t *testing.T) {
	t.Parallel()

	t.Run("copies the last reply", func(t *testing.T) {
		t.Parallel()

		var copied string
		m := initModel(t, newSession(t, nil), bt.WithClipboard(func(s string) error {
			copied = s
			return nil
		}))
		m = updateModel(t, m, bt.SnapshotMsg{Snapshot: pmind.Snapshot{
			ID: "c1",
			Messages: pmind.Conversation{
				{Role: pmind.RoleUser, Content: "q1"},
				{Role: pmind.RoleAssistant, Content: "first"},
				{Role: pmind.RoleUser, Content: "q2"},
				{Role: pmind.RoleAssistant, Content: "second"},
			},
		}})

		_, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
		require.NotNil(t, cmd)
		m = updateModel(t, m, cmd())
		assert.Equal(t, "second", copied)
		assert.Equal(t, "Copied last reply", m.Notice())
	})

	t.Run("nothing to copy", func(t *testing.T) {
		t.Parallel()

		m := initModel(t, newSession(t, nil), bt.WithClipboard(func(string) error {
			t.Fatal("clipboard should not be written")
			return nil
		}))
		m, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
		assert.Nil(t, cmd)
		assert.Equal(t, "Nothing to copy yet", m.Notice())
	})

	t.Run("clipboard failure", func(t *testing.T) {
		t.Parallel()

		m := initModel(t, newSession(t, nil), bt.WithClipboard(func(string) error {
			return errors.New("no clipboard")
		}))
		m = updateModel(t, m, bt.SnapshotMsg{Snapshot: pmind.Snapshot{
			ID:       "c1",
			Messages: pmind.Conversation{{Role: pmind.RoleAssistant, Content: "text"}},
		}})
		m.Input.SetValue("/copy")
		_, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		require.NotNil(t, cmd)
		notice, ok := cmd().(bt.NoticeMsg)
		require.True(t, ok)
		assert.True(t, notice.Err)
	})
}

func TestModel_StatusLine(t *testing.T) {
	t.Parallel()

	t.Run("shows mode and theme", func(t *testing.T) {
		t.Parallel()

		m := initModel(t, newSession(t, nil))
		line := bt.StatusLine(m)
		assert.Contains(t, line, "creative · dark")
		assert.Contains(t, line, "Enter to send")
	})

	t.Run("fits narrow terminals", func(t *testing.T) {
		t.Parallel()

		m := initModelWithSize(t, newSession(t, nil), 30, 10)
		m = updateModel(t, m, bt.NoticeMsg{Text: strings.Repeat("very long notice ", 10), Err: true})
		assert.LessOrEqual(t, lipgloss.Width(bt.StatusLine(m)), 30)
	})

	t.Run("wide characters are measured by cell width", func(t *testing.T) {
		t.Parallel()

		m := initModelWithSize(t, newSession(t, nil), 40, 10)
		m = updateModel(t, m, bt.NoticeMsg{Text: strings.Repeat("会話", 20)})
		assert.LessOrEqual(t, lipgloss.Width(bt.StatusLine(m)), 40)
	})
}

func TestModel_EndToEnd(t *testing.T) {
	t.Parallel()

	session := newSession(t, []string{"Hello", "!"})
	m := bt.New(session)
	t.Cleanup(m.Close)

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(80, 24))

	tm.Type("hi")
	tm.Send(tea.KeyMsg{Type: tea.KeyEnter})

	teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
		return bytes.Contains(out, []byte("Hello!"))
	}, teatest.WithDuration(5*time.Second))
	require.Eventually(t, func() bool {
		return session.Snapshot().Turns == 1
	}, 5*time.Second, 10*time.Millisecond)

	tm.Type("/quit")
	tm.Send(tea.KeyMsg{Type: tea.KeyEnter})

	fm := tm.FinalModel(t, teatest.WithFinalTimeout(5*time.Second))
	_, ok := fm.(bt.Model)
	require.True(t, ok)

	snap := session.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "hi", snap.Messages[0].Content)
	assert.Equal(t, "Hello!", snap.Messages[1].Content)
}
