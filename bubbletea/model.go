package bubbletea

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/pmind-ai/pmind"
	"github.com/pmind-ai/pmind/command"
	"github.com/rivo/uniseg"
)

var _ tea.Model = Model{}

// Option configures a Model.
type Option func(*Model)

// WithClipboard replaces the system clipboard writer used by /copy.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) { m.copyFn = write }
}

// WithSignInRequired shows the sign-in prompt instead of the starter
// prompts while nobody is signed in.
func WithSignInRequired(required bool) Option {
	return func(m *Model) { m.signInRequired = required }
}

// Model is the Bubble Tea model for the pmind TUI. All state shown on
// screen comes from session snapshots; key presses only start commands
// that call into the session.
type Model struct {
	// Input is the text input component. Exported for test access.
	Input textinput.Model
	// Viewport is the scrollable output area. Exported for test access.
	Viewport viewport.Model

	spinner spinner.Model
	session *pmind.Session
	feed    *feed
	unsub   func()

	snap   pmind.Snapshot
	theme  pmind.Theme
	styles Styles

	convID string
	blocks []MessageBlock

	notice    string
	noticeErr bool
	help      bool

	copyFn         func(string) error
	signInRequired bool
	width          int
	ready          bool
}

// New creates a Model bound to session and subscribes it to the session's
// snapshots. Call Close when the model is no longer used.
func New(session *pmind.Session, opts ...Option) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask anything, or /help"
	ti.Prompt = ""
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	f := newFeed()
	snap := session.Snapshot()
	m := Model{
		Input:   ti,
		spinner: sp,
		session: session,
		feed:    f,
		snap:    snap,
		theme:   pmind.ThemeFor(snap.Theme),
		copyFn:  clipboard.WriteAll,
	}
	m.styles = NewStyles(m.theme)
	m.spinner.Style = m.styles.Accent
	for _, o := range opts {
		o(&m)
	}
	m.unsub = session.Subscribe(f.publish)
	return m
}

// Close stops the snapshot subscription.
func (m Model) Close() {
	if m.unsub != nil {
		m.unsub()
	}
}

// Snapshot returns the last session state the model has seen.
func (m Model) Snapshot() pmind.Snapshot { return m.snap }

// Notice returns the status line notice, if any.
func (m Model) Notice() string { return m.notice }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.feed.listen()}
	if m.snap.Loading {
		cmds = append(cmds, m.spinner.Tick)
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SnapshotMsg:
		m, cmd := m.applySnapshot(msg.Snapshot)
		return m, tea.Batch(cmd, m.feed.listen())

	case SendDoneMsg:
		switch {
		case msg.Err == nil, errors.Is(msg.Err, pmind.ErrEmptyInput):
		case errors.Is(msg.Err, pmind.ErrSignedOut):
			m = m.restoreInput(msg.Text)
			m = m.setNotice("Sign in with /signin to start chatting", true)
		case errors.Is(msg.Err, pmind.ErrBusy):
			m = m.restoreInput(msg.Text)
		default:
			m = m.restoreInput(msg.Text)
			m = m.setNotice(msg.Err.Error(), true)
		}
		return m, nil

	case NoticeMsg:
		return m.setNotice(msg.Text, msg.Err), nil

	case spinner.TickMsg:
		if !m.snap.Loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.Viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.Input.View())
	return b.String()
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) Model {
	inputH := 1
	statusHeight := 1
	borderHeight := 2 // newlines between sections
	vpHeight := msg.Height - inputH - statusHeight - borderHeight
	if vpHeight < 1 {
		vpHeight = 1
	}

	m.width = msg.Width
	if !m.ready {
		m.Viewport = viewport.New(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.Viewport.Width = msg.Width
		m.Viewport.Height = vpHeight
	}
	m.Input.Width = msg.Width
	m = m.syncBlocks()
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.snap.Loading {
			return m, m.cancel()
		}
		return m, tea.Quit

	case tea.KeyEsc:
		if m.snap.Loading {
			return m, m.cancel()
		}
		m.help = false
		m = m.setNotice("", false)
		m.Viewport.SetContent(m.renderContent())
		return m, nil

	case tea.KeyCtrlN:
		return m.dispatch(command.NewChat{})
	case tea.KeyCtrlT:
		return m.dispatch(command.SetTheme{})
	case tea.KeyCtrlO:
		return m.dispatch(command.SetMode{})
	case tea.KeyCtrlY:
		return m.dispatch(command.Copy{})

	case tea.KeyEnter:
		return m.submit(m.Input.Value())
	}

	// Character keys go to the input only; 'j' and 'k' are text here, not
	// scrolling.
	var cmds []tea.Cmd
	var cmd tea.Cmd
	if msg.Type != tea.KeyRunes && msg.Type != tea.KeySpace {
		m.Viewport, cmd = m.Viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) submit(input string) (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(input)
	if text == "" {
		return m, nil
	}
	cmd, err := command.Parse(text)
	if err != nil {
		m.Input.SetValue("")
		return m.setNotice(err.Error(), true), nil
	}
	if cmd != nil {
		m.Input.SetValue("")
		return m.dispatch(cmd)
	}
	if m.snap.Loading {
		return m, nil
	}
	m.Input.SetValue("")
	return m.send(text)
}

func (m Model) send(text string) (tea.Model, tea.Cmd) {
	m.help = false
	m = m.setNotice("", false)
	session := m.session
	return m, func() tea.Msg {
		return SendDoneMsg{Text: text, Err: session.Send(context.Background(), text)}
	}
}

// dispatch runs a parsed slash command. Session mutators run inside the
// returned command, never on the UI goroutine.
func (m Model) dispatch(c command.Command) (tea.Model, tea.Cmd) {
	session := m.session
	switch c := c.(type) {
	case command.NewChat:
		m.help = false
		m = m.setNotice("", false)
		return m, func() tea.Msg {
			session.Reset()
			return nil
		}

	case command.SetTheme:
		return m, func() tea.Msg {
			var err error
			if c.Name == "" {
				err = session.ToggleTheme()
			} else {
				err = session.SetTheme(c.Name)
			}
			if err != nil {
				return NoticeMsg{Text: fmt.Sprintf("Theme not saved: %v", err), Err: true}
			}
			return nil
		}

	case command.SetMode:
		return m, func() tea.Msg {
			if c.Mode == "" {
				session.ToggleMode()
			} else {
				session.SetMode(c.Mode)
			}
			return nil
		}

	case command.SignIn:
		m = m.setNotice("Signing in...", false)
		return m, func() tea.Msg {
			if err := session.SignIn(context.Background()); err != nil {
				return NoticeMsg{Text: fmt.Sprintf("Sign-in failed: %v", err), Err: true}
			}
			return NoticeMsg{Text: "Signed in"}
		}

	case command.SignOut:
		return m, func() tea.Msg {
			if err := session.SignOut(context.Background()); err != nil {
				return NoticeMsg{Text: fmt.Sprintf("Sign-out failed: %v", err), Err: true}
			}
			return NoticeMsg{Text: "Signed out"}
		}

	case command.Stats:
		return m, func() tea.Msg {
			return NoticeMsg{Text: session.Stats()}
		}

	case command.Copy:
		text, ok := lastReply(m.snap)
		if !ok {
			return m.setNotice("Nothing to copy yet", true), nil
		}
		write := m.copyFn
		return m, func() tea.Msg {
			if err := write(text); err != nil {
				return NoticeMsg{Text: fmt.Sprintf("Copy failed: %v", err), Err: true}
			}
			return NoticeMsg{Text: "Copied last reply"}
		}

	case command.SendPrompt:
		if m.snap.Loading {
			return m, nil
		}
		return m.send(c.Prompt.Text)

	case command.Help:
		m.help = true
		m.Viewport.SetContent(m.renderContent())
		m.Viewport.GotoBottom()
		return m, nil

	case command.Quit:
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) cancel() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		session.Cancel()
		return nil
	}
}

func (m Model) applySnapshot(s pmind.Snapshot) (Model, tea.Cmd) {
	wasLoading := m.snap.Loading
	m.snap = s
	if s.Theme != m.theme.Name {
		m.theme = pmind.ThemeFor(s.Theme)
		m.styles = NewStyles(m.theme)
		m.spinner.Style = m.styles.Accent
		m.blocks = nil
	}
	m = m.syncBlocks()
	if m.ready {
		m.Viewport.SetContent(m.renderContent())
		m.Viewport.GotoBottom()
	}
	if s.Loading && !wasLoading {
		return m, m.spinner.Tick
	}
	return m, nil
}

// syncBlocks brings the block list in line with the snapshot's messages.
// Existing assistant blocks are updated in place so their render cache
// survives streaming.
func (m Model) syncBlocks() Model {
	msgs := m.snap.Messages
	if m.snap.ID != m.convID || len(msgs) < len(m.blocks) {
		m.blocks = nil
		m.convID = m.snap.ID
	}
	blocks := make([]MessageBlock, len(msgs))
	copy(blocks, m.blocks)
	for i, msg := range msgs {
		switch msg.Role {
		case pmind.RoleAssistant:
			b, ok := blocks[i].(*AssistantTextBlock)
			if !ok {
				b = NewAssistantTextBlock(m.theme)
				blocks[i] = b
			}
			b.SetText(msg.Content)
		default:
			if _, ok := blocks[i].(*UserMessageBlock); !ok {
				blocks[i] = NewUserMessageBlock(msg.Content, m.styles)
			}
		}
	}
	m.blocks = blocks
	return m
}

func (m Model) renderContent() string {
	var views []MessageBlock
	if len(m.blocks) == 0 {
		views = append(views, NewWelcomeBlock(m.snap.Identity, m.signInRequired && m.snap.Identity == nil, m.styles))
	} else {
		views = append(views, m.blocks...)
	}
	if m.snap.Err != nil && !m.snap.Loading {
		views = append(views, NewErrorBlock(m.snap.Err, m.styles))
	}

	var b strings.Builder
	var prev MessageBlock
	for _, block := range views {
		v := block.View(m.Viewport.Width)
		if v == "" {
			continue
		}
		if prev != nil {
			b.WriteString(blockSeparator(prev, block))
		}
		b.WriteString(v)
		prev = block
	}
	if m.help {
		if prev != nil {
			b.WriteString("\n\n")
		}
		b.WriteString(m.styles.Muted.Render(command.HelpText()))
	}
	return b.String()
}

func (m Model) statusLine() string {
	style := m.styles.Muted
	prefix := ""
	text := "Enter to send, /help for commands, Ctrl+C to quit"
	switch {
	case m.notice != "" && m.noticeErr:
		style, text = m.styles.Error, m.notice
	case m.notice != "":
		style, text = m.styles.Success, m.notice
	case m.snap.Loading:
		prefix = m.spinner.View() + " "
		text = "Generating... (Ctrl+C to stop)"
	}
	text = strings.Join(strings.Fields(text), " ")

	right := fmt.Sprintf("%s · %s", m.snap.Mode, m.snap.Theme)
	if m.snap.Identity != nil {
		right = m.snap.Identity.Name() + " · " + right
	}

	if m.width <= 0 {
		return prefix + style.Render(text)
	}
	right = runewidth.Truncate(right, m.width/3, "…")
	room := m.width - lipgloss.Width(prefix) - runewidth.StringWidth(right) - 1
	if room < 1 {
		return m.styles.Muted.Render(right)
	}
	text = truncate(text, room, "…")
	gap := room + 1 - uniseg.StringWidth(text)
	return prefix + style.Render(text) + strings.Repeat(" ", gap) + m.styles.Muted.Render(right)
}

func (m Model) setNotice(text string, isErr bool) Model {
	m.notice = text
	m.noticeErr = isErr
	return m
}

func (m Model) restoreInput(text string) Model {
	if m.Input.Value() == "" {
		m.Input.SetValue(text)
		m.Input.CursorEnd()
	}
	return m
}

// lastReply returns the newest non-empty assistant message.
func lastReply(s pmind.Snapshot) (string, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		msg := s.Messages[i]
		if msg.Role == pmind.RoleAssistant && msg.Content != "" {
			return msg.Content, true
		}
	}
	return "", false
}

// truncate shortens s to at most width cells without splitting a grapheme
// cluster, appending tail when anything was cut.
func truncate(s string, width int, tail string) string {
	if uniseg.StringWidth(s) <= width {
		return s
	}
	limit := width - uniseg.StringWidth(tail)
	var b strings.Builder
	used := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		w := g.Width()
		if used+w > limit {
			break
		}
		b.WriteString(g.Str())
		used += w
	}
	return b.String() + tail
}
