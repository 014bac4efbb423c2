package pmind

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FailureMessage replaces the pending assistant message when a send fails.
const FailureMessage = "⚠️ **System Quota Reached**: You have reached the maximum allowed requests for your daily free tier. Please return tomorrow or wait for the reset."

// Snapshot is an immutable view of a Session. Snapshots handed to
// observers share no memory with the session.
type Snapshot struct {
	ID       string
	Messages Conversation
	Loading  bool
	Mode     Mode
	Theme    ThemeName
	Identity *Identity
	Turns    int   // completed exchanges since the last reset
	Err      error // cause of the last failed send, nil after a success or reset
}

// SessionOption configures a [Session].
type SessionOption func(*Session)

// WithIdentityProvider attaches an identity provider. Sends are rejected
// with ErrSignedOut while it reports no signed-in user.
func WithIdentityProvider(p IdentityProvider) SessionOption {
	return func(s *Session) { s.identity = p }
}

// WithThemeStore sets where the theme preference is loaded from and saved to.
func WithThemeStore(store ThemeStore) SessionOption {
	return func(s *Session) { s.themes = store }
}

// WithSystemTheme sets the function consulted when no theme is persisted.
func WithSystemTheme(fn func() ThemeName) SessionOption {
	return func(s *Session) { s.system = fn }
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithTimeout bounds each send, from request to end of stream. Zero means
// no bound.
func WithTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.timeout = d }
}

// WithFailureMessage overrides FailureMessage.
func WithFailureMessage(msg string) SessionOption {
	return func(s *Session) { s.failure = msg }
}

// WithMode sets the initial mode. Default is ModeCreative.
func WithMode(m Mode) SessionOption {
	return func(s *Session) { s.mode = m }
}

// Session owns the conversation and the UI preferences of one chat client
// and is the only writer of that state. Every change is published to the
// subscribers as a new Snapshot.
//
// At most one send is in flight: while Loading is set, Send returns ErrBusy
// without touching the conversation or issuing a request.
type Session struct {
	provider Provider
	identity IdentityProvider
	themes   ThemeStore
	system   func() ThemeName
	logger   *slog.Logger
	timeout  time.Duration
	failure  string
	mode     Mode

	// pubMu is held across a mutation and the delivery of its snapshot so
	// observers see snapshots in mutation order. mu guards the state and is
	// never held while observers run.
	pubMu sync.Mutex
	mu    sync.Mutex

	state     Snapshot
	gen       uint64 // bumped by every send and reset
	cancel    context.CancelFunc
	closed    bool
	observers map[int]func(Snapshot)
	nextObs   int
	unsubAuth func()
}

// NewSession creates a Session that sends through provider.
func NewSession(provider Provider, opts ...SessionOption) *Session {
	s := &Session{
		provider:  provider,
		logger:    slog.Default(),
		failure:   FailureMessage,
		mode:      ModeCreative,
		observers: make(map[int]func(Snapshot)),
	}
	for _, o := range opts {
		o(s)
	}
	s.state = Snapshot{
		ID:    uuid.NewString(),
		Mode:  s.mode,
		Theme: ResolveTheme(s.themes, s.system),
	}
	if s.identity != nil {
		s.unsubAuth = s.identity.OnAuthStateChange(s.authStateChanged)
	}
	return s
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to receive every published snapshot, in order, on
// the publishing goroutine. fn must not call Session methods that change
// state; hand the snapshot off instead.
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// Send appends text as a user message followed by an empty assistant
// message, then streams the reply into that assistant message. It blocks
// until the stream ends.
//
// Send returns ErrEmptyInput, ErrBusy, ErrSignedOut or ErrSessionClosed
// when the send is rejected. Transport failures are not returned: the
// pending assistant message is replaced with the failure message and the
// cause is recorded in Snapshot.Err.
func (s *Session) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}

	var (
		req     ChatRequest
		gen     uint64
		sendCtx context.Context
		cancel  context.CancelFunc
		err     error
	)
	s.update(func(st *Snapshot) bool {
		switch {
		case s.closed:
			err = ErrSessionClosed
		case st.Loading:
			err = ErrBusy
		case s.identity != nil && st.Identity == nil:
			err = ErrSignedOut
		}
		if err != nil {
			return false
		}
		history := st.Messages.Append(Message{Role: RoleUser, Content: text})
		req = NewChatRequest(history, st.Mode)
		st.Messages = history.Append(Message{Role: RoleAssistant})
		st.Loading = true
		st.Err = nil
		s.gen++
		gen = s.gen
		sendCtx, cancel = s.sendContext(ctx)
		s.cancel = cancel
		return true
	})
	if err != nil {
		return err
	}

	start := time.Now()
	chunks, streamErr := s.stream(sendCtx, gen, req)
	cancel()
	s.finish(gen, streamErr)

	attrs := []any{
		slog.String("session", s.sessionID()),
		slog.Int("history", len(req.History)),
		slog.Float64("temperature", req.Temperature),
		slog.Int("chunks", chunks),
		slog.Duration("elapsed", time.Since(start)),
	}
	switch {
	case streamErr == nil:
		s.logger.Info("chat completed", attrs...)
	case errors.Is(streamErr, context.Canceled):
		s.logger.Info("chat cancelled", attrs...)
	default:
		attrs = append(attrs, slog.Any("error", streamErr), slog.Bool("retryable", Retryable(streamErr)))
		s.logger.Warn("chat failed", attrs...)
	}
	return nil
}

func (s *Session) sendContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if s.timeout > 0 {
		return context.WithTimeout(parent, s.timeout)
	}
	return context.WithCancel(parent)
}

// stream issues req and folds the reply into the pending assistant message
// of generation gen.
func (s *Session) stream(ctx context.Context, gen uint64, req ChatRequest) (int, error) {
	stream, err := s.provider.Stream(ctx, req)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	acc := NewAccumulator(func(content string) {
		s.update(func(st *Snapshot) bool {
			if s.gen != gen {
				return false
			}
			st.Messages = st.Messages.ReplaceLast(content)
			return true
		})
	})
	err = acc.Drain(ctx, stream)
	return acc.Chunks(), err
}

// finish clears Loading for generation gen and applies the outcome. A
// generation superseded by Reset is left alone.
func (s *Session) finish(gen uint64, err error) {
	s.update(func(st *Snapshot) bool {
		if s.gen != gen {
			return false
		}
		st.Loading = false
		s.cancel = nil
		switch {
		case err == nil:
			st.Turns++
		case errors.Is(err, context.Canceled):
			// Cancelled by the user: keep whatever arrived.
		default:
			st.Messages = st.Messages.ReplaceLast(s.failure)
			st.Err = err
		}
		return true
	})
}

// Cancel aborts the in-flight send, if any. The pending assistant message
// keeps the text received so far.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset cancels any in-flight send and empties the conversation. Loading is
// cleared immediately; the cancelled send never writes into the new
// conversation.
func (s *Session) Reset() {
	s.update(func(st *Snapshot) bool {
		s.resetLocked(st)
		return true
	})
}

func (s *Session) resetLocked(st *Snapshot) {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	st.ID = uuid.NewString()
	st.Messages = nil
	st.Loading = false
	st.Turns = 0
	st.Err = nil
}

// SignIn asks the identity provider to sign a user in. A failure is
// returned as is and the session stays signed out.
func (s *Session) SignIn(ctx context.Context) error {
	if s.identity == nil {
		return fmt.Errorf("sign in: no identity provider configured")
	}
	id, err := s.identity.SignIn(ctx)
	if err != nil {
		s.logger.Warn("sign-in failed", slog.Any("error", err))
		return fmt.Errorf("sign in: %w", err)
	}
	s.setIdentity(&id)
	s.logger.Info("signed in", slog.String("uid", id.UID), slog.Bool("anonymous", id.Anonymous))
	return nil
}

// SignOut empties the conversation and revokes the identity.
func (s *Session) SignOut(ctx context.Context) error {
	s.Reset()
	if s.identity == nil {
		return nil
	}
	if err := s.identity.SignOut(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	s.setIdentity(nil)
	s.logger.Info("signed out")
	return nil
}

func (s *Session) authStateChanged(id *Identity) {
	s.setIdentity(id)
}

// setIdentity records the signed-in user. Losing the identity empties the
// conversation, whoever initiated it.
func (s *Session) setIdentity(id *Identity) {
	s.update(func(st *Snapshot) bool {
		if id == nil {
			if st.Identity == nil {
				return false
			}
			st.Identity = nil
			s.resetLocked(st)
			return true
		}
		cp := *id
		st.Identity = &cp
		return true
	})
}

// SetTheme switches the theme and persists it. The new theme is published
// even when persisting fails; the persistence error is returned.
func (s *Session) SetTheme(name ThemeName) error {
	if _, err := ParseThemeName(string(name)); err != nil {
		return err
	}
	s.update(func(st *Snapshot) bool {
		if st.Theme == name {
			return false
		}
		st.Theme = name
		return true
	})
	if s.themes == nil {
		return nil
	}
	if err := s.themes.SaveTheme(name); err != nil {
		return fmt.Errorf("save theme: %w", err)
	}
	return nil
}

// ToggleTheme switches between light and dark.
func (s *Session) ToggleTheme() error {
	return s.SetTheme(s.Snapshot().Theme.Toggle())
}

// SetMode switches the sampling mode used by subsequent sends.
func (s *Session) SetMode(m Mode) {
	s.update(func(st *Snapshot) bool {
		if st.Mode == m {
			return false
		}
		st.Mode = m
		return true
	})
}

// ToggleMode switches between creative and precise.
func (s *Session) ToggleMode() {
	s.update(func(st *Snapshot) bool {
		st.Mode = st.Mode.Toggle()
		return true
	})
}

// Stats summarizes the conversation in one line.
func (s *Session) Stats() string {
	snap := s.Snapshot()
	return fmt.Sprintf("Mode: %s | %d exchanges | %d messages", snap.Mode, snap.Turns, snap.Messages.Len())
}

// Close cancels any in-flight send, detaches from the identity provider and
// rejects further sends with ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	unsub := s.unsubAuth
	s.unsubAuth = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if unsub != nil {
		unsub()
	}
	return nil
}

func (s *Session) sessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ID
}

// update applies fn to the state and, when fn reports a change, publishes
// the resulting snapshot to every observer.
func (s *Session) update(fn func(st *Snapshot) bool) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	observers := make([]func(Snapshot), len(ids))
	for i, id := range ids {
		observers[i] = s.observers[id]
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := s.state
	snap.Messages = s.state.Messages.Clone()
	if s.state.Identity != nil {
		id := *s.state.Identity
		snap.Identity = &id
	}
	return snap
}
