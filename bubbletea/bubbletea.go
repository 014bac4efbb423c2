// Package bubbletea provides a Bubble Tea TUI for a pmind chat session.
package bubbletea

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pmind-ai/pmind"
)

// Run creates and runs the Bubble Tea program. It blocks until the program
// exits. Cancelling ctx quits the program.
func Run(ctx context.Context, m Model) error {
	defer m.Close()
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// SnapshotMsg delivers a published session state to the model.
type SnapshotMsg struct {
	Snapshot pmind.Snapshot
}

// SendDoneMsg reports the end of a send started from the input line. Err
// is non-nil only when the session rejected the send.
type SendDoneMsg struct {
	Text string
	Err  error
}

// NoticeMsg sets the status line notice.
type NoticeMsg struct {
	Text string
	Err  bool
}

// feed hands the most recent snapshot from the session's observer to the
// UI goroutine. Publishing never blocks: an unread snapshot is replaced
// by the newer one, which carries the full state anyway.
type feed struct {
	ch chan pmind.Snapshot
}

func newFeed() *feed {
	return &feed{ch: make(chan pmind.Snapshot, 1)}
}

func (f *feed) publish(s pmind.Snapshot) {
	for {
		select {
		case f.ch <- s:
			return
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

// listen waits for the next snapshot.
func (f *feed) listen() tea.Cmd {
	return func() tea.Msg {
		return SnapshotMsg{Snapshot: <-f.ch}
	}
}
