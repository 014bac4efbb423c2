package bubbletea

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pmind-ai/pmind"
)

var _ MessageBlock = (*WelcomeBlock)(nil)

// WelcomeBlock is shown while the conversation is empty: a greeting, the
// guided agents and the starter prompts. When a sign-in is required and
// nobody is signed in it shows how to sign in instead.
type WelcomeBlock struct {
	identity    *pmind.Identity
	needsSignIn bool
	styles      Styles
}

// NewWelcomeBlock creates a WelcomeBlock.
func NewWelcomeBlock(identity *pmind.Identity, needsSignIn bool, styles Styles) *WelcomeBlock {
	return &WelcomeBlock{identity: identity, needsSignIn: needsSignIn, styles: styles}
}

func (b *WelcomeBlock) View(width int) string {
	var s strings.Builder
	if b.needsSignIn {
		s.WriteString(b.styles.Assistant.Render("Welcome to pmind"))
		s.WriteString("\n\n")
		s.WriteString("Sign in to start chatting: type ")
		s.WriteString(b.styles.Accent.Render("/signin"))
		return lipgloss.NewStyle().Width(width).Render(s.String())
	}

	name := "there"
	if b.identity != nil {
		name = b.identity.Name()
	}
	s.WriteString(b.styles.Assistant.Render("Hello, " + name))
	s.WriteString("\n")
	s.WriteString(b.styles.Muted.Render("How can I help you today?"))
	s.WriteString("\n\n")

	s.WriteString(b.styles.Accent.Render("Agents"))
	s.WriteString("\n")
	for i, p := range pmind.Agents() {
		fmt.Fprintf(&s, "  %s %s\n", b.styles.Muted.Render(fmt.Sprintf("/agent %d", i+1)), p.Label)
	}
	s.WriteString("\n")
	s.WriteString(b.styles.Accent.Render("Try"))
	s.WriteString("\n")
	for i, p := range pmind.QuickPrompts() {
		fmt.Fprintf(&s, "  %s %s\n", b.styles.Muted.Render(fmt.Sprintf("/prompt %d", i+1)), p.Label)
	}
	return lipgloss.NewStyle().Width(width).Render(strings.TrimRight(s.String(), "\n"))
}
