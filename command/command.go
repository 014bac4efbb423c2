// Package command parses the slash commands typed into the chat input.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pmind-ai/pmind"
)

// ErrUnknown is returned for a slash command that does not exist.
var ErrUnknown = errors.New("unknown command")

// Command is a parsed slash command. The concrete types below are the only
// implementations.
type Command interface{ command() }

// NewChat starts a new conversation. Typed as /new or /reset.
type NewChat struct{}

// SetTheme switches the theme. A zero Name toggles.
type SetTheme struct{ Name pmind.ThemeName }

// SetMode switches the mode. A zero Mode toggles.
type SetMode struct{ Mode pmind.Mode }

// SignIn signs the user in.
type SignIn struct{}

// SignOut signs the user out.
type SignOut struct{}

// Stats shows the conversation summary.
type Stats struct{}

// Copy copies the last assistant reply to the clipboard.
type Copy struct{}

// SendPrompt sends a canned prompt.
type SendPrompt struct{ Prompt pmind.Prompt }

// Help lists the commands.
type Help struct{}

// Quit exits the program.
type Quit struct{}

func (NewChat) command()    {}
func (SetTheme) command()   {}
func (SetMode) command()    {}
func (SignIn) command()     {}
func (SignOut) command()    {}
func (Stats) command()      {}
func (Copy) command()       {}
func (SendPrompt) command() {}
func (Help) command()       {}
func (Quit) command()       {}

// Parse parses input. It returns a nil Command and nil error when input is
// ordinary chat text.
func Parse(input string) (Command, error) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return nil, nil
	}
	fields := strings.Fields(input[1:])
	if len(fields) == 0 {
		return nil, fmt.Errorf("%q: %w", input, ErrUnknown)
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "new", "reset", "clear":
		return NewChat{}, nil
	case "theme":
		if len(args) == 0 {
			return SetTheme{}, nil
		}
		n, err := pmind.ParseThemeName(strings.ToLower(args[0]))
		if err != nil {
			return nil, err
		}
		return SetTheme{Name: n}, nil
	case "mode":
		if len(args) == 0 {
			return SetMode{}, nil
		}
		m, err := pmind.ParseMode(strings.ToLower(args[0]))
		if err != nil {
			return nil, err
		}
		return SetMode{Mode: m}, nil
	case "signin", "login":
		return SignIn{}, nil
	case "signout", "logout":
		return SignOut{}, nil
	case "stats":
		return Stats{}, nil
	case "copy":
		return Copy{}, nil
	case "agent":
		p, err := pick(pmind.Agents(), args, "agent")
		if err != nil {
			return nil, err
		}
		return SendPrompt{Prompt: p}, nil
	case "prompt":
		p, err := pick(pmind.QuickPrompts(), args, "prompt")
		if err != nil {
			return nil, err
		}
		return SendPrompt{Prompt: p}, nil
	case "help", "?":
		return Help{}, nil
	case "quit", "exit", "q":
		return Quit{}, nil
	}
	return nil, fmt.Errorf("/%s: %w", name, ErrUnknown)
}

// pick selects a prompt by its 1-based index.
func pick(prompts []pmind.Prompt, args []string, what string) (pmind.Prompt, error) {
	if len(args) == 0 {
		return pmind.Prompt{}, fmt.Errorf("/%s needs a number from 1 to %d: %w", what, len(prompts), pmind.ErrValidation)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(prompts) {
		return pmind.Prompt{}, fmt.Errorf("/%s %s: want a number from 1 to %d: %w", what, args[0], len(prompts), pmind.ErrValidation)
	}
	return prompts[n-1], nil
}

// HelpText returns the command reference shown by /help.
func HelpText() string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, l := range [][2]string{
		{"/new", "start a new chat"},
		{"/theme [light|dark]", "switch theme"},
		{"/mode [creative|precise]", "switch response style"},
		{"/signin, /signout", "manage your account"},
		{"/stats", "show conversation stats"},
		{"/copy", "copy the last reply"},
		{"/agent N", "start a guided session"},
		{"/prompt N", "send a starter prompt"},
		{"/quit", "exit"},
	} {
		fmt.Fprintf(&b, "  %-26s %s\n", l[0], l[1])
	}
	b.WriteString("\nAgents:\n")
	for i, p := range pmind.Agents() {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, p.Label)
	}
	b.WriteString("\nPrompts:\n")
	for i, p := range pmind.QuickPrompts() {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, p.Label)
	}
	return strings.TrimRight(b.String(), "\n")
}
