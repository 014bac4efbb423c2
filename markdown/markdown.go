// Package markdown renders assistant replies to ANSI-styled terminal output
// using goldmark for parsing, lipgloss for styling and chroma for code
// highlighting.
package markdown

import "github.com/pmind-ai/pmind"

// Render parses markdown source and returns ANSI-styled terminal output.
// Paragraphs and list items are word-wrapped to width. Code blocks are
// highlighted with the theme's code style and rendered without reflow.
func Render(source string, width int, theme pmind.Theme) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	r := newRenderer(theme)
	return r.render([]byte(source), width)
}
