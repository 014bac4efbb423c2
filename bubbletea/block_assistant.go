package bubbletea

import (
	"strings"

	"github.com/pmind-ai/pmind"
	"github.com/pmind-ai/pmind/markdown"
)

var _ MessageBlock = (*AssistantTextBlock)(nil)

// AssistantTextBlock renders a streamed reply with markdown formatting.
// Paragraphs that can no longer change (everything before the last blank
// line outside a code fence) are rendered once per width and cached; only
// the trailing text is re-rendered as the reply grows.
type AssistantTextBlock struct {
	content string
	theme   pmind.Theme

	finalizedRaw     string
	finalizedByWidth map[int]string
}

// NewAssistantTextBlock creates an empty block.
func NewAssistantTextBlock(theme pmind.Theme) *AssistantTextBlock {
	return &AssistantTextBlock{
		theme:            theme,
		finalizedByWidth: make(map[int]string),
	}
}

// Text returns the raw markdown currently held.
func (b *AssistantTextBlock) Text() string { return b.content }

// SetText replaces the reply text. Snapshots carry the whole accumulated
// reply, so the common case is a strict extension of the previous text;
// anything else (a failure message, a new reply) drops the cache.
func (b *AssistantTextBlock) SetText(text string) {
	if text == b.content {
		return
	}
	if !strings.HasPrefix(text, b.content) {
		b.finalizedRaw = ""
		clear(b.finalizedByWidth)
	}
	b.content = text
	b.promoteFinalized()
}

func (b *AssistantTextBlock) View(width int) string {
	finalizedRendered := b.renderFinalized(width)
	trailing := b.trailingRaw()
	if hasUnclosedFence(trailing) {
		// Close the fence for rendering only so partial replies display.
		trailing += "\n```"
	}
	if strings.TrimSpace(trailing) == "" {
		return finalizedRendered
	}
	trailingRendered := markdown.Render(trailing, width, b.theme)
	if strings.TrimSpace(trailingRendered) == "" {
		return finalizedRendered
	}
	if finalizedRendered == "" {
		return trailingRendered
	}
	// Independently rendered fragments are joined with a single paragraph
	// break to match full-document output.
	return strings.TrimRight(finalizedRendered, "\n") + "\n\n" + strings.TrimLeft(trailingRendered, "\n")
}

// promoteFinalized moves the stable prefix forward to the last "\n\n" that
// is not inside an open code fence.
func (b *AssistantTextBlock) promoteFinalized() {
	raw := b.content
	for end := len(raw); ; {
		idx := strings.LastIndex(raw[:end], "\n\n")
		if idx <= 0 {
			return
		}
		candidate := raw[:idx]
		if !hasUnclosedFence(candidate) {
			if candidate != b.finalizedRaw {
				b.finalizedRaw = candidate
				clear(b.finalizedByWidth)
			}
			return
		}
		end = idx
	}
}

func (b *AssistantTextBlock) renderFinalized(width int) string {
	if width <= 0 || b.finalizedRaw == "" {
		return ""
	}
	if cached, ok := b.finalizedByWidth[width]; ok {
		return cached
	}
	rendered := markdown.Render(b.finalizedRaw, width, b.theme)
	b.finalizedByWidth[width] = rendered
	return rendered
}

func (b *AssistantTextBlock) trailingRaw() string {
	if b.finalizedRaw == "" {
		return b.content
	}
	return strings.TrimPrefix(b.content, b.finalizedRaw+"\n\n")
}

// hasUnclosedFence reports an odd number of "```" markers. Triple
// backticks inside inline code are miscounted; replies rarely contain them.
func hasUnclosedFence(s string) bool {
	return strings.Count(s, "```")%2 == 1
}
