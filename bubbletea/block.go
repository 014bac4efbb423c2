package bubbletea

// MessageBlock is a renderable element of the transcript. View takes a
// width so the root model controls layout and blocks are testable in
// isolation.
type MessageBlock interface {
	View(width int) string
}

// blockSeparator returns the gap placed between two adjacent blocks. A
// reply sits directly under the question it answers; everything else is
// separated by a blank line.
func blockSeparator(prev, curr MessageBlock) string {
	if _, ok := prev.(*UserMessageBlock); ok {
		if _, ok := curr.(*AssistantTextBlock); ok {
			return "\n"
		}
	}
	return "\n\n"
}
