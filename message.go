package pmind

// Message is one role-tagged entry of a conversation. Messages are values:
// an update produces a new Message rather than modifying an existing one.
type Message struct {
	Role    Role
	Content string
}

// Conversation is an ordered, append-only sequence of messages. Methods
// never modify the receiver's backing array; they return fresh slices so a
// published Conversation stays valid after the session moves on.
type Conversation []Message

// Len returns the number of messages.
func (c Conversation) Len() int { return len(c) }

// Last returns the final message, if any.
func (c Conversation) Last() (Message, bool) {
	if len(c) == 0 {
		return Message{}, false
	}
	return c[len(c)-1], true
}

// Append returns a new Conversation with msgs added at the end.
func (c Conversation) Append(msgs ...Message) Conversation {
	out := make(Conversation, len(c), len(c)+len(msgs))
	copy(out, c)
	return append(out, msgs...)
}

// ReplaceLast returns a new Conversation whose last message is replaced by
// a message with the same role and the given content. An empty
// conversation is returned unchanged.
func (c Conversation) ReplaceLast(content string) Conversation {
	if len(c) == 0 {
		return c
	}
	out := c.Clone()
	out[len(out)-1] = Message{Role: out[len(out)-1].Role, Content: content}
	return out
}

// Clone returns a copy that shares no memory with c.
func (c Conversation) Clone() Conversation {
	if c == nil {
		return nil
	}
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}
