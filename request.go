package pmind

import "fmt"

// Turn is one history entry in the remote API's vocabulary.
type Turn struct {
	Role    WireRole
	Content string
}

// ChatRequest carries the conversation history and the sampling
// temperature sent to the chat endpoint.
type ChatRequest struct {
	History     []Turn
	Temperature float64
}

// NewChatRequest builds the outgoing request for history, relabelling
// every message for the remote API and taking the temperature from mode.
func NewChatRequest(history Conversation, mode Mode) ChatRequest {
	turns := make([]Turn, len(history))
	for i, m := range history {
		turns[i] = Turn{Role: m.Role.Wire(), Content: m.Content}
	}
	return ChatRequest{History: turns, Temperature: mode.Temperature()}
}

// Validate checks universal constraints on ChatRequest.
// Provider implementations may apply additional provider-specific validation.
func (r ChatRequest) Validate() error {
	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0, 2], got %g: %w", r.Temperature, ErrValidation)
	}
	if len(r.History) == 0 {
		return fmt.Errorf("history must not be empty: %w", ErrValidation)
	}
	for i, t := range r.History {
		switch t.Role {
		case WireUser, WireModel:
		default:
			return fmt.Errorf("history[%d]: unknown role %q: %w", i, t.Role, ErrValidation)
		}
	}
	return nil
}
