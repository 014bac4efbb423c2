package pmind

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// WireRole is the role vocabulary of the remote chat API.
type WireRole string

const (
	WireUser  WireRole = "user"
	WireModel WireRole = "model"
)

// Wire maps a conversation role onto the remote API's vocabulary. Anything
// that is not an assistant message is sent as a user turn.
func (r Role) Wire() WireRole {
	if r == RoleAssistant {
		return WireModel
	}
	return WireUser
}
