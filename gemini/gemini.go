// Package gemini implements [pmind.Provider] for the Google Gemini API.
//
// It wraps the google.golang.org/genai SDK, translating the wire history of
// a [pmind.ChatRequest] into Gemini contents. Streaming uses the SDK's
// iter.Seq2 iterator, wrapped into the pull-based [pmind.Stream] interface.
// The chat server uses this package as its model backend.
package gemini

const (
	// DefaultModel is the model used when none is configured.
	DefaultModel = "gemini-flash-latest"

	defaultTopP      = 0.9
	defaultMaxTokens = 4096

	statusResourceExhausted = "RESOURCE_EXHAUSTED"
)
