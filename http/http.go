// Package http implements [pmind.Provider] against the chat server's HTTP
// endpoint.
//
// The endpoint accepts a JSON body with the conversation history and the
// sampling temperature and answers with a plain-text body that grows as the
// model produces output. The client exposes that body through the
// pull-based [pmind.Stream] interface, decoding UTF-8 incrementally so a
// multi-byte character split across reads is never emitted in pieces.
package http

const (
	// DefaultBaseURL is where the chat server listens by default.
	DefaultBaseURL = "http://localhost:10000"

	// ChatPath is the streaming chat route.
	ChatPath = "/api/v1/chat"

	defaultChunkSize = 4096
	maxErrorBody     = 64 << 10
)

// apiRequest is the JSON body posted to the chat endpoint.
type apiRequest struct {
	History     []apiTurn `json:"history"`
	Temperature float64   `json:"temperature"`
}

type apiTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
