package pmind

import "context"

// Provider is a strategy pattern interface for chat backends.
//
// Stream issues req and returns once the backend accepted it. A non-success
// status or a connection failure is reported through the error return,
// before any chunk is read. Provider implementations must not retain req
// after Stream returns.
type Provider interface {
	Stream(ctx context.Context, req ChatRequest) (Stream, error)
}
