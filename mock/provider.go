// Package mock provides test doubles for pmind interfaces using function fields.
package mock

import (
	"context"

	"github.com/pmind-ai/pmind"
)

// Interface compliance check.
var _ pmind.Provider = (*Provider)(nil)

// Provider is a test double for pmind.Provider.
// Set StreamFn before calling Stream.
type Provider struct {
	StreamFn func(ctx context.Context, req pmind.ChatRequest) (pmind.Stream, error)
}

// Stream delegates to StreamFn.
func (p *Provider) Stream(ctx context.Context, req pmind.ChatRequest) (pmind.Stream, error) {
	return p.StreamFn(ctx, req)
}
