package gemini

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"

	"github.com/pmind-ai/pmind"
	"google.golang.org/genai"
)

// stream implements [pmind.Stream] by wrapping the genai SDK's streaming
// iterator. Each response contributes the text of its non-thought parts;
// responses without text are skipped.
type stream struct {
	ctx    context.Context
	pull   func() (*genai.GenerateContentResponse, error, bool)
	stop   func()
	err    error // sticky terminal error, io.EOF on normal completion
	closed bool
}

// Interface compliance check.
var _ pmind.Stream = (*stream)(nil)

// NewStreamFromIter wraps a genai streaming iterator.
// Exported for testing.
func NewStreamFromIter(ctx context.Context, seq iter.Seq2[*genai.GenerateContentResponse, error]) pmind.Stream {
	next, stop := iter.Pull2(seq)
	return &stream{ctx: ctx, pull: next, stop: stop}
}

func (s *stream) Next() (string, error) {
	if s.closed {
		return "", errors.New("gemini: stream closed")
	}
	for s.err == nil {
		if err := s.ctx.Err(); err != nil {
			s.err = mapError(err)
			break
		}
		resp, err, ok := s.pull()
		if !ok {
			s.err = io.EOF
			break
		}
		if err != nil {
			s.err = mapError(err)
			break
		}
		if text := responseText(resp); text != "" {
			return text, nil
		}
	}
	return "", s.err
}

// Close stops the underlying iterator. It is safe to call more than once.
func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.stop()
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	c := resp.Candidates[0]
	if c == nil || c.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range c.Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}
