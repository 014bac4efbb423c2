package pmind

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Accumulator folds the chunks of one response into a growing text value.
// Every chunk is appended in arrival order and the full text so far is
// handed to the publish callback before the next chunk is accepted.
//
// An Accumulator is not safe for concurrent use; it belongs to the
// goroutine that drains the stream.
type Accumulator struct {
	buf     strings.Builder
	chunks  int
	publish func(content string)
}

// NewAccumulator returns an empty Accumulator. publish may be nil.
func NewAccumulator(publish func(content string)) *Accumulator {
	return &Accumulator{publish: publish}
}

// Append concatenates chunk and publishes the accumulated text. Empty
// chunks carry no data and are ignored.
func (a *Accumulator) Append(chunk string) {
	if chunk == "" {
		return
	}
	a.buf.WriteString(chunk)
	a.chunks++
	if a.publish != nil {
		a.publish(a.buf.String())
	}
}

// Text returns the accumulated text.
func (a *Accumulator) Text() string { return a.buf.String() }

// Chunks returns the number of chunks appended so far.
func (a *Accumulator) Chunks() int { return a.chunks }

// Drain reads s until it ends, appending each chunk. It returns nil when
// the stream reports io.EOF, ctx.Err() when ctx was cancelled, and the read
// error otherwise. Drain does not close s.
func (a *Accumulator) Drain(ctx context.Context, s Stream) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// A cancelled context usually surfaces as a read error on the
			// aborted connection; report the cause instead.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		a.Append(chunk)
	}
}
