package mock

import (
	"io"
	"sync"

	"github.com/pmind-ai/pmind"
)

// Interface compliance check.
var _ pmind.Stream = (*Stream)(nil)

// Stream is a test double for pmind.Stream.
// NextFn panics when nil to catch missing setup. CloseFn is nil-safe
// because test code commonly calls defer stream.Close().
type Stream struct {
	NextFn  func() (string, error)
	CloseFn func() error
}

// Next delegates to NextFn.
func (s *Stream) Next() (string, error) {
	return s.NextFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *Stream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// Chunks returns a Stream that yields chunks in order and then io.EOF.
func Chunks(chunks ...string) *Stream {
	var (
		mu sync.Mutex
		i  int
	)
	return &Stream{
		NextFn: func() (string, error) {
			mu.Lock()
			defer mu.Unlock()
			if i >= len(chunks) {
				return "", io.EOF
			}
			c := chunks[i]
			i++
			return c, nil
		},
	}
}

// Failing returns a Stream that yields chunks in order and then err.
func Failing(err error, chunks ...string) *Stream {
	s := Chunks(chunks...)
	next := s.NextFn
	s.NextFn = func() (string, error) {
		c, e := next()
		if e == io.EOF {
			return "", err
		}
		return c, e
	}
	return s
}
