package http

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/pmind-ai/pmind"
)

// Interface compliance check.
var _ pmind.Stream = (*stream)(nil)

// stream implements [pmind.Stream] over a plain-text response body.
type stream struct {
	body    io.ReadCloser
	buf     []byte
	pending []byte // trailing bytes of an incomplete UTF-8 sequence
	err     error  // sticky terminal error, io.EOF on normal completion
	closed  bool
}

func newStream(body io.ReadCloser, chunkSize int) *stream {
	return &stream{body: body, buf: make([]byte, chunkSize)}
}

// Next returns the next decoded chunk. Bytes that do not yet form a whole
// character are held back until the following read completes them.
func (s *stream) Next() (string, error) {
	if s.closed {
		return "", errors.New("chat: stream closed")
	}
	for s.err == nil {
		n, err := s.body.Read(s.buf)
		if n > 0 {
			data := append(s.pending, s.buf[:n]...)
			complete, rest := splitUTF8(data)
			s.pending = append([]byte(nil), rest...)
			if err != nil {
				s.fail(err)
			}
			if len(complete) > 0 {
				return strings.ToValidUTF8(string(complete), "�"), nil
			}
			continue
		}
		if err != nil {
			s.fail(err)
		}
	}
	if len(s.pending) > 0 && errors.Is(s.err, io.EOF) {
		tail := strings.ToValidUTF8(string(s.pending), "�")
		s.pending = nil
		return tail, nil
	}
	return "", s.err
}

func (s *stream) fail(err error) {
	if errors.Is(err, io.EOF) {
		s.err = io.EOF
		return
	}
	s.err = fmt.Errorf("chat: reading response: %w", err)
}

// Close releases the response body. It is safe to call more than once.
func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

// splitUTF8 splits b before a trailing incomplete UTF-8 sequence, if any.
func splitUTF8(b []byte) (complete, rest []byte) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax+1; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			return b[:i], b[i:]
		}
		break
	}
	return b, nil
}
