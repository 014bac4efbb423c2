package anthropic

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pmind-ai/pmind"
)

// stream implements [pmind.Stream] by parsing SSE events from an HTTP
// response body.
type stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	ctx     context.Context
	err     error // sticky terminal error, io.EOF after message_stop
	closed  bool
}

// Interface compliance check.
var _ pmind.Stream = (*stream)(nil)

func newStream(ctx context.Context, body io.ReadCloser) *stream {
	return &stream{
		body:    body,
		scanner: bufio.NewScanner(body),
		ctx:     ctx,
	}
}

// Next reads events until one carries text.
// Returns io.EOF when the stream completes normally.
func (s *stream) Next() (string, error) {
	if s.closed {
		return "", errors.New("anthropic: stream closed")
	}
	for s.err == nil {
		eventType, data, err := s.readSSEEvent()
		if err != nil {
			s.terminate(err)
			break
		}
		text, err := s.processEvent(eventType, data)
		if err != nil {
			s.terminate(err)
			break
		}
		if text != "" {
			return text, nil
		}
	}
	return "", s.err
}

// Close closes the underlying HTTP response body. It is safe to call more
// than once.
func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

// terminate records a terminal error. A cancelled context wins over the read
// error it caused.
func (s *stream) terminate(err error) {
	switch {
	case s.ctx.Err() != nil:
		s.err = fmt.Errorf("anthropic: %w", s.ctx.Err())
	case err == io.EOF:
		// message_stop sets io.EOF directly; a raw EOF means the body was cut.
		s.err = fmt.Errorf("anthropic: unexpected end of stream: %w", pmind.ErrUpstream)
	default:
		s.err = err
	}
}

// readSSEEvent reads lines until a complete SSE event is assembled.
// Returns the event type and the data payload.
func (s *stream) readSSEEvent() (string, string, error) {
	var eventType string
	var dataBuf strings.Builder

	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			if dataBuf.Len() > 0 {
				return eventType, dataBuf.String(), nil
			}
			continue
		}

		if strings.HasPrefix(line, "event: ") {
			eventType = strings.TrimPrefix(line, "event: ")
		} else if strings.HasPrefix(line, "data: ") {
			if dataBuf.Len() > 0 {
				dataBuf.WriteByte('\n')
			}
			dataBuf.WriteString(strings.TrimPrefix(line, "data: "))
		}
		// Comments and unknown fields are ignored.
	}

	if err := s.scanner.Err(); err != nil {
		return "", "", fmt.Errorf("anthropic: %w: %w", pmind.ErrUpstream, err)
	}
	if dataBuf.Len() > 0 {
		return eventType, dataBuf.String(), nil
	}
	return "", "", io.EOF
}

// processEvent returns the text carried by an event, if any.
func (s *stream) processEvent(eventType, data string) (string, error) {
	switch eventType {
	case "content_block_delta":
		var evt sseContentBlockDelta
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			return "", fmt.Errorf("anthropic: failed to parse content_block_delta: %w: %w", pmind.ErrUpstream, err)
		}
		if evt.Delta.Type != "text_delta" {
			return "", nil
		}
		return evt.Delta.Text, nil
	case "message_stop":
		s.err = io.EOF
		return "", nil
	case "error":
		return "", handleError(data)
	default:
		// message_start, ping, content_block_start/stop, message_delta and
		// unknown events carry no text.
		return "", nil
	}
}

// handleError maps an in-stream error event. Rate limiting matches
// pmind.ErrQuotaExceeded; everything else matches pmind.ErrUpstream.
func handleError(data string) error {
	var evt sseError
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		return fmt.Errorf("anthropic: failed to parse error event: %w: %w", pmind.ErrUpstream, err)
	}
	sentinel := pmind.ErrUpstream
	if evt.Error.Type == errorTypeRateLimit {
		sentinel = pmind.ErrQuotaExceeded
	}
	return fmt.Errorf("anthropic: %w: %s: %s", sentinel, evt.Error.Type, evt.Error.Message)
}
