package pmind

// Stream uses a pull-based iterator pattern over the text chunks of one
// response body. Cancellation flows through the context passed to
// Provider.Stream().
//
// Next returns the next non-empty chunk in arrival order. It returns io.EOF
// when the response ends normally and any other error when the read fails.
// After a non-nil error every subsequent call returns the same error.
//
// Close releases the underlying connection. It is safe to call more than
// once and after the stream ended.
type Stream interface {
	Next() (string, error)
	Close() error
}
