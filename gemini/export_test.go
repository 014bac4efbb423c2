package gemini

// NewWithModels creates a Client backed by a fake model service.
func NewWithModels(models contentStreamer, opts ...Option) *Client {
	return newClient(models, opts...)
}

// MapError exposes mapError for testing.
func MapError(err error) error { return mapError(err) }
