package json

import "time"

// SetNow overrides the clock used for updated_at.
func (s *PrefsStore) SetNow(now func() time.Time) { s.now = now }
