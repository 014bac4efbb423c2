package firebase

import "time"

// SetNow overrides the clock used for token expiry.
func (p *Provider) SetNow(now func() time.Time) { p.now = now }
