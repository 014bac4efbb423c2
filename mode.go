package pmind

import "fmt"

// Mode selects the sampling temperature sent with each request.
type Mode string

const (
	ModeCreative Mode = "creative"
	ModePrecise  Mode = "precise"
)

// Temperature returns the sampling temperature for the mode. Unknown modes
// behave like ModeCreative.
func (m Mode) Temperature() float64 {
	if m == ModePrecise {
		return 0.2
	}
	return 0.9
}

// Toggle returns the other mode.
func (m Mode) Toggle() Mode {
	if m == ModePrecise {
		return ModeCreative
	}
	return ModePrecise
}

// ParseMode parses a mode name. The empty string yields ModeCreative.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeCreative:
		return ModeCreative, nil
	case ModePrecise:
		return ModePrecise, nil
	}
	return "", fmt.Errorf("unknown mode %q: %w", s, ErrValidation)
}
