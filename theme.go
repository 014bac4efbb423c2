package pmind

import "fmt"

// ThemeName is the persisted appearance preference.
type ThemeName string

const (
	ThemeLight ThemeName = "light"
	ThemeDark  ThemeName = "dark"
)

// Toggle returns the other theme.
func (n ThemeName) Toggle() ThemeName {
	if n == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// ParseThemeName parses a theme name.
func ParseThemeName(s string) (ThemeName, error) {
	switch ThemeName(s) {
	case ThemeLight, ThemeDark:
		return ThemeName(s), nil
	}
	return "", fmt.Errorf("unknown theme %q: %w", s, ErrValidation)
}

// ThemeStore persists the theme preference between runs.
// LoadTheme reports false when nothing has been stored yet.
type ThemeStore interface {
	LoadTheme() (ThemeName, bool, error)
	SaveTheme(ThemeName) error
}

// ResolveTheme picks the startup theme: the persisted value when present,
// otherwise the system preference. A nil store or a failed read falls back
// to the system preference too.
func ResolveTheme(store ThemeStore, system func() ThemeName) ThemeName {
	if store != nil {
		if name, ok, err := store.LoadTheme(); err == nil && ok {
			return name
		}
	}
	if system != nil {
		return system()
	}
	return ThemeLight
}

// Theme defines semantic color mappings using ANSI color indices (0-15).
// The user's terminal theme determines the actual RGB values, so the app
// automatically matches any color scheme.
type Theme struct {
	Name      ThemeName
	UserMsg   int    // User message accent
	Assistant int    // Assistant label
	Error     int    // Error messages
	Success   int    // Success indicators
	Muted     int    // Status bar, placeholders
	CodeBg    int    // Code block background
	Accent    int    // Headings, links
	CodeStyle string // chroma style for fenced code
}

// ThemeFor returns the palette for name. Unknown names get the dark palette.
func ThemeFor(name ThemeName) Theme {
	if name == ThemeLight {
		return Theme{
			Name:      ThemeLight,
			UserMsg:   4,
			Assistant: 5,
			Error:     1,
			Success:   2,
			Muted:     8,
			CodeBg:    7,
			Accent:    4,
			CodeStyle: "github",
		}
	}
	return DefaultTheme()
}

// DefaultTheme returns the dark ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		Name:      ThemeDark,
		UserMsg:   12,
		Assistant: 13,
		Error:     9,
		Success:   10,
		Muted:     8,
		CodeBg:    0,
		Accent:    13,
		CodeStyle: "monokai",
	}
}
