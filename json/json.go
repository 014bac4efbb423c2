// Package json persists client preferences as a versioned JSON document.
package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pmind-ai/pmind"
)

// Interface compliance check.
var _ pmind.ThemeStore = (*PrefsStore)(nil)

const envelopeVersion = 1

// envelope is the v1 wire format for persisted preferences.
type envelope struct {
	Version   int       `json:"version"`
	Theme     string    `json:"theme,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PrefsStore implements [pmind.ThemeStore] on top of a single JSON file.
type PrefsStore struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

// NewPrefsStore returns a store backed by the file at path. The file is
// created on the first save.
func NewPrefsStore(path string) *PrefsStore {
	return &PrefsStore{path: path, now: time.Now}
}

// Path returns the backing file path.
func (s *PrefsStore) Path() string { return s.path }

// LoadTheme returns the stored theme. A missing file reports false with no
// error.
func (s *PrefsStore) LoadTheme() (pmind.ThemeName, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok, err := s.load()
	if err != nil || !ok || env.Theme == "" {
		return "", false, err
	}
	name, err := pmind.ParseThemeName(env.Theme)
	if err != nil {
		return "", false, fmt.Errorf("load theme: %w", err)
	}
	return name, true, nil
}

// SaveTheme stores name, replacing the file atomically.
func (s *PrefsStore) SaveTheme(name pmind.ThemeName) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, _, err := s.load()
	if err != nil {
		// A corrupt file is replaced rather than blocking the save.
		env = envelope{}
	}
	env.Version = envelopeVersion
	env.Theme = string(name)
	env.UpdatedAt = s.now().UTC()
	return s.save(env)
}

func (s *PrefsStore) load() (envelope, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return envelope{}, false, nil
	}
	if err != nil {
		return envelope{}, false, fmt.Errorf("read file: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, false, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != envelopeVersion {
		return envelope{}, false, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	return env, true, nil
}

func (s *PrefsStore) save(env envelope) error {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
