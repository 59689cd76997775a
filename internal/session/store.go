package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store persists cookies between fetch attempts as a JSON object of cookie
// name to value. Every attempt saves the jar back so a later run, or the
// browser fallback, starts from whatever trust the site last granted.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a cookie store backed by the given file path. An empty
// path disables persistence: Load returns an empty jar and Save is a no-op.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// ForLineage derives a store whose file is suffixed with the lineage number,
// so each worker keeps its own cookie history alongside its identity.
func (s *Store) ForLineage(n int) *Store {
	if s.path == "" {
		return NewStore("")
	}

	ext := filepath.Ext(s.path)
	base := strings.TrimSuffix(s.path, ext)
	return NewStore(fmt.Sprintf("%s.%d%s", base, n, ext))
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted cookies. A missing, unreadable or corrupt file
// yields an empty jar rather than an error.
func (s *Store) Load() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cookies := make(map[string]string)
	if s.path == "" {
		return cookies
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return cookies
	}

	if err := json.Unmarshal(data, &cookies); err != nil {
		return make(map[string]string)
	}

	return cookies
}

// Save persists the given cookies, replacing the previous contents.
func (s *Store) Save(cookies map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create cookie directory: %w", err)
		}
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cookies: %w", err)
	}

	return nil
}
