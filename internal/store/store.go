// Package store persists the latest pipeline run result as JSON so the
// dashboard can serve a run after the process that produced it has exited.
// Only the most recent run is kept; this is a handoff file, not a history.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/anshugovil/testenfusion/internal/pipeline"
)

// Store reads and writes the run file.
type Store struct {
	mu       sync.RWMutex
	filepath string
}

// New returns a store backed by the given file path.
func New(path string) *Store {
	return &Store{filepath: path}
}

type envelope struct {
	SavedAt time.Time        `json:"saved_at"`
	Run     *pipeline.Result `json:"run"`
}

// Save writes the result atomically: marshal, write to a temp file, rename.
func (s *Store) Save(res *pipeline.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(envelope{SavedAt: time.Now().UTC(), Run: res}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding run result: %w", err)
	}

	if dir := filepath.Dir(s.filepath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating run dir: %w", err)
		}
	}

	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("writing run file: %w", err)
	}
	return os.Rename(tmpFile, s.filepath)
}

// Load reads the last saved result.
func (s *Store) Load() (*pipeline.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		return nil, fmt.Errorf("reading run file: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding run file: %w", err)
	}
	if env.Run == nil {
		return nil, fmt.Errorf("run file %s holds no run", s.filepath)
	}
	return env.Run, nil
}
