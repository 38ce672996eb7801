// Package snapshot persists raw search results between the search and
// document-processing phases of a run, so a crashed run leaves its inputs
// on disk for inspection.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/procurio/ted-harvester/internal/ted"
)

// Store writes run snapshots to a local directory.
type Store struct {
	dir string
}

// envelope is the on-disk snapshot format.
type envelope struct {
	Notices []ted.RawNotice `json:"notices"`
}

// New validates the snapshot directory and returns a store. The directory is
// created when absent and must be writable.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("snapshot directory is required")
	}

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create snapshot directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat snapshot directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("snapshot path is not a directory")
	}

	probe := filepath.Join(dir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("snapshot directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}

	return &Store{dir: dir}, nil
}

// Save writes the notices under the run id and returns the snapshot path.
func (s *Store) Save(runID string, notices []ted.RawNotice) (string, error) {
	path, err := s.path(runID)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(envelope{Notices: notices})
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// Load reads a previously saved snapshot back.
func (s *Store) Load(runID string) ([]ted.RawNotice, error) {
	path, err := s.path(runID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return env.Notices, nil
}

// Remove deletes the run's snapshot after a successful run. A snapshot that
// is already gone is not an error.
func (s *Store) Remove(runID string) error {
	path, err := s.path(runID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

// path maps a run id to its snapshot file, rejecting ids that would escape
// the snapshot directory.
func (s *Store) path(runID string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", fmt.Errorf("run id is required")
	}
	full := filepath.Join(s.dir, runID+".json")
	cleanDir := filepath.Clean(s.dir)
	if !strings.HasPrefix(filepath.Clean(full), cleanDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return full, nil
}
