// Package storage persists the job's state document as a single JSON file.
//
// A run reads the document once at start and replaces it once at the end. Writes go to a
// temporary file that is renamed over the target, so readers see either the previous
// document or the new one, never a partial write. A missing or corrupt document is
// treated as "no prior state" so a damaged file never blocks the next run.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rewired-gh/strikewatch/internal/models"
)

// Storage provides file-based persistence for the state document
type Storage struct {
	mu sync.RWMutex

	// Configuration
	filePath        string
	filePermissions os.FileMode
	dirPermissions  os.FileMode
}

// New creates a new Storage instance.
// If filePath is empty, uses OS-appropriate tmp directory
func New(filePath string, filePermissions, dirPermissions os.FileMode) *Storage {
	if filePath == "" {
		filePath = filepath.Join(os.TempDir(), "strikewatch", "data.json")
	}
	if filePermissions == 0 {
		filePermissions = 0o644
	}
	if dirPermissions == 0 {
		dirPermissions = 0o755
	}

	return &Storage{
		filePath:        filePath,
		filePermissions: filePermissions,
		dirPermissions:  dirPermissions,
	}
}

// Path returns the document location
func (s *Storage) Path() string {
	return s.filePath
}

// Load restores the previous document.
// It always returns a usable state: when the file is missing the state is empty and the
// error is nil; when the file is unreadable or corrupt the state is empty and the error
// explains why, so callers can log it and carry on.
func (s *Storage) Load() (*models.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Clean up any stale temp files from previous crashes
	tempPath := s.filePath + ".tmp"
	if _, err := os.Stat(tempPath); err == nil {
		_ = os.Remove(tempPath)
	}

	jsonData, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		// No file to load, start fresh
		return models.NewState(), nil
	}
	if err != nil {
		return models.NewState(), fmt.Errorf("failed to read file: %w", err)
	}

	var state models.State
	if err := json.Unmarshal(jsonData, &state); err != nil {
		return models.NewState(), fmt.Errorf("failed to unmarshal data: %w", err)
	}
	if state.Signals == nil {
		state.Signals = make(map[string]*models.Snapshot)
	}

	return &state, nil
}

// Save replaces the document with state
func (s *Storage) Save(state *models.State) error {
	if state == nil {
		return errors.New("state must not be nil")
	}
	if err := state.Validate(); err != nil {
		return fmt.Errorf("invalid state: %w", err)
	}

	// Marshal before touching the filesystem so an encoding error leaves the old file alone
	jsonData, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Create data directory if needed
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, s.dirPermissions); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// Write to temporary file first (atomic write)
	tempPath := s.filePath + ".tmp"
	if err := writeSynced(tempPath, jsonData, s.filePermissions); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to write file: %w", err)
	}

	// Rename temp file to actual file
	if err := os.Rename(tempPath, s.filePath); err != nil {
		_ = os.Remove(tempPath) // Clean up temp file on rename failure
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// ReadRaw returns the document bytes exactly as stored
func (s *Storage) ReadRaw() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return os.ReadFile(s.filePath)
}

func writeSynced(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
