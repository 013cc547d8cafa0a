// Package storage provides file-based JSON storage for archived transcript
// messages. It is written against afero so tests run on an in-memory
// filesystem.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("not found")

// Storage is a hierarchical JSON store. Keys are path slices, e.g.
// ["transcript", conversationID, messageID].
type Storage struct {
	fs       afero.Fs
	basePath string
	mu       sync.Mutex
}

// New creates storage rooted at basePath on the OS filesystem.
func New(basePath string) *Storage {
	return NewWithFs(afero.NewOsFs(), basePath)
}

// NewWithFs creates storage on an arbitrary filesystem.
func NewWithFs(fs afero.Fs, basePath string) *Storage {
	return &Storage{fs: fs, basePath: basePath}
}

func (s *Storage) pathToFile(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...) + ".json"
}

func (s *Storage) pathToDir(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...)
}

// Get retrieves a value.
func (s *Storage) Get(path []string, v any) error {
	data, err := afero.ReadFile(s.fs, s.pathToFile(path))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read file: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal: %w", err)
	}

	return nil
}

// Put stores a value, writing through a temp file and renaming so readers
// never observe a partial write.
func (s *Storage) Put(path []string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.pathToFile(path)
	if err := s.fs.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	tmpPath := filePath + ".tmp"
	if err := afero.WriteFile(s.fs, tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := s.fs.Rename(tmpPath, filePath); err != nil {
		s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// Delete removes a value. Deleting a missing key is not an error.
func (s *Storage) Delete(path []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(s.pathToFile(path)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// List returns the sorted keys under a path: subdirectory names and .json
// file stems.
func (s *Storage) List(path []string) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.pathToDir(path))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var items []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			items = append(items, name)
		} else if stem, ok := strings.CutSuffix(name, ".json"); ok {
			items = append(items, stem)
		}
	}
	sort.Strings(items)
	return items, nil
}
