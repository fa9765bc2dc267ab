package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/matzehuels/gangsheet/pkg/errors"
)

// FileStore is a file-based sheet store for CLI applications.
// Sheets are stored as JSON files in a config directory.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewFileStore creates a new file-based sheet store.
// If baseDir is empty, defaults to ~/.config/gangsheet/sheets/
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		baseDir = filepath.Join(home, ".config", "gangsheet", "sheets")
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create sheet dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) sheetPath(id string) (string, error) {
	// Ids become file names, so reject anything that could escape baseDir.
	if id == "" || filepath.Base(id) != id || id == "." || id == ".." {
		return "", errors.New(errors.ErrCodeInvalidInput, "invalid sheet id %q", id)
	}
	return filepath.Join(s.baseDir, id+".json"), nil
}

func (s *FileStore) Get(ctx context.Context, id string) (*Sheet, error) {
	path, err := s.sheetPath(id)
	if err != nil {
		return nil, notFound(id)
	}

	s.mu.RLock()
	data, err := os.ReadFile(path)
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("read sheet file: %w", err)
	}

	var sh Sheet
	if err := json.Unmarshal(data, &sh); err != nil {
		return nil, fmt.Errorf("parse sheet: %w", err)
	}

	if sh.IsExpired() {
		s.mu.Lock()
		os.Remove(path)
		s.mu.Unlock()
		return nil, notFound(id)
	}
	return &sh, nil
}

func (s *FileStore) Set(ctx context.Context, sh *Sheet) error {
	path, err := s.sheetPath(sh.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(sh)
	if err != nil {
		return fmt.Errorf("marshal sheet: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write sheet file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write sheet file: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	path, err := s.sheetPath(id)
	if err != nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove sheet file: %w", err)
	}
	return nil
}

func (s *FileStore) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("read sheet dir: %w", err)
	}

	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.baseDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		// Only the expiry is needed; skip decoding the image payloads.
		var head struct {
			ExpiresAt time.Time `json:"expires_at"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			continue
		}
		if !head.ExpiresAt.IsZero() && now.After(head.ExpiresAt) {
			os.Remove(path)
		}
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// Path returns the base directory for sheet files.
func (s *FileStore) Path() string {
	return s.baseDir
}

var _ Store = (*FileStore)(nil)
