package artifact

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"
)

// FileStore keeps artifacts under a local directory, mirroring keys as
// relative paths.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the root directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(key)), nil
}

func (s *FileStore) Put(_ context.Context, key string, data []byte, contentType string) (Object, error) {
	path, err := s.path(key)
	if err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Object{}, fmt.Errorf("create artifact dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return Object{}, fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return Object{}, fmt.Errorf("write artifact: %w", err)
	}
	return Object{
		Key:         key,
		Size:        int64(len(data)),
		ContentType: contentType,
		Location:    path,
		StoredAt:    time.Now().UTC(),
	}, nil
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, Object, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, Object{}, err
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, Object{}, notFound(key)
	}
	if err != nil {
		return nil, Object{}, fmt.Errorf("stat artifact: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Object{}, fmt.Errorf("read artifact: %w", err)
	}
	return data, Object{
		Key:         key,
		Size:        info.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Location:    path,
		StoredAt:    info.ModTime().UTC(),
	}, nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
