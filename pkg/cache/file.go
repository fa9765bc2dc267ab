package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// entryExt marks cache entry files so Stats skips temp files.
const entryExt = ".entry"

// FileCache keeps rendered sheets on local disk for the CLI.
//
// Each entry is one file: an 8-byte big-endian expiry in Unix nanoseconds
// (0 for never) followed by the raw image bytes. Entries are sharded into
// 256 subdirectories by the first byte of the key hash.
type FileCache struct {
	dir string
	now func() time.Time
}

// NewFileCache opens (and creates) a cache rooted at dir.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileCache{dir: dir, now: time.Now}, nil
}

func (c *FileCache) Dir() string { return c.dir }

func (c *FileCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	path := c.path(key)
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	// Truncated or expired entries count as misses and are dropped.
	if len(raw) < 8 {
		_ = os.Remove(path)
		return nil, false, nil
	}
	if exp := int64(binary.BigEndian.Uint64(raw[:8])); exp != 0 && c.now().UnixNano() > exp {
		_ = os.Remove(path)
		return nil, false, nil
	}
	return raw[8:], true, nil
}

func (c *FileCache) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	var exp int64
	if ttl > 0 {
		exp = c.now().Add(ttl).UnixNano()
	}
	buf := make([]byte, 8+len(data))
	binary.BigEndian.PutUint64(buf, uint64(exp))
	copy(buf[8:], data)

	path := c.path(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// Readers must never observe a half-written entry.
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	_, werr := tmp.Write(buf)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (c *FileCache) Delete(_ context.Context, key string) error {
	if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Stats summarizes the cache directory.
type Stats struct {
	Entries int
	Bytes   int64
}

// Stats counts entry files and their total size on disk.
func (c *FileCache) Stats() (Stats, error) {
	var st Stats
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != entryExt {
			return nil
		}
		if info, err := d.Info(); err == nil {
			st.Entries++
			st.Bytes += info.Size()
		}
		return nil
	})
	return st, err
}

// Clear empties the cache and reports how many entries it held.
func (c *FileCache) Clear() (int, error) {
	st, err := c.Stats()
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	shards, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, err
	}
	for _, s := range shards {
		if err := os.RemoveAll(filepath.Join(c.dir, s.Name())); err != nil {
			return 0, err
		}
	}
	return st.Entries, nil
}

func (c *FileCache) Close() error { return nil }

func (c *FileCache) path(key string) string {
	h := Hash([]byte(key))
	return filepath.Join(c.dir, h[:2], h[2:]+entryExt)
}

var _ Cache = (*FileCache)(nil)
