// Package artifact stores finished gang sheet exports.
//
// Final exports are large (tens of megabytes for a 22x24 inch sheet) and are
// what the print shop ultimately downloads, so they are kept outside the
// export cache, which may evict them. Two backends implement [Store]:
//   - [FileStore]: a local directory
//   - [MinioStore]: an S3-compatible bucket via MinIO
package artifact

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/matzehuels/gangsheet/pkg/errors"
)

// Object describes a stored artifact.
type Object struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Location    string    `json:"location"` // file path or s3:// URL
	StoredAt    time.Time `json:"stored_at"`
}

// Store persists artifacts by key.
type Store interface {
	// Put writes data under key, replacing any previous object.
	Put(ctx context.Context, key string, data []byte, contentType string) (Object, error)

	// Get reads an object. A missing key is a NOT_FOUND error.
	Get(ctx context.Context, key string) ([]byte, Object, error)

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Key returns the storage key of a sheet export:
// "sheets/<sheet id>/<layout hash prefix>.<ext>". The extension may carry
// a leading dot.
func Key(sheetID, layoutHash, ext string) string {
	if len(layoutHash) > 16 {
		layoutHash = layoutHash[:16]
	}
	return fmt.Sprintf("sheets/%s/%s.%s", sheetID, layoutHash, strings.TrimPrefix(ext, "."))
}

// validateKey rejects keys that are empty or could escape the store root.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return errors.New(errors.ErrCodeInvalidInput, "invalid artifact key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return errors.New(errors.ErrCodeInvalidInput, "invalid artifact key %q", key)
		}
	}
	return nil
}

func notFound(key string) error {
	return errors.New(errors.ErrCodeNotFound, "artifact %s not found", key)
}
