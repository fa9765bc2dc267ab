// Package cache stores rendered gang sheet exports by content key.
//
// Exports are expensive (a 22x24 inch sheet at 300 DPI is ~47 megapixels),
// and identical layouts always render to identical bytes, so a finished
// artifact can be served again for as long as its layout is unchanged.
// Keys are derived from a hash of the layout plus the render options; see
// [Keyer].
//
// Three backends are provided:
//
//   - [NullCache]: caching disabled
//   - [FileCache]: one file per entry (expiry header plus raw bytes), used by the CLI
//   - [RedisCache]: shared cache for the HTTP service
package cache

import (
	"context"
	"fmt"
	"time"
)

// TTLs for cached data.
const (
	// TTLArtifact is how long final exports are kept.
	TTLArtifact = 7 * 24 * time.Hour

	// TTLPreview is how long preview exports are kept. Previews change with
	// every edit, so they expire quickly.
	TTLPreview = time.Hour
)

// Cache is a byte store with per-entry expiry.
type Cache interface {
	// Get returns the value for key. A missing or expired entry is a miss,
	// not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value. A zero ttl never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// ArtifactKeyOpts are the render options that change an export's bytes.
type ArtifactKeyOpts struct {
	Mode   string  `json:"mode"`
	Format string  `json:"format"`
	Grid   bool    `json:"grid,omitempty"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	DPI    float64 `json:"dpi"`
	// ScaleX and ScaleY map layout pixels to output pixels. They change
	// with the canvas base scale even when the output size does not.
	ScaleX float64 `json:"scale_x"`
	ScaleY float64 `json:"scale_y"`
}

// Keyer derives cache keys.
type Keyer interface {
	// ArtifactKey returns the key for an export of the layout with the
	// given content hash.
	ArtifactKey(layoutHash string, opts ArtifactKeyOpts) string
}

// DefaultKeyer produces unscoped keys of the form "artifact:<sha256>".
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// ArtifactKey implements Keyer.
func (DefaultKeyer) ArtifactKey(layoutHash string, opts ArtifactKeyOpts) string {
	return hashKey("artifact", layoutHash, opts)
}

// Describe returns a short human-readable form of a key for logs.
func Describe(key string) string {
	if len(key) > 24 {
		return fmt.Sprintf("%s…", key[:24])
	}
	return key
}
