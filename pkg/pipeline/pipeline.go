// Package pipeline ties a gang sheet board to its exports.
//
// The CLI and the HTTP service both go through a [Runner] so that caching,
// logging, and observability behave the same way in every entry point.
//
// # Architecture
//
// An export runs in three steps:
//
//  1. Snapshot: copy the board's sheet, canvas, and objects under its lock
//  2. Render: composite the visible objects at the target resolution
//  3. Encode: write PNG or JPEG bytes
//
// Identical snapshots render to identical bytes, so the encoded artifact is
// cached under a key derived from the snapshot content and the render
// options.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	res, err := runner.Export(ctx, board, pipeline.Options{Mode: "final"})
//	if err != nil {
//	    return err
//	}
//	os.WriteFile("sheet.png", res.Artifact.Data, 0o644)
//
// Auto-nest goes through the runner too, for the logging and hooks:
//
//	nr, err := runner.Nest(ctx, board, nest.Options{})
package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/gangsheet/pkg/cache"
	"github.com/matzehuels/gangsheet/pkg/design"
	"github.com/matzehuels/gangsheet/pkg/raster"
	"github.com/matzehuels/gangsheet/pkg/sheet"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and API
// =============================================================================

const (
	// DefaultMode is the export mode used when none is given.
	DefaultMode = raster.Final

	// DefaultFormat is the export format used when none is given.
	DefaultFormat = raster.PNG
)

// =============================================================================
// Options - Export Configuration
// =============================================================================

// Options configures an export. It supports JSON so API requests can carry
// it directly.
type Options struct {
	Mode    string `json:"mode,omitempty"`    // "preview" or "final"
	Format  string `json:"format,omitempty"`  // "png" or "jpeg"
	Grid    bool   `json:"grid,omitempty"`    // inch grid under the objects
	Refresh bool   `json:"refresh,omitempty"` // bypass the cache read

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-"`

	mode   raster.Mode
	format raster.Format

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// ValidateAndSetDefaults checks the options and applies defaults.
// This method is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	mode, err := raster.ParseMode(o.Mode)
	if err != nil {
		return err
	}
	format, err := raster.ParseFormat(o.Format)
	if err != nil {
		return err
	}
	o.mode, o.format = mode, format
	o.Mode, o.Format = string(mode), string(format)
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// ArtifactKeyOpts returns the cache key options for an export to t.
func (o *Options) ArtifactKeyOpts(t raster.Target, dpi float64) cache.ArtifactKeyOpts {
	return cache.ArtifactKeyOpts{
		Mode:   o.Mode,
		Format: o.Format,
		Grid:   o.Grid,
		Width:  t.Width,
		Height: t.Height,
		DPI:    dpi,
		ScaleX: t.ScaleX,
		ScaleY: t.ScaleY,
	}
}

// =============================================================================
// Results
// =============================================================================

// Result is the outcome of an export.
type Result struct {
	Artifact    raster.Artifact `json:"artifact"`
	Sheet       sheet.Sheet     `json:"sheet"`
	DesignCount int             `json:"design_count"`
	Price       float64         `json:"price"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	LayoutHash  string          `json:"layout_hash"`
	CacheHit    bool            `json:"cache_hit"`
	Stats       Stats           `json:"stats"`
}

// Stats contains export timing.
type Stats struct {
	RenderTime time.Duration `json:"render_time"`
	TotalTime  time.Duration `json:"total_time"`
}

// ProductName is the storefront product name for a sheet.
func ProductName(s sheet.Sheet) string {
	return fmt.Sprintf("Custom Gang Sheet (%s)", s.Name)
}

// ProductDescription is the storefront product description for a sheet
// holding n designs.
func ProductDescription(s sheet.Sheet, n int) string {
	return fmt.Sprintf("Custom gang sheet with %d designs (%s)", n, s.Label())
}

// layoutDoc is the hashed form of a snapshot. Image bytes are replaced by
// their digest so the key stays cheap to compute.
type layoutDoc struct {
	Sheet   sheet.Sheet    `json:"sheet"`
	Objects []hashedObject `json:"objects"`
}

type hashedObject struct {
	design.Object
	SourceHash string `json:"source_hash"`
}

// LayoutHash returns the content hash of a snapshot: sheet, object geometry,
// properties, stacking order, and image content.
func LayoutHash(s design.Snapshot) (string, error) {
	doc := layoutDoc{Sheet: s.Sheet, Objects: make([]hashedObject, len(s.Objects))}
	for i, o := range s.Objects {
		h := cache.Hash(o.Source)
		o.Source = nil
		doc.Objects[i] = hashedObject{Object: o, SourceHash: h}
	}
	return cache.HashJSON(doc)
}
