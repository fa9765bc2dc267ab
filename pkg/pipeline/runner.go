package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/gangsheet/pkg/cache"
	"github.com/matzehuels/gangsheet/pkg/design"
	"github.com/matzehuels/gangsheet/pkg/errors"
	"github.com/matzehuels/gangsheet/pkg/nest"
	"github.com/matzehuels/gangsheet/pkg/observability"
	"github.com/matzehuels/gangsheet/pkg/raster"
)

// Runner encapsulates export execution with caching.
// Both CLI and API use it to avoid duplicating caching logic.
//
// The Runner is stateless except for the cache and logger. Multiple
// goroutines can safely use the same Runner with different boards.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Export snapshots the board and renders it, serving the artifact from the
// cache when the same layout was exported before with the same options.
// The board is never modified.
func (r *Runner) Export(ctx context.Context, b *design.Board, opts Options) (*Result, error) {
	return r.ExportSnapshot(ctx, b.Snapshot(), opts)
}

// ExportSnapshot renders an already captured snapshot.
func (r *Runner) ExportSnapshot(ctx context.Context, snap design.Snapshot, opts Options) (res *Result, err error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	r.applyLogger(&opts)
	logger := opts.Logger

	if len(snap.Objects) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyLayout, "sheet has no designs to export")
	}

	start := time.Now()
	hooks := observability.Pipeline()
	hooks.OnExportStart(ctx, opts.Mode, opts.Format, len(snap.Objects))
	defer func() {
		size := 0
		if res != nil {
			size = res.Artifact.Size()
		}
		hooks.OnExportComplete(ctx, opts.Mode, opts.Format, size, time.Since(start), err)
	}()

	target, err := raster.TargetFor(snap.Canvas, opts.mode, opts.Grid)
	if err != nil {
		return nil, err
	}
	hash, err := LayoutHash(snap)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "hash layout")
	}

	res = &Result{
		Sheet:       snap.Sheet,
		DesignCount: len(snap.Objects),
		Price:       snap.Price(),
		Name:        ProductName(snap.Sheet),
		Description: ProductDescription(snap.Sheet, len(snap.Objects)),
		LayoutHash:  hash,
	}

	key := r.Keyer.ArtifactKey(hash, opts.ArtifactKeyOpts(target, snap.Canvas.DPI))
	keyType := string(opts.mode)
	if !opts.Refresh {
		if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
			observability.Cache().OnCacheHit(ctx, keyType)
			logger.Debug("export cache hit", "key", cache.Describe(key))
			res.Artifact = raster.Artifact{Data: data, Width: target.Width, Height: target.Height, Format: opts.format}
			res.CacheHit = true
			res.Stats.TotalTime = time.Since(start)
			return res, nil
		}
		observability.Cache().OnCacheMiss(ctx, keyType)
	}

	logger.Debug("rendering sheet",
		"mode", opts.Mode,
		"width", target.Width,
		"height", target.Height,
		"designs", len(snap.Objects))

	renderStart := time.Now()
	art, err := raster.Export(ctx, snap.Objects, target, opts.format)
	if err != nil {
		return nil, err
	}
	res.Artifact = art
	res.Stats.RenderTime = time.Since(renderStart)

	ttl := cache.TTLArtifact
	if opts.mode == raster.Preview {
		ttl = cache.TTLPreview
	}
	if err := r.Cache.Set(ctx, key, art.Data, ttl); err == nil {
		observability.Cache().OnCacheSet(ctx, keyType, art.Size())
	}

	res.Stats.TotalTime = time.Since(start)
	logger.Info("exported sheet",
		"sheet", snap.Sheet.ID,
		"format", opts.Format,
		"bytes", art.Size(),
		"duration", res.Stats.RenderTime)
	return res, nil
}

// Nest auto-arranges the board and reports the result.
func (r *Runner) Nest(ctx context.Context, b *design.Board, opts nest.Options) (design.NestResult, error) {
	hooks := observability.Pipeline()
	start := time.Now()
	hooks.OnNestStart(ctx, b.Len())

	res, err := b.Nest(opts)
	hooks.OnNestComplete(ctx, res.Packed, len(res.Overflow), time.Since(start), err)
	if err != nil {
		return res, err
	}

	r.Logger.Info("nested designs",
		"packed", res.Packed,
		"rows", res.Rows,
		"skipped", res.Skipped)
	if len(res.Overflow) > 0 {
		r.Logger.Warn("designs do not fit the sheet", "overflow", len(res.Overflow))
	}
	return res, nil
}

// AddUploads decodes and places uploads on the board, logging rejections.
func (r *Runner) AddUploads(ctx context.Context, b *design.Board, uploads []design.Upload) ([]design.Object, []design.Rejection, error) {
	start := time.Now()
	added, rejected, err := b.AddUploads(ctx, uploads)
	observability.Pipeline().OnUploadComplete(ctx, len(added), len(rejected), time.Since(start))
	for _, rj := range rejected {
		r.Logger.Warn("rejected upload", "name", rj.Name, "err", rj.Err)
	}
	if err != nil {
		return added, rejected, err
	}
	r.Logger.Debug("added designs", "count", len(added), "duration", time.Since(start))
	return added, rejected, nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
