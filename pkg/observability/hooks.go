// Package observability lets the gang sheet pipeline report what it does
// without depending on a metrics backend.
//
// Libraries emit events through the accessors [Pipeline], [Cache] and [HTTP].
// Until main installs real hooks (see package prom), every event lands on a
// no-op implementation:
//
//	observability.Pipeline().OnExportStart(ctx, "final", "png", len(objects))
//	png, err := raster.Export(ctx, layout, opts)
//	observability.Pipeline().OnExportComplete(ctx, "final", "png", len(png), time.Since(start), err)
package observability

import (
	"context"
	"sync"
	"time"
)

// PipelineHooks observes uploads, auto-nest runs and raster exports.
type PipelineHooks interface {
	OnUploadComplete(ctx context.Context, accepted, rejected int, duration time.Duration)

	OnNestStart(ctx context.Context, objects int)
	OnNestComplete(ctx context.Context, packed, overflow int, duration time.Duration, err error)

	OnExportStart(ctx context.Context, mode, format string, objects int)
	OnExportComplete(ctx context.Context, mode, format string, size int, duration time.Duration, err error)
}

// CacheHooks observes export cache lookups. keyType is "preview" or "final".
type CacheHooks interface {
	OnCacheHit(ctx context.Context, keyType string)
	OnCacheMiss(ctx context.Context, keyType string)
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// HTTPHooks observes outgoing requests, currently only the checkout hand-off.
type HTTPHooks interface {
	OnRequest(ctx context.Context, method, host, path string)
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)
	// OnError is called for transport failures, not for non-2xx responses.
	OnError(ctx context.Context, method, host, path string, err error)
}

// NoopPipelineHooks discards pipeline events.
type NoopPipelineHooks struct{}

func (NoopPipelineHooks) OnUploadComplete(context.Context, int, int, time.Duration)      {}
func (NoopPipelineHooks) OnNestStart(context.Context, int)                               {}
func (NoopPipelineHooks) OnNestComplete(context.Context, int, int, time.Duration, error) {}
func (NoopPipelineHooks) OnExportStart(context.Context, string, string, int)             {}
func (NoopPipelineHooks) OnExportComplete(context.Context, string, string, int, time.Duration, error) {
}

// NoopCacheHooks discards cache events.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks discards HTTP events.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

type registry struct {
	mu       sync.RWMutex
	pipeline PipelineHooks
	cache    CacheHooks
	http     HTTPHooks
}

func (r *registry) reset() {
	r.mu.Lock()
	r.pipeline, r.cache, r.http = NoopPipelineHooks{}, NoopCacheHooks{}, NoopHTTPHooks{}
	r.mu.Unlock()
}

var hooks = func() *registry {
	r := &registry{}
	r.reset()
	return r
}()

// SetPipelineHooks installs h. A nil h leaves the current hooks in place.
func SetPipelineHooks(h PipelineHooks) {
	if h == nil {
		return
	}
	hooks.mu.Lock()
	hooks.pipeline = h
	hooks.mu.Unlock()
}

// SetCacheHooks installs h. A nil h leaves the current hooks in place.
func SetCacheHooks(h CacheHooks) {
	if h == nil {
		return
	}
	hooks.mu.Lock()
	hooks.cache = h
	hooks.mu.Unlock()
}

// SetHTTPHooks installs h. A nil h leaves the current hooks in place.
func SetHTTPHooks(h HTTPHooks) {
	if h == nil {
		return
	}
	hooks.mu.Lock()
	hooks.http = h
	hooks.mu.Unlock()
}

func Pipeline() PipelineHooks {
	hooks.mu.RLock()
	defer hooks.mu.RUnlock()
	return hooks.pipeline
}

func Cache() CacheHooks {
	hooks.mu.RLock()
	defer hooks.mu.RUnlock()
	return hooks.cache
}

func HTTP() HTTPHooks {
	hooks.mu.RLock()
	defer hooks.mu.RUnlock()
	return hooks.http
}

// Reset puts the no-op hooks back. Tests that install hooks defer it.
func Reset() { hooks.reset() }
