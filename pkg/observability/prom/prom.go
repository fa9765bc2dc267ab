// Package prom exports observability hook events as Prometheus metrics.
//
//	reg := prometheus.NewRegistry()
//	m := prom.New(reg)
//	m.Install()
//	http.Handle("/metrics", prom.Handler(reg))
package prom

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matzehuels/gangsheet/pkg/observability"
)

const namespace = "gangsheet"

// Metrics implements every hook interface in package observability.
type Metrics struct {
	uploads        *prometheus.CounterVec
	uploadDuration prometheus.Histogram

	nests         *prometheus.CounterVec
	nestOverflow  prometheus.Counter
	nestDuration  prometheus.Histogram
	nestedDesigns prometheus.Histogram

	exports        *prometheus.CounterVec
	exportDuration *prometheus.HistogramVec
	exportBytes    *prometheus.HistogramVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheBytes  *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpErrors   *prometheus.CounterVec
}

// New creates the metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Uploaded images by outcome.",
		}, []string{"result"}),
		uploadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_batch_duration_seconds",
			Help:      "Time to decode and place an upload batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		nests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nests_total",
			Help:      "Auto-nest runs by outcome.",
		}, []string{"result"}),
		nestOverflow: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nest_overflow_designs_total",
			Help:      "Designs that did not fit below the sheet bottom during auto-nest.",
		}),
		nestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "nest_duration_seconds",
			Help:      "Auto-nest duration.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		nestedDesigns: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "nest_designs",
			Help:      "Designs packed per auto-nest run.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100},
		}),
		exports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Exports by mode, format, and outcome.",
		}, []string{"mode", "format", "result"}),
		exportDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Export duration including cache lookups.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"mode"}),
		exportBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_size_bytes",
			Help:      "Encoded export size.",
			Buckets:   prometheus.ExponentialBuckets(64<<10, 4, 8),
		}, []string{"format"}),
		cacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Export cache hits.",
		}, []string{"type"}),
		cacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Export cache misses.",
		}, []string{"type"}),
		cacheBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_written_bytes_total",
			Help:      "Bytes written to the export cache.",
		}, []string{"type"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_requests_total",
			Help:      "Outgoing HTTP requests by host and status.",
		}, []string{"host", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbound_request_duration_seconds",
			Help:      "Outgoing HTTP request duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"host"}),
		httpErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_errors_total",
			Help:      "Outgoing HTTP requests that failed without a response.",
		}, []string{"host"}),
	}
}

// Install registers m as the pipeline, cache, and HTTP hooks.
func (m *Metrics) Install() {
	observability.SetPipelineHooks(m)
	observability.SetCacheHooks(m)
	observability.SetHTTPHooks(m)
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// =============================================================================
// Pipeline Hooks
// =============================================================================

func (m *Metrics) OnUploadComplete(_ context.Context, accepted, rejected int, d time.Duration) {
	m.uploads.WithLabelValues("accepted").Add(float64(accepted))
	m.uploads.WithLabelValues("rejected").Add(float64(rejected))
	m.uploadDuration.Observe(d.Seconds())
}

func (m *Metrics) OnNestStart(context.Context, int) {}

func (m *Metrics) OnNestComplete(_ context.Context, packed, overflow int, d time.Duration, err error) {
	m.nests.WithLabelValues(result(err)).Inc()
	if err != nil {
		return
	}
	m.nestOverflow.Add(float64(overflow))
	m.nestDuration.Observe(d.Seconds())
	m.nestedDesigns.Observe(float64(packed))
}

func (m *Metrics) OnExportStart(context.Context, string, string, int) {}

func (m *Metrics) OnExportComplete(_ context.Context, mode, format string, size int, d time.Duration, err error) {
	m.exports.WithLabelValues(mode, format, result(err)).Inc()
	if err != nil {
		return
	}
	m.exportDuration.WithLabelValues(mode).Observe(d.Seconds())
	m.exportBytes.WithLabelValues(format).Observe(float64(size))
}

// =============================================================================
// Cache Hooks
// =============================================================================

func (m *Metrics) OnCacheHit(_ context.Context, keyType string) {
	m.cacheHits.WithLabelValues(keyType).Inc()
}

func (m *Metrics) OnCacheMiss(_ context.Context, keyType string) {
	m.cacheMisses.WithLabelValues(keyType).Inc()
}

func (m *Metrics) OnCacheSet(_ context.Context, keyType string, size int) {
	m.cacheBytes.WithLabelValues(keyType).Add(float64(size))
}

// =============================================================================
// HTTP Hooks
// =============================================================================

func (m *Metrics) OnRequest(context.Context, string, string, string) {}

func (m *Metrics) OnResponse(_ context.Context, _, host, _ string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(host, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(host).Observe(d.Seconds())
}

func (m *Metrics) OnError(_ context.Context, _, host, _ string, _ error) {
	m.httpErrors.WithLabelValues(host).Inc()
}

var (
	_ observability.PipelineHooks = (*Metrics)(nil)
	_ observability.CacheHooks    = (*Metrics)(nil)
	_ observability.HTTPHooks     = (*Metrics)(nil)
)
