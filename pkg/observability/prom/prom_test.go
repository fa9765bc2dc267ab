package prom

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matzehuels/gangsheet/pkg/observability"
)

// counterValue sums all series of the named counter family.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var sum float64
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
		return sum
	}
	return 0
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	ctx := context.Background()

	m.OnUploadComplete(ctx, 3, 1, time.Millisecond)
	m.OnNestComplete(ctx, 4, 2, time.Microsecond, nil)
	m.OnNestComplete(ctx, 0, 0, 0, errors.New("empty"))
	m.OnExportComplete(ctx, "final", "png", 1<<20, time.Second, nil)
	m.OnCacheHit(ctx, "final")
	m.OnCacheMiss(ctx, "preview")
	m.OnCacheSet(ctx, "final", 512)
	m.OnResponse(ctx, "POST", "shop", "/x", 200, time.Millisecond)
	m.OnError(ctx, "POST", "shop", "/x", errors.New("reset"))

	tests := []struct {
		name string
		want float64
	}{
		{"gangsheet_uploads_total", 4},
		{"gangsheet_nests_total", 2},
		{"gangsheet_nest_overflow_designs_total", 2},
		{"gangsheet_exports_total", 1},
		{"gangsheet_cache_hits_total", 1},
		{"gangsheet_cache_misses_total", 1},
		{"gangsheet_cache_written_bytes_total", 512},
		{"gangsheet_outbound_requests_total", 1},
		{"gangsheet_outbound_errors_total", 1},
	}
	for _, tt := range tests {
		if got := counterValue(t, reg, tt.name); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestInstall(t *testing.T) {
	defer observability.Reset()
	m := New(prometheus.NewRegistry())
	m.Install()
	if observability.Pipeline() != observability.PipelineHooks(m) {
		t.Error("pipeline hooks not installed")
	}
	if observability.Cache() != observability.CacheHooks(m) {
		t.Error("cache hooks not installed")
	}
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.OnCacheHit(context.Background(), "final")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `gangsheet_cache_hits_total{type="final"} 1`) {
		t.Errorf("metrics output missing cache hit:\n%s", body)
	}
}
