package canvas

import (
	"math"
	"testing"

	"github.com/matzehuels/gangsheet/pkg/errors"
)

func mustNew(t *testing.T, w, h float64, opts ...Option) *Canvas {
	t.Helper()
	c, err := New(w, h, opts...)
	if err != nil {
		t.Fatalf("New(%v, %v) error: %v", w, h, err)
	}
	return c
}

func TestExportSize(t *testing.T) {
	tests := []struct {
		name         string
		w, h         float64
		wantW, wantH int
	}{
		{"12x16 standard", 12, 16, 3600, 4800},
		{"22x24 large", 22, 24, 6600, 7200},
		{"8.5x11 small", 8.5, 11, 2550, 3300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mustNew(t, tt.w, tt.h)
			w, h := c.ExportSize()
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("ExportSize() = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestDisplaySize(t *testing.T) {
	c := mustNew(t, 12, 16)
	if got := c.DisplaySize(); got != (Size{864, 1152}) {
		t.Errorf("DisplaySize() at 100%% = %v", got)
	}
	c.SetZoom(50)
	if got := c.DisplaySize(); got != (Size{432, 576}) {
		t.Errorf("DisplaySize() at 50%% = %v", got)
	}
	if got := c.LayoutSize(); got != (Size{864, 1152}) {
		t.Errorf("LayoutSize() should not depend on zoom, got %v", got)
	}
}

func TestExportScale(t *testing.T) {
	c := mustNew(t, 12, 16)
	sx, sy, err := c.ExportScale()
	if err != nil {
		t.Fatalf("ExportScale() error: %v", err)
	}
	want := 300.0 / 72.0
	if math.Abs(sx-want) > 1e-9 || math.Abs(sy-want) > 1e-9 {
		t.Errorf("ExportScale() = %v, %v, want %v", sx, sy, want)
	}

	c = mustNew(t, 10, 10, WithBaseScale(75))
	sx, sy, err = c.ExportScale()
	if err != nil || sx != 4 || sy != 4 {
		t.Errorf("ExportScale() with base 75 = %v, %v, %v; want 4, 4", sx, sy, err)
	}
}

func TestScaleToRejectsDistortion(t *testing.T) {
	c := mustNew(t, 12, 16)
	_, _, err := c.ScaleTo(3600, 2400)
	if !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("ScaleTo(non-uniform) error = %v, want INVALID_CONFIG", err)
	}
}

func TestZoomClamp(t *testing.T) {
	tests := []struct {
		name string
		set  int
		want int
	}{
		{"in range", 150, 150},
		{"below min", 5, 25},
		{"above max", 400, 200},
		{"snaps to step", 110, 100},
		{"snaps up", 115, 125},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mustNew(t, 12, 16)
			if got := c.SetZoom(tt.set); got != tt.want {
				t.Errorf("SetZoom(%d) = %d, want %d", tt.set, got, tt.want)
			}
		})
	}
}

func TestZoomInOut(t *testing.T) {
	c := mustNew(t, 12, 16)
	for i := 0; i < 10; i++ {
		c.ZoomIn()
	}
	if c.Zoom != 200 {
		t.Errorf("Zoom after many ZoomIn = %d, want 200", c.Zoom)
	}
	for i := 0; i < 10; i++ {
		c.ZoomOut()
	}
	if c.Zoom != 25 {
		t.Errorf("Zoom after many ZoomOut = %d, want 25", c.Zoom)
	}
}

func TestToLayoutRoundTrip(t *testing.T) {
	c := mustNew(t, 12, 16)
	c.SetZoom(50)
	p := c.ToLayout(Point{100, 40})
	if p != (Point{200, 80}) {
		t.Errorf("ToLayout() = %v, want {200 80}", p)
	}
	if back := c.ToScreen(p); back != (Point{100, 40}) {
		t.Errorf("ToScreen(ToLayout()) = %v", back)
	}
}

func TestClamp(t *testing.T) {
	c := mustNew(t, 10, 10) // 720 x 720 layout
	tests := []struct {
		name         string
		x, y, w, h   float64
		wantX, wantY float64
	}{
		{"inside", 10, 20, 100, 100, 10, 20},
		{"negative", -5, -10, 100, 100, 0, 0},
		{"past right edge", 700, 0, 100, 100, 620, 0},
		{"past bottom edge", 0, 719, 50, 50, 0, 670},
		{"wider than canvas", 40, 0, 1000, 10, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := c.Clamp(tt.x, tt.y, tt.w, tt.h)
			if x != tt.wantX || y != tt.wantY {
				t.Errorf("Clamp() = (%v, %v), want (%v, %v)", x, y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestNewInvalid(t *testing.T) {
	tests := []struct {
		name string
		w, h float64
		opts []Option
	}{
		{"zero width", 0, 10, nil},
		{"negative dpi", 10, 10, []Option{WithDPI(-1)}},
		{"bad zoom range", 10, 10, []Option{WithZoomRange(100, 50, 10)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.w, tt.h, tt.opts...); !errors.Is(err, errors.ErrCodeInvalidConfig) {
				t.Errorf("New() error = %v, want INVALID_CONFIG", err)
			}
		})
	}
}
