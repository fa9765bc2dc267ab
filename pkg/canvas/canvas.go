// Package canvas maps a physical print sheet onto pixel coordinate spaces.
//
// Three spaces are involved:
//
//   - Physical: the sheet in inches.
//   - Layout: display pixels at 100% zoom (BaseScale px per inch). Every
//     design object position and size is stored in this space.
//   - Export: print pixels at DPI px per inch.
//
// Zoom is a viewport transform only. Pointer events arrive in screen pixels
// at the current zoom and are converted with [Canvas.ToLayout] before they
// reach the model, so changing the zoom never moves an object.
package canvas

import (
	"math"

	"github.com/matzehuels/gangsheet/pkg/errors"
)

const (
	// DefaultBaseScale is the number of display pixels per inch at 100% zoom.
	DefaultBaseScale = 72.0

	// DefaultDPI is the print resolution of final exports.
	DefaultDPI = 300.0

	// DefaultZoom is the initial zoom percentage.
	DefaultZoom = 100

	// DefaultMinZoom and DefaultMaxZoom bound the zoom percentage.
	DefaultMinZoom = 25
	DefaultMaxZoom = 200

	// DefaultZoomStep is the increment used by ZoomIn and ZoomOut.
	DefaultZoomStep = 25

	// scaleTolerance is the relative divergence allowed between the
	// horizontal and vertical export scale before it is treated as a
	// configuration error.
	scaleTolerance = 0.005
)

// Size is a width/height pair.
type Size struct {
	W, H float64
}

// Point is a 2D coordinate.
type Point struct {
	X, Y float64
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Add returns p + q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Canvas converts between physical, layout, screen, and export spaces for a
// single sheet.
type Canvas struct {
	WidthIn   float64 // sheet width in inches
	HeightIn  float64 // sheet height in inches
	BaseScale float64 // layout px per inch
	DPI       float64 // export px per inch
	Zoom      int     // percent
	MinZoom   int
	MaxZoom   int
	ZoomStep  int
}

// Option configures a Canvas.
type Option func(*Canvas)

// WithBaseScale overrides the layout pixels per inch.
func WithBaseScale(s float64) Option { return func(c *Canvas) { c.BaseScale = s } }

// WithDPI overrides the export resolution.
func WithDPI(dpi float64) Option { return func(c *Canvas) { c.DPI = dpi } }

// WithZoomRange overrides the zoom bounds and step.
func WithZoomRange(min, max, step int) Option {
	return func(c *Canvas) {
		c.MinZoom, c.MaxZoom, c.ZoomStep = min, max, step
	}
}

// New creates a canvas for a sheet of the given physical size.
func New(widthIn, heightIn float64, opts ...Option) (*Canvas, error) {
	c := &Canvas{
		WidthIn:   widthIn,
		HeightIn:  heightIn,
		BaseScale: DefaultBaseScale,
		DPI:       DefaultDPI,
		Zoom:      DefaultZoom,
		MinZoom:   DefaultMinZoom,
		MaxZoom:   DefaultMaxZoom,
		ZoomStep:  DefaultZoomStep,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.Zoom = c.clampZoom(c.Zoom)
	return c, nil
}

// Validate checks the canvas configuration.
func (c *Canvas) Validate() error {
	if c.WidthIn <= 0 || c.HeightIn <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "sheet dimensions must be positive (got %vx%v in)", c.WidthIn, c.HeightIn)
	}
	if c.BaseScale <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "base scale must be positive (got %v)", c.BaseScale)
	}
	if c.DPI <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "dpi must be positive (got %v)", c.DPI)
	}
	if c.MinZoom <= 0 || c.MaxZoom < c.MinZoom || c.ZoomStep <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid zoom range [%d,%d] step %d", c.MinZoom, c.MaxZoom, c.ZoomStep)
	}
	return nil
}

// LayoutSize returns the sheet size in layout pixels (display at 100%).
func (c *Canvas) LayoutSize() Size {
	return Size{W: c.WidthIn * c.BaseScale, H: c.HeightIn * c.BaseScale}
}

// DisplaySize returns the on-screen size at the current zoom.
func (c *Canvas) DisplaySize() Size {
	z := float64(c.Zoom) / 100
	l := c.LayoutSize()
	return Size{W: l.W * z, H: l.H * z}
}

// ExportSize returns the integer pixel size of a final export.
func (c *Canvas) ExportSize() (w, h int) {
	return int(math.Round(c.WidthIn * c.DPI)), int(math.Round(c.HeightIn * c.DPI))
}

// PreviewSize returns the integer pixel size of a preview export, which is
// the layout size rounded to whole pixels.
func (c *Canvas) PreviewSize() (w, h int) {
	l := c.LayoutSize()
	return int(math.Round(l.W)), int(math.Round(l.H))
}

// ScaleTo returns the per-axis factors mapping layout pixels onto a target
// raster of w x h pixels. The factors must agree within tolerance; otherwise
// images would be silently distorted, so divergence is reported as an
// INVALID_CONFIG error.
func (c *Canvas) ScaleTo(w, h int) (sx, sy float64, err error) {
	l := c.LayoutSize()
	sx = float64(w) / l.W
	sy = float64(h) / l.H
	if math.Abs(sx-sy)/math.Max(sx, sy) > scaleTolerance {
		return 0, 0, errors.New(errors.ErrCodeInvalidConfig,
			"non-uniform export scale %.4f x %.4f for %dx%d target", sx, sy, w, h)
	}
	return sx, sy, nil
}

// ExportScale returns the layout→export scale factors for a final export.
func (c *Canvas) ExportScale() (sx, sy float64, err error) {
	w, h := c.ExportSize()
	return c.ScaleTo(w, h)
}

// ToLayout converts a screen point at the current zoom to layout pixels.
func (c *Canvas) ToLayout(p Point) Point {
	z := float64(c.Zoom) / 100
	return Point{X: p.X / z, Y: p.Y / z}
}

// ToScreen converts a layout point to screen pixels at the current zoom.
func (c *Canvas) ToScreen(p Point) Point {
	z := float64(c.Zoom) / 100
	return Point{X: p.X * z, Y: p.Y * z}
}

// SetZoom sets the zoom percentage, snapped to the step grid and clamped to
// the configured range. It returns the applied value.
func (c *Canvas) SetZoom(percent int) int {
	c.Zoom = c.clampZoom(percent)
	return c.Zoom
}

// ZoomIn increases zoom by one step.
func (c *Canvas) ZoomIn() int { return c.SetZoom(c.Zoom + c.ZoomStep) }

// ZoomOut decreases zoom by one step.
func (c *Canvas) ZoomOut() int { return c.SetZoom(c.Zoom - c.ZoomStep) }

func (c *Canvas) clampZoom(z int) int {
	// Snap relative to MinZoom so that the extremes are always reachable.
	steps := int(math.Round(float64(z-c.MinZoom) / float64(c.ZoomStep)))
	z = c.MinZoom + steps*c.ZoomStep
	return max(c.MinZoom, min(c.MaxZoom, z))
}

// Clamp returns the top-left position that keeps a w x h box inside the
// layout area. Boxes larger than the canvas are pinned to the top/left edge.
func (c *Canvas) Clamp(x, y, w, h float64) (float64, float64) {
	l := c.LayoutSize()
	return ClampAxis(x, w, l.W), ClampAxis(y, h, l.H)
}

// ClampAxis clamps a position so that [pos, pos+extent] lies in [0, limit].
// When extent exceeds limit, or pos is NaN, the result is 0.
func ClampAxis(pos, extent, limit float64) float64 {
	if math.IsNaN(pos) {
		return 0
	}
	return math.Max(0, math.Min(pos, limit-extent))
}
