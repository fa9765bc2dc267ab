// Package raster composites design objects into a single bitmap.
//
// Rendering is deterministic: the same objects and target always produce
// the same pixels. Objects are decoded and drawn strictly in stacking order
// onto an opaque white background. Each visible object is placed with an
// affine transform built around its center (rotate, then flip, then scale
// the source into the object's box) and blended with its opacity as a
// uniform alpha mask.
//
// Any decode failure aborts the whole render; no partial image is returned.
package raster

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/matzehuels/gangsheet/pkg/canvas"
	"github.com/matzehuels/gangsheet/pkg/design"
	"github.com/matzehuels/gangsheet/pkg/errors"
)

// Mode selects the output resolution and resampling quality.
type Mode string

const (
	// Preview renders at layout resolution with bilinear resampling.
	Preview Mode = "preview"
	// Final renders at print DPI with Catmull-Rom resampling.
	Final Mode = "final"
)

// ParseMode validates a mode name. Empty means Final.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", Final:
		return Final, nil
	case Preview:
		return Preview, nil
	}
	return "", errors.New(errors.ErrCodeInvalidInput, "unknown export mode %q (want preview or final)", s)
}

// Target describes the output bitmap.
type Target struct {
	Width, Height  int
	ScaleX, ScaleY float64 // layout px → target px
	Mode           Mode

	// GridSpacing draws guide lines every GridSpacing target pixels under
	// the objects. Zero disables the grid.
	GridSpacing float64
}

// TargetFor returns the target for rendering canvas c in the given mode.
// The grid, when requested, is spaced one inch apart.
func TargetFor(c canvas.Canvas, mode Mode, grid bool) (Target, error) {
	var w, h int
	switch mode {
	case Preview:
		w, h = c.PreviewSize()
	case Final:
		w, h = c.ExportSize()
	default:
		return Target{}, errors.New(errors.ErrCodeInvalidInput, "unknown export mode %q", mode)
	}
	sx, sy, err := c.ScaleTo(w, h)
	if err != nil {
		return Target{}, err
	}
	t := Target{Width: w, Height: h, ScaleX: sx, ScaleY: sy, Mode: mode}
	if grid {
		t.GridSpacing = c.BaseScale * sx
	}
	return t, nil
}

func (t Target) validate() error {
	if t.Width <= 0 || t.Height <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "target size must be positive (got %dx%d)", t.Width, t.Height)
	}
	if t.ScaleX <= 0 || t.ScaleY <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "target scale must be positive (got %v, %v)", t.ScaleX, t.ScaleY)
	}
	return nil
}

func (t Target) interpolator() xdraw.Interpolator {
	if t.Mode == Preview {
		return xdraw.ApproxBiLinear
	}
	return xdraw.CatmullRom
}

// Render composites objects onto a new white bitmap. Hidden objects are
// skipped. Canceling ctx abandons the render.
func Render(ctx context.Context, objects []design.Object, t Target) (*image.RGBA, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	dst := image.NewRGBA(image.Rect(0, 0, t.Width, t.Height))
	fill(dst, color.White)
	if t.GridSpacing > 0 {
		drawGrid(dst, t.GridSpacing)
	}

	interp := t.interpolator()
	for _, o := range objects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !o.Visible {
			continue
		}
		src, err := Decode(o)
		if err != nil {
			return nil, err
		}
		if o.Opacity <= 0 {
			continue
		}
		drawObject(dst, src, o, t, interp)
	}
	return dst, nil
}

// Decode decodes an object's source image with EXIF orientation applied.
func Decode(o design.Object) (image.Image, error) {
	if len(o.Source) == 0 {
		return nil, errors.New(errors.ErrCodeDecodeFailure, "design %s (%s) has no image data", o.ID, o.Name)
	}
	if _, err := design.CheckPixels(o.Source); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecodeFailure, err, "decode design %s (%s)", o.ID, o.Name)
	}
	img, err := imaging.Decode(bytes.NewReader(o.Source), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecodeFailure, err, "decode design %s (%s)", o.ID, o.Name)
	}
	if b := img.Bounds(); b.Empty() {
		return nil, errors.New(errors.ErrCodeDecodeFailure, "design %s (%s) decoded to an empty image", o.ID, o.Name)
	}
	return img, nil
}

// Transform returns the affine map from source pixel coordinates to target
// coordinates for an object whose source bounds are sr.
func Transform(o design.Object, sr image.Rectangle, t Target) f64.Aff3 {
	iw, ih := float64(sr.Dx()), float64(sr.Dy())
	dw, dh := o.Width*t.ScaleX, o.Height*t.ScaleY
	cx := o.X*t.ScaleX + dw/2
	cy := o.Y*t.ScaleY + dh/2

	a, d := dw/iw, dh/ih
	if o.FlipH {
		a = -a
	}
	if o.FlipV {
		d = -d
	}
	sin, cos := math.Sincos(o.Rotation * math.Pi / 180)

	// Source point relative to the source center.
	ox := float64(sr.Min.X) + iw/2
	oy := float64(sr.Min.Y) + ih/2

	return f64.Aff3{
		cos * a, -sin * d, cx - cos*a*ox + sin*d*oy,
		sin * a, cos * d, cy - sin*a*ox - cos*d*oy,
	}
}

func drawObject(dst *image.RGBA, src image.Image, o design.Object, t Target, interp xdraw.Interpolator) {
	sr := src.Bounds()
	var opts *xdraw.Options
	if o.Opacity < 1 {
		a := uint16(math.Round(o.Opacity * 0xffff))
		opts = &xdraw.Options{SrcMask: image.NewUniform(color.Alpha16{A: a})}
	}
	interp.Transform(dst, Transform(o, sr, t), src, sr, xdraw.Over, opts)
}

func fill(dst *image.RGBA, c color.Color) {
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{}, xdraw.Src)
}

// drawGrid strokes light guide lines every spacing pixels.
func drawGrid(dst *image.RGBA, spacing float64) {
	b := dst.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	dc := gg.NewContextForRGBA(dst)
	dc.SetRGBA255(210, 214, 220, 255)
	dc.SetLineWidth(1)
	for x := spacing; x < w; x += spacing {
		dc.DrawLine(x, 0, x, h)
	}
	for y := spacing; y < h; y += spacing {
		dc.DrawLine(0, y, w, y)
	}
	dc.Stroke()
}
