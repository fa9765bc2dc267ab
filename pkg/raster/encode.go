package raster

import (
	"bytes"
	"context"
	"image"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/matzehuels/gangsheet/pkg/design"
	"github.com/matzehuels/gangsheet/pkg/errors"
)

// JPEGQuality is the quality used for JPEG exports.
const JPEGQuality = 95

// Format is an output encoding.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
)

// ParseFormat validates a format name. Empty means PNG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "png":
		return PNG, nil
	case "jpeg", "jpg":
		return JPEG, nil
	}
	return "", errors.New(errors.ErrCodeInvalidFormat, "unsupported export format %q (want png or jpeg)", s)
}

// MIME returns the content type of the format.
func (f Format) MIME() string {
	if f == JPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	if f == JPEG {
		return ".jpg"
	}
	return ".png"
}

// Artifact is an encoded export.
type Artifact struct {
	Data   []byte `json:"-"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format Format `json:"format"`
}

// Size returns the encoded byte size.
func (a Artifact) Size() int { return len(a.Data) }

// Encode writes img in the given format. PNG is lossless; JPEG uses
// JPEGQuality.
func Encode(img image.Image, f Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch f {
	case PNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	case JPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality))
	default:
		return nil, errors.New(errors.ErrCodeInvalidFormat, "unsupported export format %q", f)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode %s", f)
	}
	return buf.Bytes(), nil
}

// Export renders and encodes objects in one step.
func Export(ctx context.Context, objects []design.Object, t Target, f Format) (Artifact, error) {
	img, err := Render(ctx, objects, t)
	if err != nil {
		return Artifact{}, err
	}
	data, err := Encode(img, f)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Data: data, Width: t.Width, Height: t.Height, Format: f}, nil
}
