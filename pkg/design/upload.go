package design

import (
	"bytes"
	"image"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/matzehuels/gangsheet/pkg/canvas"
	"github.com/matzehuels/gangsheet/pkg/errors"
)

// MaxUploadBytes bounds a single upload.
const MaxUploadBytes = 32 << 20

// MaxSourcePixels bounds the declared pixel count of a source image.
// Compressed size says little about the decoded bitmap, so the limit is
// checked against the header before any pixels are decoded.
const MaxSourcePixels = 100_000_000

// CheckPixels reads the image header in data and rejects images whose
// declared size exceeds MaxSourcePixels. It returns the decoder name.
func CheckPixels(data []byte) (string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > MaxSourcePixels {
		return format, errors.New(errors.ErrCodeInvalidImage,
			"%dx%d image exceeds %d pixels", cfg.Width, cfg.Height, MaxSourcePixels)
	}
	return format, nil
}

// Upload is a user-supplied image file.
type Upload struct {
	Name string // original file name
	MIME string // declared content type, may be empty
	Data []byte
}

// Info describes a decoded upload.
type Info struct {
	Width  int    // natural width after EXIF orientation
	Height int    // natural height after EXIF orientation
	MIME   string // sniffed content type
	Format string // decoder name, e.g. "png"
}

// Inspect validates an upload and reads its natural size. A declared MIME
// type must be an image type, and the data must decode completely.
func Inspect(u Upload) (Info, error) {
	if len(u.Data) == 0 {
		return Info{}, errors.New(errors.ErrCodeInvalidImage, "%s: empty file", u.Name)
	}
	if len(u.Data) > MaxUploadBytes {
		return Info{}, errors.New(errors.ErrCodeInvalidImage, "%s: file exceeds %d bytes", u.Name, MaxUploadBytes)
	}
	if u.MIME != "" && !isImageMIME(u.MIME) {
		return Info{}, errors.New(errors.ErrCodeInvalidImage, "%s: %s is not an image", u.Name, u.MIME)
	}
	format, err := CheckPixels(u.Data)
	if errors.Is(err, errors.ErrCodeInvalidImage) {
		return Info{}, errors.New(errors.ErrCodeInvalidImage, "%s: %s", u.Name, errors.UserMessage(err))
	}
	if err != nil {
		return Info{}, errors.Wrap(errors.ErrCodeInvalidImage, err, "%s: unsupported image", u.Name)
	}
	img, err := imaging.Decode(bytes.NewReader(u.Data), imaging.AutoOrientation(true))
	if err != nil {
		return Info{}, errors.Wrap(errors.ErrCodeInvalidImage, err, "%s: decode", u.Name)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return Info{}, errors.New(errors.ErrCodeInvalidImage, "%s: zero-sized image", u.Name)
	}
	mime := http.DetectContentType(u.Data)
	if !isImageMIME(mime) {
		mime = "image/" + format
	}
	return Info{Width: b.Dx(), Height: b.Dy(), MIME: mime, Format: format}, nil
}

func isImageMIME(m string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(m)), "image/")
}

// DefaultSize returns the initial size for an image of natural size w x h
// on a canvas of the given layout size. The width is the smaller of a
// quarter of the canvas width and the natural width; the height preserves
// the aspect ratio. Images taller than the canvas are scaled down to fit.
func DefaultSize(w, h int, layout canvas.Size) (float64, float64) {
	iw, ih := float64(w), float64(h)
	dw := min(layout.W*DefaultFraction, iw)
	dh := ih * dw / iw
	if dh > layout.H {
		dw *= layout.H / dh
		dh = layout.H
	}
	return floorSize(dw), floorSize(dh)
}

// cascade returns the initial top-left corner for the nth upload.
func cascade(n int) float64 {
	if n < 0 {
		n = 0
	}
	return CascadeOrigin + CascadeStep*float64(n%cascadeSlots)
}
