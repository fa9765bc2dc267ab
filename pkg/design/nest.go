package design

import (
	"github.com/matzehuels/gangsheet/pkg/errors"
	"github.com/matzehuels/gangsheet/pkg/nest"
)

// NestResult reports what an auto-nest changed.
type NestResult struct {
	Packed   int      `json:"packed"`
	Skipped  int      `json:"skipped"` // hidden objects left in place
	Rows     int      `json:"rows"`
	Height   float64  `json:"height"`   // used height in layout pixels
	Overflow []string `json:"overflow"` // ids clamped back inside the canvas
}

// Nest repositions objects with the shelf packer. It runs under the board
// lock, changes only X and Y, and keeps the stacking order. Hidden objects
// are skipped unless opts.IncludeHidden is set. Objects the packer places
// below the canvas bottom are clamped inside and listed in Overflow; they may
// then overlap. Objects wider than the canvas end up at x = 0.
func (b *Board) Nest(opts nest.Options) (NestResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var targets []*Object
	for _, o := range b.objects {
		if o.Visible || opts.IncludeHidden {
			targets = append(targets, o)
		}
	}
	if len(targets) == 0 {
		return NestResult{}, errors.New(errors.ErrCodeEmptyLayout, "nothing to nest")
	}

	boxes := make([]nest.Box, len(targets))
	for i, o := range targets {
		boxes[i] = nest.Box{W: o.Width, H: o.Height}
	}
	layout := b.canvas.LayoutSize()
	packed := nest.Pack(boxes, layout.W, opts)

	res := NestResult{
		Packed:  len(targets),
		Skipped: len(b.objects) - len(targets),
		Rows:    packed.Rows,
		Height:  packed.Height,
	}
	for i, o := range targets {
		p := packed.Positions[i]
		x, y := b.canvas.Clamp(p.X, p.Y, o.Width, o.Height)
		if y != p.Y {
			res.Overflow = append(res.Overflow, o.ID)
		}
		o.X, o.Y = x, y
	}
	b.drag = dragState{}
	return res, nil
}
