// Package nest implements the auto-nest shelf packer.
//
// Pack is a deterministic greedy shelf algorithm. Boxes are stably sorted by
// height (tallest first) and laid out left to right in rows separated by a
// fixed margin; a box that would cross the right margin starts a new row
// below the tallest box of the current one.
//
// Pack is pure: it knows nothing about design objects and returns only
// positions, in input order. Callers decide which boxes take part and how
// results that leave the canvas are handled.
//
// Boxes wider than the usable width are still placed flush-left in their own
// row. They are the one case where packed boxes may overflow the canvas.
package nest

import (
	"sort"
)

// DefaultMargin is the gap kept between boxes and around the canvas edge.
const DefaultMargin = 5.0

// Box is the size of one item to pack.
type Box struct {
	W, H float64
}

// Position is the packed top-left corner of a box.
type Position struct {
	X, Y float64
}

// Options configures packing.
type Options struct {
	// Margin is the gap between boxes and around the edge. Zero uses
	// DefaultMargin; negative values are treated as zero.
	Margin float64

	// IncludeHidden packs invisible objects too. Pack itself ignores it;
	// it is honored by callers that select the boxes.
	IncludeHidden bool
}

// margin returns the effective margin.
func (o Options) margin() float64 {
	switch {
	case o.Margin == 0:
		return DefaultMargin
	case o.Margin < 0:
		return 0
	default:
		return o.Margin
	}
}

// Layout is the result of a pack.
type Layout struct {
	Positions []Position // in input order
	Rows      int
	Height    float64 // bottom edge of the last row, including the margin
}

// Pack lays out boxes on a canvas of the given width.
func Pack(boxes []Box, width float64, opts Options) Layout {
	m := opts.margin()
	out := Layout{Positions: make([]Position, len(boxes))}
	if len(boxes) == 0 {
		return out
	}

	order := make([]int, len(boxes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return boxes[order[a]].H > boxes[order[b]].H
	})

	x, y, rowH := m, m, 0.0
	out.Rows = 1
	for _, i := range order {
		b := boxes[i]
		if x+b.W > width-m && x > m {
			x = m
			y += rowH + m
			rowH = 0
			out.Rows++
		}
		out.Positions[i] = Position{X: x, Y: y}
		x += b.W + m
		rowH = max(rowH, b.H)
	}
	out.Height = y + rowH + m
	return out
}
