// Package design models the placed images of a gang sheet and the
// interactions that edit them.
//
// A [Board] owns an ordered list of [Object] values (the last entry is the
// topmost) together with the current selection and drag state. Every
// position and size is expressed in layout pixels (see package canvas), and
// every mutation re-applies the model invariants:
//
//   - Width and Height never drop below MinSize.
//   - The bounding box stays inside the canvas after any move.
//   - Opacity stays in [0, 1] and Rotation in [0, 360).
//   - Object ids are never reused.
//
// Boards are safe for concurrent use; all state is guarded by one mutex.
package design

import (
	"math"
)

const (
	// MinSize is the smallest width or height an object may have.
	MinSize = 5.0

	// DefaultFraction is the share of the canvas width a new upload may
	// occupy by default.
	DefaultFraction = 0.25

	// CascadeOrigin and CascadeStep position new uploads diagonally so
	// that sequential uploads do not fully overlap.
	CascadeOrigin = 10.0
	CascadeStep   = 10.0

	// cascadeSlots bounds the diagonal cascade before it wraps.
	cascadeSlots = 20

	// DuplicateOffset is the distance a duplicate is shifted from its source.
	DuplicateOffset = 10.0

	// NudgeStep and NudgeStepLarge are the usual keyboard nudge distances.
	NudgeStep      = 1.0
	NudgeStepLarge = 10.0
)

// Object is one placed image.
//
// Source holds the raw uploaded bytes. It is shared between copies and must
// never be mutated in place.
type Object struct {
	ID           string  `json:"id" bson:"id"`
	Name         string  `json:"name" bson:"name"`
	MIME         string  `json:"mime" bson:"mime"`
	Source       []byte  `json:"source,omitempty" bson:"source,omitempty"`
	SourceWidth  int     `json:"source_width" bson:"source_width"`
	SourceHeight int     `json:"source_height" bson:"source_height"`
	X            float64 `json:"x" bson:"x"`
	Y            float64 `json:"y" bson:"y"`
	Width        float64 `json:"width" bson:"width"`
	Height       float64 `json:"height" bson:"height"`
	Rotation     float64 `json:"rotation" bson:"rotation"`
	FlipH        bool    `json:"flip_h" bson:"flip_h"`
	FlipV        bool    `json:"flip_v" bson:"flip_v"`
	Opacity      float64 `json:"opacity" bson:"opacity"`
	Locked       bool    `json:"locked" bson:"locked"`
	Visible      bool    `json:"visible" bson:"visible"`
}

// Contains reports whether the layout point (px, py) lies inside the
// object's unrotated bounding box. Edges are inclusive.
func (o Object) Contains(px, py float64) bool {
	return px >= o.X && px <= o.X+o.Width && py >= o.Y && py <= o.Y+o.Height
}

// Overlaps reports whether two bounding boxes share interior area.
func (o Object) Overlaps(p Object) bool {
	return o.X < p.X+p.Width && p.X < o.X+o.Width &&
		o.Y < p.Y+p.Height && p.Y < o.Y+o.Height
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Name     *string  `json:"name,omitempty"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Width    *float64 `json:"width,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
	FlipH    *bool    `json:"flip_h,omitempty"`
	FlipV    *bool    `json:"flip_v,omitempty"`
	Opacity  *float64 `json:"opacity,omitempty"`
	Locked   *bool    `json:"locked,omitempty"`
	Visible  *bool    `json:"visible,omitempty"`
}

// apply merges the patch into o. Geometry is skipped while the object stays
// locked after the patch.
func (p Patch) apply(o *Object) {
	if p.Locked != nil {
		o.Locked = *p.Locked
	}
	if p.Name != nil {
		o.Name = *p.Name
	}
	if !o.Locked {
		if p.X != nil {
			o.X = *p.X
		}
		if p.Y != nil {
			o.Y = *p.Y
		}
		if p.Width != nil {
			o.Width = *p.Width
		}
		if p.Height != nil {
			o.Height = *p.Height
		}
	}
	if p.Rotation != nil {
		o.Rotation = *p.Rotation
	}
	if p.FlipH != nil {
		o.FlipH = *p.FlipH
	}
	if p.FlipV != nil {
		o.FlipV = *p.FlipV
	}
	if p.Opacity != nil {
		o.Opacity = *p.Opacity
	}
	if p.Visible != nil {
		o.Visible = *p.Visible
	}
}

// NormalizeRotation maps degrees into [0, 360).
func NormalizeRotation(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	r := math.Mod(deg, 360)
	if r < 0 {
		r += 360
	}
	if r == 0 || r == 360 {
		return 0
	}
	return r
}

// ClampOpacity maps v into [0, 1]. NaN becomes fully opaque.
func ClampOpacity(v float64) float64 {
	if math.IsNaN(v) {
		return 1
	}
	return math.Max(0, math.Min(1, v))
}

func capInf(v, limit float64) float64 {
	if math.IsInf(v, 1) {
		return limit
	}
	return v
}

// floorSize applies the minimum size to a dimension.
func floorSize(v float64) float64 {
	if math.IsNaN(v) || v < MinSize {
		return MinSize
	}
	return v
}
