package design

import (
	"github.com/matzehuels/gangsheet/pkg/canvas"
)

// Axis selects a flip direction.
type Axis int

const (
	Horizontal Axis = iota
	Vertical
)

// dragState is the pointer state machine: idle when id is empty, dragging
// otherwise. grab is the pointer offset from the object's top-left corner.
type dragState struct {
	id   string
	grab canvas.Point
}

// =============================================================================
// Hit testing and selection
// =============================================================================

// HitTest returns the topmost visible object whose bounding box contains the
// layout point p. Locked objects are hit; opacity is ignored.
func (b *Board) HitTest(p canvas.Point) (Object, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o := b.hit(p); o != nil {
		return *o, true
	}
	return Object{}, false
}

func (b *Board) hit(p canvas.Point) *Object {
	for i := len(b.objects) - 1; i >= 0; i-- {
		o := b.objects[i]
		if o.Visible && o.Contains(p.X, p.Y) {
			return o
		}
	}
	return nil
}

// Selected returns the selected object, if any.
func (b *Board) Selected() (Object, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o := b.find(b.selected); o != nil {
		return *o, true
	}
	return Object{}, false
}

// SelectedID returns the selected object id or "". Property operations
// called with "" are no-ops.
func (b *Board) SelectedID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selected
}

// Select sets the selection. An unknown id clears it.
func (b *Board) Select(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.find(id) == nil {
		b.selected = ""
		return false
	}
	b.selected = id
	return true
}

// ClearSelection deselects everything.
func (b *Board) ClearSelection() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selected = ""
}

// =============================================================================
// Pointer state machine
// =============================================================================

// PointerDown handles a press at a screen point. A hit selects the object
// and, unless it is locked, starts a drag. A miss clears the selection.
func (b *Board) PointerDown(screen canvas.Point) (Object, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.canvas.ToLayout(screen)
	o := b.hit(p)
	if o == nil {
		b.selected = ""
		b.drag = dragState{}
		return Object{}, false
	}
	b.selected = o.ID
	b.drag = dragState{}
	if !o.Locked {
		b.drag = dragState{id: o.ID, grab: p.Sub(canvas.Point{X: o.X, Y: o.Y})}
	}
	return *o, true
}

// PointerMove moves the dragged object so the grab point follows the
// pointer, clamped inside the canvas. It is a no-op when idle.
func (b *Board) PointerMove(screen canvas.Point) (Object, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.drag.id == "" {
		return Object{}, false
	}
	o := b.find(b.drag.id)
	if o == nil || o.Locked {
		b.drag = dragState{}
		return Object{}, false
	}
	pos := b.canvas.ToLayout(screen).Sub(b.drag.grab)
	o.X, o.Y = b.canvas.Clamp(pos.X, pos.Y, o.Width, o.Height)
	return *o, true
}

// PointerUp ends a drag. The object keeps its last position.
func (b *Board) PointerUp() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drag = dragState{}
}

// Dragging reports whether a drag is in progress.
func (b *Board) Dragging() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drag.id != ""
}

// =============================================================================
// Property operations
// =============================================================================

// mutate runs fn on the object and re-normalizes it.
func (b *Board) mutate(id string, fn func(o *Object) bool) (Object, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.find(id)
	if o == nil {
		return Object{}, false
	}
	if !fn(o) {
		return *o, false
	}
	b.normalize(o)
	return *o, true
}

// Rotate adds delta degrees to the rotation.
func (b *Board) Rotate(id string, delta float64) (Object, bool) {
	return b.mutate(id, func(o *Object) bool {
		o.Rotation += delta
		return true
	})
}

// SetRotation sets the absolute rotation.
func (b *Board) SetRotation(id string, deg float64) (Object, bool) {
	return b.mutate(id, func(o *Object) bool {
		o.Rotation = deg
		return true
	})
}

// Resize sets the size, floored at MinSize, and re-clamps the position.
// Locked objects are left unchanged.
func (b *Board) Resize(id string, w, h float64) (Object, bool) {
	return b.mutate(id, func(o *Object) bool {
		if o.Locked {
			return false
		}
		o.Width, o.Height = w, h
		return true
	})
}

// Move sets the top-left corner, clamped inside the canvas. Locked objects
// are left unchanged.
func (b *Board) Move(id string, x, y float64) (Object, bool) {
	return b.mutate(id, func(o *Object) bool {
		if o.Locked {
			return false
		}
		o.X, o.Y = x, y
		return true
	})
}

// Nudge moves an object by (dx, dy). Locked objects are left unchanged.
func (b *Board) Nudge(id string, dx, dy float64) (Object, bool) {
	return b.mutate(id, func(o *Object) bool {
		if o.Locked {
			return false
		}
		o.X += dx
		o.Y += dy
		return true
	})
}

// SetOpacity sets the opacity, clamped to [0, 1].
func (b *Board) SetOpacity(id string, v float64) (Object, bool) {
	return b.mutate(id, func(o *Object) bool {
		o.Opacity = v
		return true
	})
}

// ToggleFlip mirrors the object along one axis.
func (b *Board) ToggleFlip(id string, axis Axis) (Object, bool) {
	return b.mutate(id, func(o *Object) bool {
		if axis == Vertical {
			o.FlipV = !o.FlipV
		} else {
			o.FlipH = !o.FlipH
		}
		return true
	})
}

// ToggleLock locks or unlocks an object. Locking the dragged object ends the
// drag.
func (b *Board) ToggleLock(id string) (Object, bool) {
	return b.mutate(id, func(o *Object) bool {
		o.Locked = !o.Locked
		if o.Locked && b.drag.id == o.ID {
			b.drag = dragState{}
		}
		return true
	})
}

// ToggleVisibility shows or hides an object.
func (b *Board) ToggleVisibility(id string) (Object, bool) {
	return b.mutate(id, func(o *Object) bool {
		o.Visible = !o.Visible
		return true
	})
}

// ResetTransform clears rotation and flips and restores full opacity.
func (b *Board) ResetTransform(id string) (Object, bool) {
	return b.mutate(id, func(o *Object) bool {
		o.Rotation = 0
		o.FlipH, o.FlipV = false, false
		o.Opacity = 1
		return true
	})
}

// =============================================================================
// Stacking order
// =============================================================================

// BringToFront moves an object to the top of the stack.
func (b *Board) BringToFront(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.index(id)
	if i < 0 {
		return false
	}
	o := b.objects[i]
	copy(b.objects[i:], b.objects[i+1:])
	b.objects[len(b.objects)-1] = o
	return true
}

// SendToBack moves an object to the bottom of the stack.
func (b *Board) SendToBack(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.index(id)
	if i < 0 {
		return false
	}
	o := b.objects[i]
	copy(b.objects[1:i+1], b.objects[:i])
	b.objects[0] = o
	return true
}
