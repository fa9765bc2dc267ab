package design

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/matzehuels/gangsheet/pkg/canvas"
	"github.com/matzehuels/gangsheet/pkg/errors"
	"github.com/matzehuels/gangsheet/pkg/nest"
)

func TestHitTest(t *testing.T) {
	hidden := box(0, 0, 720, 720)
	hidden.Visible = false
	ghost := box(400, 400, 50, 50)
	ghost.Opacity = 0
	locked := box(500, 500, 50, 50)
	locked.Locked = true

	// obj-1 bottom, obj-2 overlapping on top, obj-3 hidden over everything.
	b := restore(t, square, box(10, 10, 100, 100), box(50, 50, 100, 100), hidden, ghost, locked)

	tests := []struct {
		name   string
		p      canvas.Point
		wantID string
	}{
		{"topmost wins", canvas.Point{X: 60, Y: 60}, "obj-2"},
		{"only bottom", canvas.Point{X: 20, Y: 20}, "obj-1"},
		{"inclusive edge", canvas.Point{X: 150, Y: 150}, "obj-2"},
		{"transparent still hits", canvas.Point{X: 425, Y: 425}, "obj-4"},
		{"locked still hits", canvas.Point{X: 510, Y: 510}, "obj-5"},
		{"hidden ignored", canvas.Point{X: 700, Y: 10}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, ok := b.HitTest(tt.p)
			if tt.wantID == "" {
				if ok {
					t.Errorf("HitTest(%v) = %s, want miss", tt.p, o.ID)
				}
				return
			}
			if !ok || o.ID != tt.wantID {
				t.Errorf("HitTest(%v) = %q, %v, want %q", tt.p, o.ID, ok, tt.wantID)
			}
		})
	}
}

func TestDrag(t *testing.T) {
	b := restore(t, square, box(10, 10, 100, 100))

	if _, ok := b.PointerDown(canvas.Point{X: 30, Y: 30}); !ok {
		t.Fatal("PointerDown missed the object")
	}
	if !b.Dragging() || b.SelectedID() != "obj-1" {
		t.Fatal("expected drag of obj-1")
	}

	o, _ := b.PointerMove(canvas.Point{X: 100, Y: 100})
	if o.X != 80 || o.Y != 80 {
		t.Errorf("after move = (%v, %v), want (80, 80)", o.X, o.Y)
	}

	o, _ = b.PointerMove(canvas.Point{X: 5000, Y: -300})
	if o.X != 620 || o.Y != 0 {
		t.Errorf("clamped move = (%v, %v), want (620, 0)", o.X, o.Y)
	}

	b.PointerUp()
	if b.Dragging() {
		t.Error("PointerUp should end the drag")
	}
	if _, ok := b.PointerMove(canvas.Point{X: 200, Y: 200}); ok {
		t.Error("PointerMove while idle should be a no-op")
	}
	if o, _ := b.Get("obj-1"); o.X != 620 || o.Y != 0 {
		t.Errorf("object should keep last drag position, got (%v, %v)", o.X, o.Y)
	}
}

func TestDragAtZoom(t *testing.T) {
	b := restore(t, square, box(100, 100, 50, 50))
	b.SetZoom(50)

	// Screen (60, 60) is layout (120, 120).
	if _, ok := b.PointerDown(canvas.Point{X: 60, Y: 60}); !ok {
		t.Fatal("PointerDown missed at 50% zoom")
	}
	o, _ := b.PointerMove(canvas.Point{X: 110, Y: 60})
	if o.X != 200 || o.Y != 100 {
		t.Errorf("zoomed drag = (%v, %v), want (200, 100)", o.X, o.Y)
	}
}

func TestLockedNotDraggable(t *testing.T) {
	locked := box(10, 10, 100, 100)
	locked.Locked = true
	b := restore(t, square, locked)

	if _, ok := b.PointerDown(canvas.Point{X: 20, Y: 20}); !ok {
		t.Fatal("locked object should be selectable")
	}
	if b.Dragging() {
		t.Error("locked object should not start a drag")
	}
	b.PointerMove(canvas.Point{X: 300, Y: 300})
	if o, _ := b.Get("obj-1"); o.X != 10 {
		t.Error("locked object moved")
	}
	if _, ok := b.Nudge("obj-1", 5, 5); ok {
		t.Error("Nudge on locked object should be a no-op")
	}
	if _, ok := b.Resize("obj-1", 10, 10); ok {
		t.Error("Resize on locked object should be a no-op")
	}
}

func TestLockDuringDrag(t *testing.T) {
	b := restore(t, square, box(10, 10, 100, 100))
	b.PointerDown(canvas.Point{X: 20, Y: 20})
	b.ToggleLock("obj-1")
	if b.Dragging() {
		t.Error("locking should end the drag")
	}
}

func TestClickEmptyClearsSelection(t *testing.T) {
	b := restore(t, square, box(10, 10, 100, 100))
	b.Select("obj-1")
	if _, ok := b.PointerDown(canvas.Point{X: 600, Y: 600}); ok {
		t.Fatal("expected miss")
	}
	if b.SelectedID() != "" || b.Dragging() {
		t.Error("empty click should clear selection")
	}
}

func TestDeleteDuringDrag(t *testing.T) {
	b := restore(t, square, box(10, 10, 100, 100))
	b.PointerDown(canvas.Point{X: 20, Y: 20})
	b.Delete("obj-1")
	if b.Dragging() {
		t.Error("deleting the dragged object should end the drag")
	}
}

func TestRotateRoundTrip(t *testing.T) {
	deltas := []float64{90, -90, 45, 359.5, -720, 1e3, 0.1}
	for _, start := range []float64{0, 10, 270} {
		for _, d := range deltas {
			o0 := box(10, 10, 100, 100)
			o0.Rotation = start
			b := restore(t, square, o0)
			b.Rotate("obj-1", d)
			o, _ := b.Rotate("obj-1", -d)
			diff := math.Abs(o.Rotation - start)
			if diff > 1e-9 && math.Abs(diff-360) > 1e-9 {
				t.Errorf("rotate(%v) then rotate(%v) from %v = %v", d, -d, start, o.Rotation)
			}
			if o.Rotation < 0 || o.Rotation >= 360 {
				t.Errorf("rotation %v outside [0, 360)", o.Rotation)
			}
		}
	}
}

func TestPropertyOperations(t *testing.T) {
	b := restore(t, square, box(10, 10, 100, 100))

	o, _ := b.ToggleFlip("obj-1", Horizontal)
	if !o.FlipH || o.FlipV {
		t.Errorf("ToggleFlip(H) = %+v", o)
	}
	o, _ = b.ToggleFlip("obj-1", Vertical)
	if !o.FlipV {
		t.Error("ToggleFlip(V) did not set FlipV")
	}
	o, _ = b.SetOpacity("obj-1", 0.25)
	if o.Opacity != 0.25 {
		t.Errorf("SetOpacity = %v", o.Opacity)
	}
	b.Rotate("obj-1", 30)
	o, _ = b.Resize("obj-1", 2, 300)
	if o.Width != MinSize || o.Height != 300 {
		t.Errorf("Resize = %vx%v", o.Width, o.Height)
	}
	o, _ = b.ToggleVisibility("obj-1")
	if o.Visible {
		t.Error("ToggleVisibility should hide")
	}

	o, _ = b.ResetTransform("obj-1")
	if o.Rotation != 0 || o.FlipH || o.FlipV || o.Opacity != 1 {
		t.Errorf("ResetTransform = %+v", o)
	}
	if o.Width != MinSize || o.Height != 300 || o.X != 10 || o.Visible {
		t.Errorf("ResetTransform touched position, size, or visibility: %+v", o)
	}
}

func TestNudge(t *testing.T) {
	b := restore(t, square, box(10, 10, 100, 100))
	o, _ := b.Nudge("obj-1", NudgeStepLarge, -NudgeStep)
	if o.X != 20 || o.Y != 9 {
		t.Errorf("Nudge = (%v, %v)", o.X, o.Y)
	}
	o, _ = b.Nudge("obj-1", -1000, 0)
	if o.X != 0 {
		t.Errorf("Nudge past edge = %v, want 0", o.X)
	}
}

func TestStackOrder(t *testing.T) {
	b := restore(t, square, box(0, 0, 10, 10), box(0, 0, 10, 10), box(0, 0, 10, 10))

	ids := func() []string {
		var out []string
		for _, o := range b.Objects() {
			out = append(out, o.ID)
		}
		return out
	}

	b.BringToFront("obj-1")
	if got := ids(); got[0] != "obj-2" || got[1] != "obj-3" || got[2] != "obj-1" {
		t.Errorf("after BringToFront = %v", got)
	}
	b.SendToBack("obj-1")
	if got := ids(); got[0] != "obj-1" || got[1] != "obj-2" || got[2] != "obj-3" {
		t.Errorf("after SendToBack = %v", got)
	}
	if b.BringToFront("missing") || b.SendToBack("missing") {
		t.Error("unknown id should report false")
	}
	if o, ok := b.HitTest(canvas.Point{X: 5, Y: 5}); !ok || o.ID != "obj-3" {
		t.Errorf("HitTest after reorder = %s", o.ID)
	}
}

func TestBoundsInvariant(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	b := restore(t, square,
		box(10, 10, 100, 100), box(200, 50, 300, 40), box(600, 600, 120, 120), box(0, 0, 5, 5))

	for i := 0; i < 500; i++ {
		id := b.Objects()[rng.IntN(4)].ID
		v := func() float64 { return rng.Float64()*2000 - 1000 }
		switch rng.IntN(6) {
		case 0:
			b.Nudge(id, v(), v())
		case 1:
			b.Move(id, v(), v())
		case 2:
			b.Resize(id, v(), v())
		case 3:
			b.PointerDown(canvas.Point{X: rng.Float64() * 720, Y: rng.Float64() * 720})
			b.PointerMove(canvas.Point{X: v(), Y: v()})
			b.PointerUp()
		case 4:
			b.Update(id, Patch{X: ptr(v()), Width: ptr(v())})
		case 5:
			b.Nest(nest.Options{IncludeHidden: true})
		}
		for _, o := range b.Objects() {
			if o.Width < MinSize || o.Height < MinSize {
				t.Fatalf("step %d: size below floor %+v", i, o)
			}
			if o.Width > 720 || o.Height > 720 {
				continue
			}
			if o.X < 0 || o.Y < 0 || o.X+o.Width > 720 || o.Y+o.Height > 720 {
				t.Fatalf("step %d: object outside canvas %+v", i, o)
			}
		}
	}
}

func TestNonFiniteGeometry(t *testing.T) {
	nan, inf := math.NaN(), math.Inf(1)
	tests := []struct {
		name       string
		op         func(b *Board, id string)
		x, y, w, h float64
	}{
		{"move NaN", func(b *Board, id string) { b.Move(id, nan, 5) }, 0, 5, 100, 100},
		{"move +Inf", func(b *Board, id string) { b.Move(id, inf, inf) }, 620, 620, 100, 100},
		{"nudge NaN", func(b *Board, id string) { b.Nudge(id, nan, 0) }, 0, 10, 100, 100},
		{"nudge -Inf", func(b *Board, id string) { b.Nudge(id, math.Inf(-1), 0) }, 0, 10, 100, 100},
		{"resize +Inf", func(b *Board, id string) { b.Resize(id, inf, 10) }, 0, 10, 720, 10},
		{"resize NaN", func(b *Board, id string) { b.Resize(id, nan, nan) }, 10, 10, MinSize, MinSize},
		{"patch NaN", func(b *Board, id string) { b.Update(id, Patch{X: ptr(nan), Height: ptr(inf)}) }, 0, 0, 100, 720},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := restore(t, square, box(10, 10, 100, 100))
			id := b.Objects()[0].ID
			tt.op(b, id)
			o := b.Objects()[0]
			if o.X != tt.x || o.Y != tt.y || o.Width != tt.w || o.Height != tt.h {
				t.Errorf("got (%v,%v %vx%v), want (%v,%v %vx%v)",
					o.X, o.Y, o.Width, o.Height, tt.x, tt.y, tt.w, tt.h)
			}
		})
	}
}

func TestNestExample(t *testing.T) {
	b := restore(t, square, box(300, 300, 100, 50), box(10, 400, 100, 100), box(500, 10, 100, 75))
	res, err := b.Nest(nest.Options{})
	if err != nil {
		t.Fatalf("Nest() error: %v", err)
	}
	if res.Packed != 3 || res.Rows != 1 || len(res.Overflow) != 0 {
		t.Errorf("result = %+v", res)
	}

	objs := b.Objects()
	if objs[1].X != 5 || objs[2].X != 110 || objs[0].X != 215 {
		t.Errorf("row order = %v, %v, %v", objs[1].X, objs[2].X, objs[0].X)
	}
	for _, o := range objs {
		if o.Y != 5 {
			t.Errorf("%s y = %v, want 5", o.ID, o.Y)
		}
	}
	if objs[0].ID != "obj-1" || objs[2].ID != "obj-3" {
		t.Error("nest should not change stacking order")
	}
	assertDisjoint(t, objs)
}

func TestNestIdempotent(t *testing.T) {
	b := restore(t, square,
		box(0, 0, 200, 120), box(0, 0, 90, 300), box(0, 0, 250, 60), box(0, 0, 30, 30), box(0, 0, 400, 90))
	b.SetOpacity("obj-2", 0.3)
	b.Rotate("obj-3", 45)

	if _, err := b.Nest(nest.Options{}); err != nil {
		t.Fatal(err)
	}
	first := b.Objects()
	if _, err := b.Nest(nest.Options{}); err != nil {
		t.Fatal(err)
	}
	second := b.Objects()
	for i := range first {
		if first[i].X != second[i].X || first[i].Y != second[i].Y {
			t.Errorf("%s moved on second nest", first[i].ID)
		}
	}
	if second[1].Opacity != 0.3 || second[2].Rotation != 45 {
		t.Error("nest changed more than position")
	}
	assertDisjoint(t, second)
}

func TestNestHidden(t *testing.T) {
	hidden := box(600, 600, 50, 50)
	hidden.Visible = false
	b := restore(t, square, box(300, 300, 100, 100), hidden)

	res, err := b.Nest(nest.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Packed != 1 || res.Skipped != 1 {
		t.Errorf("result = %+v", res)
	}
	if o, _ := b.Get("obj-2"); o.X != 600 || o.Y != 600 {
		t.Error("hidden object should stay in place")
	}

	if _, err := b.Nest(nest.Options{IncludeHidden: true}); err != nil {
		t.Fatal(err)
	}
	if o, _ := b.Get("obj-2"); o.X == 600 {
		t.Error("IncludeHidden should pack hidden objects")
	}
}

func TestNestLockedStillPacked(t *testing.T) {
	locked := box(300, 300, 100, 100)
	locked.Locked = true
	b := restore(t, square, locked)
	b.Nest(nest.Options{})
	if o, _ := b.Get("obj-1"); o.X != 5 || o.Y != 5 || !o.Locked {
		t.Errorf("locked object after nest = %+v", o)
	}
}

func TestNestOverflow(t *testing.T) {
	var objs []Object
	for i := 0; i < 8; i++ {
		objs = append(objs, box(0, 0, 300, 300))
	}
	b := restore(t, square, objs...)
	res, err := b.Nest(nest.Options{})
	if err != nil {
		t.Fatal(err)
	}
	// Rows of two at y = 5, 310, 615; the third row and beyond are clamped.
	if len(res.Overflow) != 4 {
		t.Errorf("Overflow = %v, want 4 ids", res.Overflow)
	}
	for _, o := range b.Objects() {
		if o.Y+o.Height > 720 {
			t.Errorf("%s outside canvas after clamp", o.ID)
		}
	}
}

func TestNestEmpty(t *testing.T) {
	b := restore(t, square)
	if _, err := b.Nest(nest.Options{}); !errors.Is(err, errors.ErrCodeEmptyLayout) {
		t.Errorf("Nest(empty) error = %v, want EMPTY_LAYOUT", err)
	}

	hidden := box(10, 10, 10, 10)
	hidden.Visible = false
	b = restore(t, square, hidden)
	if _, err := b.Nest(nest.Options{}); !errors.Is(err, errors.ErrCodeEmptyLayout) {
		t.Errorf("Nest(all hidden) error = %v, want EMPTY_LAYOUT", err)
	}
	if o, _ := b.Get("obj-1"); o.X != 10 {
		t.Error("failed nest changed state")
	}
}

func assertDisjoint(t *testing.T, objs []Object) {
	t.Helper()
	for i := range objs {
		for j := i + 1; j < len(objs); j++ {
			if objs[i].Overlaps(objs[j]) {
				t.Errorf("%s overlaps %s", objs[i].ID, objs[j].ID)
			}
		}
	}
}
