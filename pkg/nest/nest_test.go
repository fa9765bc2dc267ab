package nest

import (
	"testing"
)

func TestPackShelfExample(t *testing.T) {
	// Three boxes uploaded with heights 50, 100, 75.
	boxes := []Box{{100, 50}, {100, 100}, {100, 75}}
	got := Pack(boxes, 720, Options{})

	want := []Position{{215, 5}, {5, 5}, {110, 5}}
	for i := range want {
		if got.Positions[i] != want[i] {
			t.Errorf("box %d at %v, want %v", i, got.Positions[i], want[i])
		}
	}
	if got.Rows != 1 {
		t.Errorf("Rows = %d, want 1", got.Rows)
	}
	if got.Height != 110 {
		t.Errorf("Height = %v, want 110", got.Height)
	}
	assertNoOverlap(t, boxes, got.Positions)
}

func TestPackWrapsRows(t *testing.T) {
	boxes := []Box{{300, 100}, {300, 100}, {300, 80}}
	got := Pack(boxes, 720, Options{})

	want := []Position{{5, 5}, {310, 5}, {5, 110}}
	for i := range want {
		if got.Positions[i] != want[i] {
			t.Errorf("box %d at %v, want %v", i, got.Positions[i], want[i])
		}
	}
	if got.Rows != 2 {
		t.Errorf("Rows = %d, want 2", got.Rows)
	}
	assertNoOverlap(t, boxes, got.Positions)
}

func TestPackStableTies(t *testing.T) {
	boxes := []Box{{10, 20}, {30, 20}, {50, 20}}
	got := Pack(boxes, 1000, Options{})
	if !(got.Positions[0].X < got.Positions[1].X && got.Positions[1].X < got.Positions[2].X) {
		t.Errorf("equal heights should keep input order, got %v", got.Positions)
	}
}

func TestPackWideBox(t *testing.T) {
	boxes := []Box{{50, 10}, {2000, 40}, {50, 10}}
	got := Pack(boxes, 720, Options{})

	if got.Positions[1] != (Position{5, 5}) {
		t.Errorf("wide box at %v, want flush-left first row", got.Positions[1])
	}
	if got.Positions[0].Y <= 5 || got.Positions[0].X != 5 {
		t.Errorf("box after wide box should start a new row, got %v", got.Positions[0])
	}
}

func TestPackMargin(t *testing.T) {
	tests := []struct {
		name   string
		margin float64
		want   Position
	}{
		{"default", 0, Position{5, 5}},
		{"custom", 12, Position{12, 12}},
		{"negative", -3, Position{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Pack([]Box{{10, 10}}, 100, Options{Margin: tt.margin})
			if got.Positions[0] != tt.want {
				t.Errorf("Positions[0] = %v, want %v", got.Positions[0], tt.want)
			}
		})
	}
}

func TestPackEmpty(t *testing.T) {
	got := Pack(nil, 720, Options{})
	if len(got.Positions) != 0 || got.Rows != 0 {
		t.Errorf("Pack(nil) = %+v", got)
	}
}

func TestPackDeterministic(t *testing.T) {
	boxes := []Box{{120, 40}, {80, 90}, {200, 60}, {60, 60}, {300, 20}, {90, 90}}
	a := Pack(boxes, 500, Options{})
	b := Pack(boxes, 500, Options{})
	for i := range a.Positions {
		if a.Positions[i] != b.Positions[i] {
			t.Fatalf("run differs at %d: %v vs %v", i, a.Positions[i], b.Positions[i])
		}
	}
	assertNoOverlap(t, boxes, a.Positions)
	for i, p := range a.Positions {
		if p.X < 0 || p.X+boxes[i].W > 500 {
			t.Errorf("box %d outside width: %v", i, p)
		}
	}
}

func assertNoOverlap(t *testing.T, boxes []Box, pos []Position) {
	t.Helper()
	for i := range boxes {
		for j := i + 1; j < len(boxes); j++ {
			a, b := pos[i], pos[j]
			if a.X < b.X+boxes[j].W && b.X < a.X+boxes[i].W &&
				a.Y < b.Y+boxes[j].H && b.Y < a.Y+boxes[i].H {
				t.Errorf("boxes %d and %d overlap: %v %v", i, j, a, b)
			}
		}
	}
}
