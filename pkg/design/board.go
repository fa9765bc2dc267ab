package design

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/gangsheet/pkg/canvas"
	"github.com/matzehuels/gangsheet/pkg/errors"
	"github.com/matzehuels/gangsheet/pkg/sheet"
)

// AutoPlace asks Add to choose the next cascade slot.
const AutoPlace = -1

// defaultDecodeWorkers bounds concurrent upload decoding.
const defaultDecodeWorkers = 4

// Board is the editable state of one gang sheet: the sheet template, its
// canvas, the ordered object list, the selection, and any in-flight drag.
type Board struct {
	mu         sync.Mutex
	sheet      sheet.Sheet
	canvas     *canvas.Canvas
	canvasOpts []canvas.Option
	objects    []*Object
	selected   string
	drag       dragState
	newID      func() string
	workers    int
}

// BoardOption configures a Board.
type BoardOption func(*Board)

// WithCanvasOptions passes options to every canvas the board creates,
// including the one built when the sheet is switched.
func WithCanvasOptions(opts ...canvas.Option) BoardOption {
	return func(b *Board) { b.canvasOpts = append(b.canvasOpts, opts...) }
}

// WithIDFunc overrides the object id generator.
func WithIDFunc(fn func() string) BoardOption {
	return func(b *Board) { b.newID = fn }
}

// WithDecodeWorkers bounds how many uploads AddUploads decodes at once.
func WithDecodeWorkers(n int) BoardOption {
	return func(b *Board) { b.workers = n }
}

// NewBoard creates an empty board for the given sheet.
func NewBoard(s sheet.Sheet, opts ...BoardOption) (*Board, error) {
	b := &Board{newID: uuid.NewString, workers: defaultDecodeWorkers}
	for _, opt := range opts {
		opt(b)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	c, err := canvas.New(s.Width, s.Height, b.canvasOpts...)
	if err != nil {
		return nil, err
	}
	b.sheet, b.canvas = s, c
	return b, nil
}

// Restore rebuilds a board from persisted objects. Every object is
// normalized against the model invariants; objects without an id get one.
func Restore(s sheet.Sheet, objects []Object, opts ...BoardOption) (*Board, error) {
	b, err := NewBoard(s, opts...)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(objects))
	for _, o := range objects {
		if o.ID == "" || seen[o.ID] {
			o.ID = b.newID()
		}
		seen[o.ID] = true
		b.normalize(&o)
		b.objects = append(b.objects, &o)
	}
	return b, nil
}

// =============================================================================
// Accessors
// =============================================================================

// Sheet returns the current sheet template.
func (b *Board) Sheet() sheet.Sheet {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sheet
}

// Canvas returns a copy of the current canvas.
func (b *Board) Canvas() canvas.Canvas {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.canvas
}

// Len returns the number of objects.
func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

// Price returns the current sheet price.
func (b *Board) Price() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sheet.CalculatePrice(b.sheet, len(b.objects))
}

// Objects returns copies of all objects, bottom first.
func (b *Board) Objects() []Object {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.copyObjects()
}

// Get returns a copy of the object with the given id.
func (b *Board) Get(id string) (Object, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o := b.find(id); o != nil {
		return *o, true
	}
	return Object{}, false
}

// Snapshot is a consistent, detached view of a board.
type Snapshot struct {
	Sheet   sheet.Sheet
	Canvas  canvas.Canvas
	Objects []Object
}

// Price returns the price of the snapshot.
func (s Snapshot) Price() float64 {
	return sheet.CalculatePrice(s.Sheet, len(s.Objects))
}

// Snapshot copies the board state under one lock acquisition. The result
// is unaffected by later mutations.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{Sheet: b.sheet, Canvas: *b.canvas, Objects: b.copyObjects()}
}

func (b *Board) copyObjects() []Object {
	out := make([]Object, len(b.objects))
	for i, o := range b.objects {
		out[i] = *o
	}
	return out
}

func (b *Board) find(id string) *Object {
	if id == "" {
		return nil
	}
	for _, o := range b.objects {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func (b *Board) index(id string) int {
	return slices.IndexFunc(b.objects, func(o *Object) bool { return o.ID == id })
}

// normalize re-applies the size, opacity, rotation, and bounds invariants.
// An infinite size is capped at the layout extent on that axis.
func (b *Board) normalize(o *Object) {
	l := b.canvas.LayoutSize()
	o.Width = floorSize(capInf(o.Width, l.W))
	o.Height = floorSize(capInf(o.Height, l.H))
	o.Opacity = ClampOpacity(o.Opacity)
	o.Rotation = NormalizeRotation(o.Rotation)
	o.X, o.Y = b.canvas.Clamp(o.X, o.Y, o.Width, o.Height)
}

// =============================================================================
// Creation and removal
// =============================================================================

// Add validates an upload and places it on the board. hint selects the
// cascade slot; AutoPlace uses the current object count. The new object is
// appended on top and becomes the selection.
func (b *Board) Add(u Upload, hint int) (Object, error) {
	info, err := Inspect(u)
	if err != nil {
		return Object{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.place(u, info, hint)
}

func (b *Board) place(u Upload, info Info, hint int) (Object, error) {
	if !b.sheet.Accepts(len(b.objects) + 1) {
		return Object{}, errors.New(errors.ErrCodeLimitExceeded,
			"%s accepts at most %d designs", b.sheet.Name, b.sheet.MaxDesigns)
	}
	if hint < 0 {
		hint = len(b.objects)
	}
	w, h := DefaultSize(info.Width, info.Height, b.canvas.LayoutSize())
	o := &Object{
		ID:           b.newID(),
		Name:         u.Name,
		MIME:         info.MIME,
		Source:       u.Data,
		SourceWidth:  info.Width,
		SourceHeight: info.Height,
		X:            cascade(hint),
		Y:            cascade(hint),
		Width:        w,
		Height:       h,
		Opacity:      1,
		Visible:      true,
	}
	b.normalize(o)
	b.objects = append(b.objects, o)
	b.selected = o.ID
	return *o, nil
}

// Rejection reports an upload that could not be added.
type Rejection struct {
	Name string
	Err  error
}

// AddUploads decodes uploads concurrently and places the valid ones in
// input order. Invalid uploads and uploads beyond the sheet's design limit
// are returned as rejections; they never abort the batch.
func (b *Board) AddUploads(ctx context.Context, uploads []Upload) ([]Object, []Rejection, error) {
	infos := make([]Info, len(uploads))
	errs := make([]error, len(uploads))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, b.workers))
	for i, u := range uploads {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			infos[i], errs[i] = Inspect(u)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	var added []Object
	var rejected []Rejection
	for i, u := range uploads {
		if errs[i] != nil {
			rejected = append(rejected, Rejection{Name: u.Name, Err: errs[i]})
			continue
		}
		o, err := b.place(u, infos[i], AutoPlace)
		if err != nil {
			rejected = append(rejected, Rejection{Name: u.Name, Err: err})
			continue
		}
		added = append(added, o)
	}
	return added, rejected, nil
}

// Delete removes an object. Deleting the selection clears it and ends any
// drag on that object.
func (b *Board) Delete(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.index(id)
	if i < 0 {
		return false
	}
	b.objects = slices.Delete(b.objects, i, i+1)
	if b.selected == id {
		b.selected = ""
	}
	if b.drag.id == id {
		b.drag = dragState{}
	}
	return true
}

// Clear removes every object.
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects = nil
	b.selected = ""
	b.drag = dragState{}
}

// Duplicate copies an object with a fresh id, offset by DuplicateOffset and
// unlocked. The copy is appended on top and becomes the selection.
func (b *Board) Duplicate(id string) (Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	src := b.find(id)
	if src == nil {
		return Object{}, errors.New(errors.ErrCodeDesignNotFound, "design %s not found", id)
	}
	if !b.sheet.Accepts(len(b.objects) + 1) {
		return Object{}, errors.New(errors.ErrCodeLimitExceeded,
			"%s accepts at most %d designs", b.sheet.Name, b.sheet.MaxDesigns)
	}
	dup := *src
	dup.ID = b.newID()
	dup.X += DuplicateOffset
	dup.Y += DuplicateOffset
	dup.Locked = false
	b.normalize(&dup)
	b.objects = append(b.objects, &dup)
	b.selected = dup.ID
	return dup, nil
}

// Update applies a patch and re-normalizes the object. Geometry fields are
// ignored while the object is locked.
func (b *Board) Update(id string, p Patch) (Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.find(id)
	if o == nil {
		return Object{}, errors.New(errors.ErrCodeDesignNotFound, "design %s not found", id)
	}
	if p.Locked != nil && *p.Locked && b.drag.id == id {
		b.drag = dragState{}
	}
	p.apply(o)
	b.normalize(o)
	return *o, nil
}

// =============================================================================
// Sheet switching
// =============================================================================

// SetSheet switches the template. Positions scale per axis with the canvas,
// sizes scale uniformly by the smaller factor so aspect ratios survive, and
// every object is clamped into the new bounds. The switch fails when the
// new sheet cannot hold the current designs.
func (b *Board) SetSheet(s sheet.Sheet) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := s.Validate(); err != nil {
		return err
	}
	if !s.Accepts(len(b.objects)) {
		return errors.New(errors.ErrCodeLimitExceeded,
			"%s accepts at most %d designs, board has %d", s.Name, s.MaxDesigns, len(b.objects))
	}
	c, err := canvas.New(s.Width, s.Height, b.canvasOpts...)
	if err != nil {
		return err
	}
	c.SetZoom(b.canvas.Zoom)

	from, to := b.canvas.LayoutSize(), c.LayoutSize()
	sx, sy := to.W/from.W, to.H/from.H
	u := min(sx, sy)

	b.sheet, b.canvas = s, c
	for _, o := range b.objects {
		o.X *= sx
		o.Y *= sy
		o.Width *= u
		o.Height *= u
		b.normalize(o)
	}
	b.drag = dragState{}
	return nil
}

// SetZoom changes the viewport zoom and returns the applied percentage.
// Objects are not moved.
func (b *Board) SetZoom(percent int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.canvas.SetZoom(percent)
}
