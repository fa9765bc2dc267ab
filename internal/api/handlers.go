package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/gangsheet/pkg/artifact"
	"github.com/matzehuels/gangsheet/pkg/canvas"
	"github.com/matzehuels/gangsheet/pkg/checkout"
	"github.com/matzehuels/gangsheet/pkg/design"
	"github.com/matzehuels/gangsheet/pkg/errors"
	"github.com/matzehuels/gangsheet/pkg/nest"
	"github.com/matzehuels/gangsheet/pkg/pipeline"
	"github.com/matzehuels/gangsheet/pkg/session"
	"github.com/matzehuels/gangsheet/pkg/sheet"
)

// =============================================================================
// Views
// =============================================================================

type sheetView struct {
	ID          string          `json:"id"`
	Status      session.Status  `json:"status"`
	Template    sheet.Sheet     `json:"template"`
	Canvas      canvasView      `json:"canvas"`
	Designs     []design.Object `json:"designs"`
	DesignCount int             `json:"design_count"`
	TotalPrice  float64         `json:"total_price"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
	ExpiresAt   string          `json:"expires_at,omitempty"`
}

type canvasView struct {
	Width        float64 `json:"width"`  // layout px
	Height       float64 `json:"height"` // layout px
	ExportWidth  int     `json:"export_width"`
	ExportHeight int     `json:"export_height"`
	DPI          float64 `json:"dpi"`
}

func newCanvasView(c canvas.Canvas) canvasView {
	l := c.LayoutSize()
	w, h := c.ExportSize()
	return canvasView{Width: l.W, Height: l.H, ExportWidth: w, ExportHeight: h, DPI: c.DPI}
}

// withoutSource drops image bytes from objects for responses.
func withoutSource(objs []design.Object) []design.Object {
	out := make([]design.Object, len(objs))
	for i, o := range objs {
		o.Source = nil
		out[i] = o
	}
	return out
}

func viewOf(sess *session.Sheet, b *design.Board) sheetView {
	snap := b.Snapshot()
	v := sheetView{
		ID:          sess.ID,
		Status:      sess.Status,
		Template:    snap.Sheet,
		Canvas:      newCanvasView(snap.Canvas),
		Designs:     withoutSource(snap.Objects),
		DesignCount: len(snap.Objects),
		TotalPrice:  snap.Price(),
		CreatedAt:   sess.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   sess.UpdatedAt.Format(time.RFC3339),
	}
	if !sess.ExpiresAt.IsZero() {
		v.ExpiresAt = sess.ExpiresAt.Format(time.RFC3339)
	}
	return v
}

// =============================================================================
// Load / mutate / save
// =============================================================================

// load fetches a sheet and rebuilds its board.
func (s *Server) load(ctx context.Context, id string) (*session.Sheet, *design.Board, error) {
	sess, err := s.opts.Store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	b, err := sess.Board(s.opts.BoardOptions...)
	if err != nil {
		return nil, nil, err
	}
	return sess, b, nil
}

// edit runs fn on the sheet's board under the sheet lock and saves the
// board when fn succeeds. Submitted sheets are read-only.
func (s *Server) edit(ctx context.Context, id string, fn func(b *design.Board) (any, error)) (any, *session.Sheet, *design.Board, error) {
	return s.commit(ctx, id, false, fn)
}

// commit is edit with an optional submit. When submit is set the sheet is
// marked submitted in the same save, so no other edit can slip in between
// the checkout export and the status change. fn has already handed the
// sheet to the storefront by then, so a failed save is only logged.
func (s *Server) commit(ctx context.Context, id string, submit bool, fn func(b *design.Board) (any, error)) (any, *session.Sheet, *design.Board, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	sess, b, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	if sess.Status == session.StatusSubmitted {
		return nil, nil, nil, errors.New(errors.ErrCodeInvalidInput, "sheet %s was already submitted", id)
	}
	out, err := fn(b)
	if err != nil {
		return nil, nil, nil, err
	}
	sess.Update(b, s.opts.SessionTTL)
	if submit {
		sess.Submit()
	}
	if err := s.opts.Store.Set(ctx, sess); err != nil {
		if submit {
			s.logger.Warn("mark sheet submitted", "sheet", id, "err", err)
			return out, sess, b, nil
		}
		return nil, nil, nil, errors.Wrap(errors.ErrCodeInternal, err, "save sheet %s", id)
	}
	return out, sess, b, nil
}

// editSheet is edit for handlers that return the whole sheet.
func (s *Server) editSheet(w http.ResponseWriter, r *http.Request, status int, fn func(b *design.Board) error) {
	_, sess, b, err := s.edit(r.Context(), chi.URLParam(r, "id"), func(b *design.Board) (any, error) {
		return nil, fn(b)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, status, viewOf(sess, b))
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	type templateView struct {
		sheet.Sheet
		Label        string  `json:"label"`
		PerDesignFee float64 `json:"per_design_fee"`
	}
	all := s.opts.Catalog.All()
	out := make([]templateView, len(all))
	for i, t := range all {
		out[i] = templateView{Sheet: t, Label: t.Label(), PerDesignFee: sheet.PerDesignFee}
	}
	s.respond(w, r, http.StatusOK, out)
}

type templateRequest struct {
	TemplateID string `json:"template_id"`
}

func (s *Server) handleCreateSheet(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if req.TemplateID == "" {
		req.TemplateID = sheet.DefaultID
	}
	tpl, err := s.opts.Catalog.Get(req.TemplateID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	b, err := design.NewBoard(tpl, s.opts.BoardOptions...)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess := session.New(b, s.opts.SessionTTL)
	if err := s.opts.Store.Set(r.Context(), sess); err != nil {
		s.fail(w, r, errors.Wrap(errors.ErrCodeInternal, err, "save sheet"))
		return
	}
	s.logger.Info("created sheet", "id", sess.ID, "template", tpl.ID)
	s.respond(w, r, http.StatusCreated, viewOf(sess, b))
}

func (s *Server) handleGetSheet(w http.ResponseWriter, r *http.Request) {
	sess, b, err := s.load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, viewOf(sess, b))
}

func (s *Server) handleDeleteSheet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	unlock := s.locks.lock(id)
	defer unlock()
	if _, err := s.opts.Store.Get(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.opts.Store.Delete(r.Context(), id); err != nil {
		s.fail(w, r, errors.Wrap(errors.ErrCodeInternal, err, "delete sheet"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	tpl, err := s.opts.Catalog.Get(req.TemplateID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.editSheet(w, r, http.StatusOK, func(b *design.Board) error {
		return b.SetSheet(tpl)
	})
}

type priceView struct {
	Price        float64 `json:"price"`
	BasePrice    float64 `json:"base_price"`
	PerDesignFee float64 `json:"per_design_fee"`
	DesignCount  int     `json:"design_count"`
	MaxDesigns   int     `json:"max_designs"`
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	_, b, err := s.load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tpl := b.Sheet()
	s.respond(w, r, http.StatusOK, priceView{
		Price:        b.Price(),
		BasePrice:    tpl.Price,
		PerDesignFee: sheet.PerDesignFee,
		DesignCount:  b.Len(),
		MaxDesigns:   tpl.MaxDesigns,
	})
}

type nestRequest struct {
	Margin        float64 `json:"margin"`
	IncludeHidden bool    `json:"include_hidden"`
}

func (s *Server) handleNest(w http.ResponseWriter, r *http.Request) {
	var req nestRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	out, sess, b, err := s.edit(r.Context(), chi.URLParam(r, "id"), func(b *design.Board) (any, error) {
		return s.opts.Runner.Nest(r.Context(), b, nest.Options{Margin: req.Margin, IncludeHidden: req.IncludeHidden})
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, struct {
		Result design.NestResult `json:"result"`
		Sheet  sheetView         `json:"sheet"`
	}{out.(design.NestResult), viewOf(sess, b)})
}

type uploadResult struct {
	Added    []design.Object `json:"added"`
	Rejected []rejectionView `json:"rejected"`
}

type rejectionView struct {
	Name    string      `json:"name"`
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.fail(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid multipart upload"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	var headers []*multipart.FileHeader
	for _, field := range []string{"files", "file"} {
		headers = append(headers, r.MultipartForm.File[field]...)
	}
	if len(headers) == 0 {
		s.fail(w, r, errors.New(errors.ErrCodeInvalidInput, "no files in upload (use field \"files\")"))
		return
	}
	uploads := make([]design.Upload, 0, len(headers))
	for _, h := range headers {
		u, err := readUpload(h)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		uploads = append(uploads, u)
	}

	var res uploadResult
	_, _, _, err := s.edit(r.Context(), chi.URLParam(r, "id"), func(b *design.Board) (any, error) {
		added, rejected, err := s.opts.Runner.AddUploads(r.Context(), b, uploads)
		if err != nil {
			return nil, err
		}
		res.Added = withoutSource(added)
		for _, rj := range rejected {
			res.Rejected = append(res.Rejected, rejectionView{
				Name:    rj.Name,
				Code:    errors.GetCode(rj.Err),
				Message: errors.UserMessage(rj.Err),
			})
		}
		if len(added) == 0 && len(rejected) > 0 {
			// Nothing to save; report the first rejection.
			return nil, rejected[0].Err
		}
		return nil, nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusCreated, res)
}

func readUpload(h *multipart.FileHeader) (design.Upload, error) {
	if err := errors.ValidateFilename(h.Filename); err != nil {
		return design.Upload{}, err
	}
	f, err := h.Open()
	if err != nil {
		return design.Upload{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "open %s", h.Filename)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, design.MaxUploadBytes+1))
	if err != nil {
		return design.Upload{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "read %s", h.Filename)
	}
	mime := h.Header.Get("Content-Type")
	if mime == "application/octet-stream" {
		mime = "" // undeclared; sniffed on decode
	}
	return design.Upload{Name: h.Filename, MIME: mime, Data: data}, nil
}

func (s *Server) handleUpdateDesign(w http.ResponseWriter, r *http.Request) {
	var p design.Patch
	if err := decode(r, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	s.designOp(w, r, func(b *design.Board, id string) (design.Object, error) {
		return b.Update(id, p)
	})
}

func (s *Server) handleDuplicate(w http.ResponseWriter, r *http.Request) {
	out, _, _, err := s.edit(r.Context(), chi.URLParam(r, "id"), func(b *design.Board) (any, error) {
		return b.Duplicate(chi.URLParam(r, "designID"))
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	o := out.(design.Object)
	o.Source = nil
	s.respond(w, r, http.StatusCreated, o)
}

func (s *Server) handleDeleteDesign(w http.ResponseWriter, r *http.Request) {
	s.reorder(w, r, (*design.Board).Delete)
}

func (s *Server) handleFront(w http.ResponseWriter, r *http.Request) {
	s.reorder(w, r, (*design.Board).BringToFront)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	s.reorder(w, r, (*design.Board).SendToBack)
}

// designOp applies an object edit and responds with the edited object.
func (s *Server) designOp(w http.ResponseWriter, r *http.Request, fn func(b *design.Board, id string) (design.Object, error)) {
	out, _, _, err := s.edit(r.Context(), chi.URLParam(r, "id"), func(b *design.Board) (any, error) {
		return fn(b, chi.URLParam(r, "designID"))
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	o := out.(design.Object)
	o.Source = nil
	s.respond(w, r, http.StatusOK, o)
}

// reorder applies a list operation and responds with the sheet.
func (s *Server) reorder(w http.ResponseWriter, r *http.Request, fn func(b *design.Board, id string) bool) {
	designID := chi.URLParam(r, "designID")
	s.editSheet(w, r, http.StatusOK, func(b *design.Board) error {
		if !fn(b, designID) {
			return errors.New(errors.ErrCodeDesignNotFound, "design %s not found", designID)
		}
		return nil
	})
}

func exportOptions(r *http.Request) (pipeline.Options, error) {
	q := r.URL.Query()
	opts := pipeline.Options{Mode: q.Get("mode"), Format: q.Get("format")}
	for _, f := range []struct {
		name string
		dst  *bool
	}{{"grid", &opts.Grid}, {"refresh", &opts.Refresh}} {
		if v := q.Get(f.name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return opts, errors.New(errors.ErrCodeInvalidInput, "%s must be a boolean", f.name)
			}
			*f.dst = b
		}
	}
	return opts, opts.ValidateAndSetDefaults()
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	opts, err := exportOptions(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	_, b, err := s.load(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.opts.Runner.Export(r.Context(), b, opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if opts.Mode == "final" && s.opts.Artifacts != nil {
		if obj, err := s.storeArtifact(r.Context(), id, res); err == nil {
			w.Header().Set("X-Artifact-Location", obj.Location)
		} else {
			s.logger.Warn("store artifact", "sheet", id, "err", err)
		}
	}

	cacheStatus := "MISS"
	if res.CacheHit {
		cacheStatus = "HIT"
	}
	art := res.Artifact
	w.Header().Set("Content-Type", art.Format.MIME())
	w.Header().Set("Content-Length", strconv.Itoa(art.Size()))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="gang_sheet_%s%s"`, id, art.Format.Ext()))
	w.Header().Set("X-Cache", cacheStatus)
	w.Header().Set("X-Layout-Hash", res.LayoutHash)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(art.Data)
}

func (s *Server) storeArtifact(ctx context.Context, id string, res *pipeline.Result) (artifact.Object, error) {
	key := artifact.Key(id, res.LayoutHash, res.Artifact.Format.Ext())
	return s.opts.Artifacts.Put(ctx, key, res.Artifact.Data, res.Artifact.Format.MIME())
}

type checkoutView struct {
	CheckoutURL string  `json:"checkout_url"`
	Price       float64 `json:"price"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Artifact    string  `json:"artifact,omitempty"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if s.opts.Checkout == nil {
		s.fail(w, r, errors.New(errors.ErrCodeUnsupported, "checkout is not configured"))
		return
	}
	id := chi.URLParam(r, "id")
	out, _, _, err := s.commit(r.Context(), id, true, func(b *design.Board) (any, error) {
		res, err := s.opts.Runner.Export(r.Context(), b, pipeline.Options{Mode: "final", Format: "png"})
		if err != nil {
			return nil, err
		}
		view := checkoutView{Price: res.Price, Name: res.Name, Description: res.Description}
		if s.opts.Artifacts != nil {
			obj, err := s.storeArtifact(r.Context(), id, res)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeInternal, err, "store artifact")
			}
			view.Artifact = obj.Location
		}
		resp, err := s.opts.Checkout.Submit(r.Context(), checkout.NewRequest(res, s.now()))
		if err != nil {
			return nil, err
		}
		view.CheckoutURL = resp.CheckoutURL
		return view, nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, out)
}
