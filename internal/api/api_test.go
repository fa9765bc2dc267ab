package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"

	"github.com/matzehuels/gangsheet/pkg/artifact"
	"github.com/matzehuels/gangsheet/pkg/cache"
	"github.com/matzehuels/gangsheet/pkg/canvas"
	"github.com/matzehuels/gangsheet/pkg/checkout"
	"github.com/matzehuels/gangsheet/pkg/design"
	"github.com/matzehuels/gangsheet/pkg/errors"
	"github.com/matzehuels/gangsheet/pkg/pipeline"
	"github.com/matzehuels/gangsheet/pkg/session"
	"github.com/matzehuels/gangsheet/pkg/sheet"
)

var (
	mini  = sheet.Sheet{ID: "mini", Name: "Mini", Width: 2, Height: 2, Price: 5, MaxDesigns: 3}
	large = sheet.Sheet{ID: "large", Name: "Large", Width: 4, Height: 4, Price: 9, MaxDesigns: 10}
)

type fixture struct {
	t      *testing.T
	srv    *Server
	http   *httptest.Server
	store  *session.MemoryStore
	client *http.Client
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	catalog, err := sheet.NewCatalog(mini, large)
	if err != nil {
		t.Fatal(err)
	}
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store := session.NewMemoryStore()
	opts := Options{
		Catalog:      catalog,
		Store:        store,
		Runner:       pipeline.NewRunner(c, nil, quietLogger()),
		BoardOptions: []design.BoardOption{design.WithCanvasOptions(canvas.WithDPI(144))},
		Logger:       quietLogger(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	srv := New(opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{t: t, srv: srv, http: ts, store: store, client: ts.Client()}
}

func (f *fixture) do(method, path string, body io.Reader, contentType string) *http.Response {
	f.t.Helper()
	req, err := http.NewRequest(method, f.http.URL+path, body)
	if err != nil {
		f.t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		f.t.Fatal(err)
	}
	f.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) json(method, path string, in, out any, want int) {
	f.t.Helper()
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			f.t.Fatal(err)
		}
		body = bytes.NewReader(data)
	}
	resp := f.do(method, path, body, "application/json")
	if resp.StatusCode != want {
		data, _ := io.ReadAll(resp.Body)
		f.t.Fatalf("%s %s = %d, want %d: %s", method, path, resp.StatusCode, want, data)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			f.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
}

func (f *fixture) create(template string) sheetView {
	f.t.Helper()
	var v sheetView
	f.json(http.MethodPost, "/api/sheets", templateRequest{TemplateID: template}, &v, http.StatusCreated)
	return v
}

type filePart struct {
	name, mime string
	data       []byte
}

func (f *fixture) upload(id string, files ...filePart) *http.Response {
	f.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, fp := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, fp.name))
		h.Set("Content-Type", fp.mime)
		part, err := w.CreatePart(h)
		if err != nil {
			f.t.Fatal(err)
		}
		part.Write(fp.data)
	}
	if err := w.Close(); err != nil {
		f.t.Fatal(err)
	}
	return f.do(http.MethodPost, "/api/sheets/"+id+"/designs", &buf, w.FormDataContentType())
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func logo(t *testing.T) filePart {
	return filePart{name: "logo.png", mime: "image/png", data: pngBytes(t, 40, 20)}
}

func decodeError(t *testing.T, resp *http.Response) errorResponse {
	t.Helper()
	var e errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	var out map[string]string
	f.json(http.MethodGet, "/healthz", nil, &out, http.StatusOK)
	if out["status"] != "ok" {
		t.Errorf("healthz = %v", out)
	}
}

func TestTemplates(t *testing.T) {
	f := newFixture(t, nil)
	var out []struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	}
	f.json(http.MethodGet, "/api/templates", nil, &out, http.StatusOK)
	if len(out) != 2 || out[0].ID != "mini" || out[1].ID != "large" {
		t.Errorf("templates = %+v", out)
	}
	if out[0].Label == "" {
		t.Error("template label is empty")
	}
}

func TestCreateSheet(t *testing.T) {
	f := newFixture(t, nil)
	v := f.create("mini")
	if v.ID == "" || v.Status != session.StatusDraft {
		t.Errorf("created = %+v", v)
	}
	if v.TotalPrice != 5 || v.DesignCount != 0 {
		t.Errorf("price = %v, count = %d", v.TotalPrice, v.DesignCount)
	}
	if v.Canvas.ExportWidth != 288 || v.Canvas.ExportHeight != 288 {
		t.Errorf("export size = %dx%d, want 288x288", v.Canvas.ExportWidth, v.Canvas.ExportHeight)
	}
	if f.store.Len() != 1 {
		t.Errorf("store has %d sheets, want 1", f.store.Len())
	}

	resp := f.do(http.MethodPost, "/api/sheets", strings.NewReader(`{"template_id":"poster"}`), "application/json")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown template status = %d, want 404", resp.StatusCode)
	}
	resp = f.do(http.MethodPost, "/api/sheets", strings.NewReader(`{`), "application/json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want 400", resp.StatusCode)
	}
}

func TestSheetNotFound(t *testing.T) {
	f := newFixture(t, nil)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/sheets/missing"},
		{http.MethodGet, "/api/sheets/missing/price"},
		{http.MethodDelete, "/api/sheets/missing"},
		{http.MethodPost, "/api/sheets/missing/nest"},
		{http.MethodGet, "/api/sheets/missing/export"},
	} {
		resp := f.do(tc.method, tc.path, nil, "")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", tc.method, tc.path, resp.StatusCode)
			continue
		}
		if e := decodeError(t, resp); e.Code != errors.ErrCodeSessionNotFound {
			t.Errorf("%s %s code = %s", tc.method, tc.path, e.Code)
		}
	}
}

func TestUploadNestExport(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create("mini").ID

	resp := f.upload(id, logo(t), logo(t))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	var up uploadResult
	if err := json.NewDecoder(resp.Body).Decode(&up); err != nil {
		t.Fatal(err)
	}
	if len(up.Added) != 2 || len(up.Rejected) != 0 {
		t.Fatalf("upload = %+v", up)
	}
	for _, o := range up.Added {
		if o.Source != nil {
			t.Error("upload response includes source bytes")
		}
	}

	var price priceView
	f.json(http.MethodGet, "/api/sheets/"+id+"/price", nil, &price, http.StatusOK)
	if price.Price != 6 || price.DesignCount != 2 || price.MaxDesigns != 3 {
		t.Errorf("price = %+v", price)
	}

	var nested struct {
		Result design.NestResult `json:"result"`
		Sheet  sheetView         `json:"sheet"`
	}
	f.json(http.MethodPost, "/api/sheets/"+id+"/nest", nestRequest{}, &nested, http.StatusOK)
	if nested.Result.Packed != 2 || len(nested.Result.Overflow) != 0 {
		t.Errorf("nest = %+v", nested.Result)
	}
	if d := nested.Sheet.Designs; d[0].X != 5 || d[0].Y != 5 {
		t.Errorf("first design at (%v,%v), want (5,5)", d[0].X, d[0].Y)
	}

	resp = f.do(http.MethodGet, "/api/sheets/"+id+"/export?mode=preview", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if resp.Header.Get("X-Cache") != "MISS" || resp.Header.Get("X-Layout-Hash") == "" {
		t.Errorf("headers = %v", resp.Header)
	}
	img, err := imaging.Decode(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 144 || b.Dy() != 144 {
		t.Errorf("preview = %dx%d, want 144x144", b.Dx(), b.Dy())
	}

	resp = f.do(http.MethodGet, "/api/sheets/"+id+"/export?mode=preview", nil, "")
	if resp.Header.Get("X-Cache") != "HIT" {
		t.Errorf("second export X-Cache = %q, want HIT", resp.Header.Get("X-Cache"))
	}
}

func TestUploadRejections(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create("mini").ID

	text := filePart{name: "notes.txt", mime: "text/plain", data: []byte("hello")}
	resp := f.upload(id, text)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("text-only upload status = %d, want 400", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != errors.ErrCodeInvalidImage {
		t.Errorf("code = %s", e.Code)
	}

	resp = f.upload(id, logo(t), text)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("mixed upload status = %d", resp.StatusCode)
	}
	var up uploadResult
	if err := json.NewDecoder(resp.Body).Decode(&up); err != nil {
		t.Fatal(err)
	}
	if len(up.Added) != 1 || len(up.Rejected) != 1 || up.Rejected[0].Name != "notes.txt" {
		t.Errorf("upload = %+v", up)
	}

	resp = f.do(http.MethodPost, "/api/sheets/"+id+"/designs", strings.NewReader("x"), "text/plain")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("non-multipart status = %d, want 400", resp.StatusCode)
	}
}

func TestUploadLimit(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create("mini").ID
	f.upload(id, logo(t), logo(t), logo(t))

	resp := f.upload(id, logo(t))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("over-limit upload status = %d, want 409", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != errors.ErrCodeLimitExceeded {
		t.Errorf("code = %s", e.Code)
	}
}

func TestDesignOperations(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create("mini").ID
	resp := f.upload(id, logo(t), logo(t))
	var up uploadResult
	if err := json.NewDecoder(resp.Body).Decode(&up); err != nil {
		t.Fatal(err)
	}
	first, second := up.Added[0].ID, up.Added[1].ID
	base := "/api/sheets/" + id + "/designs/"

	var o design.Object
	f.json(http.MethodPatch, base+first, map[string]any{"rotation": -90, "opacity": 2, "x": 30}, &o, http.StatusOK)
	if o.Rotation != 270 || o.Opacity != 1 || o.X != 30 {
		t.Errorf("patched = %+v", o)
	}

	var dup design.Object
	f.json(http.MethodPost, base+first+"/duplicate", nil, &dup, http.StatusCreated)
	if dup.ID == first || dup.X != 40 || dup.Locked {
		t.Errorf("duplicate = %+v", dup)
	}

	var v sheetView
	f.json(http.MethodPost, base+second+"/front", nil, &v, http.StatusOK)
	if got := v.Designs[len(v.Designs)-1].ID; got != second {
		t.Errorf("top design = %s, want %s", got, second)
	}
	f.json(http.MethodPost, base+second+"/back", nil, &v, http.StatusOK)
	if v.Designs[0].ID != second {
		t.Errorf("bottom design = %s, want %s", v.Designs[0].ID, second)
	}

	f.json(http.MethodDelete, base+first, nil, &v, http.StatusOK)
	if v.DesignCount != 2 || v.TotalPrice != 6 {
		t.Errorf("after delete count = %d price = %v", v.DesignCount, v.TotalPrice)
	}

	for _, tc := range []struct{ method, path string }{
		{http.MethodDelete, base + first},
		{http.MethodPatch, base + "nope"},
		{http.MethodPost, base + "nope/duplicate"},
		{http.MethodPost, base + "nope/front"},
	} {
		var body io.Reader
		if tc.method == http.MethodPatch {
			body = strings.NewReader(`{"x":1}`)
		}
		resp := f.do(tc.method, tc.path, body, "application/json")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", tc.method, tc.path, resp.StatusCode)
			continue
		}
		if e := decodeError(t, resp); e.Code != errors.ErrCodeDesignNotFound {
			t.Errorf("%s %s code = %s", tc.method, tc.path, e.Code)
		}
	}
}

func TestSetTemplate(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create("mini").ID
	f.upload(id, logo(t))

	var v sheetView
	f.json(http.MethodPut, "/api/sheets/"+id+"/template", templateRequest{TemplateID: "large"}, &v, http.StatusOK)
	if v.Template.ID != "large" || v.TotalPrice != 9.5 {
		t.Errorf("switched = %+v", v)
	}
	if v.Canvas.ExportWidth != 576 {
		t.Errorf("export width = %d, want 576", v.Canvas.ExportWidth)
	}

	resp := f.do(http.MethodPut, "/api/sheets/"+id+"/template", strings.NewReader(`{"template_id":"nope"}`), "application/json")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown template status = %d", resp.StatusCode)
	}
}

func TestExportErrors(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create("mini").ID

	resp := f.do(http.MethodGet, "/api/sheets/"+id+"/export", nil, "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("empty export status = %d, want 409", resp.StatusCode)
	}
	for _, q := range []string{"format=gif", "mode=poster", "grid=maybe"} {
		resp := f.do(http.MethodGet, "/api/sheets/"+id+"/export?"+q, nil, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("export?%s status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestExportStoresArtifact(t *testing.T) {
	store, err := artifact.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, func(o *Options) { o.Artifacts = store })
	id := f.create("mini").ID
	f.upload(id, logo(t))

	resp := f.do(http.MethodGet, "/api/sheets/"+id+"/export?format=jpeg", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
	key := artifact.Key(id, resp.Header.Get("X-Layout-Hash"), ".jpg")
	data, obj, err := store.Get(t.Context(), key)
	if err != nil {
		t.Fatalf("stored artifact: %v", err)
	}
	if len(data) == 0 || resp.Header.Get("X-Artifact-Location") != obj.Location {
		t.Errorf("artifact %+v, header %q", obj, resp.Header.Get("X-Artifact-Location"))
	}
}

func TestCheckout(t *testing.T) {
	var mu sync.Mutex
	var got map[string]string
	shop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		got = map[string]string{
			"name":  r.FormValue("name"),
			"price": r.FormValue("price"),
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"cart":{"checkout_url":"https://shop.example/cart/1"}}`)
	}))
	defer shop.Close()

	client, err := checkout.New(shop.URL, checkout.WithRetry(1, time.Millisecond), checkout.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, func(o *Options) { o.Checkout = client })
	id := f.create("mini").ID
	f.upload(id, logo(t), logo(t))

	var out checkoutView
	f.json(http.MethodPost, "/api/sheets/"+id+"/checkout", nil, &out, http.StatusOK)
	if out.CheckoutURL != "https://shop.example/cart/1" || out.Price != 6 {
		t.Errorf("checkout = %+v", out)
	}
	mu.Lock()
	if got["name"] != "Custom Gang Sheet (Mini)" || got["price"] != "6" {
		t.Errorf("storefront got %v", got)
	}
	mu.Unlock()

	var v sheetView
	f.json(http.MethodGet, "/api/sheets/"+id, nil, &v, http.StatusOK)
	if v.Status != session.StatusSubmitted {
		t.Errorf("status = %s, want submitted", v.Status)
	}

	// Submitted sheets are read-only.
	resp := f.do(http.MethodPost, "/api/sheets/"+id+"/nest", nil, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("nest after submit = %d, want 400", resp.StatusCode)
	}
}

func TestCheckoutHoldsSheetUntilSubmitted(t *testing.T) {
	patchURL := make(chan string, 1)
	patched := make(chan int, 1)
	shop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// An edit issued while the storefront is handling the cart must
		// wait for the checkout to finish, then find the sheet submitted.
		url := <-patchURL
		go func() {
			req, _ := http.NewRequest(http.MethodPatch, url, strings.NewReader(`{"x": 40}`))
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				patched <- 0
				return
			}
			resp.Body.Close()
			patched <- resp.StatusCode
		}()
		time.Sleep(100 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"checkout_url":"https://shop.example/cart/2"}`)
	}))
	defer shop.Close()

	client, err := checkout.New(shop.URL, checkout.WithRetry(1, time.Millisecond), checkout.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, func(o *Options) { o.Checkout = client })
	id := f.create("mini").ID
	f.upload(id, logo(t))

	var before sheetView
	f.json(http.MethodGet, "/api/sheets/"+id, nil, &before, http.StatusOK)
	d := before.Designs[0]
	patchURL <- f.http.URL + "/api/sheets/" + id + "/designs/" + d.ID

	f.json(http.MethodPost, "/api/sheets/"+id+"/checkout", nil, nil, http.StatusOK)

	select {
	case code := <-patched:
		if code != http.StatusBadRequest {
			t.Errorf("edit during checkout = %d, want 400", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("edit during checkout never returned")
	}

	var after sheetView
	f.json(http.MethodGet, "/api/sheets/"+id, nil, &after, http.StatusOK)
	if after.Status != session.StatusSubmitted {
		t.Errorf("status = %s, want submitted", after.Status)
	}
	if got := after.Designs[0]; got.X != d.X || got.Y != d.Y {
		t.Errorf("submitted sheet changed: (%v,%v), want (%v,%v)", got.X, got.Y, d.X, d.Y)
	}
}

func TestCheckoutDisabled(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create("mini").ID
	resp := f.do(http.MethodPost, "/api/sheets/"+id+"/checkout", nil, "")
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", resp.StatusCode)
	}
}

func TestDeleteSheet(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create("mini").ID
	resp := f.do(http.MethodDelete, "/api/sheets/"+id, nil, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if f.store.Len() != 0 {
		t.Errorf("store has %d sheets", f.store.Len())
	}
}

func TestConcurrentEdits(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Catalog.Put(sheet.Sheet{ID: "roomy", Name: "Roomy", Width: 10, Height: 10, Price: 1, MaxDesigns: 50})
	})
	id := f.create("roomy").ID

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var buf bytes.Buffer
			w := multipart.NewWriter(&buf)
			part, _ := w.CreateFormFile("files", "logo.png")
			part.Write(pngBytes(t, 10, 10))
			w.Close()
			resp, err := f.client.Post(f.http.URL+"/api/sheets/"+id+"/designs", w.FormDataContentType(), &buf)
			if err != nil {
				t.Error(err)
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusCreated {
				t.Errorf("upload status = %d", resp.StatusCode)
			}
		}()
	}
	wg.Wait()

	var v sheetView
	f.json(http.MethodGet, "/api/sheets/"+id, nil, &v, http.StatusOK)
	if v.DesignCount != n {
		t.Errorf("design count = %d, want %d", v.DesignCount, n)
	}
	if size := f.srv.locks.size(); size != 0 {
		t.Errorf("%d locks left after requests", size)
	}
}

func TestKeyLocks(t *testing.T) {
	k := newKeyLocks()
	unlockA := k.lock("a")
	unlockB := k.lock("b")
	if k.size() != 2 {
		t.Fatalf("size = %d, want 2", k.size())
	}

	done := make(chan struct{})
	go func() {
		unlock := k.lock("a")
		unlock()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("second lock on a acquired while held")
	case <-time.After(20 * time.Millisecond):
	}
	unlockA()
	<-done
	unlockB()
	if k.size() != 0 {
		t.Errorf("size = %d after release, want 0", k.size())
	}
}
