// Package api serves gang sheets over HTTP.
//
// Every sheet lives in a [session.Store]. A request that edits a sheet
// loads it, rebuilds the board, applies the edit, and saves it back while
// holding a per-sheet lock, so concurrent edits to one sheet are applied
// one at a time and edits to different sheets never wait on each other.
package api

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/matzehuels/gangsheet/pkg/artifact"
	"github.com/matzehuels/gangsheet/pkg/checkout"
	"github.com/matzehuels/gangsheet/pkg/design"
	"github.com/matzehuels/gangsheet/pkg/pipeline"
	"github.com/matzehuels/gangsheet/pkg/session"
	"github.com/matzehuels/gangsheet/pkg/sheet"
)

// DefaultMaxUploadBytes bounds a multipart upload request.
const DefaultMaxUploadBytes = 64 << 20

// Options configures a Server. Catalog, Store, and Runner are required.
type Options struct {
	Catalog *sheet.Catalog
	Store   session.Store
	Runner  *pipeline.Runner

	// Artifacts keeps final exports. Nil disables storage.
	Artifacts artifact.Store

	// Checkout hands sheets to the storefront. Nil disables the checkout
	// route.
	Checkout *checkout.Client

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	BoardOptions   []design.BoardOption
	SessionTTL     time.Duration
	MaxUploadBytes int64
	CORSOrigins    []string
	Logger         *log.Logger
}

// Server is the HTTP API.
type Server struct {
	opts   Options
	logger *log.Logger
	locks  *keyLocks
	now    func() time.Time
}

// New creates a server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = session.DefaultTTL
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{
		opts:   opts,
		logger: opts.Logger,
		locks:  newKeyLocks(),
		now:    time.Now,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Cache", "X-Layout-Hash", "X-Artifact-Location", "Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/templates", s.handleTemplates)
		r.Post("/sheets", s.handleCreateSheet)
		r.Route("/sheets/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSheet)
			r.Delete("/", s.handleDeleteSheet)
			r.Put("/template", s.handleSetTemplate)
			r.Get("/price", s.handlePrice)
			r.Post("/nest", s.handleNest)
			r.Get("/export", s.handleExport)
			r.Post("/checkout", s.handleCheckout)
			r.Post("/designs", s.handleUpload)
			r.Route("/designs/{designID}", func(r chi.Router) {
				r.Patch("/", s.handleUpdateDesign)
				r.Delete("/", s.handleDeleteDesign)
				r.Post("/duplicate", s.handleDuplicate)
				r.Post("/front", s.handleFront)
				r.Post("/back", s.handleBack)
			})
		})
	})
	return r
}

// requestLogger logs one line per request.
func requestLogger(l *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			l.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).Round(time.Millisecond),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

// =============================================================================
// Per-sheet locks
// =============================================================================

// keyLocks hands out one mutex per key, dropping it once no goroutine
// holds or waits for it.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{m: make(map[string]*keyLock)}
}

// lock acquires the mutex for key and returns its release function.
func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.m[key]
	if !ok {
		l = &keyLock{}
		k.m[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}

// size returns the number of live locks.
func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.m)
}
