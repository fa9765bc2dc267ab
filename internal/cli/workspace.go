package cli

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matzehuels/gangsheet/internal/config"
	"github.com/matzehuels/gangsheet/pkg/design"
	"github.com/matzehuels/gangsheet/pkg/errors"
	"github.com/matzehuels/gangsheet/pkg/session"
	"github.com/matzehuels/gangsheet/pkg/sheet"
)

// workspace bundles what sheet commands need: the config, the session
// store, and the board options derived from the canvas settings.
type workspace struct {
	cfg     *config.Config
	catalog *sheet.Catalog
	store   session.Store
	opts    []design.BoardOption
	ttl     time.Duration
}

// openWorkspace loads the config and opens the local session store.
func (c *CLI) openWorkspace(ctx context.Context) (*workspace, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	catalog, err := cfg.SheetCatalog()
	if err != nil {
		return nil, err
	}
	store, err := newStore(ctx, cfg.Store, true)
	if err != nil {
		return nil, fmt.Errorf("open sheet store: %w", err)
	}
	return &workspace{
		cfg:     cfg,
		catalog: catalog,
		store:   store,
		opts:    boardOptions(cfg),
		ttl:     cfg.Server.SessionTTL.Duration,
	}, nil
}

func (w *workspace) Close() error {
	return w.store.Close()
}

// create stores a fresh draft for the template.
func (w *workspace) create(ctx context.Context, templateID string) (*session.Sheet, *design.Board, error) {
	tpl, err := w.catalog.Get(templateID)
	if err != nil {
		return nil, nil, err
	}
	b, err := design.NewBoard(tpl, w.opts...)
	if err != nil {
		return nil, nil, err
	}
	sess := session.New(b, w.ttl)
	return sess, b, w.store.Set(ctx, sess)
}

// load fetches a sheet and rebuilds its board.
func (w *workspace) load(ctx context.Context, id string) (*session.Sheet, *design.Board, error) {
	sess, err := w.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	b, err := sess.Board(w.opts...)
	if err != nil {
		return nil, nil, err
	}
	return sess, b, nil
}

// loadDraft is load for commands that change the sheet.
func (w *workspace) loadDraft(ctx context.Context, id string) (*session.Sheet, *design.Board, error) {
	sess, b, err := w.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if sess.Status == session.StatusSubmitted {
		return nil, nil, errors.New(errors.ErrCodeInvalidInput, "sheet %s was already submitted", id)
	}
	return sess, b, nil
}

// save writes the board back and extends the sheet's expiry.
func (w *workspace) save(ctx context.Context, sess *session.Sheet, b *design.Board) error {
	sess.Update(b, w.ttl)
	return w.store.Set(ctx, sess)
}

// readUploads reads image files from disk.
func readUploads(paths []string) ([]design.Upload, error) {
	uploads := make([]design.Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		uploads = append(uploads, design.Upload{
			Name: filepath.Base(p),
			MIME: mime.TypeByExtension(strings.ToLower(filepath.Ext(p))),
			Data: data,
		})
	}
	return uploads, nil
}

// resolveDesign finds a design by id or unique id prefix.
func resolveDesign(b *design.Board, ref string) (design.Object, error) {
	if o, ok := b.Get(ref); ok {
		return o, nil
	}
	var match []design.Object
	for _, o := range b.Objects() {
		if strings.HasPrefix(o.ID, ref) {
			match = append(match, o)
		}
	}
	switch len(match) {
	case 1:
		return match[0], nil
	case 0:
		return design.Object{}, errors.New(errors.ErrCodeDesignNotFound, "design %s not found", ref)
	default:
		return design.Object{}, errors.New(errors.ErrCodeInvalidInput, "design prefix %s is ambiguous (%d matches)", ref, len(match))
	}
}

// shortID trims an id for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
