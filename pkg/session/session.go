// Package session persists gang sheets between requests.
//
// A [Sheet] is the stored form of a [design.Board]: the chosen template,
// the ordered design objects, and bookkeeping such as status and
// expiry. Selection and drag state are transient and never stored.
//
// Three backends implement [Store]:
//   - [MemoryStore]: in-process, for tests and single-instance servers
//   - [FileStore]: one JSON file per sheet, used by the CLI
//   - [MongoStore]: MongoDB collection for multi-instance deployments
//
// # Usage
//
//	sess, err := session.New(board, session.DefaultTTL)
//	if err := store.Set(ctx, sess); err != nil {
//	    return err
//	}
//
//	sess, err = store.Get(ctx, id)
//	board, err := sess.Board()
//	// ... edit the board ...
//	sess.Update(board)
//	store.Set(ctx, sess)
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/gangsheet/pkg/design"
	"github.com/matzehuels/gangsheet/pkg/errors"
	"github.com/matzehuels/gangsheet/pkg/sheet"
)

// Status is the lifecycle state of a stored sheet.
type Status string

const (
	// StatusDraft sheets are still being edited.
	StatusDraft Status = "draft"
	// StatusSubmitted sheets were handed off to checkout.
	StatusSubmitted Status = "submitted"
)

// Default durations.
const (
	// DefaultTTL is how long an untouched draft is kept.
	DefaultTTL = 7 * 24 * time.Hour
)

// Sheet is a stored gang sheet.
type Sheet struct {
	ID         string          `json:"id" bson:"_id"`
	Sheet      sheet.Sheet     `json:"sheet" bson:"sheet"`
	Objects    []design.Object `json:"objects" bson:"objects"`
	Status     Status          `json:"status" bson:"status"`
	TotalPrice float64         `json:"total_price" bson:"total_price"`
	CreatedAt  time.Time       `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" bson:"updated_at"`
	ExpiresAt  time.Time       `json:"expires_at" bson:"expires_at,omitempty"`
}

// New captures a board as a new draft with a fresh id.
func New(b *design.Board, ttl time.Duration) *Sheet {
	now := time.Now().UTC()
	s := &Sheet{
		ID:        uuid.NewString(),
		Status:    StatusDraft,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	s.capture(b, now)
	return s
}

// IsExpired returns true if the sheet has passed its expiry.
func (s *Sheet) IsExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// Board rebuilds an editable board from the stored state.
func (s *Sheet) Board(opts ...design.BoardOption) (*design.Board, error) {
	return design.Restore(s.Sheet, s.Objects, opts...)
}

// Update replaces the stored state with the board's current state and
// extends the expiry by ttl measured from now. A zero ttl keeps the
// current expiry.
func (s *Sheet) Update(b *design.Board, ttl time.Duration) {
	now := time.Now().UTC()
	s.capture(b, now)
	if ttl > 0 {
		s.ExpiresAt = now.Add(ttl)
	}
}

// Submit marks the sheet as handed off to checkout.
func (s *Sheet) Submit() {
	s.Status = StatusSubmitted
	s.UpdatedAt = time.Now().UTC()
}

func (s *Sheet) capture(b *design.Board, now time.Time) {
	snap := b.Snapshot()
	s.Sheet = snap.Sheet
	s.Objects = snap.Objects
	s.TotalPrice = snap.Price()
	s.UpdatedAt = now
}

// Store is the interface for sheet storage backends.
type Store interface {
	// Get retrieves a sheet by ID. A missing or expired sheet is a
	// SESSION_NOT_FOUND error.
	Get(ctx context.Context, id string) (*Sheet, error)

	// Set stores a sheet, replacing any previous version.
	Set(ctx context.Context, s *Sheet) error

	// Delete removes a sheet. Deleting a missing sheet is not an error.
	Delete(ctx context.Context, id string) error

	// Cleanup removes expired sheets.
	Cleanup(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

func notFound(id string) error {
	return errors.New(errors.ErrCodeSessionNotFound, "sheet %s not found", id)
}
