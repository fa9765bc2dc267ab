// Package sheet defines print sheet templates and pricing.
//
// A [Sheet] is the physical print target: its dimensions are in inches and
// it carries a base price and the maximum number of designs it accepts. The
// built-in catalog mirrors the storefront's standard offerings; additional
// templates can be loaded from a TOML file with [LoadCatalog].
//
// Pricing is a pure function of the sheet and the number of placed designs:
//
//	price := sheet.CalculatePrice(s, len(objects))
package sheet

import (
	"fmt"
	"math"
	"sort"

	"github.com/matzehuels/gangsheet/pkg/errors"
)

// PerDesignFee is the surcharge added for every design placed on a sheet.
const PerDesignFee = 0.50

// DefaultID is the template selected when none is specified.
const DefaultID = "template_12x16"

// Sheet is a print sheet template.
type Sheet struct {
	ID         string  `json:"id" bson:"id" toml:"id"`
	Name       string  `json:"name" bson:"name" toml:"name"`
	Width      float64 `json:"width" bson:"width" toml:"width"`    // inches
	Height     float64 `json:"height" bson:"height" toml:"height"` // inches
	Price      float64 `json:"price" bson:"price" toml:"price"`    // base price per sheet
	MaxDesigns int     `json:"max_designs" bson:"max_designs" toml:"max_designs"`
}

// Validate checks that the sheet describes a usable print target.
func (s Sheet) Validate() error {
	if err := errors.ValidateSheetID(s.ID); err != nil {
		return err
	}
	if s.Width <= 0 || s.Height <= 0 {
		return errors.New(errors.ErrCodeInvalidSheet, "sheet %s: dimensions must be positive (got %vx%v)", s.ID, s.Width, s.Height)
	}
	if s.Price < 0 {
		return errors.New(errors.ErrCodeInvalidSheet, "sheet %s: price cannot be negative", s.ID)
	}
	if s.MaxDesigns < 0 {
		return errors.New(errors.ErrCodeInvalidSheet, "sheet %s: max_designs cannot be negative", s.ID)
	}
	return nil
}

// Label returns the human-readable size label, e.g. `12" x 16"`.
func (s Sheet) Label() string {
	return fmt.Sprintf(`%s" x %s"`, trimFloat(s.Width), trimFloat(s.Height))
}

// Accepts reports whether n designs fit the sheet's design limit.
// A MaxDesigns of zero means unlimited.
func (s Sheet) Accepts(n int) bool {
	return s.MaxDesigns == 0 || n <= s.MaxDesigns
}

// CalculatePrice returns the sheet price for n placed designs:
// base price plus PerDesignFee per design, rounded to cents.
// Negative counts are treated as zero.
func CalculatePrice(s Sheet, n int) float64 {
	if n < 0 {
		n = 0
	}
	return round2(s.Price + float64(n)*PerDesignFee)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func trimFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}

// Builtin returns the standard sheet templates.
func Builtin() []Sheet {
	return []Sheet{
		{ID: "template_12x16", Name: "12x16 Standard Sheet", Width: 12, Height: 16, Price: 18.99, MaxDesigns: 50},
		{ID: "template_22x24", Name: "22x24 Large Sheet", Width: 22, Height: 24, Price: 45.99, MaxDesigns: 100},
		{ID: "template_8x11", Name: "8.5x11 Small Sheet", Width: 8.5, Height: 11, Price: 12.99, MaxDesigns: 25},
	}
}

// Catalog is an ordered, id-indexed set of sheet templates.
type Catalog struct {
	order []string
	byID  map[string]Sheet
}

// NewCatalog builds a catalog from sheets. Later entries with a duplicate id
// replace earlier ones in place.
func NewCatalog(sheets ...Sheet) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Sheet, len(sheets))}
	for _, s := range sheets {
		if err := c.Put(s); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// DefaultCatalog returns a catalog of the built-in templates.
func DefaultCatalog() *Catalog {
	c, _ := NewCatalog(Builtin()...)
	return c
}

// Put adds or replaces a template.
func (c *Catalog) Put(s Sheet) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if _, ok := c.byID[s.ID]; !ok {
		c.order = append(c.order, s.ID)
	}
	c.byID[s.ID] = s
	return nil
}

// Get returns the template with the given id.
func (c *Catalog) Get(id string) (Sheet, error) {
	s, ok := c.byID[id]
	if !ok {
		return Sheet{}, errors.New(errors.ErrCodeNotFound, "unknown sheet template %q", id)
	}
	return s, nil
}

// All returns templates in insertion order.
func (c *Catalog) All() []Sheet {
	out := make([]Sheet, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// IDs returns the sorted template ids.
func (c *Catalog) IDs() []string {
	ids := append([]string(nil), c.order...)
	sort.Strings(ids)
	return ids
}

// Len returns the number of templates.
func (c *Catalog) Len() int { return len(c.order) }
