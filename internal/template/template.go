// Package template persists named sets of regions of interest.
//
// A Store is a single JSON document rewritten in full on every mutation
// through a temporary file and a rename. It is meant for one process at
// a time; concurrent access to the same file from several processes is
// not supported.
package template

import (
	"errors"
	"fmt"
	"time"

	"github.com/a3tai/mcp-customs-roi/internal/fields"
	"github.com/a3tai/mcp-customs-roi/internal/geometry"
)

const (
	// DefaultDPI is the capture resolution used when none is given.
	DefaultDPI = 144
	// MaxDPI bounds the capture resolution a template may carry.
	MaxDPI = 1200
)

var (
	ErrIncompleteTemplate = errors.New("incomplete template")
	ErrMalformedTemplate  = errors.New("malformed template")
	ErrCorruptStore       = errors.New("corrupt template store")
	ErrTemplateNotFound   = errors.New("template not found")
)

// Regions maps each field to its normalized rectangle.
type Regions map[fields.Field]geometry.NormalizedRect

// Missing lists catalog fields without a region, in catalog order.
func (r Regions) Missing() []fields.Field {
	var out []fields.Field
	for _, f := range fields.All() {
		if _, ok := r[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}

// Complete reports whether every catalog field has a region.
func (r Regions) Complete() bool { return len(r.Missing()) == 0 }

// Clone returns an independent copy.
func (r Regions) Clone() Regions {
	out := make(Regions, len(r))
	for f, rect := range r {
		out[f] = rect
	}
	return out
}

func (r Regions) validate() error {
	for f, rect := range r {
		if !f.Valid() {
			return fmt.Errorf("%w: unknown field %d", ErrMalformedTemplate, int(f))
		}
		if err := rect.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedTemplate, f.Name(), err)
		}
	}
	return nil
}

// Template is a named, resolution-stamped set of regions.
type Template struct {
	Name      string
	DPI       float64
	Regions   Regions
	CreatedAt time.Time
}

// Complete reports whether the template covers the whole catalog.
func (t *Template) Complete() bool { return t != nil && t.Regions.Complete() }

// CheckComplete returns ErrIncompleteTemplate naming the missing fields.
func (t *Template) CheckComplete() error {
	if t == nil {
		return fmt.Errorf("%w: no template", ErrIncompleteTemplate)
	}
	if missing := t.Regions.Missing(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, f := range missing {
			names[i] = f.Name()
		}
		return fmt.Errorf("%w: %q missing %v", ErrIncompleteTemplate, t.Name, names)
	}
	return nil
}

func (t *Template) clone() *Template {
	c := *t
	c.Regions = t.Regions.Clone()
	return &c
}
