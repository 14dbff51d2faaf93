// Package color resolves the accent color of each skill code from element
// overrides, inherited style hints, and taxonomy categories.
package color

import (
	"strings"

	"github.com/kingrea/skilltree/internal/dom"
	"github.com/kingrea/skilltree/internal/palette"
	"github.com/kingrea/skilltree/internal/skill"
	"github.com/kingrea/skilltree/internal/taxonomy"
)

// ActiveColorProperty is the custom property read when no data-color is set.
const ActiveColorProperty = "--active-color"

// Precedence decides who wins when both an element and its taxonomy group
// supply a color.
type Precedence int

const (
	// PrecedenceTaxonomy lets category colors overwrite element colors.
	PrecedenceTaxonomy Precedence = iota
	// PrecedenceElement keeps element colors and fills the rest from the
	// taxonomy.
	PrecedenceElement
)

// ParsePrecedence maps "taxonomy" or "element" to a Precedence.
func ParsePrecedence(s string) (Precedence, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "taxonomy":
		return PrecedenceTaxonomy, true
	case "element":
		return PrecedenceElement, true
	default:
		return PrecedenceTaxonomy, false
	}
}

func (p Precedence) String() string {
	if p == PrecedenceElement {
		return "element"
	}
	return "taxonomy"
}

// Map is a code to color table, rebuilt on every pass.
type Map map[skill.Code]string

// Option customizes a Resolver.
type Option func(*Resolver)

// WithPrecedence overrides the default taxonomy-wins precedence.
func WithPrecedence(p Precedence) Option {
	return func(r *Resolver) {
		r.precedence = p
	}
}

// WithExtractor replaces the default code extractor.
func WithExtractor(x skill.Extractor) Option {
	return func(r *Resolver) {
		r.extract = x
	}
}

// Resolver answers color lookups for one tree.
type Resolver struct {
	root       *dom.Element
	tax        *taxonomy.Taxonomy
	extract    skill.Extractor
	precedence Precedence
	colors     Map
}

// New builds a resolver over root's descendants. tax may be nil.
func New(root *dom.Element, tax *taxonomy.Taxonomy, opts ...Option) *Resolver {
	r := &Resolver{root: root, tax: tax, extract: skill.NewExtractor(), colors: Map{}}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// BuildMap rebuilds and returns the color map. Elements are scanned first
// (data-color, else the inherited --active-color); then every group whose
// label names a category assigns its color to all of its codes.
func (r *Resolver) BuildMap() Map {
	m := Map{}
	if r.root != nil {
		for _, el := range r.root.All() {
			code, ok := r.extract.Extract(el)
			if !ok {
				continue
			}
			if c := ElementColor(el); c != "" {
				m[code] = c
			}
		}
	}
	if r.tax != nil {
		for gi := range r.tax.Groups {
			g := &r.tax.Groups[gi]
			cat, ok := g.Category()
			if !ok {
				continue
			}
			for _, code := range g.Codes() {
				if _, has := m[code]; has && r.precedence == PrecedenceElement {
					continue
				}
				m[code] = cat.Color
			}
		}
	}
	r.colors = m
	return m
}

// Color returns the mapped color, else the color of the first element that
// resolves to code, else the default accent.
func (r *Resolver) Color(code skill.Code) string {
	code = skill.Normalize(string(code))
	if c := r.colors[code]; c != "" {
		return c
	}
	if r.root != nil {
		for _, el := range r.root.All() {
			if got, ok := r.extract.Extract(el); ok && got == code {
				if c := ElementColor(el); c != "" {
					return c
				}
				break
			}
		}
	}
	return palette.DefaultAccent
}

// Map returns the last built map.
func (r *Resolver) Map() Map {
	return r.colors
}

// ElementColor is the element's own color hint: data-color, else the
// inherited --active-color custom property.
func ElementColor(el *dom.Element) string {
	if el == nil {
		return ""
	}
	if v, ok := el.Data("color"); ok {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return strings.TrimSpace(el.CustomProperty(ActiveColorProperty))
}
