// Package dom gives the synchronization engine a small, browser-like view of
// an SVG tree: element identity, dataset lookups, class lists, ordered inline
// styles and inherited custom properties. Parsing and selection are delegated
// to goquery and golang.org/x/net/html.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a parsed tree. Markup is parsed with the HTML5 algorithm, so an
// SVG file ends up under <html><body>; Root returns the outermost <svg>.
type Document struct {
	doc *goquery.Document
}

// Parse reads markup from r.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return &Document{doc: doc}, nil
}

// ParseString parses an in-memory document.
func ParseString(markup string) (*Document, error) {
	return Parse(strings.NewReader(markup))
}

// Load parses the file at path.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dom: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Root returns the first <svg> element, falling back to <body>.
func (d *Document) Root() *Element {
	if d == nil {
		return nil
	}
	if nodes := d.doc.Find("svg").First().Nodes; len(nodes) > 0 {
		return Wrap(nodes[0])
	}
	return d.Body()
}

// Body returns the <body> element.
func (d *Document) Body() *Element {
	if d == nil {
		return nil
	}
	if nodes := d.doc.Find("body").Nodes; len(nodes) > 0 {
		return Wrap(nodes[0])
	}
	return nil
}

// Find runs a CSS selector against the whole document.
func (d *Document) Find(selector string) []*Element {
	if d == nil {
		return nil
	}
	return wrapAll(d.doc.Find(selector).Nodes)
}

// ByID returns the element with the given id.
func (d *Document) ByID(id string) *Element {
	if d == nil || id == "" {
		return nil
	}
	for _, n := range d.doc.Find("[id]").Nodes {
		if el := Wrap(n); el.ID() == id {
			return el
		}
	}
	return nil
}

// Fragment parses markup in a <body> context and returns the first element,
// detached from the document until it is appended somewhere.
func (d *Document) Fragment(markup string) (*Element, error) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, fmt.Errorf("dom: parse fragment: %w", err)
	}
	for _, n := range nodes {
		if el := Wrap(n); el != nil {
			return el, nil
		}
	}
	return nil, fmt.Errorf("dom: fragment has no element")
}

// Render writes the children of <body>, which for an SVG file is the
// original <svg> element with its current state.
func (d *Document) Render(w io.Writer) error {
	body := d.Body()
	if body == nil {
		return nil
	}
	for c := body.node.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(w, c); err != nil {
			return fmt.Errorf("dom: render: %w", err)
		}
	}
	return nil
}

// String renders the document, ignoring errors.
func (d *Document) String() string {
	var buf bytes.Buffer
	_ = d.Render(&buf)
	return buf.String()
}

// OuterHTML renders a single element.
func OuterHTML(e *Element) string {
	if e == nil {
		return ""
	}
	var buf bytes.Buffer
	_ = html.Render(&buf, e.node)
	return buf.String()
}
