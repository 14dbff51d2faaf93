package dom

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Element wraps a single element node of the parsed tree. Two Elements are
// the same element when Node() returns the same pointer.
type Element struct {
	node *html.Node
}

// Wrap returns the Element for an element node, or nil for anything else.
func Wrap(n *html.Node) *Element {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	return &Element{node: n}
}

// Node exposes the underlying html node.
func (e *Element) Node() *html.Node {
	if e == nil {
		return nil
	}
	return e.node
}

// Tag returns the lowercased tag name.
func (e *Element) Tag() string {
	if e == nil {
		return ""
	}
	return strings.ToLower(e.node.Data)
}

// ID returns the id attribute.
func (e *Element) ID() string {
	v, _ := e.Attr("id")
	return v
}

// Attr returns the named attribute and whether it is present.
func (e *Element) Attr(name string) (string, bool) {
	if e == nil {
		return "", false
	}
	for _, a := range e.node.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr creates or replaces an attribute.
func (e *Element) SetAttr(name, value string) {
	if e == nil {
		return
	}
	for i, a := range e.node.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			e.node.Attr[i].Val = value
			return
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveAttr deletes an attribute if present.
func (e *Element) RemoveAttr(name string) {
	if e == nil {
		return
	}
	for i, a := range e.node.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			e.node.Attr = append(e.node.Attr[:i], e.node.Attr[i+1:]...)
			return
		}
	}
}

// Data reads a dataset entry using the camelCase key convention of the
// browser dataset API: Data("dataCode") reads `data-data-code`.
func (e *Element) Data(key string) (string, bool) {
	return e.Attr(datasetAttr(key))
}

// SetData writes a dataset entry.
func (e *Element) SetData(key, value string) {
	e.SetAttr(datasetAttr(key), value)
}

func datasetAttr(key string) string {
	var b strings.Builder
	b.WriteString("data-")
	for _, r := range key {
		if unicode.IsUpper(r) {
			b.WriteByte('-')
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Classes returns the class list in attribute order.
func (e *Element) Classes() []string {
	raw, _ := e.Attr("class")
	return strings.Fields(raw)
}

// HasClass reports whether the class list contains name.
func (e *Element) HasClass(name string) bool {
	for _, c := range e.Classes() {
		if c == name {
			return true
		}
	}
	return false
}

// ToggleClass adds name when on is true and removes it otherwise.
func (e *Element) ToggleClass(name string, on bool) {
	if e == nil || name == "" {
		return
	}
	classes := e.Classes()
	out := classes[:0]
	present := false
	for _, c := range classes {
		if c == name {
			if present || !on {
				continue
			}
			present = true
		}
		out = append(out, c)
	}
	if on && !present {
		out = append(out, name)
	}
	if len(out) == 0 {
		e.RemoveAttr("class")
		return
	}
	e.SetAttr("class", strings.Join(out, " "))
}

// Style returns an inline style property.
func (e *Element) Style(property string) string {
	raw, _ := e.Attr("style")
	v, _ := lookupDeclaration(parseStyle(raw), normalizeProperty(property))
	return v
}

// SetStyle writes an inline style property. An empty value removes it.
func (e *Element) SetStyle(property, value string) {
	if e == nil {
		return
	}
	raw, _ := e.Attr("style")
	decls := parseStyle(raw)
	property = normalizeProperty(property)
	value = strings.TrimSpace(value)
	if value == "" {
		decls = removeDeclaration(decls, property)
	} else {
		decls = setDeclaration(decls, property, value)
	}
	if formatted := formatStyle(decls); formatted != "" {
		e.SetAttr("style", formatted)
	} else {
		e.RemoveAttr("style")
	}
}

// CustomProperty resolves a `--name` property the way a computed style
// would: custom properties inherit, so the nearest ancestor declaring it
// wins.
func (e *Element) CustomProperty(name string) string {
	for cur := e; cur != nil; cur = cur.Parent() {
		raw, ok := cur.Attr("style")
		if !ok {
			continue
		}
		if v, ok := lookupDeclaration(parseStyle(raw), name); ok {
			return v
		}
	}
	return ""
}

// Parent returns the parent element, or nil at the top of the tree.
func (e *Element) Parent() *Element {
	if e == nil {
		return nil
	}
	return Wrap(e.node.Parent)
}

// Connected reports whether the element is reachable from a document node.
func (e *Element) Connected() bool {
	if e == nil {
		return false
	}
	for n := e.node; n != nil; n = n.Parent {
		if n.Type == html.DocumentNode {
			return true
		}
	}
	return false
}

// Find returns the descendants matching a CSS selector, in document order.
func (e *Element) Find(selector string) []*Element {
	if e == nil {
		return nil
	}
	return wrapAll(goquery.NewDocumentFromNode(e.node).Find(selector).Nodes)
}

// First returns the first descendant matching selector.
func (e *Element) First(selector string) *Element {
	if e == nil {
		return nil
	}
	nodes := goquery.NewDocumentFromNode(e.node).Find(selector).First().Nodes
	if len(nodes) == 0 {
		return nil
	}
	return Wrap(nodes[0])
}

// All returns every descendant element.
func (e *Element) All() []*Element {
	return e.Find("*")
}

// Children returns the direct child elements.
func (e *Element) Children() []*Element {
	if e == nil {
		return nil
	}
	var out []*Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if el := Wrap(c); el != nil {
			out = append(out, el)
		}
	}
	return out
}

// Text returns the concatenated text of the element and its descendants.
func (e *Element) Text() string {
	if e == nil {
		return ""
	}
	return goquery.NewDocumentFromNode(e.node).Text()
}

// Append moves child under e. A child that is still attached elsewhere is
// detached first.
func (e *Element) Append(child *Element) {
	if e == nil || child == nil {
		return
	}
	if child.node.Parent != nil {
		child.node.Parent.RemoveChild(child.node)
	}
	e.node.AppendChild(child.node)
}

// Remove detaches e from its parent.
func (e *Element) Remove() {
	if e == nil || e.node.Parent == nil {
		return
	}
	e.node.Parent.RemoveChild(e.node)
}

func wrapAll(nodes []*html.Node) []*Element {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		if el := Wrap(n); el != nil {
			out = append(out, el)
		}
	}
	return out
}
