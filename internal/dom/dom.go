// Package dom wraps golang.org/x/net/html behind the small set of
// queries and mutations the CSP rewriter needs.
//
// A Document owns its parsed tree exclusively. Callers interact through
// Element handles handed out by query methods; the underlying nodes are
// never exposed. Queries walk the tree in document order (depth-first,
// pre-order), which matches source order for well-formed input.
//
// Selection is deliberately not a CSS engine: the rewriter only ever
// needs four fixed shapes of match (tag, tag with attribute, tag
// without attribute, tag with attribute value), so those are explicit
// predicate constructors.
package dom

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is one mutable parsed HTML tree.
type Document struct {
	root *html.Node
}

// Element is an opaque handle to one element node inside a Document.
type Element struct {
	n *html.Node
}

// Predicate reports whether an element matches a query.
type Predicate func(e *Element) bool

// Parse builds a Document from raw HTML. Parsing is permissive HTML5:
// malformed input produces a best-effort tree, never an error in
// practice (x/net/html only fails on reader errors).
func Parse(src string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, err
	}
	return &Document{root: root}, nil
}

// Render serializes the current tree back to HTML.
func (d *Document) Render() (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ByTag matches elements with the given tag name.
func ByTag(tag string) Predicate {
	return func(e *Element) bool { return e.tag() == tag }
}

// ByTagWithAttr matches elements with the given tag name that carry the
// attribute, regardless of its value.
func ByTagWithAttr(tag, attr string) Predicate {
	return func(e *Element) bool {
		if e.tag() != tag {
			return false
		}
		_, ok := e.Attr(attr)
		return ok
	}
}

// ByTagWithoutAttr matches elements with the given tag name that do not
// carry the attribute.
func ByTagWithoutAttr(tag, attr string) Predicate {
	return func(e *Element) bool {
		if e.tag() != tag {
			return false
		}
		_, ok := e.Attr(attr)
		return !ok
	}
}

// ByTagAttrValue matches elements whose attribute equals val. The value
// comparison is case-insensitive because the one caller matches
// http-equiv, which HTML treats case-insensitively.
func ByTagAttrValue(tag, attr, val string) Predicate {
	return func(e *Element) bool {
		if e.tag() != tag {
			return false
		}
		v, ok := e.Attr(attr)
		return ok && strings.EqualFold(v, val)
	}
}

// FindAll returns every matching element in document order. The result
// is a stable snapshot: removing returned elements does not invalidate
// the rest of the slice.
func (d *Document) FindAll(match Predicate) []*Element {
	var out []*Element
	walk(d.root, func(n *html.Node) {
		e := &Element{n: n}
		if match(e) {
			out = append(out, e)
		}
	})
	return out
}

// First returns the first matching element in document order, or nil.
func (d *Document) First(match Predicate) *Element {
	for _, e := range d.FindAll(match) {
		return e
	}
	return nil
}

// NewElement creates a detached element with the given tag name. It is
// not part of the tree until inserted.
func (d *Document) NewElement(tag string) *Element {
	return &Element{n: &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}}
}

// PrependToHead inserts e as the first child of <head>. The HTML5
// parser always synthesizes head and body, so both are present even
// for fragment-ish input.
func (d *Document) PrependToHead(e *Element) {
	if head := d.First(ByTag("head")); head != nil {
		head.n.InsertBefore(e.n, head.n.FirstChild)
	}
}

// AppendToBody appends e as the last child of <body>.
func (d *Document) AppendToBody(e *Element) {
	if body := d.First(ByTag("body")); body != nil {
		body.n.AppendChild(e.n)
	}
}

func (e *Element) tag() string {
	return strings.ToLower(e.n.Data)
}

// Attr returns the value of the named attribute and whether it exists.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces the named attribute.
func (e *Element) SetAttr(name, val string) {
	for i, a := range e.n.Attr {
		if strings.EqualFold(a.Key, name) {
			e.n.Attr[i].Val = val
			return
		}
	}
	e.n.Attr = append(e.n.Attr, html.Attribute{Key: name, Val: val})
}

// Text returns the concatenated text content of the element's direct
// children. For script and style elements this is the raw inline body,
// whitespace and newlines intact.
func (e *Element) Text() string {
	var b strings.Builder
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// SetText replaces the element's children with a single text node.
func (e *Element) SetText(s string) {
	for c := e.n.FirstChild; c != nil; {
		next := c.NextSibling
		e.n.RemoveChild(c)
		c = next
	}
	e.n.AppendChild(&html.Node{Type: html.TextNode, Data: s})
}

// Remove detaches the element (and its subtree) from the document.
// Removing an already-detached element is a no-op.
func (e *Element) Remove() {
	if e.n.Parent != nil {
		e.n.Parent.RemoveChild(e.n)
	}
}

// walk visits every element node depth-first, pre-order.
func walk(n *html.Node, visit func(*html.Node)) {
	if n.Type == html.ElementNode {
		visit(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}
