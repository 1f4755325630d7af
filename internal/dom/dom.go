// Package dom is a read-only view over parsed HTML. Structural queries are
// XPath 1.0 expressions; a query that matches nothing is not an error.
package dom

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Document is a parsed page or fragment.
type Document struct {
	root *html.Node
	raw  string
}

// Node is one element of a Document.
type Node struct {
	n *html.Node
}

// Parse builds a Document from a full HTML page or a fragment.
func Parse(markup string) (*Document, error) {
	root, err := htmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{root: root, raw: markup}, nil
}

// HTML returns the markup the document was parsed from.
func (d *Document) HTML() string {
	if d == nil {
		return ""
	}
	return d.raw
}

// Find returns the first node matching expr, or nil.
func (d *Document) Find(expr string) (*Node, error) {
	if d == nil {
		return nil, nil
	}
	return query(d.root, expr)
}

// FindAll returns every node matching expr in document order.
func (d *Document) FindAll(expr string) ([]*Node, error) {
	if d == nil {
		return nil, nil
	}
	return queryAll(d.root, expr)
}

// Tag returns the lowercase element name.
func (n *Node) Tag() string {
	if n == nil || n.n == nil {
		return ""
	}
	return strings.ToLower(n.n.Data)
}

// Text returns the concatenated text content.
func (n *Node) Text() string {
	if n == nil || n.n == nil {
		return ""
	}
	return htmlquery.InnerText(n.n)
}

// InnerHTML serialises the node's children.
func (n *Node) InnerHTML() string {
	if n == nil || n.n == nil {
		return ""
	}
	return htmlquery.OutputHTML(n.n, false)
}

// OuterHTML serialises the node itself.
func (n *Node) OuterHTML() string {
	if n == nil || n.n == nil {
		return ""
	}
	return htmlquery.OutputHTML(n.n, true)
}

// Attr looks up an attribute by name.
func (n *Node) Attr(name string) (string, bool) {
	if n == nil || n.n == nil {
		return "", false
	}
	for _, a := range n.n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

// Next returns the following element sibling, skipping text and comments.
func (n *Node) Next() *Node {
	if n == nil || n.n == nil {
		return nil
	}
	for sib := n.n.NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type == html.ElementNode {
			return &Node{n: sib}
		}
	}
	return nil
}

// Parent returns the enclosing element.
func (n *Node) Parent() *Node {
	if n == nil || n.n == nil || n.n.Parent == nil || n.n.Parent.Type != html.ElementNode {
		return nil
	}
	return &Node{n: n.n.Parent}
}

// Find evaluates expr relative to the node.
func (n *Node) Find(expr string) (*Node, error) {
	if n == nil || n.n == nil {
		return nil, nil
	}
	return query(n.n, expr)
}

func query(top *html.Node, expr string) (*Node, error) {
	found, err := htmlquery.Query(top, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath %q: %w", expr, err)
	}
	if found == nil {
		return nil, nil
	}
	return &Node{n: found}, nil
}

func queryAll(top *html.Node, expr string) ([]*Node, error) {
	found, err := htmlquery.QueryAll(top, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath %q: %w", expr, err)
	}
	nodes := make([]*Node, 0, len(found))
	for _, f := range found {
		nodes = append(nodes, &Node{n: f})
	}
	return nodes, nil
}

// NormalizeWhitespace collapses runs of whitespace into single spaces.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ContainsFold builds an XPath predicate matching nodes whose text contains
// phrase regardless of case. phrase must be lowercase ASCII.
func ContainsFold(phrase string) string {
	return fmt.Sprintf(`contains(translate(., "ABCDEFGHIJKLMNOPQRSTUVWXYZ", "abcdefghijklmnopqrstuvwxyz"), %s)`, Literal(phrase))
}

// Literal quotes s as an XPath string literal.
func Literal(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
