package extract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var headingAtoms = map[atom.Atom]struct{}{
	atom.H1: {},
	atom.H2: {},
	atom.H3: {},
	atom.H4: {},
	atom.H5: {},
	atom.H6: {},
}

// PruneFragment removes the section introduced by the first heading whose
// text contains marker. Removal covers the heading and every sibling after
// it up to, not including, the first heading whose text contains nextMarker.
// With no such heading removal runs to the last sibling. A fragment without a
// marker heading is returned unchanged.
//
// On a parse or render failure the result is empty, not the original.
func PruneFragment(fragment, marker, nextMarker string) (string, error) {
	return pruneFragment(fragment, marker, nextMarker, false)
}

// PruneFragmentThrough is PruneFragment that also removes the nextMarker
// heading, leaving only what follows it.
func PruneFragmentThrough(fragment, marker, nextMarker string) (string, error) {
	return pruneFragment(fragment, marker, nextMarker, true)
}

func pruneFragment(fragment, marker, nextMarker string, dropNext bool) (string, error) {
	if marker == "" || !strings.Contains(fragment, marker) {
		return fragment, nil
	}

	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), container)
	if err != nil {
		return "", fmt.Errorf("parse fragment: %w", err)
	}
	for _, n := range nodes {
		container.AppendChild(n)
	}

	start := findMarkerHeading(container, marker)
	if start == nil {
		return fragment, nil
	}

	parent := start.Parent
	for sib := start.NextSibling; sib != nil; {
		if nextMarker != "" && isHeading(sib) && strings.Contains(textContent(sib), nextMarker) {
			if dropNext {
				parent.RemoveChild(sib)
			}
			break
		}
		following := sib.NextSibling
		parent.RemoveChild(sib)
		sib = following
	}
	parent.RemoveChild(start)

	var buf bytes.Buffer
	for child := container.FirstChild; child != nil; child = child.NextSibling {
		if err := html.Render(&buf, child); err != nil {
			return "", fmt.Errorf("render fragment: %w", err)
		}
	}
	return strings.TrimSpace(buf.String()), nil
}

func findMarkerHeading(node *html.Node, marker string) *html.Node {
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if isHeading(child) && strings.Contains(textContent(child), marker) {
			return child
		}
		if found := findMarkerHeading(child, marker); found != nil {
			return found
		}
	}
	return nil
}

func isHeading(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	_, ok := headingAtoms[n.DataAtom]
	return ok
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return b.String()
}
