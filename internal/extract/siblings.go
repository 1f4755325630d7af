package extract

import (
	"strings"

	"otago-pg/internal/dom"
)

// CollectSiblingRun joins the outer markup of the consecutive element
// siblings after anchor whose tag is tag. The run stops at the first sibling
// with another tag.
func CollectSiblingRun(anchor *dom.Node, tag string) string {
	if anchor == nil {
		return ""
	}
	tag = strings.ToLower(tag)
	var parts []string
	for sib := anchor.Next(); sib != nil && sib.Tag() == tag; sib = sib.Next() {
		if markup := sib.OuterHTML(); markup != "" {
			parts = append(parts, markup)
		}
	}
	return strings.Join(parts, "\n")
}

// FindAnchor returns the first element among tags whose text contains
// phrase, ignoring case.
func FindAnchor(doc *dom.Document, phrase string, tags ...string) (*dom.Node, error) {
	if len(tags) == 0 {
		tags = []string{"h2"}
	}
	pred := "[" + dom.ContainsFold(strings.ToLower(phrase)) + "]"
	exprs := make([]string, 0, len(tags))
	for _, tag := range tags {
		exprs = append(exprs, "//"+tag+pred)
	}
	return doc.Find(strings.Join(exprs, " | "))
}
