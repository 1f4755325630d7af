package dom

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"otago-pg/pkg/types"
)

// OriginalHrefAttr is written by the site's accessibility overlay when it
// rewrites an anchor; it holds the href the page author used.
const OriginalHrefAttr = "data-uw-original-href"

// HarvestLinks returns {text, href} for every anchor in fragment, in document
// order. A malformed fragment yields an empty slice.
func HarvestLinks(fragment string) []types.LinkItem {
	items := []types.LinkItem{}
	if strings.TrimSpace(fragment) == "" {
		return items
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return items
	}
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr(OriginalHrefAttr)
		if !ok || strings.TrimSpace(href) == "" {
			href, _ = s.Attr("href")
		}
		items = append(items, types.LinkItem{
			Text: strings.TrimSpace(s.Text()),
			Href: strings.TrimSpace(href),
		})
	})
	return items
}
