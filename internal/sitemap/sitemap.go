// Package sitemap lists the detail pages to extract, either from a JSON
// descriptor file or from the site's XML sitemaps.
package sitemap

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"otago-pg/internal/config"
	"otago-pg/internal/fetcher"
	"otago-pg/pkg/types"
)

const maxIndexDepth = 3

// LoadFile reads a JSON array of descriptors.
func LoadFile(path string) ([]types.MajorInfo, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sitemap: %w", err)
	}
	defer fh.Close()
	return Parse(fh)
}

// Parse decodes a JSON array of descriptors, dropping repeated URLs.
func Parse(r io.Reader) ([]types.MajorInfo, error) {
	var infos []types.MajorInfo
	if err := json.NewDecoder(r).Decode(&infos); err != nil {
		return nil, fmt.Errorf("decode sitemap: %w", err)
	}
	return Dedupe(infos), nil
}

// Dedupe keeps the first descriptor for each URL, preserving order.
// Descriptors without a URL are kept so they can be reported.
func Dedupe(infos []types.MajorInfo) []types.MajorInfo {
	seen := make(map[string]struct{}, len(infos))
	out := make([]types.MajorInfo, 0, len(infos))
	for _, info := range infos {
		key := strings.TrimRight(strings.TrimSpace(info.URL), "/")
		if key != "" {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, info)
	}
	return out
}

// Loader walks XML sitemaps over HTTP.
type Loader struct {
	Fetcher fetcher.Fetcher
	Match   *regexp.Regexp
	Logger  *slog.Logger
}

// NewLoader compiles match, which may be empty.
func NewLoader(f fetcher.Fetcher, match string, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{Fetcher: f, Logger: logger}
	if strings.TrimSpace(match) != "" {
		re, err := regexp.Compile(match)
		if err != nil {
			return nil, fmt.Errorf("compile sitemap match: %w", err)
		}
		l.Match = re
	}
	return l, nil
}

type document struct {
	XMLName  xml.Name
	URLs     []entry `xml:"url"`
	Sitemaps []entry `xml:"sitemap"`
}

type entry struct {
	Loc string `xml:"loc"`
}

// LoadXML reads a urlset or sitemapindex document, following nested
// sitemaps, and returns the matching page URLs in document order.
func (l *Loader) LoadXML(ctx context.Context, rawURL string) ([]types.MajorInfo, error) {
	var infos []types.MajorInfo
	if err := l.walk(ctx, rawURL, 0, &infos); err != nil {
		return nil, err
	}
	return Dedupe(infos), nil
}

func (l *Loader) walk(ctx context.Context, rawURL string, depth int, infos *[]types.MajorInfo) error {
	if depth > maxIndexDepth {
		return fmt.Errorf("sitemap index nesting exceeds %d at %s", maxIndexDepth, rawURL)
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("parse sitemap url %q: %w", rawURL, err)
	}
	page, err := l.Fetcher.Fetch(ctx, types.FetchRequest{URL: u, Label: "sitemap"})
	if err != nil {
		return err
	}
	if page.StatusCode >= 400 {
		return fmt.Errorf("fetch sitemap %s: status %d", rawURL, page.StatusCode)
	}

	var doc document
	if err := xml.NewDecoder(bytes.NewReader(page.Body)).Decode(&doc); err != nil {
		return fmt.Errorf("decode sitemap %s: %w", rawURL, err)
	}

	switch doc.XMLName.Local {
	case "sitemapindex":
		for _, s := range doc.Sitemaps {
			loc := strings.TrimSpace(s.Loc)
			if loc == "" {
				continue
			}
			if err := l.walk(ctx, loc, depth+1, infos); err != nil {
				l.Logger.Warn("nested sitemap failed", "sitemap", loc, "error", err)
			}
		}
	case "urlset":
		for _, e := range doc.URLs {
			loc := strings.TrimSpace(e.Loc)
			if loc == "" || (l.Match != nil && !l.Match.MatchString(loc)) {
				continue
			}
			*infos = append(*infos, types.MajorInfo{URL: loc})
		}
	default:
		return fmt.Errorf("unexpected sitemap root <%s> at %s", doc.XMLName.Local, rawURL)
	}
	return nil
}

// Load picks the descriptor source configured for the site: the JSON file
// when set, the XML sitemap otherwise.
func Load(ctx context.Context, site config.SiteConfig, f fetcher.Fetcher, logger *slog.Logger) ([]types.MajorInfo, error) {
	if site.SitemapPath != "" {
		return LoadFile(site.SitemapPath)
	}
	loader, err := NewLoader(f, site.SitemapMatch, logger)
	if err != nil {
		return nil, err
	}
	return loader.LoadXML(ctx, site.SitemapURL)
}
