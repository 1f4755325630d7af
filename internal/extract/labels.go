package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"otago-pg/internal/dom"
	"otago-pg/pkg/types"
)

// ViewOpener opens a read-only view of another document.
type ViewOpener interface {
	OpenView(ctx context.Context, url string, timeout time.Duration) (View, error)
}

// View is an auxiliary document opened by a ViewOpener. Close releases it and
// must be called exactly once.
type View interface {
	Document(ctx context.Context) (*dom.Document, error)
	Close() error
}

// DefaultHeadingQuery selects the title heading on course and paper pages.
const DefaultHeadingQuery = `//h1[contains(@class, "page-banner__title")]`

var errNoHeading = errors.New("title heading not found")

// LabelResolver turns harvested links into display labels by reading the
// title heading of each linked page.
type LabelResolver struct {
	Opener       ViewOpener
	Timeout      time.Duration
	HeadingQuery string
	Separator    string
	Logger       *slog.Logger
}

// Resolve returns one label per item, in order. An item resolves to
// "text: title" when its page opens and carries a non-empty title heading,
// and to its bare text otherwise. Relative hrefs are resolved against base.
func (r *LabelResolver) Resolve(ctx context.Context, base string, items []types.LinkItem) []string {
	labels := make([]string, 0, len(items))
	for _, item := range items {
		text := strings.TrimSpace(item.Text)
		href := absolute(base, item.Href)
		if href == "" || r.Opener == nil {
			labels = append(labels, text)
			continue
		}
		title, err := r.title(ctx, href)
		if err != nil || title == "" {
			r.logger().Debug("link label fallback", "href", href, "error", err)
			labels = append(labels, text)
			continue
		}
		labels = append(labels, text+": "+title)
	}
	return labels
}

// Join concatenates labels with the configured separator.
func (r *LabelResolver) Join(labels []string) string {
	sep := r.Separator
	if sep == "" {
		sep = ", "
	}
	return strings.Join(labels, sep)
}

func (r *LabelResolver) title(ctx context.Context, href string) (title string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			title, err = "", fmt.Errorf("panic: %v", rec)
		}
	}()

	view, err := r.Opener.OpenView(ctx, href, r.Timeout)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", href, err)
	}
	defer func() {
		if cerr := view.Close(); cerr != nil {
			r.logger().Warn("close link view failed", "href", href, "error", cerr)
		}
	}()

	doc, err := view.Document(ctx)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", href, err)
	}
	query := r.HeadingQuery
	if query == "" {
		query = DefaultHeadingQuery
	}
	heading, err := doc.Find(query)
	if err != nil {
		return "", err
	}
	if heading == nil {
		return "", errNoHeading
	}
	return dom.NormalizeWhitespace(heading.Text()), nil
}

func (r *LabelResolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func absolute(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
