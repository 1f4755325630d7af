package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"otago-pg/internal/dom"
	"otago-pg/internal/extract"
	"otago-pg/pkg/types"
)

var (
	_ extract.ViewOpener = (*HTTPOpener)(nil)
	_ extract.ViewOpener = (*Composite)(nil)
)

// HTTPOpener serves read-only views from static HTML. Scripts do not run,
// so it suits pages whose titles are server rendered.
type HTTPOpener struct {
	Fetcher Fetcher
}

// OpenView fetches rawURL and parses the body. A 4xx or 5xx status is an
// error.
func (o *HTTPOpener) OpenView(ctx context.Context, rawURL string, timeout time.Duration) (extract.View, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	page, err := o.Fetcher.Fetch(ctx, types.FetchRequest{URL: u, Timeout: timeout, Label: "view"})
	if err != nil {
		return nil, err
	}
	if page.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, page.StatusCode)
	}
	doc, err := dom.Parse(string(page.Body))
	if err != nil {
		return nil, err
	}
	return staticView{doc: doc}, nil
}

type staticView struct {
	doc *dom.Document
}

func (v staticView) Document(context.Context) (*dom.Document, error) { return v.doc, nil }

func (v staticView) Close() error { return nil }

// Composite opens views with a primary opener and retries with the fallback
// when the primary fails.
type Composite struct {
	primary  extract.ViewOpener
	fallback extract.ViewOpener
	logger   *slog.Logger
}

// NewComposite builds a composite opener. fallback may be nil.
func NewComposite(primary, fallback extract.ViewOpener, logger *slog.Logger) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composite{primary: primary, fallback: fallback, logger: logger}
}

// OpenView delegates to the primary opener, then to the fallback.
func (c *Composite) OpenView(ctx context.Context, rawURL string, timeout time.Duration) (extract.View, error) {
	view, err := c.primary.OpenView(ctx, rawURL, timeout)
	if err == nil || c.fallback == nil || ctx.Err() != nil {
		return view, err
	}
	c.logger.Warn("primary opener failed, falling back", "url", rawURL, "error", err)
	return c.fallback.OpenView(ctx, rawURL, timeout)
}
