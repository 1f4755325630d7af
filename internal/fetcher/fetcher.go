// Package fetcher retrieves documents over plain HTTP. It backs the sitemap
// loader, robots checks and, when configured, the course-structure link
// lookups that do not need a browser.
package fetcher

import (
	"cmp"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"otago-pg/pkg/types"
)

// Fetcher retrieves a single document.
type Fetcher interface {
	Fetch(ctx context.Context, req types.FetchRequest) (*types.Page, error)
}

// Options controls HTTP fetching behaviour.
type Options struct {
	UserAgent    string
	Headers      map[string]string
	Timeout      time.Duration
	MaxBodyBytes int64
	ProxyURL     string
}

// HTTPFetcher is a Fetcher over a shared http.Client.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	extraHeaders map[string]string
	maxBodyBytes int64
}

// NewHTTPFetcher builds a fetcher. Zero timeout and body limit fall back to
// 20s and 6 MiB.
func NewHTTPFetcher(opts Options) (*HTTPFetcher, error) {
	proxy := http.ProxyFromEnvironment
	if raw := strings.TrimSpace(opts.ProxyURL); raw != "" {
		fixed, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("proxy url %q: %w", raw, err)
		}
		proxy = http.ProxyURL(fixed)
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	client := &http.Client{
		Timeout: cmp.Or(opts.Timeout, 20*time.Second),
		Transport: &http.Transport{
			Proxy:                 proxy,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			MaxIdleConnsPerHost:   8,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
	limit := opts.MaxBodyBytes
	if limit <= 0 {
		limit = 6 << 20
	}
	return &HTTPFetcher{
		client:       client,
		userAgent:    opts.UserAgent,
		extraHeaders: maps.Clone(opts.Headers),
		maxBodyBytes: limit,
	}, nil
}

// Fetch downloads req.URL. Non-2xx responses are returned, not treated as
// errors; callers decide.
func (f *HTTPFetcher) Fetch(ctx context.Context, req types.FetchRequest) (*types.Page, error) {
	if req.URL == nil {
		return nil, errors.New("fetch: nil url")
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	httpReq, err := f.newRequest(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	began := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := f.readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.URL, err)
	}
	page := &types.Page{
		URL:             req.URL,
		FinalURL:        req.URL,
		Body:            body,
		ContentType:     resp.Header.Get("Content-Type"),
		StatusCode:      resp.StatusCode,
		Headers:         resp.Header.Clone(),
		FetchedAt:       time.Now(),
		ResponseLatency: time.Since(began),
	}
	if resp.Request != nil && resp.Request.URL != nil {
		page.FinalURL = resp.Request.URL
	}
	return page, nil
}

// FetchURL parses raw and fetches it.
func (f *HTTPFetcher) FetchURL(ctx context.Context, raw, label string) (*types.Page, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", raw, err)
	}
	return f.Fetch(ctx, types.FetchRequest{URL: u, Label: label})
}

func (f *HTTPFetcher) newRequest(ctx context.Context, target *url.URL) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request %s: %w", target, err)
	}
	h := httpReq.Header
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	h.Set("Accept-Language", "en-NZ,en;q=0.8")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	if f.userAgent != "" {
		h.Set("User-Agent", f.userAgent)
	}
	for name, value := range f.extraHeaders {
		h.Set(name, value)
	}
	return httpReq, nil
}

// readBody decodes the response body and enforces the size limit on the
// decoded bytes. The caller closes resp.Body.
func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("no response body")
	}
	decoded, err := decode(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return nil, err
	}
	defer decoded.Close()

	body, err := io.ReadAll(io.LimitReader(decoded, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("body larger than %d bytes", f.maxBodyBytes)
	}
	return body, nil
}

// decode wraps body in the reader matching a Content-Encoding value.
func decode(encoding string, body io.Reader) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return gz, nil
	case "br":
		return io.NopCloser(brotli.NewReader(body)), nil
	case "deflate":
		return flate.NewReader(body), nil
	default:
		return io.NopCloser(body), nil
	}
}

// Client returns the HTTP client so robots.txt lookups share its transport.
func (f *HTTPFetcher) Client() *http.Client {
	if f == nil {
		return nil
	}
	return f.client
}
