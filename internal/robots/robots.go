// Package robots gates detail-page visits on the site's robots.txt.
package robots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"otago-pg/internal/config"
)

// ErrDisallowed is returned by Check for URLs robots.txt forbids.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// Agent evaluates robots.txt rules with caching and host overrides.
type Agent struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	respect   bool
	logger    *slog.Logger

	mu        sync.RWMutex
	cache     map[string]cacheEntry
	overrides map[string]struct{}
}

// cacheEntry holds the rules for one host, or the error that made them
// unavailable so an unreachable robots.txt is not requested for every page.
type cacheEntry struct {
	at    time.Time
	rules *robotstxt.RobotsData
	err   error
}

// NewAgent constructs a robots agent from configuration.
func NewAgent(cfg config.RobotsConfig, client *http.Client, logger *slog.Logger) *Agent {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	overrides := make(map[string]struct{}, len(cfg.Overrides))
	for _, host := range cfg.Overrides {
		if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
			overrides[host] = struct{}{}
		}
	}

	return &Agent{
		client:    client,
		userAgent: cfg.UserAgent,
		ttl:       cfg.CacheTTL.Or(30 * time.Minute),
		respect:   cfg.Respect,
		logger:    logger,
		cache:     make(map[string]cacheEntry),
		overrides: overrides,
	}
}

// Check returns ErrDisallowed when the URL may not be visited. A robots.txt
// that cannot be fetched allows everything.
func (a *Agent) Check(ctx context.Context, rawURL string) error {
	target, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if !a.Allowed(ctx, target) {
		return fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
	}
	return nil
}

// Allowed reports whether the target URL is permitted.
func (a *Agent) Allowed(ctx context.Context, target *url.URL) bool {
	if target == nil || !target.IsAbs() {
		return false
	}
	if !a.respect {
		return true
	}
	if _, ok := a.overrides[strings.ToLower(target.Hostname())]; ok {
		return true
	}

	entry := a.lookup(ctx, target)
	if entry.err != nil {
		a.logger.Debug("robots.txt unavailable, allowing", "host", target.Host, "error", entry.err)
		return true
	}
	group := entry.rules.FindGroup(a.userAgent)
	if group == nil {
		return true
	}
	path := target.EscapedPath()
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return group.Test(path)
}

func (a *Agent) lookup(ctx context.Context, target *url.URL) cacheEntry {
	host := strings.ToLower(target.Host)
	a.mu.RLock()
	entry, ok := a.cache[host]
	a.mu.RUnlock()
	if ok && time.Since(entry.at) < a.ttl {
		return entry
	}

	rules, err := a.download(ctx, target.Scheme, target.Host)
	if err != nil && ctx.Err() != nil {
		return cacheEntry{err: err}
	}
	entry = cacheEntry{at: time.Now(), rules: rules, err: err}
	a.mu.Lock()
	a.cache[host] = entry
	a.mu.Unlock()
	return entry
}

// download fetches and parses robots.txt. 4xx and 5xx answers are errors so
// the caller allows everything.
func (a *Agent) download(ctx context.Context, scheme, host string) (*robotstxt.RobotsData, error) {
	location := (&url.URL{Scheme: scheme, Host: host, Path: "/robots.txt"}).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("robots request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", location, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("get %s: status %d", location, resp.StatusCode)
	}
	rules, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", location, err)
	}
	return rules, nil
}
