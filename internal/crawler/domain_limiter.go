package crawler

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"otago-pg/internal/config"
)

// DomainLimiter spaces out page loads per host with a minimum delay and an
// optional token bucket.
type DomainLimiter struct {
	delay    time.Duration
	requests int
	window   time.Duration

	mu       sync.Mutex
	next     map[string]time.Time
	limiters map[string]*rate.Limiter
}

// NewDomainLimiter creates a limiter from the crawl settings.
func NewDomainLimiter(cfg config.CrawlConfig) *DomainLimiter {
	d := &DomainLimiter{
		delay:    cfg.PerDomainDelay.Duration,
		next:     make(map[string]time.Time),
		limiters: make(map[string]*rate.Limiter),
	}
	if cfg.RateLimitPerDomain.Enabled() {
		d.requests = cfg.RateLimitPerDomain.Requests
		d.window = cfg.RateLimitPerDomain.Window.Duration
	}
	return d
}

// Wait blocks until host may be loaded again.
func (d *DomainLimiter) Wait(ctx context.Context, host string) error {
	if d == nil || host == "" {
		return nil
	}
	host = strings.ToLower(host)
	sleep, limiter := d.reserve(host)

	if sleep > 0 {
		timer := time.NewTimer(sleep)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if limiter != nil {
		return limiter.Wait(ctx)
	}
	return nil
}

// reserve books the next free slot for host.
func (d *DomainLimiter) reserve(host string) (time.Duration, *rate.Limiter) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var sleep time.Duration
	if d.delay > 0 {
		now := time.Now()
		slot := now
		if next, ok := d.next[host]; ok && next.After(now) {
			slot = next
		}
		sleep = slot.Sub(now)
		d.next[host] = slot.Add(d.delay)
	}

	if d.requests <= 0 {
		return sleep, nil
	}
	limiter, ok := d.limiters[host]
	if !ok {
		interval := d.window / time.Duration(d.requests)
		if interval <= 0 {
			interval = time.Millisecond
		}
		limiter = rate.NewLimiter(rate.Every(interval), d.requests)
		d.limiters[host] = limiter
	}
	return sleep, limiter
}
