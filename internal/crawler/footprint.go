package crawler

import (
	"cmp"
	"net/url"
	"strings"
	"sync"
	"time"

	"otago-pg/pkg/types"
)

// Footprint remembers which detail pages a run already claimed, so a page
// listed twice under different spellings is extracted once.
type Footprint struct {
	mu         sync.Mutex
	entries    map[string]types.VisitState
	maxEntries int
}

// NewFootprint initialises a footprint store with an optional capacity.
func NewFootprint(maxEntries int) *Footprint {
	if maxEntries <= 0 {
		maxEntries = 100000
	}
	return &Footprint{
		entries:    make(map[string]types.VisitState),
		maxEntries: maxEntries,
	}
}

// Claim records a visit and reports whether it is the first one for the
// URL's canonical form.
func (f *Footprint) Claim(u *url.URL) bool {
	if u == nil {
		return false
	}
	key := canonicalKey(u)
	f.mu.Lock()
	defer f.mu.Unlock()

	state, seen := f.entries[key]
	state.Attempts++
	state.LastVisited = time.Now()
	f.entries[key] = state
	if !seen && len(f.entries) > f.maxEntries {
		f.evictOldestLocked(key)
	}
	return !seen
}

// Attempts reports how many times the URL was claimed.
func (f *Footprint) Attempts(u *url.URL) int {
	if u == nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[canonicalKey(u)].Attempts
}

func (f *Footprint) evictOldestLocked(keep string) {
	var oldestKey string
	var oldest time.Time
	for key, state := range f.entries {
		if key == keep {
			continue
		}
		if oldestKey == "" || state.LastVisited.Before(oldest) {
			oldestKey = key
			oldest = state.LastVisited
		}
	}
	if oldestKey != "" {
		delete(f.entries, oldestKey)
	}
}

// canonicalKey folds scheme and host case, default ports and trailing
// slashes so spellings of one page share a key. Fragments are dropped.
func canonicalKey(u *url.URL) string {
	c := url.URL{
		Scheme:   strings.ToLower(cmp.Or(u.Scheme, "https")),
		Host:     strings.ToLower(u.Hostname()),
		RawQuery: u.RawQuery,
	}
	if port := u.Port(); port != "" && !(c.Scheme == "http" && port == "80") && !(c.Scheme == "https" && port == "443") {
		c.Host += ":" + port
	}
	c.Path = cmp.Or(strings.TrimRight(u.Path, "/"), "/")
	return c.String()
}
