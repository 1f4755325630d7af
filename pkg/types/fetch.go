package types

import (
	"net/http"
	"net/url"
	"time"
)

// FetchRequest describes a single document retrieval.
type FetchRequest struct {
	URL     *url.URL
	Timeout time.Duration
	Label   string
}

// Page represents the fetched content.
type Page struct {
	URL             *url.URL
	FinalURL        *url.URL
	Body            []byte
	ContentType     string
	StatusCode      int
	Headers         http.Header
	FetchedAt       time.Time
	ResponseLatency time.Duration
}

// VisitState tracks when a detail URL was last handed to a worker.
type VisitState struct {
	Attempts    int
	LastVisited time.Time
}
