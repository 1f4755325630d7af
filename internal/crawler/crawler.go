package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"otago-pg/internal/config"
	"otago-pg/internal/extract"
	"otago-pg/internal/storage"
	"otago-pg/pkg/types"
)

// Scraper extracts one detail page on a page it owns for the call.
type Scraper interface {
	Scrape(ctx context.Context, page extract.Page, info types.MajorInfo) types.ScrapeOutcome
}

// Pages hands out live pages. Each acquired page belongs to one job until
// release is called.
type Pages interface {
	Acquire(ctx context.Context) (page extract.Page, release func(), err error)
}

// Gate decides whether a URL may be visited.
type Gate interface {
	Check(ctx context.Context, rawURL string) error
}

// Persister stores outcomes.
type Persister interface {
	Persist(ctx context.Context, entry storage.Entry) error
}

// Dependencies are the collaborators of a run. Constants and NewScraper are
// called once per run, before the first page.
type Dependencies struct {
	Descriptors func(ctx context.Context) ([]types.MajorInfo, error)
	Constants   func(ctx context.Context) types.Constants
	NewScraper  func(types.Constants) Scraper
	Pages       Pages
	Robots      Gate
	Storage     Persister
	Closers     []func() error
}

// Summary counts what a run did.
type Summary struct {
	RunID       string
	Listed      int
	Filtered    int
	Blocked     int
	OK          int
	Skipped     int
	Failed      int
	FieldErrors int
	Elapsed     time.Duration
}

// Engine drives a scraping run over the listed detail pages.
type Engine struct {
	cfg       config.Config
	deps      Dependencies
	limiter   *DomainLimiter
	footprint *Footprint
	logger    *slog.Logger
	runID     string

	allowed  map[string]struct{}
	maxPages int64
	enqueued atomic.Int64

	ok, skipped, failed, blocked, fieldErrors atomic.Int64

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New builds an engine around the given collaborators.
func New(cfg config.Config, deps Dependencies, logger *slog.Logger) (*Engine, error) {
	if deps.Descriptors == nil || deps.NewScraper == nil || deps.Pages == nil {
		return nil, errors.New("engine needs descriptors, a scraper factory and pages")
	}
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]struct{}, len(cfg.Crawl.AllowedDomains))
	for _, v := range cfg.Crawl.AllowedDomains {
		allowed[v] = struct{}{}
	}
	maxPages := int64(cfg.Crawl.MaxPages)
	if maxPages <= 0 {
		maxPages = math.MaxInt64
	}
	runID := storage.NewRunID()
	return &Engine{
		cfg:       cfg,
		deps:      deps,
		limiter:   NewDomainLimiter(cfg.Crawl),
		footprint: NewFootprint(0),
		logger:    logger.With("run_id", runID),
		runID:     runID,
		allowed:   allowed,
		maxPages:  maxPages,
	}, nil
}

// RunID identifies this run in logs and stored rows.
func (e *Engine) RunID() string { return e.runID }

// Run extracts every listed page. Page-level problems never abort the run;
// only failing to list pages does.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: e.runID}

	infos, err := e.deps.Descriptors(ctx)
	if err != nil {
		return summary, fmt.Errorf("load descriptors: %w", err)
	}
	summary.Listed = len(infos)
	e.logger.Info("run starting", "pages", len(infos), "concurrency", e.cfg.Worker.Concurrency)

	var constants types.Constants
	if e.deps.Constants != nil {
		constants = e.deps.Constants(ctx)
	}
	scraper := e.deps.NewScraper(constants)

	pool, err := NewWorkerPool(ctx, e.cfg.Worker.Concurrency, e.cfg.Worker.QueueSize)
	if err != nil {
		return summary, err
	}

	for _, info := range infos {
		if ctx.Err() != nil {
			break
		}
		if !e.admit(info) {
			summary.Filtered++
			continue
		}
		e.enqueue(ctx, pool, scraper, info)
	}
	e.wg.Wait()
	pool.Close()

	summary.OK = int(e.ok.Load())
	summary.Skipped = int(e.skipped.Load())
	summary.Failed = int(e.failed.Load())
	summary.Blocked = int(e.blocked.Load())
	summary.FieldErrors = int(e.fieldErrors.Load())
	summary.Elapsed = time.Since(start)
	e.logger.Info("run finished",
		"listed", summary.Listed,
		"filtered", summary.Filtered,
		"blocked", summary.Blocked,
		"ok", summary.OK,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"field_errors", summary.FieldErrors,
		"elapsed", summary.Elapsed.String(),
	)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// admit filters out repeated and out-of-scope descriptors. Descriptors
// without a URL pass so the scraper can report them.
func (e *Engine) admit(info types.MajorInfo) bool {
	raw := strings.TrimSpace(info.URL)
	if raw == "" {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return true
	}
	if len(e.allowed) > 0 {
		if _, ok := e.allowed[strings.ToLower(u.Hostname())]; !ok {
			e.logger.Debug("host not allowed", "url", raw)
			return false
		}
	}
	return e.footprint.Claim(u)
}

func (e *Engine) enqueue(ctx context.Context, pool *WorkerPool, scraper Scraper, info types.MajorInfo) {
	if e.enqueued.Add(1) > e.maxPages {
		e.enqueued.Add(-1)
		return
	}
	e.wg.Add(1)
	if err := pool.Submit(ctx, func(workerCtx context.Context) {
		defer e.wg.Done()
		e.handle(workerCtx, scraper, info)
	}); err != nil {
		e.wg.Done()
		e.enqueued.Add(-1)
		e.logger.Error("enqueue failed", "url", info.URL, "error", err)
	}
}

func (e *Engine) handle(ctx context.Context, scraper Scraper, info types.MajorInfo) {
	if ctx.Err() != nil {
		return
	}
	raw := strings.TrimSpace(info.URL)
	if raw != "" {
		if e.deps.Robots != nil {
			if err := e.deps.Robots.Check(ctx, raw); err != nil {
				e.blocked.Add(1)
				e.logger.Info("page not visited", "url", raw, "error", err)
				return
			}
		}
		if u, err := url.Parse(raw); err == nil {
			if err := e.limiter.Wait(ctx, u.Hostname()); err != nil {
				e.logger.Warn("domain limiter interrupted", "url", raw, "error", err)
				return
			}
		}
	}

	outcome := e.scrape(ctx, scraper, info)
	switch outcome.Status {
	case types.OutcomeOK:
		e.ok.Add(1)
		e.fieldErrors.Add(int64(len(outcome.Errors.ErrList)))
	case types.OutcomeSkipped:
		e.skipped.Add(1)
	default:
		e.failed.Add(1)
	}

	if e.deps.Storage == nil {
		return
	}
	entry := storage.Entry{
		RunID:     e.runID,
		School:    e.cfg.Site.School,
		Level:     e.cfg.Site.Level,
		ScrapedAt: time.Now(),
		Outcome:   outcome,
	}
	if err := e.deps.Storage.Persist(ctx, entry); err != nil {
		e.logger.Error("persist failed", "url", raw, "error", err)
	}
}

func (e *Engine) scrape(ctx context.Context, scraper Scraper, info types.MajorInfo) types.ScrapeOutcome {
	page, release, err := e.deps.Pages.Acquire(ctx)
	if err != nil {
		e.logger.Warn("no page available", "url", info.URL, "error", err)
		return types.Failed(strings.TrimSpace(info.URL), types.FieldError{Field: "browser", Message: err.Error()}.String())
	}
	defer release()
	return scraper.Scrape(ctx, page, info)
}

// Close releases resources owned by the engine.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		for i := len(e.deps.Closers) - 1; i >= 0; i-- {
			if cerr := e.deps.Closers[i](); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
	})
	return err
}
