package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"otago-pg/internal/browser"
	"otago-pg/internal/config"
	"otago-pg/internal/extract"
	"otago-pg/internal/fetcher"
	robotsclient "otago-pg/internal/robots"
	"otago-pg/internal/sitemap"
	"otago-pg/internal/storage"
	"otago-pg/pkg/types"
)

// BrowserPages gives every job its own tab.
type BrowserPages struct {
	Browser *browser.Browser
}

// Acquire opens a tab; release closes it.
func (p BrowserPages) Acquire(context.Context) (extract.Page, func(), error) {
	tab, err := p.Browser.NewTab()
	if err != nil {
		return nil, nil, err
	}
	return tab, func() { _ = tab.Close() }, nil
}

// Stack is the wired set of production collaborators.
type Stack struct {
	Fetcher   *fetcher.HTTPFetcher
	Browser   *browser.Browser
	Opener    extract.ViewOpener
	LinkViews extract.ViewOpener
	Storage   *storage.Pipeline
}

// Close shuts the browser and storage down.
func (s *Stack) Close() error {
	if s == nil {
		return nil
	}
	return errors.Join(s.Storage.Close(), s.Browser.Close())
}

// BuildStack starts the browser and opens the configured stores.
func BuildStack(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Stack, error) {
	httpFetcher, err := fetcher.NewHTTPFetcher(fetcher.Options{
		UserAgent:    cfg.Crawl.UserAgent,
		Headers:      cfg.Crawl.Headers,
		Timeout:      cfg.Crawl.RequestTimeout.Duration,
		MaxBodyBytes: cfg.Crawl.MaxBodyBytes,
		ProxyURL:     cfg.Crawl.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("http fetcher: %w", err)
	}

	b, err := browser.New(ctx, browser.Options{
		DisableHeadless: cfg.Rendering.DisableHeadless,
		ExecPath:        cfg.Rendering.ExecPath,
		UserAgent:       cfg.Crawl.UserAgent,
		ProxyURL:        cfg.Crawl.ProxyURL,
		LoadTimeout:     cfg.Rendering.NavigationTimeout.Duration,
	}, logger.With("component", "browser"))
	if err != nil {
		return nil, err
	}

	httpViews := &fetcher.HTTPOpener{Fetcher: httpFetcher}
	opener := fetcher.NewComposite(b, httpViews, logger.With("component", "views"))
	var linkViews extract.ViewOpener = opener
	if cfg.Rendering.SubLinkMode == "http" {
		linkViews = httpViews
	}

	pipeline, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return &Stack{
		Fetcher:   httpFetcher,
		Browser:   b,
		Opener:    opener,
		LinkViews: linkViews,
		Storage:   pipeline,
	}, nil
}

func buildPipeline(ctx context.Context, cfg config.Config, logger *slog.Logger) (*storage.Pipeline, error) {
	var (
		records []storage.RecordStore
		sinks   []storage.Sink
	)
	closeAll := func() {
		for _, r := range records {
			_ = r.Close()
		}
	}
	if cfg.DB.Driver != "" && cfg.DB.DSN != "" {
		sqlWriter, err := storage.NewSQLWriter(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		records = append(records, sqlWriter)
		logger.Info("sql store ready", "driver", cfg.DB.Driver)
	}
	if cfg.Mongo.URI != "" {
		mongoStore, err := storage.NewMongoStore(ctx, cfg.Mongo)
		if err != nil {
			closeAll()
			return nil, err
		}
		records = append(records, mongoStore)
		logger.Info("mongo store ready", "database", cfg.Mongo.Database, "collection", cfg.Mongo.Collection)
	}
	if cfg.Output.Path != "" {
		fileSink, err := storage.NewFileSink(cfg.Output.Path, cfg.Output.IncludeFails)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, fileSink)
	}
	return storage.NewPipeline(records, sinks), nil
}

// NewEngine wires the production stack into an engine. The engine owns the
// stack and closes it in Close.
func NewEngine(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Engine, error) {
	stack, err := BuildStack(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	robots := robotsclient.NewAgent(cfg.Robots, stack.Fetcher.Client(), logger.With("component", "robots"))

	deps := Dependencies{
		Descriptors: func(ctx context.Context) ([]types.MajorInfo, error) {
			return sitemap.Load(ctx, cfg.Site, stack.Fetcher, logger.With("component", "sitemap"))
		},
		Constants: func(ctx context.Context) types.Constants {
			return extract.LoadConstants(ctx, stack.Opener, cfg.Site, cfg.Rendering.SubLinkTimeout.Duration, logger.With("component", "constants"))
		},
		NewScraper: func(c types.Constants) Scraper {
			return extract.NewExtractor(cfg, c, stack.LinkViews, logger.With("component", "extract"))
		},
		Pages:   BrowserPages{Browser: stack.Browser},
		Robots:  robots,
		Closers: []func() error{stack.Close},
	}
	if stack.Storage != nil {
		deps.Storage = stack.Storage
	}
	engine, err := New(cfg, deps, logger)
	if err != nil {
		_ = stack.Close()
		return nil, err
	}
	return engine, nil
}
