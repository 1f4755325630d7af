// Package browser drives a headless Chrome through chromedp. A Browser owns
// the Chrome process; each Tab is one independently navigable target.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"otago-pg/internal/extract"
)

// ErrNavigation marks a page that could not be loaded at all.
var ErrNavigation = errors.New("navigation failed")

// Options configures the Chrome process and the default page waits.
type Options struct {
	DisableHeadless bool
	ExecPath        string
	UserAgent       string
	ProxyURL        string
	LoadTimeout     time.Duration
}

// Browser is a running Chrome instance.
type Browser struct {
	opts        Options
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *slog.Logger
}

var (
	_ extract.Page       = (*Tab)(nil)
	_ extract.View       = (*Tab)(nil)
	_ extract.ViewOpener = (*Browser)(nil)
)

// New starts Chrome. The process lives until Close is called or parent is
// cancelled.
func New(parent context.Context, opts Options, logger *slog.Logger) (*Browser, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 40 * time.Second
	}

	execOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	execOpts = append(execOpts,
		chromedp.Flag("headless", !opts.DisableHeadless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(selectUserAgent(opts.UserAgent)),
	)
	if path := strings.TrimSpace(opts.ExecPath); path != "" {
		execOpts = append(execOpts, chromedp.ExecPath(path))
	}
	if proxy := strings.TrimSpace(opts.ProxyURL); proxy != "" {
		execOpts = append(execOpts, chromedp.ProxyServer(proxy))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, execOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	logger.Info("chrome started", "headless", !opts.DisableHeadless)
	return &Browser{
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// NewTab opens a blank tab. The caller owns it and must Close it.
func (b *Browser) NewTab() (*Tab, error) {
	ctx, cancel := chromedp.NewContext(b.ctx)
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &Tab{
		ctx:         ctx,
		cancel:      cancel,
		loadTimeout: b.opts.LoadTimeout,
		logger:      b.logger,
	}, nil
}

// OpenView opens url in a fresh tab and waits for it to load. The returned
// view must be closed by the caller.
func (b *Browser) OpenView(ctx context.Context, url string, timeout time.Duration) (extract.View, error) {
	tab, err := b.NewTab()
	if err != nil {
		return nil, err
	}
	if err := tab.Open(ctx, url, timeout); err != nil {
		_ = tab.Close()
		return nil, err
	}
	if err := tab.WaitLoaded(ctx); err != nil {
		_ = tab.Close()
		return nil, err
	}
	return tab, nil
}

// Close shuts the browser down, closing every tab still open.
func (b *Browser) Close() error {
	if b == nil {
		return nil
	}
	b.cancel()
	b.allocCancel()
	b.logger.Info("chrome stopped")
	return nil
}

func selectUserAgent(base string) string {
	if strings.TrimSpace(base) != "" {
		return base
	}
	return "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36"
}
