package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"otago-pg/internal/dom"
	"otago-pg/pkg/types"
)

// Tab is one browser target. It is not safe for concurrent use.
type Tab struct {
	ctx         context.Context
	cancel      context.CancelFunc
	loadTimeout time.Duration
	logger      *slog.Logger
}

// Open navigates to url.
func (t *Tab) Open(ctx context.Context, url string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = t.loadTimeout
	}
	start := time.Now()
	if err := t.run(ctx, timeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNavigation, url, err)
	}
	t.logger.Debug("navigated", "url", url, "latency_ms", time.Since(start).Milliseconds())
	return nil
}

// WaitLoaded blocks until document.readyState is complete.
func (t *Tab) WaitLoaded(ctx context.Context) error {
	if err := t.run(ctx, t.loadTimeout, waitForDocumentReady(t.logger)); err != nil {
		return fmt.Errorf("%w: wait for load: %w", ErrNavigation, err)
	}
	return nil
}

// Pause sleeps for d unless ctx ends first.
func (t *Tab) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Click clicks the first element matching the XPath query. It reports false
// when no element appears within timeout.
func (t *Tab) Click(ctx context.Context, query string, timeout time.Duration) (bool, error) {
	err := t.run(ctx, timeout, chromedp.Click(query, chromedp.BySearch))
	return present(ctx, err)
}

// Attr reads an attribute of the first element matching the XPath query.
func (t *Tab) Attr(ctx context.Context, query, name string, timeout time.Duration) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := t.run(ctx, timeout, chromedp.AttributeValue(query, name, &value, &ok, chromedp.BySearch))
	found, err := present(ctx, err)
	if !found || err != nil {
		return "", false, err
	}
	return value, ok, nil
}

// Snapshot serialises the live DOM.
func (t *Tab) Snapshot(ctx context.Context) (*dom.Document, error) {
	var markup string
	if err := t.run(ctx, t.loadTimeout, chromedp.OuterHTML("html", &markup, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("export dom: %w", err)
	}
	return dom.Parse(markup)
}

// Document is Snapshot; it lets a Tab serve as a read-only view.
func (t *Tab) Document(ctx context.Context) (*dom.Document, error) {
	return t.Snapshot(ctx)
}

// HarvestLinks renders fragment in a detached element of the page and lists
// its anchors.
func (t *Tab) HarvestLinks(ctx context.Context, fragment string) ([]types.LinkItem, error) {
	script, err := harvestScript(fragment)
	if err != nil {
		return nil, err
	}
	var items []types.LinkItem
	if err := t.run(ctx, t.loadTimeout, chromedp.Evaluate(script, &items)); err != nil {
		return nil, fmt.Errorf("harvest links: %w", err)
	}
	return items, nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t == nil || t.cancel == nil {
		return nil
	}
	t.cancel()
	return nil
}

// run executes actions on the tab, bounded by timeout and by ctx.
func (t *Tab) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(t.ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(t.ctx)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// present turns a lookup timeout into absence. Cancellation of ctx itself
// stays an error.
func present(ctx context.Context, err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return false, nil
	default:
		return false, err
	}
}

const harvestTemplate = `(() => {
  const box = document.createElement('div');
  box.innerHTML = %s;
  return Array.from(box.querySelectorAll('a')).map(a => ({
    text: (a.textContent || '').trim(),
    href: a.getAttribute('data-uw-original-href') || a.getAttribute('href') || ''
  }));
})()`

func harvestScript(fragment string) (string, error) {
	encoded, err := json.Marshal(fragment)
	if err != nil {
		return "", fmt.Errorf("encode fragment: %w", err)
	}
	return fmt.Sprintf(harvestTemplate, encoded), nil
}

func waitForDocumentReady(logger *slog.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			var readyState string
			if err := chromedp.Evaluate(`document.readyState`, &readyState).Do(ctx); err != nil {
				logger.Warn("document ready check failed", "error", err)
				return err
			}
			if readyState == "complete" {
				return nil
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}
