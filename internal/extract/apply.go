package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"otago-pg/internal/dom"
)

// Interactor is the live page session that application-link discovery
// drives. Lookups that exceed their timeout report absence, not an error.
type Interactor interface {
	Open(ctx context.Context, url string, timeout time.Duration) error
	WaitLoaded(ctx context.Context) error
	Pause(ctx context.Context, d time.Duration) error
	Click(ctx context.Context, query string, timeout time.Duration) (bool, error)
	Attr(ctx context.Context, query, name string, timeout time.Duration) (string, bool, error)
}

const (
	StartApplicationQuery    = `//button[contains(., "Start application")]`
	ContinueApplicationQuery = `//a[contains(., "Continue application")]`
)

// LocationQuery selects the clickable container of a campus heading.
func LocationQuery(location string) string {
	return `//h4[normalize-space(text())=` + dom.Literal(location) + `]/..`
}

type discoveryState int

const (
	stateIdle discoveryState = iota
	stateDirectAttempted
	stateLocationIteration
	stateDone
)

func (s discoveryState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateDirectAttempted:
		return "direct_attempted"
	case stateLocationIteration:
		return "location_iteration"
	case stateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ApplyDiscovery finds the application URLs of one programme page. The page
// is reloaded before each location so every campus selection starts clean;
// the page is left in an unspecified state afterwards.
type ApplyDiscovery struct {
	Page          Interactor
	SourceURL     string
	Locations     []string
	NavTimeout    time.Duration
	LookupTimeout time.Duration
	ActionPause   time.Duration
	ReloadPause   time.Duration
	Errors        *ErrorLog
	Logger        *slog.Logger

	state discoveryState
	found string
}

// Run drives discovery to completion and returns the URLs found, possibly
// none. The result is never nil.
func (d *ApplyDiscovery) Run(ctx context.Context) []string {
	urls := []string{}
	d.state = stateIdle
	for d.state != stateDone {
		d.logger().Debug("apply discovery", "state", d.state.String())
		switch d.state {
		case stateIdle:
			href, err := try[string](ctx, d.direct)
			if err != nil {
				d.Errors.Add("apply_urls[direct]", err)
			}
			d.found = href
			d.state = stateDirectAttempted
		case stateDirectAttempted:
			if d.found != "" {
				urls = append(urls, d.found)
				d.state = stateDone
				continue
			}
			d.state = stateLocationIteration
		case stateLocationIteration:
			for _, loc := range d.Locations {
				if ctx.Err() != nil {
					d.Errors.Add(locationField(loc), ctx.Err())
					break
				}
				href, err := try[string](ctx, func(ctx context.Context) (string, error) { return d.viaLocation(ctx, loc) })
				if err != nil {
					d.Errors.Add(locationField(loc), err)
					continue
				}
				if href != "" {
					urls = append(urls, href)
				}
			}
			d.state = stateDone
		}
	}
	return urls
}

// direct reads the continue link without selecting a location. Absence of
// either control is not a failure.
func (d *ApplyDiscovery) direct(ctx context.Context) (string, error) {
	if err := d.clickStart(ctx); err != nil {
		return "", err
	}
	return d.continueHref(ctx)
}

func (d *ApplyDiscovery) viaLocation(ctx context.Context, location string) (string, error) {
	if err := d.Page.Open(ctx, d.SourceURL, d.NavTimeout); err != nil {
		return "", fmt.Errorf("reload: %w", err)
	}
	if err := d.Page.WaitLoaded(ctx); err != nil {
		return "", fmt.Errorf("reload: %w", err)
	}
	if err := d.Page.Pause(ctx, d.ReloadPause); err != nil {
		return "", err
	}
	if err := d.clickStart(ctx); err != nil {
		return "", err
	}
	clicked, err := d.Page.Click(ctx, LocationQuery(location), d.LookupTimeout)
	if err != nil {
		return "", fmt.Errorf("select location: %w", err)
	}
	if !clicked {
		return "", fmt.Errorf("location control %q not found", location)
	}
	if err := d.Page.Pause(ctx, d.ActionPause); err != nil {
		return "", err
	}
	return d.continueHref(ctx)
}

func (d *ApplyDiscovery) clickStart(ctx context.Context) error {
	clicked, err := d.Page.Click(ctx, StartApplicationQuery, d.LookupTimeout)
	if err != nil {
		return fmt.Errorf("start application: %w", err)
	}
	if clicked {
		return d.Page.Pause(ctx, d.ActionPause)
	}
	return nil
}

func (d *ApplyDiscovery) continueHref(ctx context.Context) (string, error) {
	href, ok, err := d.Page.Attr(ctx, ContinueApplicationQuery, "href", d.LookupTimeout)
	if err != nil {
		return "", fmt.Errorf("continue application: %w", err)
	}
	if !ok {
		return "", nil
	}
	return strings.TrimSpace(href), nil
}

func (d *ApplyDiscovery) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func locationField(location string) string {
	return "apply_urls[" + location + "]"
}
