package extract

import (
	"context"
	"errors"
	"sync"
	"time"

	"otago-pg/internal/dom"
	"otago-pg/pkg/types"
)

// fakePage scripts a live tab. Clicking a query listed in clickable selects
// it; Attr answers from hrefs keyed by the selected location query, with ""
// meaning no location selected. Clicking clickPanic panics.
type fakePage struct {
	markup     string
	openErr    error
	clickable  map[string]bool
	clickErr   map[string]error
	clickPanic string
	hrefs      map[string]string
	harvest    func(string) ([]types.LinkItem, error)

	selected  string
	opens     []string
	clicks    []string
	attrs     int
	pauses    int
	harvests  int
	snapshots int
}

func (p *fakePage) Open(_ context.Context, url string, _ time.Duration) error {
	p.opens = append(p.opens, url)
	p.selected = ""
	return p.openErr
}

func (p *fakePage) WaitLoaded(context.Context) error { return nil }

func (p *fakePage) Pause(context.Context, time.Duration) error {
	p.pauses++
	return nil
}

func (p *fakePage) Click(_ context.Context, query string, _ time.Duration) (bool, error) {
	p.clicks = append(p.clicks, query)
	if query == p.clickPanic {
		panic("click " + query)
	}
	if err := p.clickErr[query]; err != nil {
		return false, err
	}
	if !p.clickable[query] {
		return false, nil
	}
	if query != StartApplicationQuery {
		p.selected = query
	}
	return true, nil
}

func (p *fakePage) Attr(_ context.Context, _ string, _ string, _ time.Duration) (string, bool, error) {
	p.attrs++
	href, ok := p.hrefs[p.selected]
	return href, ok, nil
}

func (p *fakePage) Snapshot(context.Context) (*dom.Document, error) {
	p.snapshots++
	return dom.Parse(p.markup)
}

func (p *fakePage) HarvestLinks(_ context.Context, fragment string) ([]types.LinkItem, error) {
	p.harvests++
	if p.harvest != nil {
		return p.harvest(fragment)
	}
	return dom.HarvestLinks(fragment), nil
}

// interactions counts every call that touches the page after loading it.
func (p *fakePage) interactions() int {
	return len(p.clicks) + p.attrs + p.harvests
}

type fakeOpener struct {
	mu     sync.Mutex
	pages  map[string]string
	fail   map[string]error
	opened []string
	closed int
}

func (o *fakeOpener) OpenView(_ context.Context, url string, _ time.Duration) (View, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, url)
	if err := o.fail[url]; err != nil {
		return nil, err
	}
	markup, ok := o.pages[url]
	if !ok {
		return &fakeView{opener: o, err: errors.New("404 not found")}, nil
	}
	return &fakeView{opener: o, markup: markup}, nil
}

type fakeView struct {
	opener *fakeOpener
	markup string
	err    error
}

func (v *fakeView) Document(context.Context) (*dom.Document, error) {
	if v.err != nil {
		return nil, v.err
	}
	return dom.Parse(v.markup)
}

func (v *fakeView) Close() error {
	v.opener.mu.Lock()
	v.opener.closed++
	v.opener.mu.Unlock()
	return nil
}
