package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"otago-pg/pkg/types"
)

func TestLabelResolverFallbackOrder(t *testing.T) {
	opener := &fakeOpener{
		pages: map[string]string{
			"https://www.otago.ac.nz/papers/COMP401": `<h1 class="page-banner__title"> COMP401:
				Advanced Topics </h1>`,
			"https://www.otago.ac.nz/papers/COMP403": `<h1>no banner class</h1>`,
		},
		fail: map[string]error{
			"https://www.otago.ac.nz/papers/COMP402": errors.New("timeout"),
		},
	}
	r := &LabelResolver{Opener: opener, Timeout: time.Second}

	items := []types.LinkItem{
		{Text: "COMP401", Href: "/papers/COMP401"},
		{Text: "COMP402", Href: "https://www.otago.ac.nz/papers/COMP402"},
		{Text: "Plain", Href: ""},
		{Text: "COMP403", Href: "COMP403"},
	}
	got := r.Resolve(context.Background(), "https://www.otago.ac.nz/papers/index.html", items)

	assert.Equal(t, []string{
		"COMP401: COMP401: Advanced Topics",
		"COMP402",
		"Plain",
		"COMP403",
	}, got)
	assert.Equal(t, []string{
		"https://www.otago.ac.nz/papers/COMP401",
		"https://www.otago.ac.nz/papers/COMP402",
		"https://www.otago.ac.nz/papers/COMP403",
	}, opener.opened)
	// every view that opened was closed
	assert.Equal(t, 2, opener.closed)

	assert.Equal(t, "COMP401: COMP401: Advanced Topics, COMP402, Plain, COMP403", r.Join(got))
}

func TestLabelResolverWithoutOpener(t *testing.T) {
	r := &LabelResolver{Separator: " | "}
	got := r.Resolve(context.Background(), "", []types.LinkItem{{Text: " A ", Href: "/a"}, {Text: "B"}})
	assert.Equal(t, []string{"A", "B"}, got)
	assert.Equal(t, "A | B", r.Join(got))
	assert.Empty(t, r.Resolve(context.Background(), "", nil))
}
