package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainFirstNonEmptyWins(t *testing.T) {
	calls := make([]int, 3)
	attempt := func(i int, v string, err error) Attempt[string] {
		return func(context.Context) (string, error) {
			calls[i]++
			return v, err
		}
	}
	errs := &ErrorLog{}
	got := Text(context.Background(), "overview", errs,
		attempt(0, "  ", nil),
		attempt(1, "<p>x</p>", nil),
		attempt(2, "never", nil),
	)
	assert.Equal(t, "<p>x</p>", got)
	assert.Equal(t, []int{1, 1, 0}, calls)
	assert.Zero(t, errs.Len())
}

func TestChainFailureFallsThrough(t *testing.T) {
	errs := &ErrorLog{}
	got := Text(context.Background(), "duration", errs,
		func(context.Context) (string, error) { return "", errors.New("boom") },
		func(context.Context) (string, error) { return "1 year", nil },
	)
	assert.Equal(t, "1 year", got)
	assert.Zero(t, errs.Len(), "a later success discards earlier failures")
}

func TestChainExhaustedRecordsOneError(t *testing.T) {
	errs := &ErrorLog{}
	chain := Chain[string]{
		Field:   "fees",
		Default: "n/a",
		Empty:   func(s string) bool { return s == "" },
		Errors:  errs,
	}
	got := chain.Run(context.Background(),
		func(context.Context) (string, error) { return "", errors.New("first") },
		func(context.Context) (string, error) { return "", nil },
		func(context.Context) (string, error) { panic("bad selector") },
	)
	assert.Equal(t, "n/a", got)
	list := errs.List()
	require.Len(t, list, 1)
	assert.Equal(t, "fees", list[0].Field)
	assert.Equal(t, "first; panic: bad selector", list[0].Message)
}

func TestChainAllEmptyIsNotAnError(t *testing.T) {
	errs := &ErrorLog{}
	got := Text(context.Background(), "study_mode", errs,
		func(context.Context) (string, error) { return "", nil },
	)
	assert.Equal(t, "", got)
	assert.Zero(t, errs.Len())
}

func TestListDefaultIsEmptySlice(t *testing.T) {
	got := List(context.Background(), "apply_urls", nil,
		func(context.Context) ([]string, error) { return nil, errors.New("x") },
	)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestChainStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	errs := &ErrorLog{}
	got := Text(ctx, "name", errs, func(context.Context) (string, error) {
		called = true
		return "x", nil
	})
	assert.Equal(t, "", got)
	assert.False(t, called)
	assert.Equal(t, 1, errs.Len())
}
