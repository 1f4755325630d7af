// Package extract pulls programme records out of detail pages whose markup
// is not guaranteed. Every field is read through a chain of fallback
// attempts; failures degrade the field and are recorded, never returned.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"otago-pg/pkg/types"
)

// Attempt is one way of producing a field value.
type Attempt[T any] func(ctx context.Context) (T, error)

// ErrorLog accumulates field-tagged soft failures for one record.
type ErrorLog struct {
	mu   sync.Mutex
	list []types.FieldError
}

// Add records err against field. A nil err is ignored.
func (l *ErrorLog) Add(field string, err error) {
	if l == nil || err == nil {
		return
	}
	l.mu.Lock()
	l.list = append(l.list, types.FieldError{Field: field, Message: err.Error()})
	l.mu.Unlock()
}

// List returns the recorded failures in the order they happened.
func (l *ErrorLog) List() []types.FieldError {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.FieldError, len(l.list))
	copy(out, l.list)
	return out
}

// Len reports how many failures were recorded.
func (l *ErrorLog) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.list)
}

// Chain evaluates attempts in order and keeps the first non-empty result.
// When every attempt misses and at least one of them failed, a single entry
// naming Field is written to Errors.
type Chain[T any] struct {
	Field   string
	Default T
	Empty   func(T) bool
	Errors  *ErrorLog
	Logger  *slog.Logger
}

// Run executes the chain. It never panics and never returns an error.
func (c Chain[T]) Run(ctx context.Context, attempts ...Attempt[T]) T {
	var failures []string
	for i, attempt := range attempts {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err.Error())
			break
		}
		value, err := try(ctx, attempt)
		if err != nil {
			if c.Logger != nil {
				c.Logger.Debug("extraction attempt failed", "field", c.Field, "attempt", i+1, "error", err)
			}
			failures = append(failures, err.Error())
			continue
		}
		if c.Empty != nil && c.Empty(value) {
			continue
		}
		return value
	}
	if len(failures) > 0 {
		c.Errors.Add(c.Field, fmt.Errorf("%s", strings.Join(failures, "; ")))
	}
	return c.Default
}

func try[T any](ctx context.Context, attempt Attempt[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if attempt == nil {
		return value, fmt.Errorf("nil attempt")
	}
	return attempt(ctx)
}

// Text runs a string chain; whitespace-only results count as empty.
func Text(ctx context.Context, field string, errs *ErrorLog, attempts ...Attempt[string]) string {
	return Chain[string]{
		Field:  field,
		Empty:  func(s string) bool { return strings.TrimSpace(s) == "" },
		Errors: errs,
	}.Run(ctx, attempts...)
}

// List runs a slice chain; zero-length results count as empty. The default
// is an empty, non-nil slice.
func List(ctx context.Context, field string, errs *ErrorLog, attempts ...Attempt[[]string]) []string {
	return Chain[[]string]{
		Field:   field,
		Default: []string{},
		Empty:   func(s []string) bool { return len(s) == 0 },
		Errors:  errs,
	}.Run(ctx, attempts...)
}
