package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"otago-pg/internal/config"
	"otago-pg/internal/dom"
	"otago-pg/pkg/types"
)

const (
	startDateCell = `//*[@id="table62309r1c1"]`
	deadlineCell  = `//*[@id="table62309r6c1"]`
	lateCell      = `//*[@id="table29326r3c1"]`
	semesterQuery = `//p[contains(translate(., "SEMTR", "semtr"), "semester")]`
)

// LoadConstants reads the run-wide values from the key-dates and language
// pages. A page or value that cannot be read leaves the affected values
// empty; the run carries on regardless.
func LoadConstants(ctx context.Context, opener ViewOpener, site config.SiteConfig, timeout time.Duration, logger *slog.Logger) types.Constants {
	if logger == nil {
		logger = slog.Default()
	}
	errs := &ErrorLog{}
	var c types.Constants

	var keyDates, language *dom.Document
	var g errgroup.Group
	g.Go(func() error {
		keyDates = openDocument(ctx, opener, site.KeyDatesURL, timeout, errs, "key_dates")
		return nil
	})
	g.Go(func() error {
		language = openDocument(ctx, opener, site.LanguageURL, timeout, errs, "language")
		return nil
	})
	_ = g.Wait()

	if doc := keyDates; doc != nil {
		c.ApplicationStartDate = Text(ctx, "application_start_date", errs,
			func(context.Context) (string, error) { return textOf(doc.Find(startDateCell)) },
		)
		c.ApplicationDeadline = Text(ctx, "application_deadline", errs,
			func(context.Context) (string, error) { return deadlineOf(doc) },
		)
		c.StartDate = Text(ctx, "start_date", errs,
			func(context.Context) (string, error) { return semesterStarts(doc) },
		)
	}

	if doc := language; doc != nil {
		c.IELTS = Text(ctx, "IELTS", errs, func(context.Context) (string, error) { return languageScore(doc, "IELTS") })
		c.TOEFL = Text(ctx, "TOEFL", errs, func(context.Context) (string, error) { return languageScore(doc, "TOEFL") })
		c.PTE = Text(ctx, "PTE", errs, func(context.Context) (string, error) { return languageScore(doc, "PTE") })
	}

	for _, fe := range errs.List() {
		logger.Warn("constant unavailable", "field", fe.Field, "error", fe.Message)
	}
	logger.Info("run constants loaded",
		"ielts", c.IELTS != "",
		"toefl", c.TOEFL != "",
		"pte", c.PTE != "",
		"application_start_date", c.ApplicationStartDate != "",
		"application_deadline", c.ApplicationDeadline != "",
		"start_date", c.StartDate != "",
	)
	return c
}

func openDocument(ctx context.Context, opener ViewOpener, url string, timeout time.Duration, errs *ErrorLog, field string) *dom.Document {
	if opener == nil || strings.TrimSpace(url) == "" {
		return nil
	}
	return Chain[*dom.Document]{Field: field, Errors: errs}.Run(ctx, func(ctx context.Context) (*dom.Document, error) {
		view, err := opener.OpenView(ctx, url, timeout)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", url, err)
		}
		defer view.Close()
		return view.Document(ctx)
	})
}

func deadlineOf(doc *dom.Document) (string, error) {
	var parts []string
	for _, q := range []string{deadlineCell, lateCell} {
		v, err := textOf(doc.Find(q))
		if err != nil {
			return "", err
		}
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "  "), nil
}

// semesterStarts joins the last paragraph mentioning semester 1 with the
// last one mentioning semester 2.
func semesterStarts(doc *dom.Document) (string, error) {
	paras, err := doc.FindAll(semesterQuery)
	if err != nil {
		return "", err
	}
	var first, second string
	for _, p := range paras {
		text := dom.NormalizeWhitespace(p.Text())
		lower := strings.ToLower(text)
		if strings.Contains(lower, "semester 1") {
			first = text
		}
		if strings.Contains(lower, "semester 2") {
			second = text
		}
	}
	return strings.TrimSpace(first + " " + second), nil
}

func languageScore(doc *dom.Document, test string) (string, error) {
	return textOf(doc.Find(`//td[contains(., ` + dom.Literal(test) + `)]/following-sibling::td[2]`))
}
