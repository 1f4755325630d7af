package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"otago-pg/internal/config"
	"otago-pg/internal/dom"
	"otago-pg/pkg/types"
)

// Page is the live browser tab a detail page is extracted from. One Scrape
// call owns the page for its whole duration.
type Page interface {
	Interactor
	// Snapshot serialises the current DOM for static reads.
	Snapshot(ctx context.Context) (*dom.Document, error)
	// HarvestLinks lists the anchors inside fragment as the page renders them.
	HarvestLinks(ctx context.Context, fragment string) ([]types.LinkItem, error)
}

const (
	nameQuery          = `//h1[contains(@class, "page-banner__title")]`
	majorTitleQuery    = `//h3[@data-role="banner-major-title"]`
	structureHeading   = `//h3[contains(., "Structure of the Programme")]`
	admissionHeading   = `//h3[contains(., "Admission to the Programme")]`
	programmeDivQuery  = `//div[@id="programme-structure"]`
	durationSpanQuery  = `//dt[contains(., "Duration")]/following-sibling::dd[1]/span`
	durationValueQuery = `//dt[contains(., "Duration")]/following-sibling::dd[1]`
	divisionsMarker    = "academic divisions"
)

var errNameMissing = errors.New("programme heading not found")

// Extractor turns one detail page into a ScrapeOutcome.
type Extractor struct {
	rules     config.ExtractionConfig
	waits     config.RenderingConfig
	constants types.Constants
	labels    *LabelResolver
	logger    *slog.Logger
}

// NewExtractor builds an extractor. constants are copied into every record;
// opener serves the pages behind course-structure links.
func NewExtractor(cfg config.Config, constants types.Constants, opener ViewOpener, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		rules:     cfg.Extraction,
		waits:     cfg.Rendering,
		constants: constants,
		labels: &LabelResolver{
			Opener:       opener,
			Timeout:      cfg.Rendering.SubLinkTimeout.Duration,
			HeadingQuery: DefaultHeadingQuery,
			Separator:    cfg.Extraction.LinkSeparator,
			Logger:       logger.With("component", "labels"),
		},
		logger: logger,
	}
}

// Scrape extracts the page described by info. Only an empty URL or a failed
// navigation produce a Failed outcome; every other problem degrades a single
// field and is listed in the outcome's errors.
func (e *Extractor) Scrape(ctx context.Context, page Page, info types.MajorInfo) types.ScrapeOutcome {
	url := strings.TrimSpace(info.URL)
	if url == "" {
		e.logger.Warn("descriptor without url", "name", info.Name)
		return types.Failed("", "major url is empty")
	}
	logger := e.logger.With("url", url)

	doc, err := e.load(ctx, page, url)
	if err != nil {
		logger.Warn("page load failed", "error", err)
		return types.Failed(url, types.FieldError{Field: "navigation", Message: err.Error()}.String())
	}

	errs := &ErrorLog{}
	var title string
	name := Text(ctx, "name", errs, func(context.Context) (string, error) {
		h1, full, err := programmeName(doc)
		title = h1
		return full, err
	})
	if e.skip(name) {
		logger.Info("skipping programme", "name", name)
		return types.Skipped(url)
	}

	rec := types.NewRecord(url, e.constants)
	rec.Name = name
	rec.Degree = Text(ctx, "degree", errs,
		func(context.Context) (string, error) { return degreeOf(title), nil },
	)
	rec.Faculty = Text(ctx, "faculty", errs,
		func(context.Context) (string, error) { return facultyOf(doc.HTML(), e.rules.Divisions), nil },
	)
	rec.Overview = Text(ctx, "overview", errs,
		func(context.Context) (string, error) { return paragraphsAfter(doc.Find(`//h2[@id="overview"]`)) },
		func(context.Context) (string, error) { return paragraphsAfter(FindAnchor(doc, "overview", "h2")) },
	)
	rec.StudyMode = Text(ctx, "study_mode", errs,
		func(context.Context) (string, error) { return studyModeOf(doc.HTML()), nil },
	)
	rec.Duration = Text(ctx, "duration", errs,
		func(context.Context) (string, error) { return textOf(doc.Find(durationSpanQuery)) },
		func(context.Context) (string, error) { return textOf(doc.Find(durationValueQuery)) },
	)
	rec.Fees = (&feeReader{doc: doc, year: e.rules.FeeYear}).read(ctx, errs)
	rec.LanguageRequirements = Text(ctx, "language_requirements", errs,
		func(context.Context) (string, error) {
			return paragraphsAfter(FindAnchor(doc, "english language requirements", "h2", "h3", "h4"))
		},
	)
	rec.AdmissionRequirements = Text(ctx, "admission_requirements", errs,
		func(context.Context) (string, error) { return markupOf(doc.Find(admissionHeading + `/following-sibling::ol[1]`)) },
		func(context.Context) (string, error) { return paragraphsAfter(doc.Find(admissionHeading)) },
	)
	rec.CourseStructure = e.courseStructure(ctx, page, doc, url, errs)
	rec.ApplyURLs = (&ApplyDiscovery{
		Page:          page,
		SourceURL:     url,
		Locations:     e.rules.Locations,
		NavTimeout:    e.waits.NavigationTimeout.Duration,
		LookupTimeout: e.waits.LookupTimeout.Duration,
		ActionPause:   e.waits.ActionPause.Duration,
		ReloadPause:   e.waits.ReloadPause.Duration,
		Errors:        errs,
		Logger:        logger,
	}).Run(ctx)

	list := errs.List()
	for _, fe := range list {
		logger.Warn("field extraction failed", "field", fe.Field, "error", fe.Message)
	}
	logger.Info("programme extracted", "name", rec.Name, "field_errors", len(list), "apply_urls", len(rec.ApplyURLs))
	return types.Completed(rec, list)
}

func (e *Extractor) load(ctx context.Context, page Page, url string) (*dom.Document, error) {
	if err := page.Open(ctx, url, e.waits.NavigationTimeout.Duration); err != nil {
		return nil, err
	}
	if err := page.WaitLoaded(ctx); err != nil {
		return nil, err
	}
	if err := page.Pause(ctx, e.waits.SettlePause.Duration); err != nil {
		return nil, err
	}
	doc, err := page.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return doc, nil
}

func (e *Extractor) skip(name string) bool {
	lower := strings.ToLower(name)
	for _, term := range e.rules.SkipTerms {
		if term != "" && strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// courseStructure merges the pruned programme block with the labelled
// structure links.
func (e *Extractor) courseStructure(ctx context.Context, page Page, doc *dom.Document, url string, errs *ErrorLog) string {
	structure := Text(ctx, "course_structure", errs,
		func(context.Context) (string, error) { return markupOf(doc.Find(structureHeading + `/following-sibling::ol[1]`)) },
		func(context.Context) (string, error) { return paragraphsAfter(doc.Find(structureHeading)) },
	)

	resolved := structure
	if structure != "" {
		links, err := try[[]types.LinkItem](ctx, func(ctx context.Context) ([]types.LinkItem, error) {
			return page.HarvestLinks(ctx, structure)
		})
		switch {
		case err != nil:
			errs.Add("course_structure", fmt.Errorf("harvest links: %w", err))
		case len(links) > 0:
			resolved = e.labels.Join(e.labels.Resolve(ctx, url, links))
		}
	}

	pruned, err := e.programmeBlock(doc)
	if err != nil {
		errs.Add("course_structure", err)
	}
	return MergeCourseStructure(pruned, resolved)
}

func (e *Extractor) programmeBlock(doc *dom.Document) (string, error) {
	block, err := doc.Find(programmeDivQuery)
	if err != nil || block == nil {
		return "", err
	}
	prune := PruneFragment
	if e.rules.DropNextMarkerHeading {
		prune = PruneFragmentThrough
	}
	pruned, err := prune(strings.TrimSpace(block.OuterHTML()), e.rules.ObsoleteMarker, e.rules.CurrentMarker)
	if err != nil {
		return "", fmt.Errorf("prune programme structure: %w", err)
	}
	return pruned, nil
}

// MergeCourseStructure joins the pruned programme block and the resolved
// structure text.
func MergeCourseStructure(pruned, resolved string) string {
	return strings.TrimSpace(pruned + "\n" + resolved)
}

// programmeName returns the banner heading alone and the full name, which
// appends the major title when the page has one.
func programmeName(doc *dom.Document) (title, full string, err error) {
	heading, err := doc.Find(nameQuery)
	if err != nil {
		return "", "", err
	}
	if heading == nil {
		return "", "", errNameMissing
	}
	title = dom.NormalizeWhitespace(heading.Text())
	full = title
	major, err := doc.Find(majorTitleQuery)
	if err == nil && major != nil {
		if m := dom.NormalizeWhitespace(major.Text()); m != "" {
			full += " " + m
		}
	}
	return title, full, nil
}

// degreeOf returns the text between the first "(" and the last ")" of the
// banner heading.
func degreeOf(name string) string {
	open := strings.Index(name, "(")
	closing := strings.LastIndex(name, ")")
	if open < 0 || closing <= open {
		return ""
	}
	return strings.TrimSpace(name[open+1 : closing])
}

// facultyOf returns the first division named in the page before the list of
// all academic divisions.
func facultyOf(markup string, divisions []string) string {
	main := strings.ToLower(markup)
	if idx := strings.Index(main, divisionsMarker); idx >= 0 {
		main = main[:idx]
	}
	for _, d := range divisions {
		if strings.Contains(main, strings.ToLower(d)) {
			return d
		}
	}
	return ""
}

func studyModeOf(markup string) string {
	lower := strings.ToLower(markup)
	switch {
	case strings.Contains(lower, "full-time"):
		return "full-time"
	case strings.Contains(lower, "part-time"):
		return "part-time"
	default:
		return ""
	}
}

func paragraphsAfter(anchor *dom.Node, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if anchor == nil {
		return "", nil
	}
	return CollectSiblingRun(anchor, "p"), nil
}

func markupOf(n *dom.Node, err error) (string, error) {
	if err != nil || n == nil {
		return "", err
	}
	return strings.TrimSpace(n.OuterHTML()), nil
}

func textOf(n *dom.Node, err error) (string, error) {
	if err != nil || n == nil {
		return "", err
	}
	return dom.NormalizeWhitespace(n.Text()), nil
}
