package extract

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otago-pg/internal/config"
	"otago-pg/pkg/types"
)

const detailURL = "https://www.otago.ac.nz/courses/qualifications/mcom"

const detailPage = `<html><body>
<h1 class="page-banner__title">Master of Commerce (MCom)</h1>
<h3 data-role="banner-major-title">Information Science</h3>
<p>Offered by the Otago Business School</p>
<dl><dt>Duration</dt><dd><span>1.5 years full-time</span></dd></dl>
<h2 id="overview">Overview</h2>
<p>Advanced study.</p>
<p>Research project.</p>
<h3>Fees</h3>
<span>International fee 2026: $45,000</span>
<h2>English language requirements</h2>
<p>IELTS 6.5</p>
<h3>Admission to the Programme</h3>
<ol><li>Bachelor degree</li></ol>
<h3>Structure of the Programme</h3>
<ol><li><a href="/papers/INFO501">INFO501</a></li></ol>
<div id="programme-structure"><h3>2025 intake</h3><p>old</p><h3>2026 intake</h3><p>new</p></div>
<footer>All academic divisions: Division of Health Sciences, Division of Sciences</footer>
</body></html>`

var runConstants = types.Constants{
	IELTS:                "6.5",
	TOEFL:                "90",
	PTE:                  "58",
	ApplicationStartDate: "1 August",
	ApplicationDeadline:  "10 December  1 May",
	StartDate:            "Semester 1 starts 24 February Semester 2 starts 13 July",
}

func newTestExtractor(opener ViewOpener) *Extractor {
	return NewExtractor(config.Default(), runConstants, opener, slog.New(slog.DiscardHandler))
}

func TestScrapeCompleteRecord(t *testing.T) {
	page := &fakePage{
		markup:    detailPage,
		clickable: map[string]bool{StartApplicationQuery: true},
		hrefs:     map[string]string{"": "https://apply.otago.ac.nz/mcom"},
	}
	opener := &fakeOpener{pages: map[string]string{
		"https://www.otago.ac.nz/papers/INFO501": `<h1 class="page-banner__title">INFO501: Information Systems</h1>`,
	}}

	out := newTestExtractor(opener).Scrape(context.Background(), page, types.MajorInfo{URL: detailURL})

	require.Equal(t, types.OutcomeOK, out.Status)
	require.True(t, out.HasRecord())
	assert.Empty(t, out.Errors.ErrList)
	assert.Equal(t, detailURL, out.Errors.URL)

	want := types.NewRecord(detailURL, runConstants)
	want.Name = "Master of Commerce (MCom) Information Science"
	want.Degree = "MCom"
	want.Faculty = "Otago Business School"
	want.Overview = "<p>Advanced study.</p>\n<p>Research project.</p>"
	want.StudyMode = "full-time"
	want.Duration = "1.5 years full-time"
	want.Fees = "$45,000 annual"
	want.LanguageRequirements = "<p>IELTS 6.5</p>"
	want.AdmissionRequirements = "<ol><li>Bachelor degree</li></ol>"
	want.CourseStructure = `<div id="programme-structure"><h3>2026 intake</h3><p>new</p></div>` +
		"\nINFO501: INFO501: Information Systems"
	want.ApplyURLs = []string{"https://apply.otago.ac.nz/mcom"}

	if diff := cmp.Diff(want, *out.Data); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, opener.closed)
}

func TestScrapeSkipsBeforeAnyFieldWork(t *testing.T) {
	page := &fakePage{
		markup: `<h1 class="page-banner__title">Doctor of Philosophy (PhD)</h1>
<h3>Structure of the Programme</h3><ol><li><a href="/x">x</a></li></ol>`,
		clickable: map[string]bool{StartApplicationQuery: true},
	}
	opener := &fakeOpener{}

	out := newTestExtractor(opener).Scrape(context.Background(), page, types.MajorInfo{URL: detailURL})

	assert.Equal(t, types.OutcomeSkipped, out.Status)
	assert.Nil(t, out.Data)
	assert.Equal(t, []string{detailURL}, page.opens)
	assert.Equal(t, 1, page.snapshots)
	assert.Zero(t, page.interactions())
	assert.Empty(t, opener.opened)

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"skipped","data":null,"errors":{"url":"`+detailURL+`","err_list":[]}}`, string(raw))
}

func TestScrapeNavigationFailure(t *testing.T) {
	page := &fakePage{openErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}

	out := newTestExtractor(nil).Scrape(context.Background(), page, types.MajorInfo{URL: detailURL})

	assert.Equal(t, types.OutcomeFailed, out.Status)
	assert.False(t, out.HasRecord())
	require.NotNil(t, out.Data)
	assert.Equal(t, detailURL, out.Data.SourceURL)
	require.Len(t, out.Errors.ErrList, 1)
	assert.Equal(t, "navigation — net::ERR_NAME_NOT_RESOLVED", out.Errors.ErrList[0])
	assert.Zero(t, page.snapshots)
}

func TestScrapeEmptyURL(t *testing.T) {
	page := &fakePage{}

	out := newTestExtractor(nil).Scrape(context.Background(), page, types.MajorInfo{URL: "  "})

	assert.Equal(t, types.OutcomeFailed, out.Status)
	assert.Nil(t, out.Data)
	assert.Equal(t, []string{"major url is empty"}, out.Errors.ErrList)
	assert.Empty(t, page.opens)

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"failed","data":{},"errors":{"url":"","err_list":["major url is empty"]}}`, string(raw))
}

func TestScrapeDegradesMissingFields(t *testing.T) {
	page := &fakePage{
		markup: `<html><body><h1 class="page-banner__title">Postgraduate Diploma in Science</h1>
<h3>Structure of the Programme</h3><p>Four papers.</p><p>One project.</p></body></html>`,
		harvest: func(string) ([]types.LinkItem, error) { return nil, errors.New("script failed") },
	}

	out := newTestExtractor(nil).Scrape(context.Background(), page, types.MajorInfo{URL: detailURL})

	require.Equal(t, types.OutcomeOK, out.Status)
	rec := out.Data
	assert.Equal(t, "Postgraduate Diploma in Science", rec.Name)
	assert.Equal(t, "", rec.Degree)
	assert.Equal(t, "", rec.Fees)
	assert.Equal(t, "<p>Four papers.</p>\n<p>One project.</p>", rec.CourseStructure)
	assert.Equal(t, []string{}, rec.ApplyURLs)
	assert.Equal(t, runConstants.IELTS, rec.IELTS)
	assert.Equal(t, []string{
		"course_structure — harvest links: script failed",
		"apply_urls[Christchurch] — location control \"Christchurch\" not found",
		"apply_urls[Dunedin] — location control \"Dunedin\" not found",
		"apply_urls[Wellington] — location control \"Wellington\" not found",
	}, out.Errors.ErrList)
}

func TestScrapeDegreeComesFromBannerHeadingOnly(t *testing.T) {
	page := &fakePage{markup: `<html><body>
<h1 class="page-banner__title">Master of Commerce (MCom)</h1>
<h3 data-role="banner-major-title">Marketing (Applied)</h3>
</body></html>`}

	out := newTestExtractor(nil).Scrape(context.Background(), page, types.MajorInfo{URL: detailURL})

	require.True(t, out.HasRecord())
	assert.Equal(t, "Master of Commerce (MCom) Marketing (Applied)", out.Data.Name)
	assert.Equal(t, "MCom", out.Data.Degree)
}

func TestScrapeDropsNextMarkerHeadingWhenConfigured(t *testing.T) {
	cfg := config.Default()
	cfg.Extraction.DropNextMarkerHeading = true
	page := &fakePage{markup: `<html><body><h1 class="page-banner__title">MSc</h1>
<div id="programme-structure"><h3>2025 intake</h3><p>old</p><h3>2026 intake</h3><p>new</p></div></body></html>`}

	out := NewExtractor(cfg, runConstants, nil, slog.New(slog.DiscardHandler)).
		Scrape(context.Background(), page, types.MajorInfo{URL: detailURL})

	require.True(t, out.HasRecord())
	assert.Equal(t, `<div id="programme-structure"><p>new</p></div>`, out.Data.CourseStructure)
}

func TestScrapeRecoversFromPagePanics(t *testing.T) {
	page := &fakePage{
		markup: `<html><body><h1 class="page-banner__title">MSc</h1>
<h3>Structure of the Programme</h3><p>Four papers.</p></body></html>`,
		harvest:    func(string) ([]types.LinkItem, error) { panic("script bridge gone") },
		clickPanic: LocationQuery("Dunedin"),
	}

	out := newTestExtractor(nil).Scrape(context.Background(), page, types.MajorInfo{URL: detailURL})

	require.Equal(t, types.OutcomeOK, out.Status)
	assert.Equal(t, "<p>Four papers.</p>", out.Data.CourseStructure)
	assert.Contains(t, out.Errors.ErrList, "course_structure — harvest links: panic: script bridge gone")
	assert.Contains(t, out.Errors.ErrList, "apply_urls[Dunedin] — panic: click "+LocationQuery("Dunedin"))
	assert.Len(t, page.opens, 4, "remaining locations are still visited")
}

func TestMergeCourseStructure(t *testing.T) {
	assert.Equal(t, "a\nb", MergeCourseStructure("a", "b"))
	assert.Equal(t, "b", MergeCourseStructure("", "b"))
	assert.Equal(t, "a", MergeCourseStructure("a", ""))
	assert.Equal(t, "", MergeCourseStructure("", ""))
}

func TestDegreeAndFaculty(t *testing.T) {
	assert.Equal(t, "MSc (Hons)", degreeOf("Master of Science (MSc (Hons))"))
	assert.Equal(t, "", degreeOf("Master of Science"))
	assert.Equal(t, "", degreeOf("odd ) order ("))

	divisions := config.Default().Extraction.Divisions
	assert.Equal(t, "Division of Sciences", facultyOf("<p>Division of Sciences</p>", divisions))
	assert.Equal(t, "", facultyOf("<p>Academic Divisions: Division of Sciences</p>", divisions))
}
