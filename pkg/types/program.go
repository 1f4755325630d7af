package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Constants are the run-wide values read once before any detail page is
// extracted. They are copied into every record.
type Constants struct {
	IELTS                string `json:"IELTS"`
	TOEFL                string `json:"TOEFL"`
	PTE                  string `json:"PTE"`
	ApplicationStartDate string `json:"application_start_date"`
	ApplicationDeadline  string `json:"application_deadline"`
	StartDate            string `json:"start_date"`
}

// Record is one programme extracted from a detail page. Every key is always
// serialised, empty values included.
type Record struct {
	SourceURL             string   `json:"source_url" bson:"source_url"`
	Name                  string   `json:"name" bson:"name"`
	Degree                string   `json:"degree" bson:"degree"`
	Faculty               string   `json:"faculty" bson:"faculty"`
	Overview              string   `json:"overview" bson:"overview"`
	StudyMode             string   `json:"study_mode" bson:"study_mode"`
	Duration              string   `json:"duration" bson:"duration"`
	Fees                  string   `json:"fees" bson:"fees"`
	LanguageRequirements  string   `json:"language_requirements" bson:"language_requirements"`
	CourseStructure       string   `json:"course_structure" bson:"course_structure"`
	AdmissionRequirements string   `json:"admission_requirements" bson:"admission_requirements"`
	IELTS                 string   `json:"IELTS" bson:"IELTS"`
	TOEFL                 string   `json:"TOEFL" bson:"TOEFL"`
	PTE                   string   `json:"PTE" bson:"PTE"`
	ApplicationStartDate  string   `json:"application_start_date" bson:"application_start_date"`
	ApplicationDeadline   string   `json:"application_deadline" bson:"application_deadline"`
	StartDate             string   `json:"start_date" bson:"start_date"`
	ApplyURLs             []string `json:"apply_urls" bson:"apply_urls"`
}

// NewRecord returns a record for sourceURL with the run constants copied in.
func NewRecord(sourceURL string, c Constants) Record {
	return Record{
		SourceURL:            sourceURL,
		IELTS:                c.IELTS,
		TOEFL:                c.TOEFL,
		PTE:                  c.PTE,
		ApplicationStartDate: c.ApplicationStartDate,
		ApplicationDeadline:  c.ApplicationDeadline,
		StartDate:            c.StartDate,
		ApplyURLs:            []string{},
	}
}

// MarshalJSON keeps apply_urls an array even when the slice is nil.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	if r.ApplyURLs == nil {
		r.ApplyURLs = []string{}
	}
	return json.Marshal(plain(r))
}

// FieldError is a soft failure recorded against one field or sub-step.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) String() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s — %s", e.Field, e.Message)
}

// ErrorInfo is the per-page error trail handed to the caller.
type ErrorInfo struct {
	URL     string   `json:"url"`
	ErrList []string `json:"err_list"`
}

// OutcomeStatus distinguishes the three shapes a page outcome can take.
type OutcomeStatus int

const (
	OutcomeOK OutcomeStatus = iota
	OutcomeSkipped
	OutcomeFailed
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeOK:
		return "ok"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ScrapeOutcome is the result of extracting one detail page.
//
// Skipped outcomes carry no data. Failed outcomes carry at most the source URL
// and a non-empty error list. OK outcomes carry a complete record and a
// possibly empty error list.
type ScrapeOutcome struct {
	Status OutcomeStatus
	Data   *Record
	Errors ErrorInfo
}

// Skipped builds the "not in scope" outcome.
func Skipped(url string) ScrapeOutcome {
	return ScrapeOutcome{Status: OutcomeSkipped, Errors: ErrorInfo{URL: url, ErrList: []string{}}}
}

// Failed builds a data-poor outcome for a page that could not be extracted.
func Failed(url string, errs ...string) ScrapeOutcome {
	var data *Record
	if url != "" {
		data = &Record{SourceURL: url}
	}
	return ScrapeOutcome{Status: OutcomeFailed, Data: data, Errors: ErrorInfo{URL: url, ErrList: errs}}
}

// Completed wraps a fully assembled record.
func Completed(rec Record, errs []FieldError) ScrapeOutcome {
	list := make([]string, 0, len(errs))
	for _, e := range errs {
		list = append(list, e.String())
	}
	return ScrapeOutcome{Status: OutcomeOK, Data: &rec, Errors: ErrorInfo{URL: rec.SourceURL, ErrList: list}}
}

// HasRecord reports whether the outcome carries a complete record.
func (o ScrapeOutcome) HasRecord() bool {
	return o.Status == OutcomeOK && o.Data != nil
}

// MarshalJSON renders skipped outcomes with null data and failed outcomes
// with only the source URL (or an empty object).
func (o ScrapeOutcome) MarshalJSON() ([]byte, error) {
	errs := o.Errors
	if errs.ErrList == nil {
		errs.ErrList = []string{}
	}
	var data any
	switch o.Status {
	case OutcomeSkipped:
		data = nil
	case OutcomeFailed:
		partial := map[string]string{}
		if o.Data != nil && o.Data.SourceURL != "" {
			partial["source_url"] = o.Data.SourceURL
		}
		data = partial
	default:
		data = o.Data
	}
	return json.Marshal(struct {
		Status string    `json:"status"`
		Data   any       `json:"data"`
		Errors ErrorInfo `json:"errors"`
	}{Status: o.Status.String(), Data: data, Errors: errs})
}

// LinkItem is a hyperlink harvested from a fragment. Href is empty when the
// anchor had none.
type LinkItem struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// MajorInfo describes one candidate detail page from the sitemap.
type MajorInfo struct {
	URL  string `json:"major_url"`
	Name string `json:"major_name,omitempty"`
}

// UnmarshalJSON accepts both "major_url" and the legacy "major_url-href" key.
func (m *MajorInfo) UnmarshalJSON(b []byte) error {
	var raw struct {
		URL     string `json:"major_url"`
		HrefURL string `json:"major_url-href"`
		Name    string `json:"major_name"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	m.URL = strings.TrimSpace(raw.URL)
	if m.URL == "" {
		m.URL = strings.TrimSpace(raw.HrefURL)
	}
	m.Name = strings.TrimSpace(raw.Name)
	return nil
}
