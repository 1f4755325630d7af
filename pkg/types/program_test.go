package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordCopiesConstants(t *testing.T) {
	c := Constants{IELTS: "6.5", StartDate: "February"}
	rec := NewRecord("https://www.otago.ac.nz/mcom", c)
	c.IELTS = "7.0"

	assert.Equal(t, "6.5", rec.IELTS)
	assert.Equal(t, "February", rec.StartDate)
	assert.NotNil(t, rec.ApplyURLs)
	assert.Empty(t, rec.ApplyURLs)
}

func TestRecordAlwaysSerialisesApplyURLs(t *testing.T) {
	body, err := json.Marshal(Record{SourceURL: "u"})
	require.NoError(t, err)
	assert.Contains(t, string(body), `"apply_urls":[]`)
	assert.Contains(t, string(body), `"fees":""`)
}

func TestFieldErrorString(t *testing.T) {
	assert.Equal(t, "fees — no fee found", FieldError{Field: "fees", Message: "no fee found"}.String())
	assert.Equal(t, "bare", FieldError{Message: "bare"}.String())
}

func TestOutcomeJSONShapes(t *testing.T) {
	tests := []struct {
		name    string
		outcome ScrapeOutcome
		want    string
	}{
		{
			name:    "skipped",
			outcome: Skipped("https://x/phd"),
			want:    `{"status":"skipped","data":null,"errors":{"url":"https://x/phd","err_list":[]}}`,
		},
		{
			name:    "failed without url",
			outcome: Failed("", "major url is empty"),
			want:    `{"status":"failed","data":{},"errors":{"url":"","err_list":["major url is empty"]}}`,
		},
		{
			name:    "failed navigation",
			outcome: Failed("https://x/a", "navigation — timeout"),
			want:    `{"status":"failed","data":{"source_url":"https://x/a"},"errors":{"url":"https://x/a","err_list":["navigation — timeout"]}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := json.Marshal(tt.outcome)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(body))
		})
	}
}

func TestCompletedOutcome(t *testing.T) {
	out := Completed(NewRecord("https://x/a", Constants{}), []FieldError{{Field: "fees", Message: "missing"}})
	assert.True(t, out.HasRecord())
	assert.Equal(t, []string{"fees — missing"}, out.Errors.ErrList)
	assert.Equal(t, "https://x/a", out.Errors.URL)
	assert.False(t, Skipped("u").HasRecord())
	assert.False(t, Failed("u", "e").HasRecord())
}

func TestMajorInfoAcceptsLegacyKey(t *testing.T) {
	var infos []MajorInfo
	require.NoError(t, json.Unmarshal([]byte(`[{"major_url-href":" https://x/a "},{"major_url":"https://x/b","major_name":"B"}]`), &infos))
	assert.Equal(t, []MajorInfo{{URL: "https://x/a"}, {URL: "https://x/b", Name: "B"}}, infos)
}
