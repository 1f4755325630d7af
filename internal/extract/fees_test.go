package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otago-pg/internal/dom"
)

func TestNormalizeFee(t *testing.T) {
	tests := map[string]string{
		"":                          "",
		"  NZ$42,500 ":              "NZ$42,500 annual",
		"To Be Confirmed":           ToBeConfirmed,
		"fees to be confirmed 2026": ToBeConfirmed,
		"See website":               "See website",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeFee(in), "input %q", in)
	}
}

func TestLabelledFee(t *testing.T) {
	label := "International fee 2026:"
	assert.Equal(t, "$42,500 annual", LabelledFee("International fee 2026: $42,500", label))
	assert.Equal(t, ToBeConfirmed, LabelledFee("International fee 2026: to be confirmed", label))
	assert.Equal(t, "Fee $1 annual", LabelledFee("Fee $1", label))
}

func readFees(t *testing.T, markup string) (string, *ErrorLog) {
	t.Helper()
	doc, err := dom.Parse(markup)
	require.NoError(t, err)
	errs := &ErrorLog{}
	return (&feeReader{doc: doc, year: "2026"}).read(context.Background(), errs), errs
}

func TestFeeLayouts(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   string
	}{
		{
			name:   "labelled span",
			markup: `<span>International fee 2026: $42,500</span>`,
			want:   "$42,500 annual",
		},
		{
			name:   "details item heading",
			markup: `<div class="programme-details__fees-item"><p>International 2026</p><h3>NZ$39,000</h3></div>`,
			want:   "NZ$39,000 annual",
		},
		{
			name:   "currency text",
			markup: `<p>International students NZ$51,000 per year</p>`,
			want:   "International students NZ$51,000 per year annual",
		},
		{
			name:   "placeholder then amount",
			markup: `<span>International fee 2026: to be confirmed</span><p>International NZ$30,000</p>`,
			want:   "International NZ$30,000 annual",
		},
		{
			name:   "placeholder only",
			markup: `<span>International fee 2026: To be confirmed</span>`,
			want:   ToBeConfirmed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errs := readFees(t, tt.markup)
			assert.Equal(t, tt.want, got)
			assert.Zero(t, errs.Len())
		})
	}
}

func TestFeeAbsentLeavesNoError(t *testing.T) {
	got, errs := readFees(t, `<p>No fee information</p><div class="programme-details__fees-item"><p>Domestic 2026</p></div>`)
	assert.Equal(t, "", got)
	assert.Zero(t, errs.Len(), "a page without a fee block is not a failure")
}
