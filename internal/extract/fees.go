package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"otago-pg/internal/dom"
)

// ToBeConfirmed is the normalised form of any fee text announcing that the
// amount is not yet published.
const ToBeConfirmed = "To be confirmed"

// NormalizeFee applies the fee suffix rules: placeholder text becomes
// ToBeConfirmed, values carrying digits get " annual" appended, anything
// else is kept as is.
func NormalizeFee(value string) string {
	v := dom.NormalizeWhitespace(value)
	switch {
	case v == "":
		return ""
	case isToBeConfirmed(v):
		return ToBeConfirmed
	case strings.IndexFunc(v, unicode.IsDigit) >= 0:
		return v + " annual"
	default:
		return v
	}
}

// LabelledFee reads the amount following label in text, for example the
// "$42,500" in "International fee 2026: $42,500".
func LabelledFee(text, label string) string {
	full := dom.NormalizeWhitespace(text)
	if isToBeConfirmed(full) {
		return ToBeConfirmed
	}
	idx := strings.Index(full, label)
	if idx < 0 {
		return NormalizeFee(full)
	}
	return NormalizeFee(full[idx+len(label):])
}

func isToBeConfirmed(s string) bool {
	return strings.Contains(strings.ToLower(s), "to be confirmed")
}

// feeReader tries the known fee layouts for one year. A placeholder value
// does not end the search; it is only reported when no layout yields an
// amount.
type feeReader struct {
	doc         *dom.Document
	year        string
	placeholder bool
}

func (f *feeReader) read(ctx context.Context, errs *ErrorLog) string {
	fee := Text(ctx, "fees", errs,
		f.labelledSpan,
		f.detailsItemHeading,
		f.currencyText,
		f.detailsItemParagraph,
	)
	if fee == "" && f.placeholder {
		return ToBeConfirmed
	}
	return fee
}

func (f *feeReader) keep(v string) string {
	if v == ToBeConfirmed {
		f.placeholder = true
		return ""
	}
	return v
}

func (f *feeReader) label() string {
	return fmt.Sprintf("International fee %s:", f.year)
}

func (f *feeReader) labelledSpan(context.Context) (string, error) {
	node, err := f.doc.Find(`//span[contains(., ` + dom.Literal(f.label()) + `)]`)
	if err != nil {
		return "", err
	}
	if node == nil {
		return "", nil
	}
	return f.keep(LabelledFee(node.Text(), f.label())), nil
}

func (f *feeReader) detailsItemHeading(context.Context) (string, error) {
	item, err := f.doc.Find(`//div[contains(@class, "programme-details__fees-item") and contains(., ` +
		dom.Literal("International "+f.year) + `)]`)
	if err != nil {
		return "", err
	}
	if item == nil {
		return "", nil
	}
	heading, err := item.Find(`.//h3`)
	if err != nil {
		return "", err
	}
	if heading != nil {
		return f.keep(NormalizeFee(heading.Text())), nil
	}
	return f.keep(LabelledFee(item.Text(), "International "+f.year)), nil
}

func (f *feeReader) currencyText(context.Context) (string, error) {
	nodes, err := f.doc.FindAll(`//*[contains(text(), "NZ$") and (contains(text(), "International") or contains(text(), ` +
		dom.Literal(f.year) + `))]`)
	if err != nil {
		return "", err
	}
	for _, n := range nodes {
		if v := f.keep(NormalizeFee(n.Text())); v != "" {
			return v, nil
		}
	}
	return "", nil
}

func (f *feeReader) detailsItemParagraph(context.Context) (string, error) {
	node, err := f.doc.Find(`//div[contains(@class, "programme-details__fees-item")]//p[contains(., ` +
		dom.Literal("International "+f.year) + `)]/following-sibling::h3[1]`)
	if err != nil {
		return "", err
	}
	if node == nil {
		return "", nil
	}
	return f.keep(NormalizeFee(node.Text())), nil
}
