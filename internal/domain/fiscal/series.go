// Package fiscal defines the shared vocabulary of the fiscal numbering
// engine: document series and their string forms.
//
// A series is a legally distinct numbering stream. Invoices and credit
// notes are independent series: each carries its own resolution (prefix
// and authorized numeric range) and numbers never cross between them.
package fiscal

import (
	"fmt"
)

// Series identifies a legally distinct numbering stream.
type Series string

const (
	// SeriesInvoice is the outbound tax invoice stream.
	SeriesInvoice Series = "invoice"

	// SeriesCreditNote is the credit note stream.
	SeriesCreditNote Series = "credit_note"
)

// AllSeries lists every known series.
var AllSeries = []Series{SeriesInvoice, SeriesCreditNote}

// Valid reports whether s is a known series.
func (s Series) Valid() bool {
	switch s {
	case SeriesInvoice, SeriesCreditNote:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (s Series) String() string {
	return string(s)
}

// ParseSeries converts a string to a Series with validation.
func ParseSeries(v string) (Series, error) {
	s := Series(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown fiscal series %q", v)
	}
	return s, nil
}
