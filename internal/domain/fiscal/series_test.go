package fiscal

import "testing"

func TestParseSeries(t *testing.T) {
	tests := []struct {
		in      string
		want    Series
		wantErr bool
	}{
		{"invoice", SeriesInvoice, false},
		{"credit_note", SeriesCreditNote, false},
		{"ticket", "", true},
		{"", "", true},
		{"Invoice", "", true},
	}

	for _, tt := range tests {
		got, err := ParseSeries(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSeries(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSeries(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
