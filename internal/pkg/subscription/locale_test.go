package subscription

import "testing"

func TestTermsFor(t *testing.T) {
	tests := []struct {
		interval   string
		period     string
		engagement string
	}{
		{interval: "month", period: "mensuel", engagement: "sans engagement"},
		{interval: "year", period: "annuel", engagement: "engagement sur un an"},
		{interval: "weird", period: "annuel", engagement: "engagement sur un an"},
	}

	for _, tt := range tests {
		got := termsFor(tt.interval)
		if got.Period != tt.period || got.Engagement != tt.engagement {
			t.Fatalf("termsFor(%q) = %+v, want %q/%q", tt.interval, got, tt.period, tt.engagement)
		}
	}
}

func TestFormatPricePerPeriod(t *testing.T) {
	tests := []struct {
		price    float64
		interval string
		want     string
	}{
		{price: 29, interval: "month", want: "29 € HT par mois"},
		{price: 290, interval: "year", want: "290 € HT par an"},
		{price: 19.9, interval: "month", want: "19.9 € HT par mois"},
	}

	for _, tt := range tests {
		if got := formatPricePerPeriod(tt.price, tt.interval); got != tt.want {
			t.Fatalf("formatPricePerPeriod(%v, %q) = %q, want %q", tt.price, tt.interval, got, tt.want)
		}
	}
}
