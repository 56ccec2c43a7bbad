package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mkBar(date time.Time, o, h, l, c float64, vol int64) PricePoint {
	return PricePoint{
		Symbol: "TEST",
		Date:   date,
		Open:   decimal.NewFromFloat(o),
		High:   decimal.NewFromFloat(h),
		Low:    decimal.NewFromFloat(l),
		Close:  decimal.NewFromFloat(c),
		Volume: vol,
	}
}

func TestPricePointValid(t *testing.T) {
	d := time.Now()
	tests := []struct {
		name string
		bar  PricePoint
		want bool
	}{
		{"ok", mkBar(d, 10, 11, 9, 10.5, 100), true},
		{"zero volume ok", mkBar(d, 10, 11, 9, 10.5, 0), true},
		{"zero open", mkBar(d, 0, 11, 9, 10.5, 100), false},
		{"negative close", mkBar(d, 10, 11, 9, -1, 100), false},
		{"high below low", mkBar(d, 10, 9, 11, 10, 100), false},
		{"open above high", mkBar(d, 12, 11, 9, 10, 100), false},
		{"close below low", mkBar(d, 10, 11, 9, 8, 100), false},
		{"negative volume", mkBar(d, 10, 11, 9, 10, -1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.bar.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCleanPoints(t *testing.T) {
	d1 := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)

	raw := []PricePoint{
		mkBar(d2, 10, 11, 9, 10, 100),
		mkBar(d1, 10, 9, 11, 10, 100), // invalid, dropped
		mkBar(d1, 10, 11, 9, 10, 100),
		mkBar(d2.Add(4*time.Hour), 20, 21, 19, 20, 100), // same UTC day as d2
	}
	got := CleanPoints(raw)
	if len(got) != 2 {
		t.Fatalf("want 2 points, got %d", len(got))
	}
	if !got[0].Date.Equal(d1) || !got[1].Date.Equal(d2) {
		t.Errorf("order wrong: %s, %s", got[0].Date, got[1].Date)
	}
}

func TestFrequencyPaymentsPerYear(t *testing.T) {
	cases := map[Frequency]int{
		FrequencyMonthly:    12,
		FrequencyQuarterly:  4,
		FrequencySemiAnnual: 2,
		FrequencyAnnual:     1,
		FrequencyIrregular:  1,
		FrequencyUnknown:    0,
	}
	for f, want := range cases {
		if got := f.PaymentsPerYear(); got != want {
			t.Errorf("%s: want %d, got %d", f, want, got)
		}
	}
}

func TestParsePeriod(t *testing.T) {
	for period, days := range map[string]int{
		"1mo": 30, "3mo": 91, "6mo": 182, "1y": 365, "2y": 730, "5y": 1825,
	} {
		start, end, err := ParsePeriod(period)
		if err != nil {
			t.Fatalf("%s: %v", period, err)
		}
		if got := int(end.Sub(start).Hours() / 24); got != days {
			t.Errorf("%s: want %d days, got %d", period, days, got)
		}
	}
	if _, _, err := ParsePeriod("10y"); err == nil {
		t.Error("unknown period should fail")
	}
	if _, _, err := ParsePeriod(" 1Y "); err != nil {
		t.Errorf("period parsing should be case-insensitive: %v", err)
	}
}

func TestAvgResponseTime(t *testing.T) {
	s := ProviderStats{TotalRequests: 4, TotalResponseTime: 2 * time.Second}
	if got := s.AvgResponseTime(); got != 500*time.Millisecond {
		t.Errorf("avg = %s", got)
	}
	var empty ProviderStats
	if got := empty.AvgResponseTime(); got != 0 {
		t.Errorf("empty avg = %s", got)
	}
}
