package dividend

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketdata/internal/model"
)

func datesEvery(n int, gap time.Duration) []time.Time {
	start := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * gap)
	}
	return out
}

func TestInferFrequencyFromSpacing(t *testing.T) {
	tests := []struct {
		name string
		gap  time.Duration
		want model.Frequency
	}{
		{"monthly", 30 * 24 * time.Hour, model.FrequencyMonthly},
		{"quarterly", 91 * 24 * time.Hour, model.FrequencyQuarterly},
		{"semiannual", 182 * 24 * time.Hour, model.FrequencySemiAnnual},
		{"annual", 365 * 24 * time.Hour, model.FrequencyAnnual},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InferFrequency("XYZ", datesEvery(6, tt.gap), "")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInferFrequencyThinHistoryUsesDeclared(t *testing.T) {
	// Three annual-spaced dates would be misread without the sample floor.
	dates := datesEvery(3, 365*24*time.Hour)
	assert.Equal(t, model.FrequencyAnnual, InferFrequency("XYZ", dates, "annual"))
	assert.Equal(t, model.FrequencyMonthly, InferFrequency("XYZ", dates, "Monthly"))
	assert.Equal(t, model.FrequencySemiAnnual, InferFrequency("XYZ", dates, "semi-annual"))
}

func TestInferFrequencyThinHistoryDefaultsQuarterly(t *testing.T) {
	dates := datesEvery(2, 30*24*time.Hour)
	assert.Equal(t, model.FrequencyQuarterly, InferFrequency("XYZ", dates, ""))
	assert.Equal(t, model.FrequencyQuarterly, InferFrequency("XYZ", nil, "gibberish"))
}

func TestMonthlyOverrideBeatsSpacing(t *testing.T) {
	// JEPI with only two quarterly-looking samples still reports monthly.
	dates := datesEvery(2, 91*24*time.Hour)
	assert.Equal(t, model.FrequencyMonthly, InferFrequency("JEPI", dates, ""))
	assert.Equal(t, model.FrequencyMonthly, InferFrequency("jepq", nil, ""))
	assert.False(t, IsMonthlyOverride("AAPL"))
}

func TestAnnualize(t *testing.T) {
	amt := decimal.RequireFromString("0.25")
	assert.True(t, Annualize(amt, model.FrequencyMonthly).Equal(decimal.NewFromInt(3)))
	assert.True(t, Annualize(amt, model.FrequencyQuarterly).Equal(decimal.RequireFromString("1")))
	assert.True(t, Annualize(amt, model.FrequencySemiAnnual).Equal(decimal.RequireFromString("0.5")))
	assert.True(t, Annualize(amt, model.FrequencyAnnual).Equal(amt))
	// Irregular and unknown degrade to a single payment.
	assert.True(t, Annualize(amt, model.FrequencyIrregular).Equal(amt))
	assert.True(t, Annualize(amt, model.FrequencyUnknown).Equal(amt))
}

func TestBuildFromPayments(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	dates := datesEvery(8, 30*24*time.Hour)
	hist := model.DividendHistory{
		Symbol: "SPHD",
		Source: "Yahoo",
	}
	for _, d := range dates {
		hist.Payments = append(hist.Payments, model.DividendPayment{
			ExDate: d,
			Amount: decimal.RequireFromString("0.15"),
		})
	}

	rec := Build(hist, now)
	require.Equal(t, "SPHD", rec.Symbol)
	assert.Equal(t, model.FrequencyMonthly, rec.Frequency)
	require.NotNil(t, rec.LastExDate)
	assert.Equal(t, dates[len(dates)-1], *rec.LastExDate)
	assert.True(t, rec.AnnualizedAmount.Equal(decimal.RequireFromString("1.80")),
		"want 1.80, got %s", rec.AnnualizedAmount)
	assert.Equal(t, "Yahoo", rec.DataSource)
	assert.Equal(t, now, rec.LastUpdated)
}

func TestBuildFromDeclaredAnnualAmount(t *testing.T) {
	hist := model.DividendHistory{
		Symbol:               "IBM",
		DeclaredFrequency:    "quarterly",
		DeclaredAnnualAmount: decimal.RequireFromString("6.68"),
		YieldPercent:         3.1,
		Source:               "AlphaVantage",
	}
	rec := Build(hist, time.Now().UTC())
	assert.Equal(t, model.FrequencyQuarterly, rec.Frequency)
	assert.True(t, rec.AnnualizedAmount.Equal(decimal.RequireFromString("6.68")))
	assert.Nil(t, rec.LastExDate)
	assert.InDelta(t, 3.1, rec.YieldPercent, 0.001)
}

func TestBuildEmptyHistory(t *testing.T) {
	rec := Build(model.DividendHistory{Symbol: "GROW"}, time.Now().UTC())
	assert.Equal(t, model.FrequencyQuarterly, rec.Frequency)
	assert.True(t, rec.AnnualizedAmount.IsZero())
	assert.Nil(t, rec.LastExDate)
}
