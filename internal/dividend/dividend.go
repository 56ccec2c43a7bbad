// Package dividend turns raw provider payout history into a normalized
// distribution record: frequency inference from ex-date spacing, plus
// annualization arithmetic.
package dividend

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketdata/internal/model"
)

// Classification thresholds on the mean gap in days between consecutive
// ex-dividend dates.
const (
	monthlyMaxGapDays    = 45
	quarterlyMaxGapDays  = 120
	semiAnnualMaxGapDays = 270
)

// minSamples is the number of ex-dates needed before interval statistics
// are trusted. Below it the provider-declared frequency is used, then a
// Quarterly default. Known to misclassify thin histories.
const minSamples = 4

// monthlyOverrides forces Monthly for symbols with established
// monthly-distribution behavior that thin histories would misclassify.
var monthlyOverrides = map[string]struct{}{
	"JEPI": {}, "JEPQ": {}, "QYLD": {}, "XYLD": {}, "RYLD": {},
	"O": {}, "MAIN": {}, "AGNC": {}, "SPHD": {}, "DIA": {},
}

// IsMonthlyOverride reports whether the symbol is on the known
// monthly-ETF list.
func IsMonthlyOverride(symbol string) bool {
	_, ok := monthlyOverrides[strings.ToUpper(symbol)]
	return ok
}

// InferFrequency classifies the payout cadence from ex-date spacing.
// declared is the provider's frequency string, used when fewer than
// minSamples dates are available.
func InferFrequency(symbol string, exDates []time.Time, declared string) model.Frequency {
	if IsMonthlyOverride(symbol) {
		return model.FrequencyMonthly
	}
	if len(exDates) >= minSamples {
		var totalDays float64
		for i := 1; i < len(exDates); i++ {
			totalDays += exDates[i].Sub(exDates[i-1]).Hours() / 24
		}
		mean := totalDays / float64(len(exDates)-1)
		switch {
		case mean < monthlyMaxGapDays:
			return model.FrequencyMonthly
		case mean < quarterlyMaxGapDays:
			return model.FrequencyQuarterly
		case mean < semiAnnualMaxGapDays:
			return model.FrequencySemiAnnual
		default:
			return model.FrequencyAnnual
		}
	}
	if f := parseDeclared(declared); f != model.FrequencyUnknown {
		return f
	}
	return model.FrequencyQuarterly
}

func parseDeclared(declared string) model.Frequency {
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "monthly", "month", "12":
		return model.FrequencyMonthly
	case "quarterly", "quarter", "4":
		return model.FrequencyQuarterly
	case "semiannual", "semi-annual", "semi annual", "2":
		return model.FrequencySemiAnnual
	case "annual", "annually", "yearly", "1":
		return model.FrequencyAnnual
	case "irregular":
		return model.FrequencyIrregular
	default:
		return model.FrequencyUnknown
	}
}

// Annualize multiplies the most recent per-payment amount by the payment
// count implied by the frequency.
func Annualize(lastPayment decimal.Decimal, freq model.Frequency) decimal.Decimal {
	n := freq.PaymentsPerYear()
	if n <= 0 {
		n = 1
	}
	return lastPayment.Mul(decimal.NewFromInt(int64(n)))
}

// Build normalizes a provider history into a distribution record.
func Build(hist model.DividendHistory, now time.Time) model.DistributionRecord {
	rec := model.DistributionRecord{
		Symbol:       hist.Symbol,
		FullName:     hist.FullName,
		YieldPercent: hist.YieldPercent,
		DataSource:   hist.Source,
		LastUpdated:  now,
	}

	exDates := make([]time.Time, 0, len(hist.Payments))
	for _, p := range hist.Payments {
		exDates = append(exDates, p.ExDate)
	}
	rec.Frequency = InferFrequency(hist.Symbol, exDates, hist.DeclaredFrequency)

	if len(hist.Payments) > 0 {
		last := hist.Payments[len(hist.Payments)-1]
		ex := last.ExDate
		rec.LastExDate = &ex
		rec.AnnualizedAmount = Annualize(last.Amount, rec.Frequency)
	} else if hist.DeclaredAnnualAmount.IsPositive() {
		rec.AnnualizedAmount = hist.DeclaredAnnualAmount
	}
	return rec
}
