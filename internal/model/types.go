package model

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one daily OHLCV bar, normalized across providers.
// A constructed point is never mutated; sequences are kept sorted
// ascending by date with no duplicate dates.
type PricePoint struct {
	Symbol    string          `json:"symbol"`
	Date      time.Time       `json:"date"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Valid reports whether the bar satisfies the OHLC invariants:
// all four prices positive, volume non-negative, high >= low, and
// open/close within [low, high].
func (p PricePoint) Valid() bool {
	if !p.Open.IsPositive() || !p.High.IsPositive() || !p.Low.IsPositive() || !p.Close.IsPositive() {
		return false
	}
	if p.Volume < 0 {
		return false
	}
	if p.High.LessThan(p.Low) {
		return false
	}
	if p.Open.LessThan(p.Low) || p.Open.GreaterThan(p.High) {
		return false
	}
	if p.Close.LessThan(p.Low) || p.Close.GreaterThan(p.High) {
		return false
	}
	return true
}

// CleanPoints drops invalid bars, sorts ascending by date and removes
// duplicate dates (first occurrence wins). Providers hand raw parses to
// this instead of failing a whole batch on one bad row.
func CleanPoints(points []PricePoint) []PricePoint {
	out := make([]PricePoint, 0, len(points))
	for _, p := range points {
		if p.Valid() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	dedup := out[:0]
	for _, p := range out {
		if len(dedup) > 0 && sameDay(dedup[len(dedup)-1].Date, p.Date) {
			continue
		}
		dedup = append(dedup, p)
	}
	return dedup
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Frequency classifies how often a security pays distributions.
type Frequency string

const (
	FrequencyMonthly    Frequency = "monthly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencySemiAnnual Frequency = "semiannual"
	FrequencyAnnual     Frequency = "annual"
	FrequencyIrregular  Frequency = "irregular"
	FrequencyUnknown    Frequency = "unknown"
)

// PaymentsPerYear returns the payment count implied by the frequency.
// Irregular is treated as a single payment per year.
func (f Frequency) PaymentsPerYear() int {
	switch f {
	case FrequencyMonthly:
		return 12
	case FrequencyQuarterly:
		return 4
	case FrequencySemiAnnual:
		return 2
	case FrequencyAnnual, FrequencyIrregular:
		return 1
	default:
		return 0
	}
}

// DividendPayment is one historical cash payout as reported by a provider.
type DividendPayment struct {
	ExDate time.Time       `json:"ex_date"`
	Amount decimal.Decimal `json:"amount"`
}

// DividendHistory is the raw dividend payload parsed by an adapter before
// frequency inference and annualization.
type DividendHistory struct {
	Symbol            string            `json:"symbol"`
	FullName          string            `json:"full_name,omitempty"`
	Payments          []DividendPayment `json:"payments"`
	DeclaredFrequency string            `json:"declared_frequency,omitempty"`
	// DeclaredAnnualAmount is used when the provider reports an annual
	// per-share figure instead of a payment history.
	DeclaredAnnualAmount decimal.Decimal `json:"declared_annual_amount,omitempty"`
	YieldPercent         float64         `json:"yield_percent,omitempty"`
	Source               string          `json:"source"`
}

// DistributionRecord summarizes a security's recurring payouts.
type DistributionRecord struct {
	Symbol           string          `json:"symbol"`
	FullName         string          `json:"full_name,omitempty"`
	AnnualizedAmount decimal.Decimal `json:"annualized_amount"`
	YieldPercent     float64         `json:"yield_percent,omitempty"`
	Frequency        Frequency       `json:"frequency"`
	LastExDate       *time.Time      `json:"last_ex_date,omitempty"`
	LastPaymentDate  *time.Time      `json:"last_payment_date,omitempty"`
	IsUserProvided   bool            `json:"is_user_provided"`
	DataSource       string          `json:"data_source"`
	LastUpdated      time.Time       `json:"last_updated"`
}

// ProviderStats is the rolling in-memory counter set for one provider.
// It is reset on process launch and never persisted.
type ProviderStats struct {
	ProviderName      string        `json:"provider_name"`
	TotalRequests     int64         `json:"total_requests"`
	SuccessCount      int64         `json:"success_count"`
	FailureCount      int64         `json:"failure_count"`
	TotalResponseTime time.Duration `json:"total_response_time_ns"`
	LastSuccessAt     time.Time     `json:"last_success_at,omitzero"`
	LastFailureAt     time.Time     `json:"last_failure_at,omitzero"`
}

// AvgResponseTime returns the mean duration of all recorded calls.
func (s ProviderStats) AvgResponseTime() time.Duration {
	if s.TotalRequests == 0 {
		return 0
	}
	return s.TotalResponseTime / time.Duration(s.TotalRequests)
}

// ProviderStatus is the externally reported view of one provider.
type ProviderStatus struct {
	Name           string        `json:"name"`
	Priority       int           `json:"priority"`
	Available      bool          `json:"available"`
	CircuitOpen    bool          `json:"circuit_open"`
	Stats          ProviderStats `json:"stats"`
	NextRequestIn  time.Duration `json:"next_request_in_ns"`
	DailyLimit     int           `json:"daily_limit"`
	CostPerRequest float64       `json:"cost_per_request"`
}

// HealthReport aggregates provider status for the health endpoint.
type HealthReport struct {
	Healthy     bool             `json:"healthy"`
	CheckedAt   time.Time        `json:"checked_at"`
	Providers   []ProviderStatus `json:"providers"`
	CacheStats  CacheStats       `json:"cache_stats"`
	StoreOnline bool             `json:"store_online"`
}

// CacheStats describes the two cache tiers.
type CacheStats struct {
	MemoryEntries int   `json:"memory_entries"`
	MemoryHits    int64 `json:"memory_hits"`
	MemoryMisses  int64 `json:"memory_misses"`
	DiskEntries   int   `json:"disk_entries"`
	DiskHits      int64 `json:"disk_hits"`
	DiskMisses    int64 `json:"disk_misses"`
}

// ParsePeriod resolves a period shorthand to a [start, end] date range
// ending now. Supported: 1mo, 3mo, 6mo, 1y, 2y, 5y.
func ParsePeriod(period string) (time.Time, time.Time, error) {
	end := time.Now().UTC()
	var days int
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "1mo":
		days = 30
	case "3mo":
		days = 91
	case "6mo":
		days = 182
	case "1y":
		days = 365
	case "2y":
		days = 730
	case "5y":
		days = 1825
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q", period)
	}
	return end.AddDate(0, 0, -days), end, nil
}
