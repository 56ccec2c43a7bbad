package provider

import (
	"context"
	"time"

	"marketdata/internal/model"
	"marketdata/internal/provider/ratelimit"
)

// Priority orders providers in the fallback chain; lower tries first.
const (
	PriorityPrimary    = 1
	PrioritySecondary  = 2
	PriorityTertiary   = 3
	PriorityQuaternary = 4
)

// Info is the static metadata a provider declares about itself.
type Info struct {
	Name              string   `json:"name"`
	Priority          int      `json:"priority"`
	DailyRequestLimit int      `json:"daily_request_limit"`
	CostPerRequest    float64  `json:"cost_per_request"`
	SupportedPeriods  []string `json:"supported_periods"`
}

// PriceProvider translates (symbol, date range) requests into
// provider-specific HTTP calls and parses the proprietary response into
// the canonical model. Each provider owns its rate limiter.
type PriceProvider interface {
	Info() Info

	// Available is false when a required credential is not configured.
	Available() bool

	// Limiter exposes the provider's sliding-window budget to the
	// orchestrator, which consults it before every call.
	Limiter() *ratelimit.Limiter

	// FetchPrices returns daily bars sorted ascending by date. Bars that
	// violate OHLC invariants are dropped; an all-dropped response fails
	// with a no-data error.
	FetchPrices(ctx context.Context, symbol string, start, end time.Time) ([]model.PricePoint, error)

	// FetchLatest returns the most recent bar available.
	FetchLatest(ctx context.Context, symbol string) (model.PricePoint, error)
}

// DividendProvider is implemented by providers that can serve dividend
// history alongside prices.
type DividendProvider interface {
	PriceProvider

	FetchDividends(ctx context.Context, symbol string) (model.DividendHistory, error)
}
