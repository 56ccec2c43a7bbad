package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"marketdata/internal/httpx"
	"marketdata/internal/model"
	"marketdata/internal/provider"
	"marketdata/internal/provider/ratelimit"
)

// Config controls the Finnhub candle provider. An API key is required.
type Config struct {
	Name      string
	BaseURL   string
	APIKey    string
	RateLimit ratelimit.Config
}

// Provider fetches daily candles from Finnhub. It has no dividend
// capability, so it only participates in the price fallback chain.
type Provider struct {
	cfg     Config
	client  *httpx.Client
	limiter *ratelimit.Limiter
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "finnhub"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://finnhub.io"
	}
	if cfg.RateLimit.PerMinute == 0 {
		cfg.RateLimit.PerMinute = 60
	}
	return &Provider{cfg: cfg, client: hc, limiter: ratelimit.New(cfg.RateLimit)}
}

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:              p.cfg.Name,
		Priority:          provider.PriorityTertiary,
		DailyRequestLimit: p.cfg.RateLimit.PerDay,
		CostPerRequest:    0,
		SupportedPeriods:  []string{"1mo", "3mo", "6mo", "1y"},
	}
}

func (p *Provider) Available() bool { return p.cfg.APIKey != "" }

func (p *Provider) Limiter() *ratelimit.Limiter { return p.limiter }

func (p *Provider) get(ctx context.Context, symbol, path string, params url.Values, out any) error {
	params.Set("token", p.cfg.APIKey)
	u := fmt.Sprintf("%s%s?%s", p.cfg.BaseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.NewError(model.ErrNetwork, p.cfg.Name, symbol, err)
	}
	if !p.limiter.TryAcquire() {
		return model.NewRateLimitError(p.cfg.Name, symbol, p.limiter.NextDelay())
	}
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return model.NewError(model.ErrNetwork, p.cfg.Name, symbol, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return provider.StatusError(p.cfg.Name, symbol, resp.StatusCode, resp.Header.Get("Retry-After"))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return model.NewError(model.ErrDecoding, p.cfg.Name, symbol, err)
	}
	return nil
}

// candleResponse uses parallel arrays; s is "ok" or "no_data".
type candleResponse struct {
	Open   []float64 `json:"o"`
	High   []float64 `json:"h"`
	Low    []float64 `json:"l"`
	Close  []float64 `json:"c"`
	Volume []float64 `json:"v"`
	Time   []int64   `json:"t"`
	Status string    `json:"s"`
}

func (p *Provider) FetchPrices(ctx context.Context, symbol string, start, end time.Time) ([]model.PricePoint, error) {
	if err := model.ValidateRequest(p.cfg.Name, symbol, start, end); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("resolution", "D")
	params.Set("from", fmt.Sprintf("%d", start.Unix()))
	params.Set("to", fmt.Sprintf("%d", end.Unix()))
	var body candleResponse
	if err := p.get(ctx, symbol, "/api/v1/stock/candle", params, &body); err != nil {
		return nil, err
	}
	if body.Status == "no_data" {
		return nil, model.NewError(model.ErrNoData, p.cfg.Name, symbol, nil)
	}
	if body.Status != "ok" {
		return nil, model.NewError(model.ErrDataQuality, p.cfg.Name, symbol, fmt.Errorf("status %q", body.Status))
	}
	n := len(body.Time)
	if len(body.Open) != n || len(body.High) != n || len(body.Low) != n || len(body.Close) != n {
		return nil, model.NewError(model.ErrDataQuality, p.cfg.Name, symbol,
			fmt.Errorf("mismatched candle array lengths"))
	}

	now := time.Now().UTC()
	points := make([]model.PricePoint, 0, n)
	for i := 0; i < n; i++ {
		var vol int64
		if i < len(body.Volume) {
			vol = int64(body.Volume[i])
		}
		points = append(points, model.PricePoint{
			Symbol:    symbol,
			Date:      time.Unix(body.Time[i], 0).UTC(),
			Open:      decimal.NewFromFloat(body.Open[i]),
			High:      decimal.NewFromFloat(body.High[i]),
			Low:       decimal.NewFromFloat(body.Low[i]),
			Close:     decimal.NewFromFloat(body.Close[i]),
			Volume:    vol,
			Source:    p.cfg.Name,
			FetchedAt: now,
		})
	}
	points = model.CleanPoints(points)
	if len(points) == 0 {
		return nil, model.NewError(model.ErrNoData, p.cfg.Name, symbol, nil)
	}
	return points, nil
}

type quoteResponse struct {
	Current   float64 `json:"c"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Open      float64 `json:"o"`
	PrevClose float64 `json:"pc"`
	Time      int64   `json:"t"`
}

func (p *Provider) FetchLatest(ctx context.Context, symbol string) (model.PricePoint, error) {
	if err := model.ValidateRequest(p.cfg.Name, symbol, time.Time{}, time.Now()); err != nil {
		return model.PricePoint{}, err
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	var body quoteResponse
	if err := p.get(ctx, symbol, "/api/v1/quote", params, &body); err != nil {
		return model.PricePoint{}, err
	}
	if body.Current == 0 && body.Time == 0 {
		return model.PricePoint{}, model.NewError(model.ErrNoData, p.cfg.Name, symbol, nil)
	}
	point := model.PricePoint{
		Symbol:    symbol,
		Date:      time.Unix(body.Time, 0).UTC(),
		Open:      decimal.NewFromFloat(body.Open),
		High:      decimal.NewFromFloat(body.High),
		Low:       decimal.NewFromFloat(body.Low),
		Close:     decimal.NewFromFloat(body.Current),
		Source:    p.cfg.Name,
		FetchedAt: time.Now().UTC(),
	}
	if !point.Valid() {
		return model.PricePoint{}, model.NewError(model.ErrDataQuality, p.cfg.Name, symbol, fmt.Errorf("quote fails OHLC invariants"))
	}
	return point, nil
}
