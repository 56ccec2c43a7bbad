package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"marketdata/internal/httpx"
	"marketdata/internal/model"
	"marketdata/internal/provider"
	"marketdata/internal/provider/ratelimit"
)

// Config controls the Yahoo Finance chart provider.
type Config struct {
	Name      string
	BaseURL   string
	SymbolMap map[string]string // maps internal symbols to Yahoo tickers
	RateLimit ratelimit.Config
}

// Provider fetches daily bars and dividend events from the Yahoo chart
// API. No credential is required, which makes it the primary provider.
type Provider struct {
	cfg     Config
	client  *httpx.Client
	limiter *ratelimit.Limiter
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "yahoo"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://query1.finance.yahoo.com"
	}
	return &Provider{cfg: cfg, client: hc, limiter: ratelimit.New(cfg.RateLimit)}
}

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:              p.cfg.Name,
		Priority:          provider.PriorityPrimary,
		DailyRequestLimit: p.cfg.RateLimit.PerDay,
		CostPerRequest:    0,
		SupportedPeriods:  []string{"1mo", "3mo", "6mo", "1y", "2y", "5y"},
	}
}

func (p *Provider) Available() bool { return true }

func (p *Provider) Limiter() *ratelimit.Limiter { return p.limiter }

func (p *Provider) ticker(symbol string) string {
	if mapped, ok := p.cfg.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// chartResponse is the Yahoo v8 chart payload. Bars arrive as parallel
// arrays with nulls on holidays, so every slot is a pointer.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol   string  `json:"symbol"`
				LongName string  `json:"longName"`
				Price    float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
			Events struct {
				Dividends map[string]struct {
					Amount float64 `json:"amount"`
					Date   int64   `json:"date"`
				} `json:"dividends"`
			} `json:"events"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (p *Provider) fetchChart(ctx context.Context, symbol string, start, end time.Time, withDividends bool) (*chartResponse, error) {
	q := url.Values{}
	q.Set("period1", fmt.Sprintf("%d", start.Unix()))
	q.Set("period2", fmt.Sprintf("%d", end.Unix()))
	q.Set("interval", "1d")
	if withDividends {
		q.Set("events", "div")
	}
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", p.cfg.BaseURL, url.PathEscape(p.ticker(symbol)), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, model.NewError(model.ErrNetwork, p.cfg.Name, symbol, err)
	}
	if !p.limiter.TryAcquire() {
		return nil, model.NewRateLimitError(p.cfg.Name, symbol, p.limiter.NextDelay())
	}
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return nil, model.NewError(model.ErrNetwork, p.cfg.Name, symbol, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 2<<10))
		return nil, provider.StatusError(p.cfg.Name, symbol, resp.StatusCode, resp.Header.Get("Retry-After"))
	}

	var chart chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, model.NewError(model.ErrDecoding, p.cfg.Name, symbol, err)
	}
	if chart.Chart.Error != nil {
		if chart.Chart.Error.Code == "Not Found" {
			return nil, model.NewError(model.ErrInvalidSymbol, p.cfg.Name, symbol, fmt.Errorf("%s", chart.Chart.Error.Description))
		}
		return nil, model.NewError(model.ErrNoData, p.cfg.Name, symbol, fmt.Errorf("%s", chart.Chart.Error.Description))
	}
	if len(chart.Chart.Result) == 0 {
		return nil, model.NewError(model.ErrNoData, p.cfg.Name, symbol, nil)
	}
	return &chart, nil
}

func (p *Provider) FetchPrices(ctx context.Context, symbol string, start, end time.Time) ([]model.PricePoint, error) {
	if err := model.ValidateRequest(p.cfg.Name, symbol, start, end); err != nil {
		return nil, err
	}
	chart, err := p.fetchChart(ctx, symbol, start, end, false)
	if err != nil {
		return nil, err
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, model.NewError(model.ErrNoData, p.cfg.Name, symbol, nil)
	}
	quote := result.Indicators.Quote[0]
	if len(quote.Open) != len(result.Timestamp) || len(quote.Close) != len(result.Timestamp) {
		return nil, model.NewError(model.ErrDataQuality, p.cfg.Name, symbol,
			fmt.Errorf("timestamp/quote length mismatch: %d vs %d", len(result.Timestamp), len(quote.Open)))
	}

	now := time.Now().UTC()
	points := make([]model.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, h, l, c := quote.Open[i], quote.High[i], quote.Low[i], quote.Close[i]
		if o == nil || h == nil || l == nil || c == nil {
			continue // null bar (holiday)
		}
		var vol int64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			vol = *quote.Volume[i]
		}
		points = append(points, model.PricePoint{
			Symbol:    symbol,
			Date:      time.Unix(ts, 0).UTC(),
			Open:      decimal.NewFromFloat(*o),
			High:      decimal.NewFromFloat(*h),
			Low:       decimal.NewFromFloat(*l),
			Close:     decimal.NewFromFloat(*c),
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

func (p *Provider) FetchLatest(ctx context.Context, symbol string) (model.PricePoint, error) {
	end := time.Now().UTC()
	points, err := p.FetchPrices(ctx, symbol, end.AddDate(0, 0, -7), end)
	if err != nil {
		return model.PricePoint{}, err
	}
	return points[len(points)-1], nil
}

func (p *Provider) FetchDividends(ctx context.Context, symbol string) (model.DividendHistory, error) {
	if err := model.ValidateRequest(p.cfg.Name, symbol, time.Time{}, time.Now()); err != nil {
		return model.DividendHistory{}, err
	}
	end := time.Now().UTC()
	chart, err := p.fetchChart(ctx, symbol, end.AddDate(-2, 0, 0), end, true)
	if err != nil {
		return model.DividendHistory{}, err
	}

	result := chart.Chart.Result[0]
	payments := make([]model.DividendPayment, 0, len(result.Events.Dividends))
	for _, d := range result.Events.Dividends {
		if d.Amount <= 0 || d.Date <= 0 {
			continue
		}
		payments = append(payments, model.DividendPayment{
			ExDate: time.Unix(d.Date, 0).UTC(),
			Amount: decimal.NewFromFloat(d.Amount),
		})
	}
	if len(payments) == 0 {
		return model.DividendHistory{}, model.NewError(model.ErrNoData, p.cfg.Name, symbol, fmt.Errorf("no dividend events"))
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].ExDate.Before(payments[j].ExDate) })

	hist := model.DividendHistory{
		Symbol:   symbol,
		FullName: result.Meta.LongName,
		Payments: payments,
		Source:   p.cfg.Name,
	}
	if result.Meta.Price > 0 {
		// Trailing yield from the last year of payments.
		cutoff := end.AddDate(-1, 0, 0)
		total := decimal.Zero
		for _, pay := range payments {
			if pay.ExDate.After(cutoff) {
				total = total.Add(pay.Amount)
			}
		}
		yield, _ := total.Div(decimal.NewFromFloat(result.Meta.Price)).Mul(decimal.NewFromInt(100)).Float64()
		hist.YieldPercent = yield
	}
	return hist, nil
}
