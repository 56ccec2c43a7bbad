package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketdata/internal/httpx"
	"marketdata/internal/model"
	"marketdata/internal/provider"
	"marketdata/internal/provider/ratelimit"
)

// Config controls the Alpha Vantage provider. An API key is required;
// the free tier allows 25 requests per day.
type Config struct {
	Name      string
	BaseURL   string
	APIKey    string
	RateLimit ratelimit.Config
}

type Provider struct {
	cfg     Config
	client  *httpx.Client
	limiter *ratelimit.Limiter
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "alphavantage"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.alphavantage.co"
	}
	if cfg.RateLimit.PerDay == 0 {
		cfg.RateLimit.PerDay = 25
	}
	return &Provider{cfg: cfg, client: hc, limiter: ratelimit.New(cfg.RateLimit)}
}

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:              p.cfg.Name,
		Priority:          provider.PrioritySecondary,
		DailyRequestLimit: p.cfg.RateLimit.PerDay,
		CostPerRequest:    0,
		SupportedPeriods:  []string{"1mo", "3mo", "6mo", "1y", "2y", "5y"},
	}
}

func (p *Provider) Available() bool { return p.cfg.APIKey != "" }

func (p *Provider) Limiter() *ratelimit.Limiter { return p.limiter }

func (p *Provider) get(ctx context.Context, symbol string, params url.Values, out any) error {
	params.Set("apikey", p.cfg.APIKey)
	u := fmt.Sprintf("%s/query?%s", p.cfg.BaseURL, params.Encode())
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

// apiNotice carries the envelope fields Alpha Vantage uses instead of
// HTTP status codes: throttling and quota exhaustion come back as 200
// with a "Note" or "Information" body.
type apiNotice struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

func (n apiNotice) check(name, symbol string) error {
	if n.ErrorMessage != "" {
		return model.NewError(model.ErrInvalidSymbol, name, symbol, fmt.Errorf("%s", n.ErrorMessage))
	}
	if n.Note != "" || n.Information != "" {
		msg := n.Note
		if msg == "" {
			msg = n.Information
		}
		if strings.Contains(strings.ToLower(msg), "per day") || strings.Contains(strings.ToLower(msg), "premium") {
			return model.NewError(model.ErrQuotaExceeded, name, symbol, fmt.Errorf("%s", msg))
		}
		return model.NewRateLimitError(name, symbol, provider.DefaultRetryAfter)
	}
	return nil
}

type dailyBar struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

type dailyResponse struct {
	apiNotice
	Series map[string]dailyBar `json:"Time Series (Daily)"`
}

func (p *Provider) FetchPrices(ctx context.Context, symbol string, start, end time.Time) ([]model.PricePoint, error) {
	if err := model.ValidateRequest(p.cfg.Name, symbol, start, end); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", symbol)
	params.Set("outputsize", "full")
	var body dailyResponse
	if err := p.get(ctx, symbol, params, &body); err != nil {
		return nil, err
	}
	if err := body.check(p.cfg.Name, symbol); err != nil {
		return nil, err
	}
	if len(body.Series) == 0 {
		return nil, model.NewError(model.ErrNoData, p.cfg.Name, symbol, nil)
	}

	now := time.Now().UTC()
	// Series keys are bare dates; compare against midnight bounds so a
	// start carrying a time-of-day does not exclude its own day.
	startDay := truncateDay(start)
	endDay := truncateDay(end)
	points := make([]model.PricePoint, 0, len(body.Series))
	for date, bar := range body.Series {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			continue
		}
		if day.Before(startDay) || day.After(endDay) {
			continue
		}
		point, err := p.parseBar(symbol, day, bar, now)
		if err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	points = model.CleanPoints(points)
	if len(points) == 0 {
		return nil, model.NewError(model.ErrNoData, p.cfg.Name, symbol, nil)
	}
	return points, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (p *Provider) parseBar(symbol string, day time.Time, bar dailyBar, fetchedAt time.Time) (model.PricePoint, error) {
	open, err1 := decimal.NewFromString(bar.Open)
	high, err2 := decimal.NewFromString(bar.High)
	low, err3 := decimal.NewFromString(bar.Low)
	closing, err4 := decimal.NewFromString(bar.Close)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return model.PricePoint{}, model.NewError(model.ErrDecoding, p.cfg.Name, symbol,
			fmt.Errorf("bad bar for %s", day.Format("2006-01-02")))
	}
	vol := decimal.Zero
	if bar.Volume != "" {
		vol, _ = decimal.NewFromString(bar.Volume)
	}
	return model.PricePoint{
		Symbol:    symbol,
		Date:      day.UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closing,
		Volume:    vol.IntPart(),
		Source:    p.cfg.Name,
		FetchedAt: fetchedAt,
	}, nil
}

type quoteResponse struct {
	apiNotice
	Quote struct {
		Symbol  string `json:"01. symbol"`
		Open    string `json:"02. open"`
		High    string `json:"03. high"`
		Low     string `json:"04. low"`
		Price   string `json:"05. price"`
		Volume  string `json:"06. volume"`
		Trading string `json:"07. latest trading day"`
	} `json:"Global Quote"`
}

func (p *Provider) FetchLatest(ctx context.Context, symbol string) (model.PricePoint, error) {
	if err := model.ValidateRequest(p.cfg.Name, symbol, time.Time{}, time.Now()); err != nil {
		return model.PricePoint{}, err
	}
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	var body quoteResponse
	if err := p.get(ctx, symbol, params, &body); err != nil {
		return model.PricePoint{}, err
	}
	if err := body.check(p.cfg.Name, symbol); err != nil {
		return model.PricePoint{}, err
	}
	if body.Quote.Price == "" {
		return model.PricePoint{}, model.NewError(model.ErrNoData, p.cfg.Name, symbol, nil)
	}
	day, err := time.Parse("2006-01-02", body.Quote.Trading)
	if err != nil {
		day = time.Now().UTC()
	}
	bar := dailyBar{Open: body.Quote.Open, High: body.Quote.High, Low: body.Quote.Low, Close: body.Quote.Price, Volume: body.Quote.Volume}
	point, err := p.parseBar(symbol, day, bar, time.Now().UTC())
	if err != nil {
		return model.PricePoint{}, err
	}
	if !point.Valid() {
		return model.PricePoint{}, model.NewError(model.ErrDataQuality, p.cfg.Name, symbol, fmt.Errorf("quote fails OHLC invariants"))
	}
	return point, nil
}

type overviewResponse struct {
	apiNotice
	Name             string `json:"Name"`
	DividendPerShare string `json:"DividendPerShare"`
	DividendYield    string `json:"DividendYield"`
	ExDividendDate   string `json:"ExDividendDate"`
}

// FetchDividends returns declared figures only: the OVERVIEW endpoint
// reports an annual per-share amount and yield, not a payment history.
func (p *Provider) FetchDividends(ctx context.Context, symbol string) (model.DividendHistory, error) {
	if err := model.ValidateRequest(p.cfg.Name, symbol, time.Time{}, time.Now()); err != nil {
		return model.DividendHistory{}, err
	}
	params := url.Values{}
	params.Set("function", "OVERVIEW")
	params.Set("symbol", symbol)
	var body overviewResponse
	if err := p.get(ctx, symbol, params, &body); err != nil {
		return model.DividendHistory{}, err
	}
	if err := body.check(p.cfg.Name, symbol); err != nil {
		return model.DividendHistory{}, err
	}
	if body.Name == "" {
		return model.DividendHistory{}, model.NewError(model.ErrNoData, p.cfg.Name, symbol, nil)
	}

	hist := model.DividendHistory{Symbol: symbol, FullName: body.Name, Source: p.cfg.Name}
	if amt, err := decimal.NewFromString(body.DividendPerShare); err == nil && amt.IsPositive() {
		hist.DeclaredAnnualAmount = amt
	}
	if y, err := decimal.NewFromString(body.DividendYield); err == nil && y.IsPositive() {
		yield, _ := y.Mul(decimal.NewFromInt(100)).Float64()
		hist.YieldPercent = yield
	}
	if hist.DeclaredAnnualAmount.IsZero() && hist.YieldPercent == 0 {
		return model.DividendHistory{}, model.NewError(model.ErrNoData, p.cfg.Name, symbol, fmt.Errorf("no dividend fields"))
	}
	return hist, nil
}
