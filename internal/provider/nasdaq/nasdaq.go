package nasdaq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketdata/internal/httpx"
	"marketdata/internal/model"
	"marketdata/internal/provider"
	"marketdata/internal/provider/ratelimit"
)

// The quote API rejects non-browser user agents, so every request
// carries a desktop UA instead of the default client identity.
const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

// Config controls the Nasdaq quote provider. No credential is required.
type Config struct {
	Name      string
	BaseURL   string
	RateLimit ratelimit.Config
}

// Provider fetches quotes, historical rows and dividend summaries from
// the Nasdaq quote API. Its dividend endpoint reports both a payment
// table and declared annualized figures, which makes it the fallback
// dividend source behind Yahoo.
type Provider struct {
	cfg     Config
	client  *httpx.Client
	limiter *ratelimit.Limiter
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "nasdaq"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.nasdaq.com"
	}
	return &Provider{cfg: cfg, client: hc, limiter: ratelimit.New(cfg.RateLimit)}
}

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:              p.cfg.Name,
		Priority:          provider.PriorityQuaternary,
		DailyRequestLimit: p.cfg.RateLimit.PerDay,
		CostPerRequest:    0,
		SupportedPeriods:  []string{"1mo", "3mo", "6mo", "1y", "2y", "5y"},
	}
}

func (p *Provider) Available() bool { return true }

func (p *Provider) Limiter() *ratelimit.Limiter { return p.limiter }

// envelope wraps every quote API response; errors arrive as HTTP 200
// with a non-200 rCode and a null data field.
type envelope struct {
	Data   json.RawMessage `json:"data"`
	Status struct {
		RCode int `json:"rCode"`
	} `json:"status"`
	Message string `json:"message"`
}

func (p *Provider) get(ctx context.Context, symbol, endpoint string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("assetclass", "stocks")
	u := fmt.Sprintf("%s/api/quote/%s/%s?%s",
		p.cfg.BaseURL, url.PathEscape(strings.ToUpper(symbol)), endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.NewError(model.ErrNetwork, p.cfg.Name, symbol, err)
	}
	req.Header.Set("User-Agent", browserUA)
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

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return model.NewError(model.ErrDecoding, p.cfg.Name, symbol, err)
	}
	if env.Status.RCode != http.StatusOK || len(env.Data) == 0 || string(env.Data) == "null" {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("rCode %d", env.Status.RCode)
		}
		return model.NewError(model.ErrInvalidSymbol, p.cfg.Name, symbol, fmt.Errorf("%s", msg))
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return model.NewError(model.ErrDecoding, p.cfg.Name, symbol, err)
	}
	return nil
}

// parseMoney strips the "$" prefix and thousands separators the API
// embeds in every figure. "N/A" and empty strings report no value.
func parseMoney(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || strings.EqualFold(s, "N/A") {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func parsePercent(s string) (float64, bool) {
	d, ok := parseMoney(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if !ok {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

// Row dates use the US short form.
const rowDateLayout = "01/02/2006"

type historicalData struct {
	TradesTable struct {
		Rows []struct {
			Date   string `json:"date"`
			Open   string `json:"open"`
			High   string `json:"high"`
			Low    string `json:"low"`
			Close  string `json:"close"`
			Volume string `json:"volume"`
		} `json:"rows"`
	} `json:"tradesTable"`
}

func (p *Provider) FetchPrices(ctx context.Context, symbol string, start, end time.Time) ([]model.PricePoint, error) {
	if err := model.ValidateRequest(p.cfg.Name, symbol, start, end); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("fromdate", start.UTC().Format("2006-01-02"))
	params.Set("todate", end.UTC().Format("2006-01-02"))
	params.Set("limit", "9999")
	var body historicalData
	if err := p.get(ctx, symbol, "historical", params, &body); err != nil {
		return nil, err
	}
	if len(body.TradesTable.Rows) == 0 {
		return nil, model.NewError(model.ErrNoData, p.cfg.Name, symbol, nil)
	}

	now := time.Now().UTC()
	points := make([]model.PricePoint, 0, len(body.TradesTable.Rows))
	for _, row := range body.TradesTable.Rows {
		date, err := time.Parse(rowDateLayout, row.Date)
		if err != nil {
			continue
		}
		open, ok1 := parseMoney(row.Open)
		high, ok2 := parseMoney(row.High)
		low, ok3 := parseMoney(row.Low)
		closing, ok4 := parseMoney(row.Close)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}
		var vol int64
		if v, ok := parseMoney(row.Volume); ok {
			vol = v.IntPart()
		}
		points = append(points, model.PricePoint{
			Symbol:    symbol,
			Date:      date.UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closing,
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

type infoData struct {
	Symbol      string `json:"symbol"`
	CompanyName string `json:"companyName"`
	PrimaryData struct {
		LastSalePrice string `json:"lastSalePrice"`
		Volume        string `json:"volume"`
	} `json:"primaryData"`
}

// FetchLatest serves the live quote. The info endpoint carries only the
// last sale price, so the bar collapses to a single price level.
func (p *Provider) FetchLatest(ctx context.Context, symbol string) (model.PricePoint, error) {
	if err := model.ValidateRequest(p.cfg.Name, symbol, time.Time{}, time.Now()); err != nil {
		return model.PricePoint{}, err
	}
	var body infoData
	if err := p.get(ctx, symbol, "info", nil, &body); err != nil {
		return model.PricePoint{}, err
	}
	price, ok := parseMoney(body.PrimaryData.LastSalePrice)
	if !ok || !price.IsPositive() {
		return model.PricePoint{}, model.NewError(model.ErrNoData, p.cfg.Name, symbol, nil)
	}
	var vol int64
	if v, ok := parseMoney(body.PrimaryData.Volume); ok {
		vol = v.IntPart()
	}
	return model.PricePoint{
		Symbol:    symbol,
		Date:      time.Now().UTC(),
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Volume:    vol,
		Source:    p.cfg.Name,
		FetchedAt: time.Now().UTC(),
	}, nil
}

type dividendData struct {
	Yield              string `json:"yield"`
	AnnualizedDividend string `json:"annualizedDividend"`
	ExDividendDate     string `json:"exDividendDate"`
	Dividends          struct {
		Rows []struct {
			ExOrEffDate string `json:"exOrEffDate"`
			Amount      string `json:"amount"`
			PaymentDate string `json:"paymentDate"`
		} `json:"rows"`
	} `json:"dividends"`
}

func (p *Provider) FetchDividends(ctx context.Context, symbol string) (model.DividendHistory, error) {
	if err := model.ValidateRequest(p.cfg.Name, symbol, time.Time{}, time.Now()); err != nil {
		return model.DividendHistory{}, err
	}
	var body dividendData
	if err := p.get(ctx, symbol, "dividends", nil, &body); err != nil {
		return model.DividendHistory{}, err
	}

	hist := model.DividendHistory{Symbol: symbol, Source: p.cfg.Name}
	for _, row := range body.Dividends.Rows {
		exDate, err := time.Parse(rowDateLayout, row.ExOrEffDate)
		if err != nil {
			continue
		}
		amount, ok := parseMoney(row.Amount)
		if !ok || !amount.IsPositive() {
			continue
		}
		hist.Payments = append(hist.Payments, model.DividendPayment{
			ExDate: exDate.UTC(),
			Amount: amount,
		})
	}
	sort.Slice(hist.Payments, func(i, j int) bool {
		return hist.Payments[i].ExDate.Before(hist.Payments[j].ExDate)
	})

	if amt, ok := parseMoney(body.AnnualizedDividend); ok && amt.IsPositive() {
		hist.DeclaredAnnualAmount = amt
	}
	if y, ok := parsePercent(body.Yield); ok && y > 0 {
		hist.YieldPercent = y
	}
	if len(hist.Payments) == 0 && hist.DeclaredAnnualAmount.IsZero() {
		return model.DividendHistory{}, model.NewError(model.ErrNoData, p.cfg.Name, symbol,
			fmt.Errorf("no dividend data"))
	}
	return hist, nil
}
