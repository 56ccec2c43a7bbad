package finnhub

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketdata/internal/httpx"
	"marketdata/internal/model"
	"marketdata/internal/provider"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIKey: "token123"}, httpx.New(5*time.Second))
}

func TestFetchPricesParsesCandles(t *testing.T) {
	var gotPath, gotToken string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("token")
		fmt.Fprint(w, `{
			"o": [100.5, 101.2],
			"h": [101.0, 102.5],
			"l": [99.5, 100.8],
			"c": [100.8, 102.0],
			"v": [500000, 600000],
			"t": [1767312000, 1767398400],
			"s": "ok"
		}`)
	})

	points, err := p.FetchPrices(context.Background(), "AAPL",
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/stock/candle", gotPath)
	assert.Equal(t, "token123", gotToken)
	require.Len(t, points, 2)
	assert.Equal(t, "100.8", points[0].Close.String())
	assert.EqualValues(t, 600000, points[1].Volume)
	assert.Equal(t, "finnhub", points[0].Source)
}

func TestFetchPricesNoData(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"s": "no_data"}`)
	})
	_, err := p.FetchPrices(context.Background(), "AAPL", time.Now().AddDate(0, 0, -5), time.Now())
	assert.Equal(t, model.ErrNoData, model.KindOf(err))
}

func TestFetchPricesBadStatus(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"s": "error"}`)
	})
	_, err := p.FetchPrices(context.Background(), "AAPL", time.Now().AddDate(0, 0, -5), time.Now())
	assert.Equal(t, model.ErrDataQuality, model.KindOf(err))
}

func TestFetchPricesMismatchedArrays(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"o": [100.5], "h": [101.0, 102.0], "l": [99.5], "c": [100.8], "v": [1], "t": [1767312000], "s": "ok"}`)
	})
	_, err := p.FetchPrices(context.Background(), "AAPL", time.Now().AddDate(0, 0, -5), time.Now())
	assert.Equal(t, model.ErrDataQuality, model.KindOf(err))
}

func TestFetchPricesDropsInvalidBars(t *testing.T) {
	// Second bar has low > high and must be discarded, not fail the batch.
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"o": [100.5, 101.0],
			"h": [101.0, 99.0],
			"l": [99.5, 103.0],
			"c": [100.8, 101.5],
			"v": [500000, 600000],
			"t": [1767312000, 1767398400],
			"s": "ok"
		}`)
	})
	points, err := p.FetchPrices(context.Background(), "AAPL", time.Now().AddDate(-1, 0, 0), time.Now())
	require.NoError(t, err)
	assert.Len(t, points, 1)
}

func TestFetchLatest(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"c": 102.0, "h": 102.5, "l": 100.8, "o": 101.2, "pc": 100.8, "t": 1767398400}`)
	})
	point, err := p.FetchLatest(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "102", point.Close.String())
	assert.Equal(t, time.Unix(1767398400, 0).UTC(), point.Date)
}

func TestFetchLatestUnknownSymbol(t *testing.T) {
	// Finnhub returns zeros for unknown symbols rather than an error.
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"c": 0, "h": 0, "l": 0, "o": 0, "pc": 0, "t": 0}`)
	})
	_, err := p.FetchLatest(context.Background(), "NOPE")
	assert.Equal(t, model.ErrNoData, model.KindOf(err))
}

func TestAvailabilityAndPriority(t *testing.T) {
	p := New(Config{}, httpx.New(time.Second))
	assert.False(t, p.Available())
	assert.Equal(t, provider.PriorityTertiary, p.Info().Priority)

	p = New(Config{APIKey: "k"}, httpx.New(time.Second))
	assert.True(t, p.Available())
}

func TestHTTPTooManyRequests(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := p.FetchPrices(context.Background(), "AAPL", time.Now().AddDate(0, 0, -5), time.Now())
	assert.Equal(t, model.ErrRateLimited, model.KindOf(err))
}
