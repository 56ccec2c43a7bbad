// Command fetch performs a one-shot retrieval of daily bars for one or
// more symbols and prints the result as JSON. Useful for smoke-testing
// provider credentials and connectivity without running the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"marketdata/internal/cache"
	"marketdata/internal/config"
	"marketdata/internal/httpx"
	"marketdata/internal/model"
	"marketdata/internal/provider"
	"marketdata/internal/provider/alphavantage"
	"marketdata/internal/provider/finnhub"
	"marketdata/internal/provider/nasdaq"
	"marketdata/internal/provider/ratelimit"
	"marketdata/internal/provider/yahoo"
	"marketdata/internal/service"
)

func main() {
	var (
		symbolsFlag = flag.String("symbols", "", "comma-separated symbols, e.g. AAPL,MSFT")
		periodFlag  = flag.String("period", "1y", "range shorthand: 1mo 3mo 6mo 1y 2y 5y")
		configFlag  = flag.String("config", "", "path to config.json")
		timeoutFlag = flag.Duration("timeout", 60*time.Second, "overall deadline")
		latestFlag  = flag.Bool("latest", false, "fetch only the latest bar per symbol")
		divFlag     = flag.Bool("dividends", false, "fetch the distribution record instead of bars")
	)
	flag.Parse()

	symbols := splitCSV(*symbolsFlag)
	if len(symbols) == 0 {
		log.Fatal("usage: fetch -symbols AAPL,MSFT [-period 1y] [-latest] [-dividends]")
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	hc := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)

	var providers []provider.PriceProvider
	if cfg.Yahoo.Enabled {
		providers = append(providers, yahoo.New(yahoo.Config{
			Name:    "Yahoo",
			BaseURL: cfg.Yahoo.BaseURL,
			RateLimit: ratelimit.Config{
				PerSecond: cfg.Yahoo.RateLimit.PerSecond,
				PerMinute: cfg.Yahoo.RateLimit.PerMinute,
				PerHour:   cfg.Yahoo.RateLimit.PerHour,
				PerDay:    cfg.Yahoo.RateLimit.PerDay,
			},
		}, hc))
	}
	if cfg.AlphaVantage.Enabled && cfg.AlphaVantage.APIKey != "" {
		providers = append(providers, alphavantage.New(alphavantage.Config{
			Name:    "AlphaVantage",
			BaseURL: cfg.AlphaVantage.BaseURL,
			APIKey:  cfg.AlphaVantage.APIKey,
			RateLimit: ratelimit.Config{
				PerMinute: cfg.AlphaVantage.RateLimit.PerMinute,
				PerDay:    cfg.AlphaVantage.RateLimit.PerDay,
			},
		}, hc))
	}
	if cfg.Finnhub.Enabled && cfg.Finnhub.APIKey != "" {
		providers = append(providers, finnhub.New(finnhub.Config{
			Name:    "Finnhub",
			BaseURL: cfg.Finnhub.BaseURL,
			APIKey:  cfg.Finnhub.APIKey,
			RateLimit: ratelimit.Config{
				PerSecond: cfg.Finnhub.RateLimit.PerSecond,
				PerMinute: cfg.Finnhub.RateLimit.PerMinute,
			},
		}, hc))
	}
	if cfg.Nasdaq.Enabled {
		providers = append(providers, nasdaq.New(nasdaq.Config{
			Name:    "Nasdaq",
			BaseURL: cfg.Nasdaq.BaseURL,
			RateLimit: ratelimit.Config{
				PerSecond: cfg.Nasdaq.RateLimit.PerSecond,
				PerMinute: cfg.Nasdaq.RateLimit.PerMinute,
			},
		}, hc))
	}
	if len(providers) == 0 {
		log.Fatal("no providers enabled")
	}

	// One-shot runs use a memory-only cache.
	c, err := cache.New(time.Duration(cfg.Cache.TTLSeconds)*time.Second, cfg.Cache.MaxEntries, "", 0)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	svc := service.New(service.Config{
		MaxRetries:       cfg.Fetch.MaxRetries,
		RetryBaseDelay:   time.Duration(cfg.Fetch.RetryBaseDelaySec * float64(time.Second)),
		ProviderMaxWait:  time.Duration(cfg.Fetch.ProviderMaxWaitSec) * time.Second,
		BatchConcurrency: int64(cfg.Fetch.BatchConcurrency),
	}, providers, c, nil)

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	out := make(map[string]any, len(symbols))
	switch {
	case *divFlag:
		for _, symbol := range symbols {
			rec, err := svc.FetchDistribution(ctx, symbol, false)
			if err != nil {
				log.Printf("[WARN] %s: %v", symbol, err)
				continue
			}
			out[symbol] = rec
		}
	case *latestFlag:
		for _, symbol := range symbols {
			point, err := svc.FetchLatest(ctx, symbol)
			if err != nil {
				log.Printf("[WARN] %s: %v", symbol, err)
				continue
			}
			out[symbol] = point
		}
	default:
		start, end, err := model.ParsePeriod(*periodFlag)
		if err != nil {
			log.Fatalf("period: %v", err)
		}
		for symbol, points := range svc.FetchMultiple(ctx, symbols, start, end) {
			out[symbol] = points
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode: %v", err)
	}
	if len(out) == 0 {
		os.Exit(1)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
