package main

import (
	"compress/gzip"
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"marketdata/internal/api"
	"marketdata/internal/cache"
	"marketdata/internal/config"
	"marketdata/internal/httpx"
	"marketdata/internal/provider"
	"marketdata/internal/provider/alphavantage"
	"marketdata/internal/provider/finnhub"
	"marketdata/internal/provider/nasdaq"
	"marketdata/internal/provider/ratelimit"
	"marketdata/internal/provider/yahoo"
	"marketdata/internal/retention"
	"marketdata/internal/service"
	"marketdata/internal/store"
	"marketdata/internal/store/postgres"
	"marketdata/internal/store/redis"
)

func main() {
	cfgPath := os.Getenv("CONFIG_FILE")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.AlphaVantage.Enabled && cfg.AlphaVantage.APIKey == "" {
		log.Println("[WARN] alphavantage.enabled=true but ALPHAVANTAGE_API_KEY not set")
	}
	if cfg.Finnhub.Enabled && cfg.Finnhub.APIKey == "" {
		log.Println("[WARN] finnhub.enabled=true but FINNHUB_API_KEY not set")
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)

	providers := buildProviders(cfg, httpClient)
	if len(providers) == 0 {
		log.Fatal("no providers enabled")
	}

	diskPath := ""
	if cfg.Cache.DiskEnabled {
		diskPath = cfg.Cache.DiskPath
	}
	c, err := cache.New(
		time.Duration(cfg.Cache.TTLSeconds)*time.Second,
		cfg.Cache.MaxEntries,
		diskPath,
		time.Duration(cfg.Cache.DiskTTLSeconds)*time.Second,
	)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer c.Close()

	st, err := buildStore(cfg.Store)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	if st != nil {
		defer st.Close()
	}

	svc := service.New(service.Config{
		MaxRetries:       cfg.Fetch.MaxRetries,
		RetryBaseDelay:   time.Duration(cfg.Fetch.RetryBaseDelaySec * float64(time.Second)),
		ProviderMaxWait:  time.Duration(cfg.Fetch.ProviderMaxWaitSec) * time.Second,
		BatchConcurrency: int64(cfg.Fetch.BatchConcurrency),
		ProbeSymbol:      cfg.Fetch.ProbeSymbol,
	}, providers, c, st)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := retention.New(ctx, retention.Config{
		Spec:          cfg.Retention.CronSpec,
		RetentionDays: cfg.Retention.Days,
	}, c, st)
	if err := sweeper.Register(); err != nil {
		log.Fatalf("retention: %v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	router := api.SetupRoutes(api.NewHandler(svc))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withGzip(recoverPanic(limitBody(router))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("[INFO] server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func buildProviders(cfg config.Config, hc *httpx.Client) []provider.PriceProvider {
	var providers []provider.PriceProvider
	if cfg.Yahoo.Enabled {
		providers = append(providers, yahoo.New(yahoo.Config{
			Name:      "Yahoo",
			BaseURL:   cfg.Yahoo.BaseURL,
			RateLimit: limiterConfig(cfg.Yahoo.RateLimit),
		}, hc))
	}
	if cfg.AlphaVantage.Enabled {
		providers = append(providers, alphavantage.New(alphavantage.Config{
			Name:      "AlphaVantage",
			BaseURL:   cfg.AlphaVantage.BaseURL,
			APIKey:    cfg.AlphaVantage.APIKey,
			RateLimit: limiterConfig(cfg.AlphaVantage.RateLimit),
		}, hc))
	}
	if cfg.Finnhub.Enabled {
		providers = append(providers, finnhub.New(finnhub.Config{
			Name:      "Finnhub",
			BaseURL:   cfg.Finnhub.BaseURL,
			APIKey:    cfg.Finnhub.APIKey,
			RateLimit: limiterConfig(cfg.Finnhub.RateLimit),
		}, hc))
	}
	if cfg.Nasdaq.Enabled {
		providers = append(providers, nasdaq.New(nasdaq.Config{
			Name:      "Nasdaq",
			BaseURL:   cfg.Nasdaq.BaseURL,
			RateLimit: limiterConfig(cfg.Nasdaq.RateLimit),
		}, hc))
	}
	return providers
}

func limiterConfig(rl config.RateLimit) ratelimit.Config {
	return ratelimit.Config{
		PerSecond: rl.PerSecond,
		PerMinute: rl.PerMinute,
		PerHour:   rl.PerHour,
		PerDay:    rl.PerDay,
	}
}

func buildStore(cfg config.Store) (store.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.New(cfg.PostgresURL)
	case "redis":
		return redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case "":
		return nil, nil
	default:
		log.Printf("[WARN] unknown store driver %q, durable store disabled", cfg.Driver)
		return nil, nil
	}
}

// withGzip compresses responses when the client supports gzip.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		next.ServeHTTP(gzipResponseWriter{ResponseWriter: w, Writer: gz}, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
	const maxBody = 1 << 20 // 1MB
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[ERROR] panic serving %s: %v", r.URL.Path, rec)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
