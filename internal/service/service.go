// Package service orchestrates price and dividend retrieval across the
// cache tiers, the durable store, and the priority-ordered provider
// chain, with per-provider retry, backoff and circuit-breaking.
package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"marketdata/internal/cache"
	"marketdata/internal/model"
	"marketdata/internal/provider"
	"marketdata/internal/store"
)

// Config carries the adapter-independent knobs applied uniformly to all
// providers.
type Config struct {
	MaxRetries       int           // attempts per provider on transient errors
	RetryBaseDelay   time.Duration // backoff = base delay x attempt number
	ProviderMaxWait  time.Duration // max time to wait on a saturated rate limiter
	BatchConcurrency int64         // permits for concurrent symbol fetches
	ProbeSymbol      string        // symbol used by health-check probes
}

func (c *Config) defaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 2 * time.Second
	}
	if c.ProviderMaxWait <= 0 {
		c.ProviderMaxWait = 10 * time.Second
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = 3
	}
	if c.ProbeSymbol == "" {
		c.ProbeSymbol = "AAPL"
	}
}

// Service is the single entry point for the excluded layers: every
// fetch walks cache, durable store, then the fallback chain.
type Service struct {
	cfg       Config
	providers []provider.PriceProvider // ascending priority order
	cache     *cache.Cache
	store     store.Store // nil when no durable store is configured
	stats     *statsTracker
	inflight  *inflight

	// sleep is swapped in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, providers []provider.PriceProvider, c *cache.Cache, st store.Store) *Service {
	cfg.defaults()
	sorted := make([]provider.PriceProvider, len(providers))
	copy(sorted, providers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Info().Priority < sorted[j].Info().Priority
	})
	return &Service{
		cfg:       cfg,
		providers: sorted,
		cache:     c,
		store:     st,
		stats:     newStatsTracker(),
		inflight:  newInflight(),
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func rangeKey(symbol string, start, end time.Time) string {
	return fmt.Sprintf("prices|%s|%s|%s", symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))
}

// FetchHistorical returns daily bars for [start, end], walking
// cache -> durable store -> providers. forceRefresh skips the read side
// of both cache tiers and the store.
func (s *Service) FetchHistorical(ctx context.Context, symbol string, start, end time.Time, forceRefresh bool) ([]model.PricePoint, error) {
	if err := model.ValidateRequest("", symbol, start, end); err != nil {
		return nil, err
	}
	key := rangeKey(symbol, start, end)
	if !s.inflight.begin(key) {
		return nil, model.ErrFetchInProgress
	}
	defer s.inflight.end(key)

	if !forceRefresh {
		if points, ok := s.cache.GetPrices(symbol, start, end); ok {
			return points, nil
		}
		if s.store != nil {
			points, err := s.store.Query(ctx, symbol, start, end)
			if err != nil {
				log.Printf("[WARN] store query failed for %s: %v", symbol, err)
			} else if len(points) > 0 {
				s.cache.SetPrices(symbol, start, end, points)
				return points, nil
			}
		}
	}

	points, err := s.fetchFromProviders(ctx, symbol, start, end)
	if err == nil {
		s.persist(ctx, points)
		s.cache.SetPrices(symbol, start, end, points)
		return points, nil
	}

	if stale, ok := s.cache.StalePrices(symbol); ok {
		log.Printf("[WARN] all providers failed for %s, serving stale cache: %v", symbol, err)
		return stale, nil
	}
	return nil, err
}

// fetchFromProviders walks the chain in priority order with retry and
// backoff per provider. Returns the last observed error on exhaustion.
func (s *Service) fetchFromProviders(ctx context.Context, symbol string, start, end time.Time) ([]model.PricePoint, error) {
	var lastErr error
	for _, p := range s.providers {
		name := p.Info().Name
		if !p.Available() {
			continue
		}
		if s.stats.circuitOpen(name) {
			log.Printf("[INFO] circuit open for %s, skipping", name)
			continue
		}
		points, err := callWithRetry(ctx, s, p, symbol, func(ctx context.Context) ([]model.PricePoint, error) {
			return p.FetchPrices(ctx, symbol, start, end)
		})
		if err == nil {
			return points, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = model.NewError(model.ErrProviderUnavailable, "", symbol, fmt.Errorf("no provider available"))
	}
	return nil, lastErr
}

// callWithRetry gates one provider call on its rate limiter, records
// stats for every attempt, and retries transient failures up to
// MaxRetries with exponential backoff (or the provider's retry-after).
func callWithRetry[T any](ctx context.Context, s *Service, p provider.PriceProvider, symbol string, call func(context.Context) (T, error)) (T, error) {
	var zero T
	name := p.Info().Name
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		if err := p.Limiter().Wait(ctx, s.cfg.ProviderMaxWait); err != nil {
			log.Printf("[INFO] rate limiter wait exceeded for %s (%s): %v", name, symbol, err)
			if lastErr == nil {
				lastErr = model.NewRateLimitError(name, symbol, p.Limiter().NextDelay())
			}
			return zero, lastErr
		}

		startedAt := time.Now()
		result, err := call(ctx)
		elapsed := time.Since(startedAt)
		s.stats.record(name, elapsed, err)
		if err == nil {
			log.Printf("[INFO] %s served %s in %s", name, symbol, elapsed.Round(time.Millisecond))
			return result, nil
		}
		log.Printf("[WARN] %s failed for %s after %s: %v", name, symbol, elapsed.Round(time.Millisecond), err)
		lastErr = err

		if !model.Retryable(err) || attempt == s.cfg.MaxRetries {
			break
		}
		delay := s.cfg.RetryBaseDelay * time.Duration(attempt)
		if hint := model.RetryAfterHint(err); hint > 0 {
			delay = hint
		}
		if err := s.sleep(ctx, delay); err != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

func (s *Service) persist(ctx context.Context, points []model.PricePoint) {
	if s.store == nil || len(points) == 0 {
		return
	}
	if err := s.store.Upsert(ctx, points); err != nil {
		// A persistence failure never fails the fetch; the data is
		// already in hand and cached.
		log.Printf("[WARN] store upsert failed for %s: %v", points[0].Symbol, err)
	}
}

// FetchMultiple fans out one fetch per symbol behind a bounded permit
// gate. Failures are isolated: a symbol that fails is simply absent from
// the result map.
func (s *Service) FetchMultiple(ctx context.Context, symbols []string, start, end time.Time) map[string][]model.PricePoint {
	sem := semaphore.NewWeighted(s.cfg.BatchConcurrency)
	var (
		mu      sync.Mutex
		results = make(map[string][]model.PricePoint, len(symbols))
		wg      sync.WaitGroup
	)
	for _, symbol := range symbols {
		if err := sem.Acquire(ctx, 1); err != nil {
			break // batch deadline exceeded; pending fetches are abandoned
		}
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer sem.Release(1)
			points, err := s.FetchHistorical(ctx, symbol, start, end, false)
			if err != nil {
				log.Printf("[WARN] batch fetch failed for %s: %v", symbol, err)
				return
			}
			mu.Lock()
			results[symbol] = points
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()
	return results
}

// FetchLatest returns the most recent bar, walking the provider chain
// directly (no range cache applies to a moving target).
func (s *Service) FetchLatest(ctx context.Context, symbol string) (model.PricePoint, error) {
	if err := model.ValidateRequest("", symbol, time.Time{}, time.Now()); err != nil {
		return model.PricePoint{}, err
	}
	var lastErr error
	for _, p := range s.providers {
		name := p.Info().Name
		if !p.Available() || s.stats.circuitOpen(name) {
			continue
		}
		point, err := callWithRetry(ctx, s, p, symbol, func(ctx context.Context) (model.PricePoint, error) {
			return p.FetchLatest(ctx, symbol)
		})
		if err == nil {
			return point, nil
		}
		if ctx.Err() != nil {
			return model.PricePoint{}, ctx.Err()
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = model.NewError(model.ErrProviderUnavailable, "", symbol, fmt.Errorf("no provider available"))
	}
	return model.PricePoint{}, lastErr
}

// ClearCache drops cached entries for one symbol, or all when symbol
// is "".
func (s *Service) ClearCache(symbol string) {
	s.cache.Clear(symbol)
}

// DeleteHistory removes a symbol's bars from the durable store along
// with its cache entries.
func (s *Service) DeleteHistory(ctx context.Context, symbol string) error {
	s.cache.Clear(symbol)
	if s.store == nil {
		return nil
	}
	if err := s.store.DeleteAll(ctx, symbol); err != nil {
		return model.NewError(model.ErrPersistence, "", symbol, err)
	}
	return nil
}

func (s *Service) CacheStats() model.CacheStats {
	return s.cache.Stats()
}

// ProviderStatus reports chain order, availability, circuit state and
// rolling stats for every configured provider.
func (s *Service) ProviderStatus() []model.ProviderStatus {
	out := make([]model.ProviderStatus, 0, len(s.providers))
	for _, p := range s.providers {
		info := p.Info()
		out = append(out, model.ProviderStatus{
			Name:           info.Name,
			Priority:       info.Priority,
			Available:      p.Available(),
			CircuitOpen:    s.stats.circuitOpen(info.Name),
			Stats:          s.stats.snapshot(info.Name),
			NextRequestIn:  p.Limiter().NextDelay(),
			DailyLimit:     info.DailyRequestLimit,
			CostPerRequest: info.CostPerRequest,
		})
	}
	return out
}

// HealthCheck probes every available provider with a lightweight latest
// fetch. Probe outcomes feed the same rolling stats, which gives a
// tripped circuit its path back to closed.
func (s *Service) HealthCheck(ctx context.Context) model.HealthReport {
	report := model.HealthReport{CheckedAt: time.Now().UTC(), CacheStats: s.cache.Stats()}
	for _, p := range s.providers {
		if !p.Available() {
			continue
		}
		name := p.Info().Name
		startedAt := time.Now()
		_, err := p.FetchLatest(ctx, s.cfg.ProbeSymbol)
		s.stats.record(name, time.Since(startedAt), err)
		if err == nil {
			report.Healthy = true
		}
	}
	if s.store != nil {
		report.StoreOnline = s.store.Ping(ctx) == nil
	}
	report.Providers = s.ProviderStatus()
	return report
}
