package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"marketdata/internal/dividend"
	"marketdata/internal/model"
	"marketdata/internal/provider"
)

// FetchDistribution returns the normalized distribution record for a
// symbol, walking the same cache -> provider-chain skeleton as prices
// but restricted to dividend-capable providers.
func (s *Service) FetchDistribution(ctx context.Context, symbol string, forceRefresh bool) (model.DistributionRecord, error) {
	if err := model.ValidateRequest("", symbol, time.Time{}, time.Now()); err != nil {
		return model.DistributionRecord{}, err
	}
	key := "dividend|" + symbol
	if !s.inflight.begin(key) {
		return model.DistributionRecord{}, model.ErrFetchInProgress
	}
	defer s.inflight.end(key)

	if !forceRefresh {
		if rec, ok := s.cache.GetDividend(symbol); ok {
			return rec, nil
		}
	}

	var lastErr error
	for _, p := range s.providers {
		dp, ok := p.(provider.DividendProvider)
		if !ok {
			continue
		}
		name := p.Info().Name
		if !p.Available() || s.stats.circuitOpen(name) {
			continue
		}
		hist, err := callWithRetry(ctx, s, p, symbol, func(ctx context.Context) (model.DividendHistory, error) {
			return dp.FetchDividends(ctx, symbol)
		})
		if err == nil {
			rec := dividend.Build(hist, time.Now().UTC())
			s.cache.SetDividend(symbol, rec)
			return rec, nil
		}
		if ctx.Err() != nil {
			return model.DistributionRecord{}, ctx.Err()
		}
		lastErr = err
	}

	if rec, ok := s.cache.StaleDividend(symbol); ok {
		log.Printf("[WARN] all dividend providers failed for %s, serving stale record: %v", symbol, lastErr)
		return rec, nil
	}
	if lastErr == nil {
		lastErr = model.NewError(model.ErrProviderUnavailable, "", symbol, fmt.Errorf("no dividend-capable provider available"))
	}
	return model.DistributionRecord{}, lastErr
}
