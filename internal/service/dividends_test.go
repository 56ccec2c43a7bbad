package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketdata/internal/model"
	"marketdata/internal/provider"
)

func monthlyHistory(symbol string, n int) model.DividendHistory {
	hist := model.DividendHistory{Symbol: symbol, Source: "fake"}
	ex := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		hist.Payments = append(hist.Payments, model.DividendPayment{
			ExDate: ex.AddDate(0, i, 0),
			Amount: decimal.RequireFromString("0.40"),
		})
	}
	return hist
}

func TestFetchDistributionBuildsAndCaches(t *testing.T) {
	dp := &fakeDividendProvider{fakeProvider: newFakeProvider("Primary", provider.PriorityPrimary)}
	dp.dividends = func(symbol string) (model.DividendHistory, error) {
		return monthlyHistory(symbol, 12), nil
	}
	s := newTestService(t, nil, dp)

	rec, err := s.FetchDistribution(context.Background(), "PFF", false)
	require.NoError(t, err)
	assert.Equal(t, model.FrequencyMonthly, rec.Frequency)
	assert.True(t, rec.AnnualizedAmount.Equal(decimal.RequireFromString("4.80")),
		"0.40 x 12, got %s", rec.AnnualizedAmount)

	_, err = s.FetchDistribution(context.Background(), "PFF", false)
	require.NoError(t, err)
	assert.Equal(t, 1, dp.divCalls, "second fetch must be served from cache")
}

func TestFetchDistributionSkipsPriceOnlyProviders(t *testing.T) {
	priceOnly := newFakeProvider("Primary", provider.PriorityPrimary)
	dp := &fakeDividendProvider{fakeProvider: newFakeProvider("Secondary", provider.PrioritySecondary)}
	dp.dividends = func(symbol string) (model.DividendHistory, error) {
		return monthlyHistory(symbol, 6), nil
	}
	s := newTestService(t, nil, priceOnly, dp)

	rec, err := s.FetchDistribution(context.Background(), "PFF", false)
	require.NoError(t, err)
	assert.Equal(t, model.FrequencyMonthly, rec.Frequency)
	assert.Equal(t, 1, dp.divCalls)
}

func TestFetchDistributionNoCapableProvider(t *testing.T) {
	priceOnly := newFakeProvider("Primary", provider.PriorityPrimary)
	s := newTestService(t, nil, priceOnly)

	_, err := s.FetchDistribution(context.Background(), "PFF", false)
	require.Error(t, err)
	assert.Equal(t, model.ErrProviderUnavailable, model.KindOf(err))
}

func TestFetchDistributionServesStaleOnFailure(t *testing.T) {
	dp := &fakeDividendProvider{fakeProvider: newFakeProvider("Primary", provider.PriorityPrimary)}
	dp.dividends = func(symbol string) (model.DividendHistory, error) {
		return monthlyHistory(symbol, 12), nil
	}
	s := newTestService(t, nil, dp)

	fresh, err := s.FetchDistribution(context.Background(), "PFF", false)
	require.NoError(t, err)

	dp.dividends = func(string) (model.DividendHistory, error) {
		return model.DividendHistory{}, model.NewError(model.ErrNetwork, "Primary", "PFF", errors.New("down"))
	}
	stale, err := s.FetchDistribution(context.Background(), "PFF", true)
	require.NoError(t, err)
	assert.Equal(t, fresh.AnnualizedAmount, stale.AnnualizedAmount)
	assert.Equal(t, fresh.Frequency, stale.Frequency)
}

func TestFetchDistributionValidatesSymbol(t *testing.T) {
	dp := &fakeDividendProvider{fakeProvider: newFakeProvider("Primary", provider.PriorityPrimary)}
	s := newTestService(t, nil, dp)

	_, err := s.FetchDistribution(context.Background(), "", false)
	assert.Equal(t, model.ErrInvalidSymbol, model.KindOf(err))
}
