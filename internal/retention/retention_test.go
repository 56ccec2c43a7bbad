package retention

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketdata/internal/cache"
	"marketdata/internal/model"
)

func TestRegisterRejectsBadSpec(t *testing.T) {
	c, err := cache.New(time.Minute, 10, "", 0)
	require.NoError(t, err)

	s := New(context.Background(), Config{Spec: "not a cron spec"}, c, nil)
	assert.Error(t, s.Register())
}

func TestDefaultsApplied(t *testing.T) {
	c, err := cache.New(time.Minute, 10, "", 0)
	require.NoError(t, err)

	s := New(context.Background(), Config{}, c, nil)
	assert.Equal(t, "0 0 3 * * *", s.cfg.Spec)
	assert.Equal(t, 365, s.cfg.RetentionDays)
	assert.Equal(t, 24*time.Hour, s.cfg.DiskCacheMax)
	assert.NoError(t, s.Register())
}

func TestRunNowSweepsDiskCache(t *testing.T) {
	c, err := cache.New(time.Minute, 10, filepath.Join(t.TempDir(), "cache.db"), time.Hour)
	require.NoError(t, err)
	defer c.Close()

	rec := model.DistributionRecord{Symbol: "JEPI", Frequency: model.FrequencyMonthly}
	c.SetDividend("JEPI", rec)
	require.Positive(t, c.Stats().DiskEntries)

	s := New(context.Background(), Config{}, c, nil)
	// A negative horizon turns every entry stale immediately.
	s.cfg.DiskCacheMax = -time.Minute
	s.RunNow()

	assert.Zero(t, c.Stats().DiskEntries)
}
