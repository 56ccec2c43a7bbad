// Package cache layers a fast in-memory tier over an optional SQLite
// disk tier. Disk hits are promoted into memory; writes go to both.
package cache

import (
	"log"
	"time"

	"marketdata/internal/model"
)

type Cache struct {
	mem  *Memory
	disk *Disk // nil when the disk tier is disabled
}

// New builds the two-tier cache. diskPath == "" disables the disk tier.
func New(memTTL time.Duration, maxEntries int, diskPath string, diskTTL time.Duration) (*Cache, error) {
	c := &Cache{mem: NewMemory(memTTL, maxEntries)}
	if diskPath != "" {
		disk, err := NewDisk(diskPath, diskTTL)
		if err != nil {
			return nil, err
		}
		c.disk = disk
	}
	return c, nil
}

func (c *Cache) GetPrices(symbol string, start, end time.Time) ([]model.PricePoint, bool) {
	if points, ok := c.mem.GetPrices(symbol, start, end); ok {
		return points, true
	}
	if c.disk == nil {
		return nil, false
	}
	points, ok := c.disk.GetPrices(symbol, start, end)
	if !ok {
		return nil, false
	}
	c.mem.SetPrices(symbol, start, end, points)
	return points, true
}

func (c *Cache) SetPrices(symbol string, start, end time.Time, points []model.PricePoint) {
	c.mem.SetPrices(symbol, start, end, points)
	if c.disk != nil {
		if err := c.disk.SetPrices(symbol, start, end, points); err != nil {
			log.Printf("[WARN] disk cache write failed for %s: %v", symbol, err)
		}
	}
}

// StalePrices ignores TTLs entirely. Used only after every provider and
// the durable store have failed.
func (c *Cache) StalePrices(symbol string) ([]model.PricePoint, bool) {
	if points, ok := c.mem.StalePrices(symbol); ok {
		return points, true
	}
	if c.disk == nil {
		return nil, false
	}
	return c.disk.StalePrices(symbol)
}

func (c *Cache) GetDividend(symbol string) (model.DistributionRecord, bool) {
	if rec, ok := c.mem.GetDividend(symbol); ok {
		return rec, true
	}
	if c.disk == nil {
		return model.DistributionRecord{}, false
	}
	rec, ok := c.disk.GetDividend(symbol)
	if !ok {
		return model.DistributionRecord{}, false
	}
	c.mem.SetDividend(symbol, rec)
	return rec, true
}

func (c *Cache) SetDividend(symbol string, rec model.DistributionRecord) {
	c.mem.SetDividend(symbol, rec)
	if c.disk != nil {
		if err := c.disk.SetDividend(symbol, rec); err != nil {
			log.Printf("[WARN] disk cache write failed for %s: %v", symbol, err)
		}
	}
}

func (c *Cache) StaleDividend(symbol string) (model.DistributionRecord, bool) {
	if rec, ok := c.mem.StaleDividend(symbol); ok {
		return rec, true
	}
	if c.disk == nil {
		return model.DistributionRecord{}, false
	}
	return c.disk.StaleDividend(symbol)
}

// Clear removes one symbol's entries, or all entries when symbol is "".
func (c *Cache) Clear(symbol string) {
	c.mem.Clear(symbol)
	if c.disk != nil {
		if err := c.disk.Clear(symbol); err != nil {
			log.Printf("[WARN] disk cache clear failed: %v", err)
		}
	}
}

// SweepDisk drops disk entries past the retention horizon.
func (c *Cache) SweepDisk(olderThan time.Duration) (int64, error) {
	if c.disk == nil {
		return 0, nil
	}
	return c.disk.Sweep(olderThan)
}

func (c *Cache) Stats() model.CacheStats {
	var s model.CacheStats
	s.MemoryEntries, s.MemoryHits, s.MemoryMisses = c.mem.Stats()
	if c.disk != nil {
		s.DiskEntries, s.DiskHits, s.DiskMisses = c.disk.Stats()
	}
	return s
}

func (c *Cache) Close() error {
	if c.disk != nil {
		return c.disk.Close()
	}
	return nil
}
