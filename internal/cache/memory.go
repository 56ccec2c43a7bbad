package cache

import (
	"sync"
	"time"

	"marketdata/internal/model"
)

type priceEntry struct {
	rangeStart time.Time
	rangeEnd   time.Time
	points     []model.PricePoint
	insertedAt time.Time
}

type divEntry struct {
	record     model.DistributionRecord
	insertedAt time.Time
}

// Memory is the fast in-process tier: short TTL, capped entry count with
// oldest-first eviction. A hit requires the cached range to fully cover
// the requested range; partial overlaps are misses. All access goes
// through one mutex so readers never observe a half-written entry.
type Memory struct {
	ttl        time.Duration
	maxEntries int

	mu        sync.Mutex
	prices    map[string][]priceEntry // key: symbol
	dividends map[string]divEntry
	hits      int64
	misses    int64

	now func() time.Time
}

func NewMemory(ttl time.Duration, maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Memory{
		ttl:        ttl,
		maxEntries: maxEntries,
		prices:     make(map[string][]priceEntry),
		dividends:  make(map[string]divEntry),
		now:        time.Now,
	}
}

// GetPrices returns the bars within [start, end] from a live entry whose
// range covers the request.
func (m *Memory) GetPrices(symbol string, start, end time.Time) ([]model.PricePoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, e := range m.prices[symbol] {
		if now.Sub(e.insertedAt) > m.ttl {
			continue
		}
		if e.rangeStart.After(start) || e.rangeEnd.Before(end) {
			continue
		}
		m.hits++
		return trimRange(e.points, start, end), true
	}
	m.misses++
	return nil, false
}

// SetPrices stores a fetched range, replacing any entry with the same
// range and evicting the oldest entries past the cap.
func (m *Memory) SetPrices(symbol string, start, end time.Time, points []model.PricePoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := priceEntry{rangeStart: start, rangeEnd: end, points: points, insertedAt: m.now()}
	entries := m.prices[symbol]
	replaced := false
	for i, e := range entries {
		if e.rangeStart.Equal(start) && e.rangeEnd.Equal(end) {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	m.prices[symbol] = entries
	m.evict()
}

// StalePrices ignores TTL and returns the most recently inserted entry
// for the symbol. Last-resort path after all live sources failed.
func (m *Memory) StalePrices(symbol string) ([]model.PricePoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *priceEntry
	entries := m.prices[symbol]
	for i := range entries {
		if best == nil || entries[i].insertedAt.After(best.insertedAt) {
			best = &entries[i]
		}
	}
	if best == nil {
		return nil, false
	}
	return best.points, true
}

func (m *Memory) GetDividend(symbol string) (model.DistributionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.dividends[symbol]
	if !ok || m.now().Sub(e.insertedAt) > m.ttl {
		m.misses++
		return model.DistributionRecord{}, false
	}
	m.hits++
	return e.record, true
}

func (m *Memory) SetDividend(symbol string, rec model.DistributionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dividends[symbol] = divEntry{record: rec, insertedAt: m.now()}
	m.evict()
}

func (m *Memory) StaleDividend(symbol string) (model.DistributionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.dividends[symbol]
	return e.record, ok
}

// Clear removes entries for one symbol, or everything when symbol is "".
func (m *Memory) Clear(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if symbol == "" {
		m.prices = make(map[string][]priceEntry)
		m.dividends = make(map[string]divEntry)
		return
	}
	delete(m.prices, symbol)
	delete(m.dividends, symbol)
}

func (m *Memory) Stats() (entries int, hits, misses int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(), m.hits, m.misses
}

func (m *Memory) countLocked() int {
	n := len(m.dividends)
	for _, es := range m.prices {
		n += len(es)
	}
	return n
}

// evict drops the oldest entry, price range or dividend record, until
// the total count is under the cap. Callers hold mu.
func (m *Memory) evict() {
	for m.countLocked() > m.maxEntries {
		var priceSym string
		var priceIdx int
		var priceAt time.Time
		for sym, es := range m.prices {
			for i, e := range es {
				if priceSym == "" || e.insertedAt.Before(priceAt) {
					priceSym, priceIdx, priceAt = sym, i, e.insertedAt
				}
			}
		}
		var divSym string
		var divAt time.Time
		for sym, e := range m.dividends {
			if divSym == "" || e.insertedAt.Before(divAt) {
				divSym, divAt = sym, e.insertedAt
			}
		}
		switch {
		case priceSym == "" && divSym == "":
			return
		case divSym != "" && (priceSym == "" || divAt.Before(priceAt)):
			delete(m.dividends, divSym)
		default:
			es := m.prices[priceSym]
			m.prices[priceSym] = append(es[:priceIdx], es[priceIdx+1:]...)
			if len(m.prices[priceSym]) == 0 {
				delete(m.prices, priceSym)
			}
		}
	}
}

func trimRange(points []model.PricePoint, start, end time.Time) []model.PricePoint {
	out := make([]model.PricePoint, 0, len(points))
	for _, p := range points {
		if p.Date.Before(start) || p.Date.After(end) {
			continue
		}
		out = append(out, p)
	}
	return out
}
