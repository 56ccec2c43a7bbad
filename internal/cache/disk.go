package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"marketdata/internal/model"
)

const (
	kindPrices   = "prices"
	kindDividend = "dividend"
)

// Disk is the slower persistent tier, backed by a SQLite file. It
// survives process restarts and serves as overflow when the memory tier
// misses, with a longer TTL and explicit stale retrieval.
type Disk struct {
	db  *sql.DB
	ttl time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

func NewDisk(path string, ttl time.Duration) (*Disk, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// WAL mode so reads do not block the write path.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	d := &Disk{db: db, ttl: ttl}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

func (d *Disk) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cache_entries (
			kind        TEXT NOT NULL,
			symbol      TEXT NOT NULL,
			range_start INTEGER NOT NULL,
			range_end   INTEGER NOT NULL,
			payload     BLOB NOT NULL,
			inserted_at INTEGER NOT NULL,
			PRIMARY KEY (kind, symbol, range_start, range_end)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_symbol ON cache_entries(kind, symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_inserted ON cache_entries(inserted_at)`,
	}
	for _, s := range stmts {
		if _, err := d.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:30], err)
		}
	}
	return nil
}

func (d *Disk) get(kind, symbol string, start, end time.Time, ignoreTTL bool) ([]byte, bool) {
	q := `SELECT payload FROM cache_entries
		WHERE kind = ? AND symbol = ? AND range_start <= ? AND range_end >= ?`
	args := []any{kind, symbol, start.Unix(), end.Unix()}
	if !ignoreTTL {
		q += ` AND inserted_at > ?`
		args = append(args, time.Now().Add(-d.ttl).Unix())
	}
	q += ` ORDER BY inserted_at DESC LIMIT 1`

	var payload []byte
	err := d.db.QueryRow(q, args...).Scan(&payload)
	if err != nil {
		d.misses.Add(1)
		return nil, false
	}
	d.hits.Add(1)
	return payload, true
}

func (d *Disk) set(kind, symbol string, start, end time.Time, payload []byte) error {
	_, err := d.db.Exec(`INSERT INTO cache_entries (kind, symbol, range_start, range_end, payload, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, symbol, range_start, range_end) DO UPDATE SET
			payload = excluded.payload,
			inserted_at = excluded.inserted_at`,
		kind, symbol, start.Unix(), end.Unix(), payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

func (d *Disk) GetPrices(symbol string, start, end time.Time) ([]model.PricePoint, bool) {
	payload, ok := d.get(kindPrices, symbol, start, end, false)
	if !ok {
		return nil, false
	}
	var points []model.PricePoint
	if err := json.Unmarshal(payload, &points); err != nil {
		return nil, false
	}
	return trimRange(points, start, end), true
}

func (d *Disk) SetPrices(symbol string, start, end time.Time, points []model.PricePoint) error {
	payload, err := json.Marshal(points)
	if err != nil {
		return err
	}
	return d.set(kindPrices, symbol, start, end, payload)
}

// StalePrices returns the newest entry for the symbol regardless of age.
func (d *Disk) StalePrices(symbol string) ([]model.PricePoint, bool) {
	var payload []byte
	err := d.db.QueryRow(`SELECT payload FROM cache_entries
		WHERE kind = ? AND symbol = ? ORDER BY inserted_at DESC LIMIT 1`,
		kindPrices, symbol).Scan(&payload)
	if err != nil {
		return nil, false
	}
	var points []model.PricePoint
	if err := json.Unmarshal(payload, &points); err != nil {
		return nil, false
	}
	return points, true
}

func (d *Disk) GetDividend(symbol string) (model.DistributionRecord, bool) {
	payload, ok := d.get(kindDividend, symbol, time.Unix(0, 0), time.Unix(0, 0), false)
	if !ok {
		return model.DistributionRecord{}, false
	}
	var rec model.DistributionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return model.DistributionRecord{}, false
	}
	return rec, true
}

func (d *Disk) SetDividend(symbol string, rec model.DistributionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return d.set(kindDividend, symbol, time.Unix(0, 0), time.Unix(0, 0), payload)
}

func (d *Disk) StaleDividend(symbol string) (model.DistributionRecord, bool) {
	payload, ok := d.get(kindDividend, symbol, time.Unix(0, 0), time.Unix(0, 0), true)
	if !ok {
		return model.DistributionRecord{}, false
	}
	var rec model.DistributionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return model.DistributionRecord{}, false
	}
	return rec, true
}

func (d *Disk) Clear(symbol string) error {
	var err error
	if symbol == "" {
		_, err = d.db.Exec(`DELETE FROM cache_entries`)
	} else {
		_, err = d.db.Exec(`DELETE FROM cache_entries WHERE symbol = ?`, symbol)
	}
	return err
}

// Sweep removes entries inserted before the retention horizon and
// returns how many were dropped.
func (d *Disk) Sweep(olderThan time.Duration) (int64, error) {
	res, err := d.db.Exec(`DELETE FROM cache_entries WHERE inserted_at < ?`,
		time.Now().Add(-olderThan).Unix())
	if err != nil {
		return 0, fmt.Errorf("cache sweep: %w", err)
	}
	return res.RowsAffected()
}

func (d *Disk) Stats() (entries int, hits, misses int64) {
	var n int
	d.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&n)
	return n, d.hits.Load(), d.misses.Load()
}

func (d *Disk) Close() error { return d.db.Close() }
