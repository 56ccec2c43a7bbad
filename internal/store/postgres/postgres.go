package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"marketdata/internal/model"
)

// Store persists daily bars in PostgreSQL, keyed on (symbol, date).
type Store struct {
	db *sql.DB
}

// New opens a connection pool and creates the schema if needed.
func New(connString string) (*Store, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS price_history (
			symbol     TEXT NOT NULL,
			date       DATE NOT NULL,
			open       NUMERIC(18,6) NOT NULL,
			high       NUMERIC(18,6) NOT NULL,
			low        NUMERIC(18,6) NOT NULL,
			close      NUMERIC(18,6) NOT NULL,
			volume     BIGINT NOT NULL DEFAULT 0,
			source     TEXT NOT NULL DEFAULT '',
			fetched_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (symbol, date)
		)`)
	return err
}

func (s *Store) Query(ctx context.Context, symbol string, start, end time.Time) ([]model.PricePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, date, open, high, low, close, volume, source, fetched_at
		FROM price_history
		WHERE symbol = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC`,
		symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("query price history: %w", err)
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		if err := rows.Scan(&p.Symbol, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume, &p.Source, &p.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan price history: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *Store) Upsert(ctx context.Context, points []model.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_history (symbol, date, open, high, low, close, volume, source, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			source = EXCLUDED.source,
			fetched_at = EXCLUDED.fetched_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, p.Symbol, p.Date, p.Open, p.High, p.Low, p.Close, p.Volume, p.Source, p.FetchedAt); err != nil {
			return fmt.Errorf("upsert %s %s: %w", p.Symbol, p.Date.Format("2006-01-02"), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM price_history WHERE date < $1`,
		time.Now().AddDate(0, 0, -days))
	if err != nil {
		return 0, fmt.Errorf("delete old price history: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) DeleteAll(ctx context.Context, symbol string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM price_history WHERE symbol = $1`, symbol); err != nil {
		return fmt.Errorf("delete price history for %s: %w", symbol, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }
