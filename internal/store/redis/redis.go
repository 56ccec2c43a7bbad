package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"marketdata/internal/model"
)

// Store keeps one sorted set per symbol, scored by the bar's date, so
// range queries map directly onto ZRANGEBYSCORE.
type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func key(symbol string) string { return "prices:" + symbol }

func (s *Store) Query(ctx context.Context, symbol string, start, end time.Time) ([]model.PricePoint, error) {
	res, err := s.rdb.ZRangeByScore(ctx, key(symbol), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", start.Unix()),
		Max: fmt.Sprintf("%d", end.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", symbol, err)
	}
	points := make([]model.PricePoint, 0, len(res))
	for _, raw := range res {
		var p model.PricePoint
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode stored bar for %s: %w", symbol, err)
		}
		points = append(points, p)
	}
	return points, nil
}

func (s *Store) Upsert(ctx context.Context, points []model.PricePoint) error {
	pipe := s.rdb.TxPipeline()
	for _, p := range points {
		raw, err := json.Marshal(p)
		if err != nil {
			return err
		}
		score := float64(p.Date.Unix())
		// Drop any member already stored at this date so the write is
		// idempotent on (symbol, date).
		member := fmt.Sprintf("%d", p.Date.Unix())
		pipe.ZRemRangeByScore(ctx, key(p.Symbol), member, member)
		pipe.ZAdd(ctx, key(p.Symbol), redis.Z{Score: score, Member: string(raw)})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert bars: %w", err)
	}
	return nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := fmt.Sprintf("%d", time.Now().AddDate(0, 0, -days).Unix())
	var removed int64
	iter := s.rdb.Scan(ctx, 0, "prices:*", 0).Iterator()
	for iter.Next(ctx) {
		n, err := s.rdb.ZRemRangeByScore(ctx, iter.Val(), "-inf", "("+cutoff).Result()
		if err != nil {
			return removed, fmt.Errorf("prune %s: %w", iter.Val(), err)
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan price keys: %w", err)
	}
	return removed, nil
}

func (s *Store) DeleteAll(ctx context.Context, symbol string) error {
	if err := s.rdb.Del(ctx, key(symbol)).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", symbol, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *Store) Close() error { return s.rdb.Close() }
