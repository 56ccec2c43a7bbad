// Package store defines the narrow interface to the durable persistence
// collaborator. The orchestrator uses it as a second-level cache ahead
// of network calls and as the write target for fresh data.
package store

import (
	"context"
	"time"

	"marketdata/internal/model"
)

// Store must be safe to call from the orchestrator's concurrency
// context; implementations never expose partial writes.
//
//go:generate mockgen -package=service -destination=../service/mock_store_test.go -source=store.go Store
type Store interface {
	// Query returns bars for the symbol within [start, end], sorted
	// ascending by date. An empty result is not an error.
	Query(ctx context.Context, symbol string, start, end time.Time) ([]model.PricePoint, error)

	// Upsert writes bars idempotently on (symbol, date).
	Upsert(ctx context.Context, points []model.PricePoint) error

	// DeleteOlderThan drops bars older than the given number of days and
	// returns how many were removed.
	DeleteOlderThan(ctx context.Context, days int) (int64, error)

	// DeleteAll removes every bar for a symbol.
	DeleteAll(ctx context.Context, symbol string) error

	// Ping reports whether the backing engine is reachable.
	Ping(ctx context.Context) error

	Close() error
}
