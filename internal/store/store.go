// Package store defines storage interfaces for persisting and retrieving
// market data, and file exports for backtest results.
package store

import (
	"context"
	"time"

	"quantlab/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars under market.
	WriteBars(ctx context.Context, market string, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// QuoteStore persists and retrieves top-of-book quotes.
type QuoteStore interface {
	// WriteQuotes upserts a batch of quotes keyed by (symbol, timestamp).
	WriteQuotes(ctx context.Context, quotes []domain.Quote) error

	// ReadQuotes returns quotes for symbol in timestamp order. Zero start or
	// end leaves that side unbounded; limit <= 0 returns every row.
	ReadQuotes(ctx context.Context, symbol string, start, end time.Time, limit int) ([]domain.Quote, error)
}
