package backtest

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"quantlab/internal/domain"
	"quantlab/internal/store"
)

// Query selects the slice of market data a source returns. Zero Start or
// End leaves that side unbounded where the source supports it.
type Query struct {
	Symbol string
	Market string
	Start  time.Time
	End    time.Time
	Limit  int
}

// Source loads a market-data series for a backtest.
type Source interface {
	Load(ctx context.Context, q Query) (domain.Series, error)
}

// ---------------------------------------------------------------------------
// Parquet bars
// ---------------------------------------------------------------------------

// BarSource reads daily bars and prices each point at the close.
type BarSource struct {
	Store store.BarStore
}

func (s BarSource) Load(ctx context.Context, q Query) (domain.Series, error) {
	start, end := q.Start, q.End
	if start.IsZero() {
		start = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if end.IsZero() {
		end = time.Now().UTC()
	}
	bars, err := s.Store.ReadBars(ctx, q.Symbol, q.Market, start, end)
	if err != nil {
		return nil, fmt.Errorf("read bars %s: %w", q.Symbol, err)
	}
	if q.Limit > 0 && len(bars) > q.Limit {
		bars = bars[:q.Limit]
	}
	return domain.SeriesFromBars(bars), nil
}

// ---------------------------------------------------------------------------
// SQLite quotes
// ---------------------------------------------------------------------------

// QuoteSource reads top-of-book quotes from a SQLite database; prices come
// from the bid/ask midpoint. The database is opened for each Load.
type QuoteSource struct {
	Path string
}

func (s QuoteSource) Load(ctx context.Context, q Query) (domain.Series, error) {
	db, err := store.NewSQLiteStore(s.Path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	quotes, err := db.ReadQuotes(ctx, q.Symbol, q.Start, q.End, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("read quotes %s: %w", q.Symbol, err)
	}
	return domain.SeriesFromQuotes(quotes), nil
}

// ---------------------------------------------------------------------------
// CSV
// ---------------------------------------------------------------------------

// CSVSource reads a market-data CSV file. The symbol is ignored; the file
// holds one instrument. Rows may appear in any order.
type CSVSource struct {
	Path string
}

func (s CSVSource) Load(_ context.Context, q Query) (domain.Series, error) {
	all, err := store.LoadSeriesCSV(s.Path)
	if err != nil {
		return nil, err
	}
	// Limit counts rows in time order, not file order.
	all.Sort()
	out := all[:0]
	for _, p := range all {
		if !q.Start.IsZero() && p.Timestamp.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && p.Timestamp.After(q.End) {
			continue
		}
		out = append(out, p)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Synthetic sample
// ---------------------------------------------------------------------------

// SampleSource generates a geometric random walk with a fixed bid/ask
// spread around each price. The same Seed always yields the same series.
type SampleSource struct {
	Points       int
	InitialPrice float64
	Volatility   float64 // stddev of per-step log returns
	Seed         int64
	Start        time.Time
	Interval     time.Duration
}

// Half-spread applied on each side of the generated price.
const sampleHalfSpread = 0.0005

func (s SampleSource) Load(_ context.Context, q Query) (domain.Series, error) {
	n := s.Points
	if q.Limit > 0 && (n <= 0 || q.Limit < n) {
		n = q.Limit
	}
	if n <= 0 {
		return nil, domain.ErrEmptySeries
	}
	if s.InitialPrice <= 0 {
		return nil, fmt.Errorf("sample initial price must be positive, got %v", s.InitialPrice)
	}
	start := s.Start
	if !q.Start.IsZero() {
		start = q.Start
	}
	if start.IsZero() {
		start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	rng := rand.New(rand.NewSource(s.Seed))
	series := make(domain.Series, n)
	logPrice := math.Log(s.InitialPrice)
	for i := range series {
		logPrice += rng.NormFloat64() * s.Volatility
		price := math.Exp(logPrice)
		series[i] = domain.MarketPoint{
			Timestamp: start.Add(time.Duration(i) * interval),
			Price:     price,
			Bid:       price * (1 - sampleHalfSpread),
			Ask:       price * (1 + sampleHalfSpread),
		}
	}
	return series, nil
}
