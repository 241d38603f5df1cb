package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	// ErrEmptySeries is returned when a backtest is started without data.
	ErrEmptySeries = errors.New("market data series is empty")

	// ErrMissingTimestamp is returned when a point has a zero timestamp.
	ErrMissingTimestamp = errors.New("market data point has no timestamp")

	// ErrNoPrice is returned when neither a price nor a bid/ask pair is
	// available for a point.
	ErrNoPrice = errors.New("market data point has no price or bid/ask pair")

	// ErrNonFinitePrice is returned when a price, bid or ask is NaN or
	// infinite.
	ErrNonFinitePrice = errors.New("market data point has a non-finite price")
)

// Series is a time-ordered sequence of market points.
type Series []MarketPoint

// SeriesFromBars builds a series priced at each bar's close.
func SeriesFromBars(bars []Bar) Series {
	s := make(Series, 0, len(bars))
	for _, b := range bars {
		s = append(s, MarketPoint{Timestamp: b.Timestamp, Price: b.Close})
	}
	return s
}

// SeriesFromQuotes builds a series carrying bid/ask only; prices are derived
// from the midpoint by ResolvePrices.
func SeriesFromQuotes(quotes []Quote) Series {
	s := make(Series, 0, len(quotes))
	for _, q := range quotes {
		s = append(s, MarketPoint{Timestamp: q.Timestamp, Bid: q.BidPrice, Ask: q.AskPrice})
	}
	return s
}

// Validate checks the preconditions a backtest needs before any simulation
// work begins.
func (s Series) Validate() error {
	if len(s) == 0 {
		return ErrEmptySeries
	}
	for i, p := range s {
		if p.Timestamp.IsZero() {
			return fmt.Errorf("row %d: %w", i, ErrMissingTimestamp)
		}
		if !finite(p.Price) || !finite(p.Bid) || !finite(p.Ask) {
			return fmt.Errorf("row %d: %w", i, ErrNonFinitePrice)
		}
		if p.Price <= 0 && (p.Bid <= 0 || p.Ask <= 0) {
			return fmt.Errorf("row %d: %w", i, ErrNoPrice)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ResolvePrices fills missing prices with the bid/ask midpoint in place.
func (s Series) ResolvePrices() {
	for i := range s {
		if s[i].Price <= 0 && s[i].Bid > 0 && s[i].Ask > 0 {
			s[i].Price = (s[i].Bid + s[i].Ask) / 2
		}
	}
}

// Sort orders the series by timestamp. Points sharing a timestamp keep their
// original relative order.
func (s Series) Sort() {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].Timestamp.Before(s[j].Timestamp)
	})
}

// Clone returns a copy that can be mutated without touching s.
func (s Series) Clone() Series {
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// Prices returns the price column.
func (s Series) Prices() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Price
	}
	return out
}

// Span returns the first and last timestamps. Both are zero for an empty
// series.
func (s Series) Span() (time.Time, time.Time) {
	if len(s) == 0 {
		return time.Time{}, time.Time{}
	}
	return s[0].Timestamp, s[len(s)-1].Timestamp
}
