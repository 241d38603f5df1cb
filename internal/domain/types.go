// Package domain defines the core market-data and trading types shared by
// the strategy, portfolio, engine, and storage layers.
package domain

import "time"

// Market identifies the venue family a symbol trades on.
type Market string

const (
	MarketUS     Market = "us"
	MarketCrypto Market = "crypto"
)

// Side is the direction of an executed trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Bar is a single OHLCV candle.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Quote is a top-of-book snapshot.
type Quote struct {
	Symbol    string
	Timestamp time.Time
	BidPrice  float64
	BidSize   float64
	AskPrice  float64
	AskSize   float64
}

// Mid returns the midpoint of the best bid and ask, or 0 when either side
// is missing.
func (q Quote) Mid() float64 {
	if q.BidPrice <= 0 || q.AskPrice <= 0 {
		return 0
	}
	return (q.BidPrice + q.AskPrice) / 2
}

// MarketPoint is one row of the market-data series fed to a backtest. Price
// may be left at zero when Bid and Ask are both set; see Series.ResolvePrices.
type MarketPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Bid       float64   `json:"bid,omitempty"`
	Ask       float64   `json:"ask,omitempty"`
}

// Direction is the trading instruction carried by a Signal.
type Direction int

const (
	Sell Direction = -1
	Hold Direction = 0
	Buy  Direction = 1
)

// String returns "buy", "sell" or "hold".
func (d Direction) String() string {
	switch d {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "hold"
	}
}

// Signal is the strategy output for a single market point.
type Signal struct {
	Timestamp  time.Time          `json:"timestamp"`
	Direction  Direction          `json:"signal"`
	Price      float64            `json:"price"`
	Size       float64            `json:"size"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// Quantity returns the requested size, defaulting to 1 when unset.
func (s Signal) Quantity() float64 {
	if s.Size <= 0 {
		return 1.0
	}
	return s.Size
}

// Fill describes an executed order, delivered to strategies after the
// portfolio accepts a trade.
type Fill struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
}
