// Package portfolio implements the cash and position ledger used during a
// backtest. A Portfolio is owned by a single engine run and is not safe for
// concurrent use.
package portfolio

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"quantlab/internal/domain"
)

var (
	ErrInvalidPrice      = errors.New("price must be positive")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrUnknownSide       = errors.New("unknown trade side")
	ErrInvalidCapital    = errors.New("initial capital must not be negative")
	ErrInvalidCommission = errors.New("commission rate must be in [0, 1)")
)

// Trade is an executed transaction. Trades are only created by successful
// executions and are never modified afterwards.
type Trade struct {
	Timestamp  time.Time       `json:"timestamp"`
	Symbol     string          `json:"symbol"`
	Side       domain.Side     `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Commission decimal.Decimal `json:"commission"`
	Cash       decimal.Decimal `json:"cash"` // cash balance after the trade
}

// Value returns price × quantity.
func (t Trade) Value() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

// Portfolio tracks cash, per-symbol positions, the trade log, and the
// recorded equity curve. Cash and positions change only via ExecuteTrade.
type Portfolio struct {
	initialCapital decimal.Decimal
	cash           decimal.Decimal
	commissionRate decimal.Decimal
	positions      map[string]decimal.Decimal
	trades         []Trade
	equity         []EquityPoint
}

// New creates a portfolio holding initialCapital in cash.
func New(initialCapital, commissionRate float64) (*Portfolio, error) {
	if initialCapital < 0 || !finite(initialCapital) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidCapital, initialCapital)
	}
	if !(commissionRate >= 0 && commissionRate < 1) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidCommission, commissionRate)
	}
	capital := decimal.NewFromFloat(initialCapital)
	return &Portfolio{
		initialCapital: capital,
		cash:           capital,
		commissionRate: decimal.NewFromFloat(commissionRate),
		positions:      make(map[string]decimal.Decimal),
	}, nil
}

// ExecuteTrade applies a trade to the ledger.
//
// It returns an error only when the request itself is malformed. An order
// that cannot be afforded (buy) or covered (sell) is rejected by returning
// false with no state change; that is a normal outcome, not an error.
func (p *Portfolio) ExecuteTrade(ts time.Time, symbol string, side domain.Side, price, quantity float64) (bool, error) {
	if quantity <= 0 || !finite(quantity) {
		return false, fmt.Errorf("%w: got %v", ErrInvalidQuantity, quantity)
	}
	return p.ExecuteQuantity(ts, symbol, side, price, decimal.NewFromFloat(quantity))
}

// ExecuteQuantity is ExecuteTrade with an exact quantity, so a position can
// be closed at precisely the amount the ledger holds.
func (p *Portfolio) ExecuteQuantity(ts time.Time, symbol string, side domain.Side, price float64, qty decimal.Decimal) (bool, error) {
	if price <= 0 || !finite(price) {
		return false, fmt.Errorf("%w: got %v", ErrInvalidPrice, price)
	}
	if !qty.IsPositive() {
		return false, fmt.Errorf("%w: got %s", ErrInvalidQuantity, qty)
	}

	px := decimal.NewFromFloat(price)
	value := px.Mul(qty)
	commission := value.Mul(p.commissionRate)
	held := p.positions[symbol]

	switch side {
	case domain.SideBuy:
		cost := value.Add(commission)
		if p.cash.LessThan(cost) {
			return false, nil
		}
		p.cash = p.cash.Sub(cost)
		p.positions[symbol] = held.Add(qty)

	case domain.SideSell:
		if held.LessThan(qty) {
			return false, nil
		}
		p.cash = p.cash.Add(value.Sub(commission))
		p.positions[symbol] = held.Sub(qty)

	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownSide, side)
	}

	p.trades = append(p.trades, Trade{
		Timestamp:  ts,
		Symbol:     symbol,
		Side:       side,
		Price:      px,
		Quantity:   qty,
		Commission: commission,
		Cash:       p.cash,
	})
	return true, nil
}

// Position returns the quantity held for symbol, 0 if never traded.
func (p *Portfolio) Position(symbol string) float64 {
	return toFloat(p.positions[symbol])
}

// Holding returns the exact quantity held for symbol.
func (p *Portfolio) Holding(symbol string) decimal.Decimal {
	return p.positions[symbol]
}

// Positions returns a copy of all positions, including closed ones at zero.
func (p *Portfolio) Positions() map[string]float64 {
	out := make(map[string]float64, len(p.positions))
	for sym, qty := range p.positions {
		out[sym] = toFloat(qty)
	}
	return out
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() decimal.Decimal { return p.cash }

// InitialCapital returns the starting cash balance.
func (p *Portfolio) InitialCapital() decimal.Decimal { return p.initialCapital }

// CommissionRate returns the fractional commission applied to notional.
func (p *Portfolio) CommissionRate() decimal.Decimal { return p.commissionRate }

// Value returns cash plus every position marked at prices. A held symbol
// missing from prices contributes nothing, which understates the value; the
// engine always supplies the price of the symbol it trades.
func (p *Portfolio) Value(prices map[string]float64) float64 {
	cash := toFloat(p.cash)
	return cash + p.positionsValue(prices)
}

func (p *Portfolio) positionsValue(prices map[string]float64) float64 {
	var total float64
	for sym, qty := range p.positions {
		total += toFloat(qty) * prices[sym]
	}
	return total
}

// Trades returns a copy of the trade log in execution order.
func (p *Portfolio) Trades() []Trade {
	out := make([]Trade, len(p.trades))
	copy(out, p.trades)
	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
