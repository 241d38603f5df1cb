package metrics

import (
	"time"

	"github.com/shopspring/decimal"

	"quantlab/internal/domain"
	"quantlab/internal/portfolio"
)

// RoundTrip is a closed slice of a position: a sell matched against the
// buy lots it consumed.
type RoundTrip struct {
	Symbol    string          `json:"symbol"`
	EntryTime time.Time       `json:"entry_time"` // earliest lot consumed
	ExitTime  time.Time       `json:"exit_time"`
	Quantity  decimal.Decimal `json:"quantity"`
	Cost      decimal.Decimal `json:"cost"`     // entry value plus attributed buy commission
	Proceeds  decimal.Decimal `json:"proceeds"` // exit value net of sell commission
}

// PnL returns proceeds minus cost.
func (r RoundTrip) PnL() decimal.Decimal {
	return r.Proceeds.Sub(r.Cost)
}

type lot struct {
	ts       time.Time
	qty      decimal.Decimal
	unitCost decimal.Decimal // price plus commission per unit
}

// RoundTrips matches each sell against earlier buys of the same symbol in
// FIFO order. Buy commissions are attributed pro rata to the units sold.
// Open lots at the end of the log are ignored.
func RoundTrips(trades []portfolio.Trade) []RoundTrip {
	open := make(map[string][]lot)
	var trips []RoundTrip

	for _, t := range trades {
		switch t.Side {
		case domain.SideBuy:
			if t.Quantity.IsZero() {
				continue
			}
			unit := t.Value().Add(t.Commission).Div(t.Quantity)
			open[t.Symbol] = append(open[t.Symbol], lot{ts: t.Timestamp, qty: t.Quantity, unitCost: unit})

		case domain.SideSell:
			lots := open[t.Symbol]
			remaining := t.Quantity
			cost := decimal.Zero
			var entry time.Time
			for len(lots) > 0 && remaining.IsPositive() {
				l := &lots[0]
				if entry.IsZero() {
					entry = l.ts
				}
				take := decimal.Min(l.qty, remaining)
				cost = cost.Add(take.Mul(l.unitCost))
				l.qty = l.qty.Sub(take)
				remaining = remaining.Sub(take)
				if l.qty.IsZero() {
					lots = lots[1:]
				}
			}
			open[t.Symbol] = lots

			matched := t.Quantity.Sub(remaining)
			if matched.IsZero() {
				continue
			}
			// Only the matched share of the sell belongs to this trip.
			proceeds := t.Value().Sub(t.Commission).Mul(matched).Div(t.Quantity)
			trips = append(trips, RoundTrip{
				Symbol:    t.Symbol,
				EntryTime: entry,
				ExitTime:  t.Timestamp,
				Quantity:  matched,
				Cost:      cost,
				Proceeds:  proceeds,
			})
		}
	}
	return trips
}

// WinRate returns the fraction of round trips with positive P&L.
func WinRate(trips []RoundTrip) float64 {
	if len(trips) == 0 {
		return 0
	}
	wins := 0
	for _, r := range trips {
		if r.PnL().IsPositive() {
			wins++
		}
	}
	return float64(wins) / float64(len(trips))
}

// ProfitFactor returns gross profit divided by gross loss. ok is false when
// no round trip lost money.
func ProfitFactor(trips []RoundTrip) (float64, bool) {
	profit, loss := decimal.Zero, decimal.Zero
	for _, r := range trips {
		pnl := r.PnL()
		if pnl.IsPositive() {
			profit = profit.Add(pnl)
		} else if pnl.IsNegative() {
			loss = loss.Add(pnl.Neg())
		}
	}
	if loss.IsZero() {
		return 0, false
	}
	f, _ := profit.Div(loss).Float64()
	return f, true
}
