package portfolio

import "time"

// EquityPoint is a snapshot of portfolio value at one processed row.
type EquityPoint struct {
	Timestamp      time.Time `json:"timestamp"`
	Equity         float64   `json:"equity"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
}

// RecordEquity appends one snapshot valued at prices. Calling it twice for
// the same timestamp appends two points.
func (p *Portfolio) RecordEquity(ts time.Time, prices map[string]float64) {
	cash := toFloat(p.cash)
	positions := p.positionsValue(prices)
	p.equity = append(p.equity, EquityPoint{
		Timestamp:      ts,
		Equity:         cash + positions,
		Cash:           cash,
		PositionsValue: positions,
	})
}

// EquityCurve returns a copy of the recorded snapshots in append order.
func (p *Portfolio) EquityCurve() []EquityPoint {
	out := make([]EquityPoint, len(p.equity))
	copy(out, p.equity)
	return out
}

// Stats summarises the portfolio at the end of a run.
type Stats struct {
	InitialCapital float64            `json:"initial_capital"`
	FinalEquity    float64            `json:"final_equity"`
	TotalReturn    float64            `json:"total_return"`
	TotalTrades    int                `json:"total_trades"`
	FinalCash      float64            `json:"final_cash"`
	FinalPositions map[string]float64 `json:"final_positions"`
}

// Stats returns end-of-run statistics. ok is false when no equity has been
// recorded yet.
func (p *Portfolio) Stats() (stats Stats, ok bool) {
	if len(p.equity) == 0 {
		return Stats{}, false
	}
	initial := toFloat(p.initialCapital)
	final := p.equity[len(p.equity)-1].Equity

	var ret float64
	if initial != 0 {
		ret = (final - initial) / initial
	}
	return Stats{
		InitialCapital: initial,
		FinalEquity:    final,
		TotalReturn:    ret,
		TotalTrades:    len(p.trades),
		FinalCash:      toFloat(p.cash),
		FinalPositions: p.Positions(),
	}, true
}
