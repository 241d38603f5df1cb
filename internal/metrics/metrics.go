// Package metrics derives performance statistics from a finished backtest.
// Every function is pure: the same equity curve and trade log always yield
// the same result.
package metrics

import (
	"math"

	"quantlab/internal/portfolio"
)

// DefaultPeriodsPerYear is the annualization factor for daily bars.
const DefaultPeriodsPerYear = 252

// Options controls the risk-adjusted statistics.
type Options struct {
	RiskFreeRate   float64 // annual
	PeriodsPerYear int
}

// Metrics is the standard report for one run. Volatility and AvgReturn are
// nil unless the run produced more than one return; WinRate and
// ProfitFactor are nil until at least one round trip closed.
type Metrics struct {
	TotalReturn         float64  `json:"total_return"`
	TotalReturnPct      float64  `json:"total_return_pct"`
	SharpeRatio         float64  `json:"sharpe_ratio"`
	MaxDrawdown         float64  `json:"max_drawdown"`
	MaxDrawdownPct      float64  `json:"max_drawdown_pct"`
	MaxDrawdownDuration int      `json:"max_drawdown_duration"`
	TotalTrades         int      `json:"total_trades"`
	InitialCapital      float64  `json:"initial_capital"`
	FinalEquity         float64  `json:"final_equity"`
	Profit              float64  `json:"profit"`
	Volatility          *float64 `json:"volatility,omitempty"`
	AvgReturn           *float64 `json:"avg_return,omitempty"`
	RoundTrips          int      `json:"round_trips"`
	WinRate             *float64 `json:"win_rate,omitempty"`
	ProfitFactor        *float64 `json:"profit_factor,omitempty"`
}

// Calculate computes every metric for a run. It returns nil when the equity
// curve is empty.
func Calculate(curve []portfolio.EquityPoint, trades []portfolio.Trade, initialCapital float64, opts Options) *Metrics {
	if len(curve) == 0 {
		return nil
	}
	if opts.PeriodsPerYear <= 0 {
		opts.PeriodsPerYear = DefaultPeriodsPerYear
	}

	equity := Equity(curve)
	returns := Returns(equity)
	dd := MaxDrawdown(equity)
	final := equity[len(equity)-1]
	total := TotalReturn(final, initialCapital)

	m := &Metrics{
		TotalReturn:         total,
		TotalReturnPct:      total * 100,
		SharpeRatio:         SharpeRatio(returns, opts.RiskFreeRate, opts.PeriodsPerYear),
		MaxDrawdown:         dd.Max,
		MaxDrawdownPct:      dd.Max * 100,
		MaxDrawdownDuration: dd.Duration,
		TotalTrades:         len(trades),
		InitialCapital:      initialCapital,
		FinalEquity:         final,
		Profit:              final - initialCapital,
	}

	if len(returns) > 1 {
		vol := StdDev(returns)
		avg := Mean(returns)
		m.Volatility = &vol
		m.AvgReturn = &avg
	}

	trips := RoundTrips(trades)
	m.RoundTrips = len(trips)
	if len(trips) > 0 {
		wr := WinRate(trips)
		m.WinRate = &wr
		if pf, ok := ProfitFactor(trips); ok {
			m.ProfitFactor = &pf
		}
	}
	return m
}

// Equity extracts the equity column of a curve.
func Equity(curve []portfolio.EquityPoint) []float64 {
	out := make([]float64, len(curve))
	for i, p := range curve {
		out[i] = p.Equity
	}
	return out
}

// Returns computes simple period-over-period returns. The first period has
// no prior value, so the result holds len(equity)-1 elements.
func Returns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1]
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (equity[i]-prev)/prev)
	}
	return out
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the sample standard deviation (n-1 denominator). It is 0
// for fewer than two values.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// SharpeRatio annualizes the mean excess return over the return standard
// deviation. It is 0 when the deviation is undefined or zero.
func SharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear int) float64 {
	if periodsPerYear <= 0 {
		periodsPerYear = DefaultPeriodsPerYear
	}
	sd := StdDev(returns)
	if len(returns) == 0 || sd == 0 || math.IsNaN(sd) {
		return 0
	}
	perPeriod := riskFreeRate / float64(periodsPerYear)
	var excess float64
	for _, r := range returns {
		excess += r - perPeriod
	}
	excess /= float64(len(returns))
	return math.Sqrt(float64(periodsPerYear)) * excess / sd
}

// Drawdown describes the deepest peak-to-trough decline of a curve.
type Drawdown struct {
	Max         float64 // fraction of the peak, in [-1, 0]
	Duration    int     // TroughIndex - PeakIndex
	PeakIndex   int
	TroughIndex int
}

// MaxDrawdown finds the deepest drawdown against the running maximum. The
// peak is the first index holding the highest equity at or before the
// trough. An empty curve yields the zero Drawdown.
func MaxDrawdown(equity []float64) Drawdown {
	var dd Drawdown
	if len(equity) == 0 {
		return dd
	}

	runMax := equity[0]
	runMaxIdx := 0
	for i, v := range equity {
		if v > runMax {
			runMax = v
			runMaxIdx = i
		}
		if runMax <= 0 {
			continue
		}
		if d := (v - runMax) / runMax; d < dd.Max {
			dd.Max = d
			dd.TroughIndex = i
			dd.PeakIndex = runMaxIdx
		}
	}
	dd.Duration = dd.TroughIndex - dd.PeakIndex
	return dd
}

// TotalReturn returns (final-initial)/initial, 0 when initial is 0.
func TotalReturn(final, initial float64) float64 {
	if initial == 0 {
		return 0
	}
	return (final - initial) / initial
}
