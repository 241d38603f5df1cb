// Package engine runs a strategy over a market-data series, routing its
// signals through a portfolio ledger and recording the equity curve.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"quantlab/internal/domain"
	"quantlab/internal/metrics"
	"quantlab/internal/portfolio"
	"quantlab/internal/strategy"
)

// ErrSignalCount is returned when a strategy does not produce exactly one
// signal per market point.
var ErrSignalCount = errors.New("signal count does not match market data rows")

// Options configures a run. A zero InitialCapital or PeriodsPerYear takes
// the DefaultOptions value; a zero CommissionRate means no commission.
type Options struct {
	InitialCapital float64 `json:"initial_capital"`
	CommissionRate float64 `json:"commission_rate"`
	RiskFreeRate   float64 `json:"risk_free_rate"`
	PeriodsPerYear int     `json:"periods_per_year"`
}

// DefaultOptions returns 100000 capital, 0.1% commission, no risk-free rate
// and daily annualization.
func DefaultOptions() Options {
	return Options{
		InitialCapital: 100000,
		CommissionRate: 0.001,
		PeriodsPerYear: metrics.DefaultPeriodsPerYear,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.InitialCapital == 0 {
		o.InitialCapital = d.InitialCapital
	}
	if o.PeriodsPerYear <= 0 {
		o.PeriodsPerYear = d.PeriodsPerYear
	}
	return o
}

// Results bundles everything a finished run produced.
type Results struct {
	RunID       string                  `json:"run_id"`
	Strategy    string                  `json:"strategy"`
	Symbol      string                  `json:"symbol"`
	Start       time.Time               `json:"start"`
	End         time.Time               `json:"end"`
	Options     Options                 `json:"options"`
	EquityCurve []portfolio.EquityPoint `json:"equity_curve"`
	Trades      []portfolio.Trade       `json:"trades"`
	Metrics     *metrics.Metrics        `json:"metrics"`
	Stats       portfolio.Stats         `json:"stats"`
	Signals     []domain.Signal         `json:"signals"`
}

// Engine executes backtests for one strategy. It is not safe for concurrent
// use; each Run builds its own portfolio.
type Engine struct {
	strat strategy.Strategy
	opts  Options
	log   *slog.Logger
}

// New creates an Engine. A nil logger uses slog.Default().
func New(strat strategy.Strategy, opts Options, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		strat: strat,
		opts:  opts.withDefaults(),
		log:   log.With("component", "engine", "strategy", strat.Name()),
	}
}

// Options returns the effective options after defaults.
func (e *Engine) Options() Options { return e.opts }

// Run backtests the strategy over series, trading symbol. The caller's
// series is not modified.
//
// Malformed input (empty series, missing timestamps, no derivable price) and
// signal-count mismatches fail before any trade is simulated. Orders the
// portfolio rejects are skipped.
func (e *Engine) Run(ctx context.Context, series domain.Series, symbol string) (*Results, error) {
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("validate market data: %w", err)
	}
	data := series.Clone()
	data.ResolvePrices()
	data.Sort()

	pf, err := portfolio.New(e.opts.InitialCapital, e.opts.CommissionRate)
	if err != nil {
		return nil, err
	}

	if !e.strat.Ready() {
		if err := e.strat.Init(ctx); err != nil {
			return nil, fmt.Errorf("init strategy %s: %w", e.strat.Name(), err)
		}
	}

	signals, err := e.strat.GenerateSignals(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("generate signals: %w", err)
	}
	if len(signals) != len(data) {
		return nil, fmt.Errorf("%w: %d signals for %d rows", ErrSignalCount, len(signals), len(data))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	started := time.Now()
	e.log.Info("backtest started", "symbol", symbol, "rows", len(data), "capital", e.opts.InitialCapital)

	var position decimal.Decimal
	rejected := 0
	for i, point := range data {
		sig := signals[i]
		price := sig.Price
		if price <= 0 {
			price = point.Price
		}

		var side domain.Side
		var qty decimal.Decimal
		switch sig.Direction {
		case domain.Buy:
			side = domain.SideBuy
			size := sig.Quantity()
			if size <= 0 || math.IsNaN(size) || math.IsInf(size, 0) {
				return nil, fmt.Errorf("row %d: %w: got %v", i, portfolio.ErrInvalidQuantity, size)
			}
			qty = decimal.NewFromFloat(size)
		case domain.Sell:
			side = domain.SideSell
			q, err := sellQuantity(sig.Quantity(), position)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			qty = q
		}

		if qty.IsPositive() {
			ok, err := pf.ExecuteQuantity(point.Timestamp, symbol, side, price, qty)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			filled := qty.InexactFloat64()
			if ok {
				position = pf.Holding(symbol)
				e.strat.OnOrderFilled(ctx, domain.Fill{
					Timestamp: point.Timestamp,
					Symbol:    symbol,
					Side:      side,
					Price:     price,
					Quantity:  filled,
				})
			} else {
				rejected++
				e.log.Debug("order rejected",
					"row", i,
					"side", side,
					"price", price,
					"quantity", filled,
				)
			}
		}

		pf.RecordEquity(point.Timestamp, map[string]float64{symbol: point.Price})
	}

	curve := pf.EquityCurve()
	trades := pf.Trades()
	stats, _ := pf.Stats()
	m := metrics.Calculate(curve, trades, e.opts.InitialCapital, metrics.Options{
		RiskFreeRate:   e.opts.RiskFreeRate,
		PeriodsPerYear: e.opts.PeriodsPerYear,
	})
	start, end := data.Span()

	e.log.Info("backtest finished",
		"symbol", symbol,
		"trades", len(trades),
		"rejected", rejected,
		"final_equity", stats.FinalEquity,
		"elapsed", time.Since(started),
	)

	return &Results{
		RunID:       uuid.NewString(),
		Strategy:    e.strat.Name(),
		Symbol:      symbol,
		Start:       start,
		End:         end,
		Options:     e.opts,
		EquityCurve: curve,
		Trades:      trades,
		Metrics:     m,
		Stats:       stats,
		Signals:     signals,
	}, nil
}

// sellQuantity caps a sell of size at the held amount. A size at or above
// the holding sells exactly what the ledger holds, so a full exit is never
// rejected by float rounding.
func sellQuantity(size float64, held decimal.Decimal) (decimal.Decimal, error) {
	if !held.IsPositive() {
		return decimal.Zero, nil
	}
	if math.IsNaN(size) {
		return decimal.Zero, fmt.Errorf("%w: got %v", portfolio.ErrInvalidQuantity, size)
	}
	if math.IsInf(size, 1) {
		return held, nil
	}
	if want := decimal.NewFromFloat(size); want.LessThan(held) {
		return want, nil
	}
	return held, nil
}
