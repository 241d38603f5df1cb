// Package backtest wires strategies, market-data sources and the engine
// into complete backtest runs.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"quantlab/internal/config"
	"quantlab/internal/domain"
	"quantlab/internal/engine"
	"quantlab/internal/store"
	"quantlab/internal/strategy"
	"quantlab/internal/util"
)

// ErrUnknownSource is returned when a request names an unregistered source.
var ErrUnknownSource = errors.New("unknown market data source")

// Request describes one backtest run.
type Request struct {
	Strategy  string          `json:"strategy"`
	Params    strategy.Params `json:"params,omitempty"`
	Source    string          `json:"source"`
	Symbol    string          `json:"symbol"`
	Market    string          `json:"market,omitempty"`
	Timeframe string          `json:"timeframe,omitempty"`
	Start     time.Time       `json:"start,omitempty"`
	End       time.Time       `json:"end,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Options   engine.Options  `json:"options"`
}

// Backtester replays market data from a named source through a strategy
// built from the registry and returns the engine results.
type Backtester struct {
	registry *strategy.Registry
	sources  map[string]Source
	log      *slog.Logger
}

// NewBacktester creates a Backtester over registry and the given sources.
func NewBacktester(registry *strategy.Registry, sources map[string]Source, log *slog.Logger) *Backtester {
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{
		registry: registry,
		sources:  sources,
		log:      log,
	}
}

// Registry returns the strategy registry.
func (bt *Backtester) Registry() *strategy.Registry { return bt.registry }

// Sources returns the sorted source names.
func (bt *Backtester) Sources() []string {
	names := make([]string, 0, len(bt.sources))
	for name := range bt.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load fetches the series a request would run on.
func (bt *Backtester) Load(ctx context.Context, req Request) (domain.Series, error) {
	src, ok := bt.sources[req.Source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, req.Source)
	}
	series, err := src.Load(ctx, Query{
		Symbol: req.Symbol,
		Market: req.Market,
		Start:  req.Start,
		End:    req.End,
		Limit:  req.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("load %s from %s: %w", req.Symbol, req.Source, err)
	}
	return series, nil
}

// Run executes one backtest. Each call builds a fresh strategy instance, so
// concurrent runs are independent.
func (bt *Backtester) Run(ctx context.Context, req Request) (*engine.Results, error) {
	strat, err := bt.registry.New(req.Strategy, req.Params)
	if err != nil {
		return nil, err
	}

	opts := req.Options
	if opts.PeriodsPerYear <= 0 && req.Timeframe != "" {
		ppy, err := util.PeriodsPerYear(domain.Market(req.Market), req.Timeframe)
		if err != nil {
			return nil, err
		}
		opts.PeriodsPerYear = ppy
	}

	series, err := bt.Load(ctx, req)
	if err != nil {
		return nil, err
	}
	bt.log.Info("running backtest",
		"strategy", req.Strategy,
		"source", req.Source,
		"symbol", req.Symbol,
		"rows", len(series),
	)

	return engine.New(strat, opts, bt.log).Run(ctx, series, req.Symbol)
}

// SourcesFromConfig builds every source the configuration can serve.
func SourcesFromConfig(cfg *config.Config) map[string]Source {
	b := cfg.Backtest
	sources := map[string]Source{
		config.SourceSample: SampleSource{
			Points:       b.Sample.Points,
			InitialPrice: b.Sample.InitialPrice,
			Volatility:   b.Sample.Volatility,
			Seed:         b.Sample.Seed,
		},
		config.SourceParquet: BarSource{Store: store.NewParquetStore(cfg.Storage.DataDir)},
		config.SourceSQLite:  QuoteSource{Path: cfg.Storage.SQLitePath},
	}
	if b.CSVPath != "" {
		sources[config.SourceCSV] = CSVSource{Path: b.CSVPath}
	}
	return sources
}

// RequestFromConfig builds the request described by the backtest and
// strategy sections.
func RequestFromConfig(cfg *config.Config) (Request, error) {
	b := cfg.Backtest
	req := Request{
		Strategy:  cfg.Strategy.Name,
		Params:    strategy.Params(cfg.Strategy.Params),
		Source:    b.Source,
		Symbol:    b.Symbol,
		Market:    b.Market,
		Timeframe: b.Timeframe,
		Options: engine.Options{
			InitialCapital: b.InitialCapital,
			CommissionRate: b.CommissionRate,
			RiskFreeRate:   b.RiskFreeRate,
		},
	}
	var err error
	if req.Start, err = parseDate(b.Start); err != nil {
		return Request{}, fmt.Errorf("backtest.start: %w", err)
	}
	if req.End, err = parseDate(b.End); err != nil {
		return Request{}, fmt.Errorf("backtest.end: %w", err)
	}
	return req, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return store.ParseTimestamp(s)
}
