// Package builtins provides built-in strategy implementations that ship with
// quantlab.
package builtins

import (
	"context"
	"fmt"
	"math"

	"quantlab/internal/domain"
	"quantlab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACrossName is the registry name of SMACross.
const SMACrossName = "sma-cross"

// SMACross implements a simple moving average crossover strategy. It generates
// a buy signal when the short-period SMA crosses above the long-period SMA,
// and a sell signal when it crosses below.
type SMACross struct {
	strategy.Base
	shortPeriod  int
	longPeriod   int
	positionSize float64
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods.
func NewSMACross(short, long int, positionSize float64) (*SMACross, error) {
	if short < 1 || long < 1 {
		return nil, fmt.Errorf("%w: periods must be >= 1, got %d/%d", strategy.ErrInvalidParam, short, long)
	}
	if short >= long {
		return nil, fmt.Errorf("%w: short period %d must be below long period %d", strategy.ErrInvalidParam, short, long)
	}
	if positionSize <= 0 {
		return nil, fmt.Errorf("%w: position_size must be positive", strategy.ErrInvalidParam)
	}
	return &SMACross{
		Base: strategy.NewBase(SMACrossName, strategy.Params{
			"short_window":  float64(short),
			"long_window":   float64(long),
			"position_size": positionSize,
		}),
		shortPeriod:  short,
		longPeriod:   long,
		positionSize: positionSize,
	}, nil
}

func newSMACross(p strategy.Params) (strategy.Strategy, error) {
	return NewSMACross(
		p.Int("short_window", 20),
		p.Int("long_window", 50),
		p.Float("position_size", 1),
	)
}

// GenerateSignals emits a signal only on the row where the relative order of
// the two averages changes.
func (s *SMACross) GenerateSignals(_ context.Context, series domain.Series) ([]domain.Signal, error) {
	prices, err := strategy.PriceColumn(series)
	if err != nil {
		return nil, err
	}
	short := strategy.RollingMean(prices, s.shortPeriod)
	long := strategy.RollingMean(prices, s.longPeriod)

	signals := make([]domain.Signal, len(series))
	prev := domain.Hold
	for i, p := range series {
		state := domain.Hold
		switch {
		case short[i] > long[i]:
			state = domain.Buy
		case short[i] < long[i]:
			state = domain.Sell
		}

		dir := domain.Hold
		if state != prev {
			dir = state
		}
		prev = state

		sig := domain.Signal{
			Timestamp: p.Timestamp,
			Direction: dir,
			Price:     prices[i],
			Size:      s.positionSize,
		}
		if !math.IsNaN(long[i]) {
			sig.Indicators = map[string]float64{"short_ma": short[i], "long_ma": long[i]}
		}
		signals[i] = sig
	}
	return signals, nil
}
