package builtins

import (
	"context"
	"fmt"
	"math"

	"quantlab/internal/domain"
	"quantlab/internal/strategy"
)

var _ strategy.Strategy = (*Momentum)(nil)

// MomentumName is the registry name of Momentum.
const MomentumName = "momentum"

// Momentum compares each price to the price lookback rows earlier. It buys
// after a drop below buyThreshold and sells after a rise above
// sellThreshold.
type Momentum struct {
	strategy.Base
	lookback      int
	buyThreshold  float64
	sellThreshold float64
	positionSize  float64
}

// NewMomentum validates the parameters and builds the strategy.
func NewMomentum(lookback int, buyThreshold, sellThreshold, positionSize float64) (*Momentum, error) {
	if lookback < 1 {
		return nil, fmt.Errorf("%w: lookback must be >= 1, got %d", strategy.ErrInvalidParam, lookback)
	}
	if buyThreshold >= sellThreshold {
		return nil, fmt.Errorf("%w: buy_threshold %v must be below sell_threshold %v",
			strategy.ErrInvalidParam, buyThreshold, sellThreshold)
	}
	if positionSize <= 0 {
		return nil, fmt.Errorf("%w: position_size must be positive", strategy.ErrInvalidParam)
	}
	return &Momentum{
		Base: strategy.NewBase(MomentumName, strategy.Params{
			"lookback":       float64(lookback),
			"buy_threshold":  buyThreshold,
			"sell_threshold": sellThreshold,
			"position_size":  positionSize,
		}),
		lookback:      lookback,
		buyThreshold:  buyThreshold,
		sellThreshold: sellThreshold,
		positionSize:  positionSize,
	}, nil
}

func newMomentum(p strategy.Params) (strategy.Strategy, error) {
	return NewMomentum(
		p.Int("lookback", 10),
		p.Float("buy_threshold", -0.05),
		p.Float("sell_threshold", 0.05),
		p.Float("position_size", 1),
	)
}

func (s *Momentum) GenerateSignals(_ context.Context, series domain.Series) ([]domain.Signal, error) {
	prices, err := strategy.PriceColumn(series)
	if err != nil {
		return nil, err
	}
	change := strategy.PctChange(prices, s.lookback)

	signals := make([]domain.Signal, len(series))
	for i, p := range series {
		dir := domain.Hold
		switch {
		case change[i] < s.buyThreshold:
			dir = domain.Buy
		case change[i] > s.sellThreshold:
			dir = domain.Sell
		}
		sig := domain.Signal{
			Timestamp: p.Timestamp,
			Direction: dir,
			Price:     prices[i],
			Size:      s.positionSize,
		}
		if !math.IsNaN(change[i]) {
			sig.Indicators = map[string]float64{"price_change": change[i]}
		}
		signals[i] = sig
	}
	return signals, nil
}
