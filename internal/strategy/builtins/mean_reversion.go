package builtins

import (
	"context"
	"fmt"
	"math"

	"quantlab/internal/domain"
	"quantlab/internal/strategy"
)

var _ strategy.Strategy = (*MeanReversion)(nil)

// MeanReversionName is the registry name of MeanReversion.
const MeanReversionName = "mean-reversion"

// MeanReversion trades z-score extremes of price around its rolling mean:
// enter when |z| exceeds the entry threshold, exit once z falls back inside
// the exit threshold.
type MeanReversion struct {
	strategy.Base
	window       int
	entry        float64
	exit         float64
	positionSize float64
}

// NewMeanReversion validates the parameters and builds the strategy.
func NewMeanReversion(window int, entry, exit, positionSize float64) (*MeanReversion, error) {
	if window < 2 {
		return nil, fmt.Errorf("%w: window must be >= 2, got %d", strategy.ErrInvalidParam, window)
	}
	if entry <= 0 || exit < 0 || exit > entry {
		return nil, fmt.Errorf("%w: need 0 <= exit (%v) <= entry (%v), entry > 0", strategy.ErrInvalidParam, exit, entry)
	}
	if positionSize <= 0 {
		return nil, fmt.Errorf("%w: position_size must be positive", strategy.ErrInvalidParam)
	}
	return &MeanReversion{
		Base: strategy.NewBase(MeanReversionName, strategy.Params{
			"window":          float64(window),
			"entry_threshold": entry,
			"exit_threshold":  exit,
			"position_size":   positionSize,
		}),
		window:       window,
		entry:        entry,
		exit:         exit,
		positionSize: positionSize,
	}, nil
}

func newMeanReversion(p strategy.Params) (strategy.Strategy, error) {
	return NewMeanReversion(
		p.Int("window", 20),
		p.Float("entry_threshold", 2.0),
		p.Float("exit_threshold", 0.5),
		p.Float("position_size", 1),
	)
}

// regime is the position the signal stream implies: -1 short, 0 flat, 1 long.
type regime int

// step decides the signal for one z-score given the regime carried from the
// previous row.
func (s *MeanReversion) step(pos regime, z float64) (domain.Direction, regime) {
	if math.IsNaN(z) {
		return domain.Hold, pos
	}
	switch pos {
	case 0:
		if z < -s.entry {
			return domain.Buy, 1
		}
		if z > s.entry {
			return domain.Sell, -1
		}
	case 1:
		if z > -s.exit {
			return domain.Sell, 0
		}
	case -1:
		if z < s.exit {
			return domain.Buy, 0
		}
	}
	return domain.Hold, pos
}

// GenerateSignals folds over the z-score column carrying the implied
// position from row to row. The first row never trades.
func (s *MeanReversion) GenerateSignals(_ context.Context, series domain.Series) ([]domain.Signal, error) {
	prices, err := strategy.PriceColumn(series)
	if err != nil {
		return nil, err
	}
	mean := strategy.RollingMean(prices, s.window)
	std := strategy.RollingStd(prices, s.window)

	signals := make([]domain.Signal, len(series))
	var pos regime
	for i, p := range series {
		z := (prices[i] - mean[i]) / std[i]

		dir := domain.Hold
		if i > 0 {
			dir, pos = s.step(pos, z)
		}

		sig := domain.Signal{
			Timestamp: p.Timestamp,
			Direction: dir,
			Price:     prices[i],
			Size:      s.positionSize,
		}
		if !math.IsNaN(z) && !math.IsInf(z, 0) {
			sig.Indicators = map[string]float64{"z_score": z}
		}
		signals[i] = sig
	}
	return signals, nil
}
