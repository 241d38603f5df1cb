package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"quantlab/internal/domain"
)

// ErrInvalidParam is returned when a strategy parameter is out of range.
var ErrInvalidParam = errors.New("invalid strategy parameter")

// Params holds numeric strategy parameters keyed by name.
type Params map[string]float64

// Float returns the named parameter, or def when absent.
func (p Params) Float(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Int returns the named parameter truncated to an int, or def when absent.
func (p Params) Int(key string, def int) int {
	if v, ok := p[key]; ok {
		return int(v)
	}
	return def
}

// PositiveInt is like Int but rejects values below 1.
func (p Params) PositiveInt(key string, def int) (int, error) {
	n := p.Int(key, def)
	if n < 1 {
		return 0, fmt.Errorf("%w: %s must be >= 1, got %d", ErrInvalidParam, key, n)
	}
	return n, nil
}

// Base supplies the ready flag, parameter storage and no-op callbacks.
// Concrete strategies embed it and implement GenerateSignals.
type Base struct {
	name   string
	params Params
	ready  bool
	fills  int
	log    *slog.Logger
}

// NewBase returns a Base for a strategy called name. params is copied.
func NewBase(name string, params Params) Base {
	cp := make(Params, len(params))
	for k, v := range params {
		cp[k] = v
	}
	return Base{
		name:   name,
		params: cp,
		log:    slog.Default().With("component", "strategy", "strategy", name),
	}
}

func (b *Base) Name() string { return b.name }

// Params returns the effective parameters.
func (b *Base) Params() Params { return b.params }

// Init marks the strategy ready. Subsequent calls do nothing.
func (b *Base) Init(_ context.Context) error {
	if b.ready {
		return nil
	}
	b.ready = true
	b.log.Debug("strategy initialized", "params", b.params)
	return nil
}

func (b *Base) Ready() bool { return b.ready }

// OnOrderFilled counts fills and logs them at debug.
func (b *Base) OnOrderFilled(_ context.Context, fill domain.Fill) {
	b.fills++
	b.log.Debug("order filled",
		"side", fill.Side,
		"price", fill.Price,
		"quantity", fill.Quantity,
	)
}

// Fills returns the number of fill notifications received.
func (b *Base) Fills() int { return b.fills }

func (b *Base) OnMarketData(_ context.Context, _ domain.MarketPoint) {}

// PriceColumn returns the price of every point, deriving the bid/ask
// midpoint where the price is missing.
func PriceColumn(series domain.Series) ([]float64, error) {
	out := make([]float64, len(series))
	for i, p := range series {
		switch {
		case p.Price > 0:
			out[i] = p.Price
		case p.Bid > 0 && p.Ask > 0:
			out[i] = (p.Bid + p.Ask) / 2
		default:
			return nil, fmt.Errorf("row %d: %w", i, domain.ErrNoPrice)
		}
	}
	return out, nil
}

// RollingMean returns the trailing mean over window points. Entries before
// the first full window are NaN.
func RollingMean(xs []float64, window int) []float64 {
	out := make([]float64, len(xs))
	var sum float64
	for i, x := range xs {
		sum += x
		if i >= window {
			sum -= xs[i-window]
		}
		if i+1 < window {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(window)
	}
	return out
}

// RollingStd returns the trailing sample standard deviation over window
// points. Entries before the first full window, and every entry when window
// is 1, are NaN.
func RollingStd(xs []float64, window int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		if i+1 < window || window < 2 {
			out[i] = math.NaN()
			continue
		}
		w := xs[i+1-window : i+1]
		var mean float64
		for _, x := range w {
			mean += x
		}
		mean /= float64(window)
		var ss float64
		for _, x := range w {
			ss += (x - mean) * (x - mean)
		}
		out[i] = math.Sqrt(ss / float64(window-1))
	}
	return out
}

// PctChange returns xs[i]/xs[i-lag]-1. Entries without a lagged value, or
// whose lagged value is zero, are NaN.
func PctChange(xs []float64, lag int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		if i < lag || xs[i-lag] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = xs[i]/xs[i-lag] - 1
	}
	return out
}
