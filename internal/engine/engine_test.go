package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"quantlab/internal/domain"
	"quantlab/internal/portfolio"
	"quantlab/internal/strategy"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

// scripted replays a fixed list of directions, one per row.
type scripted struct {
	strategy.Base
	dirs   []domain.Direction
	size   float64
	sell   float64 // size for sell signals when set
	sizes  []float64
	inits  int
	fills  []domain.Fill
	seen   domain.Series
	extra  int
	genErr error
}

func newScripted(size float64, dirs ...domain.Direction) *scripted {
	return &scripted{Base: strategy.NewBase("scripted", nil), dirs: dirs, size: size}
}

func (s *scripted) Init(ctx context.Context) error {
	s.inits++
	return s.Base.Init(ctx)
}

func (s *scripted) GenerateSignals(_ context.Context, series domain.Series) ([]domain.Signal, error) {
	if s.genErr != nil {
		return nil, s.genErr
	}
	s.seen = series
	out := make([]domain.Signal, 0, len(series)+s.extra)
	for i, p := range series {
		size := s.size
		if s.dirs[i] == domain.Sell && s.sell > 0 {
			size = s.sell
		}
		if s.sizes != nil {
			size = s.sizes[i]
		}
		out = append(out, domain.Signal{Timestamp: p.Timestamp, Direction: s.dirs[i], Price: p.Price, Size: size})
	}
	for i := 0; i < s.extra; i++ {
		out = append(out, domain.Signal{})
	}
	return out, nil
}

func (s *scripted) OnOrderFilled(ctx context.Context, f domain.Fill) {
	s.fills = append(s.fills, f)
	s.Base.OnOrderFilled(ctx, f)
}

func seriesOf(prices ...float64) domain.Series {
	s := make(domain.Series, len(prices))
	for i, p := range prices {
		s[i] = domain.MarketPoint{Timestamp: t0.Add(time.Duration(i) * time.Hour), Price: p}
	}
	return s
}

func TestRunEquityCurveMatchesRows(t *testing.T) {
	strat := newScripted(1, domain.Hold, domain.Buy, domain.Hold, domain.Sell, domain.Hold)
	e := New(strat, DefaultOptions(), nil)

	res, err := e.Run(context.Background(), seriesOf(100, 101, 103, 102, 99), "SPY")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(res.EquityCurve) != 5 {
		t.Errorf("len(EquityCurve) = %d, want 5", len(res.EquityCurve))
	}
	if len(res.Trades) != 2 {
		t.Errorf("len(Trades) = %d, want 2", len(res.Trades))
	}
	if len(res.Signals) != 5 {
		t.Errorf("len(Signals) = %d, want 5", len(res.Signals))
	}
	if _, err := uuid.Parse(res.RunID); err != nil {
		t.Errorf("RunID %q is not a UUID: %v", res.RunID, err)
	}
	if res.Strategy != "scripted" || res.Symbol != "SPY" {
		t.Errorf("Strategy/Symbol = %q/%q", res.Strategy, res.Symbol)
	}
	if !res.Start.Equal(t0) || !res.End.Equal(t0.Add(4*time.Hour)) {
		t.Errorf("Start/End = %v/%v", res.Start, res.End)
	}
	if res.Metrics == nil || res.Metrics.TotalTrades != 2 || res.Metrics.RoundTrips != 1 {
		t.Errorf("Metrics = %+v", res.Metrics)
	}

	// Row 2 holds one unit marked at 103.
	p := res.EquityCurve[2]
	if p.PositionsValue != 103 {
		t.Errorf("PositionsValue at row 2 = %v, want 103", p.PositionsValue)
	}
	if p.Equity != p.Cash+p.PositionsValue {
		t.Errorf("equity %v != cash %v + positions %v", p.Equity, p.Cash, p.PositionsValue)
	}
	if res.Stats.FinalPositions["SPY"] != 0 {
		t.Errorf("final position = %v, want 0", res.Stats.FinalPositions["SPY"])
	}
}

func TestRunSellWithoutPositionIsNoop(t *testing.T) {
	strat := newScripted(1, domain.Sell, domain.Sell, domain.Hold)
	res, err := New(strat, DefaultOptions(), nil).Run(context.Background(), seriesOf(10, 11, 12), "X")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 0 || len(strat.fills) != 0 {
		t.Errorf("trades = %d, fills = %d, want none", len(res.Trades), len(strat.fills))
	}
	for i, p := range res.EquityCurve {
		if p.Equity != 100000 {
			t.Errorf("equity[%d] = %v, want 100000", i, p.Equity)
		}
	}
}

func TestRunSellCappedAtPosition(t *testing.T) {
	// Buy 3, then a sell of size 5 only sells the 3 held.
	strat := newScripted(3, domain.Buy, domain.Sell)
	strat.sell = 5
	res, err := New(strat, DefaultOptions(), nil).Run(context.Background(), seriesOf(10, 12), "X")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 2 {
		t.Fatalf("len(Trades) = %d, want 2", len(res.Trades))
	}
	if got := res.Trades[1].Quantity.String(); got != "3" {
		t.Errorf("sell quantity = %s, want 3", got)
	}

	// Size 0 defaults to one unit.
	unit := newScripted(0, domain.Buy, domain.Sell)
	res, err = New(unit, DefaultOptions(), nil).Run(context.Background(), seriesOf(10, 12), "X")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 2 || res.Trades[0].Quantity.String() != "1" {
		t.Errorf("trades = %+v, want buy 1 then sell 1", res.Trades)
	}
}

func TestRunSellClosesExactPosition(t *testing.T) {
	// The held amount has more significant digits than a float64 carries.
	strat := newScripted(0, domain.Buy, domain.Buy, domain.Sell)
	strat.sizes = []float64{100000000, 0.0000000123, 1e9}
	opts := Options{InitialCapital: 200000000}
	res, err := New(strat, opts, nil).Run(context.Background(), seriesOf(1, 1, 1), "X")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 3 {
		t.Fatalf("len(Trades) = %d, want 3", len(res.Trades))
	}
	if got := res.Trades[2].Quantity.String(); got != "100000000.0000000123" {
		t.Errorf("sell quantity = %s, want 100000000.0000000123", got)
	}
	if len(strat.fills) != 3 {
		t.Errorf("fills = %d, want 3", len(strat.fills))
	}
}

func TestRunRejectsNonFiniteSize(t *testing.T) {
	strat := newScripted(math.NaN(), domain.Buy)
	_, err := New(strat, DefaultOptions(), nil).Run(context.Background(), seriesOf(10), "X")
	if !errors.Is(err, portfolio.ErrInvalidQuantity) {
		t.Errorf("Run error = %v, want ErrInvalidQuantity", err)
	}
}

func TestRunFillsNotifiedOnlyOnSuccess(t *testing.T) {
	// Two buys at 60000 with 100000 capital: the second is rejected.
	strat := newScripted(1, domain.Buy, domain.Buy, domain.Sell)
	res, err := New(strat, DefaultOptions(), nil).Run(context.Background(), seriesOf(60000, 60000, 61000), "BTC")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 2 {
		t.Fatalf("len(Trades) = %d, want 2", len(res.Trades))
	}
	if len(strat.fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(strat.fills))
	}
	if strat.fills[0].Side != domain.SideBuy || strat.fills[1].Side != domain.SideSell {
		t.Errorf("fills = %+v", strat.fills)
	}
	if strat.fills[1].Price != 61000 || strat.fills[1].Symbol != "BTC" {
		t.Errorf("sell fill = %+v", strat.fills[1])
	}
}

func TestRunInitializesOnce(t *testing.T) {
	strat := newScripted(1, domain.Hold, domain.Hold)
	e := New(strat, DefaultOptions(), nil)
	for i := 0; i < 2; i++ {
		if _, err := e.Run(context.Background(), seriesOf(1, 2), "X"); err != nil {
			t.Fatal(err)
		}
	}
	if strat.inits != 1 {
		t.Errorf("Init called %d times, want 1", strat.inits)
	}
}

func TestRunPreconditions(t *testing.T) {
	tests := []struct {
		name   string
		series domain.Series
		want   error
	}{
		{"empty", nil, domain.ErrEmptySeries},
		{"no timestamp", domain.Series{{Price: 1}}, domain.ErrMissingTimestamp},
		{"no price", domain.Series{{Timestamp: t0, Bid: 1}}, domain.ErrNoPrice},
		{"infinite price", seriesOf(100, math.Inf(1)), domain.ErrNonFinitePrice},
		{"NaN price with quote", domain.Series{{Timestamp: t0, Price: math.NaN(), Bid: 1, Ask: 2}}, domain.ErrNonFinitePrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strat := newScripted(1, domain.Hold)
			_, err := New(strat, DefaultOptions(), nil).Run(context.Background(), tt.series, "X")
			if !errors.Is(err, tt.want) {
				t.Errorf("Run error = %v, want %v", err, tt.want)
			}
			if strat.inits != 0 {
				t.Error("strategy initialized despite invalid input")
			}
		})
	}
}

func TestRunSignalCountMismatch(t *testing.T) {
	strat := newScripted(1, domain.Hold, domain.Hold)
	strat.extra = 1
	_, err := New(strat, DefaultOptions(), nil).Run(context.Background(), seriesOf(1, 2), "X")
	if !errors.Is(err, ErrSignalCount) {
		t.Errorf("Run error = %v, want ErrSignalCount", err)
	}

	boom := errors.New("boom")
	strat = newScripted(1, domain.Hold)
	strat.genErr = boom
	if _, err := New(strat, DefaultOptions(), nil).Run(context.Background(), seriesOf(1), "X"); !errors.Is(err, boom) {
		t.Errorf("Run error = %v, want boom", err)
	}
}

func TestRunResolvesMidpointAndSorts(t *testing.T) {
	series := domain.Series{
		{Timestamp: t0.Add(time.Hour), Bid: 99, Ask: 101},
		{Timestamp: t0, Price: 50},
	}
	strat := newScripted(1, domain.Hold, domain.Hold)
	res, err := New(strat, DefaultOptions(), nil).Run(context.Background(), series, "X")
	if err != nil {
		t.Fatal(err)
	}
	if strat.seen[0].Price != 50 || strat.seen[1].Price != 100 {
		t.Errorf("strategy saw %+v, want sorted with midpoint 100", strat.seen)
	}
	if !res.EquityCurve[0].Timestamp.Equal(t0) {
		t.Errorf("first equity point at %v, want %v", res.EquityCurve[0].Timestamp, t0)
	}
	// Caller's series is untouched.
	if series[0].Price != 0 || !series[0].Timestamp.Equal(t0.Add(time.Hour)) {
		t.Errorf("input series mutated: %+v", series)
	}
}

func TestRunCommissionScenario(t *testing.T) {
	strat := newScripted(1, domain.Buy)
	res, err := New(strat, DefaultOptions(), nil).Run(context.Background(), seriesOf(50000), "BTC-PERPETUAL")
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.FinalCash != 49950 {
		t.Errorf("FinalCash = %v, want 49950", res.Stats.FinalCash)
	}
	if res.EquityCurve[0].Equity != 99950 {
		t.Errorf("Equity = %v, want 99950", res.EquityCurve[0].Equity)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	e := New(newScripted(1), Options{}, nil)
	if got := e.Options(); got.InitialCapital != 100000 || got.PeriodsPerYear != 252 || got.CommissionRate != 0 {
		t.Errorf("Options() = %+v", got)
	}
}
