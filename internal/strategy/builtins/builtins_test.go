package builtins

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"quantlab/internal/domain"
	"quantlab/internal/strategy"
)

var t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func seriesOf(prices ...float64) domain.Series {
	s := make(domain.Series, len(prices))
	for i, p := range prices {
		s[i] = domain.MarketPoint{Timestamp: t0.AddDate(0, 0, i), Price: p}
	}
	return s
}

func directions(signals []domain.Signal) []domain.Direction {
	out := make([]domain.Direction, len(signals))
	for i, s := range signals {
		out[i] = s.Direction
	}
	return out
}

const (
	H = domain.Hold
	B = domain.Buy
	S = domain.Sell
)

func TestSMACrossEmitsOnlyOnCrossover(t *testing.T) {
	s, err := NewSMACross(2, 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	series := seriesOf(5, 4, 3, 2, 1, 2, 3, 4, 5)
	signals, err := s.GenerateSignals(context.Background(), series)
	if err != nil {
		t.Fatal(err)
	}
	if len(signals) != len(series) {
		t.Fatalf("got %d signals, want %d", len(signals), len(series))
	}

	want := []domain.Direction{H, H, S, H, H, H, B, H, H}
	if got := directions(signals); !reflect.DeepEqual(got, want) {
		t.Errorf("directions = %v, want %v", got, want)
	}
	if signals[1].Indicators != nil {
		t.Errorf("indicators before long window filled: %v", signals[1].Indicators)
	}
	if got := signals[2].Indicators["long_ma"]; got != 4 {
		t.Errorf("long_ma at row 2 = %v, want 4", got)
	}
	if signals[6].Price != 3 || signals[6].Size != 1 || !signals[6].Timestamp.Equal(series[6].Timestamp) {
		t.Errorf("signal[6] = %+v", signals[6])
	}
}

func TestMeanReversionCarriesPosition(t *testing.T) {
	s, err := NewMeanReversion(3, 1.0, 0.5, 2)
	if err != nil {
		t.Fatal(err)
	}
	signals, err := s.GenerateSignals(context.Background(), seriesOf(10, 11, 10, 11, 5, 6, 10.5, 11))
	if err != nil {
		t.Fatal(err)
	}

	// Row 4 enters long, row 5 exits, row 6 enters short and row 7 stays
	// short because z is still above the exit threshold.
	want := []domain.Direction{H, H, H, H, B, S, S, H}
	if got := directions(signals); !reflect.DeepEqual(got, want) {
		t.Errorf("directions = %v, want %v", got, want)
	}
	if _, ok := signals[1].Indicators["z_score"]; ok {
		t.Error("z_score reported before the window filled")
	}
	if z := signals[4].Indicators["z_score"]; z > -1 {
		t.Errorf("z_score at row 4 = %v, want < -1", z)
	}
	if signals[4].Size != 2 {
		t.Errorf("Size = %v, want 2", signals[4].Size)
	}
}

func TestMeanReversionDeterministic(t *testing.T) {
	s, _ := NewMeanReversion(3, 1.0, 0.5, 1)
	series := seriesOf(10, 11, 10, 11, 5, 6, 10.5, 11)
	a, _ := s.GenerateSignals(context.Background(), series)
	b, _ := s.GenerateSignals(context.Background(), series)
	if !reflect.DeepEqual(a, b) {
		t.Error("repeated GenerateSignals calls differ")
	}
}

func TestMomentum(t *testing.T) {
	s, err := NewMomentum(2, -0.05, 0.05, 1)
	if err != nil {
		t.Fatal(err)
	}
	signals, err := s.GenerateSignals(context.Background(), seriesOf(100, 100, 90, 97, 100, 110))
	if err != nil {
		t.Fatal(err)
	}
	want := []domain.Direction{H, H, B, H, S, S}
	if got := directions(signals); !reflect.DeepEqual(got, want) {
		t.Errorf("directions = %v, want %v", got, want)
	}
}

func TestGenerateSignalsUsesMidpoint(t *testing.T) {
	s, _ := NewMomentum(1, -0.05, 0.05, 1)
	series := domain.Series{
		{Timestamp: t0, Bid: 99, Ask: 101},
		{Timestamp: t0.Add(time.Minute), Bid: 89, Ask: 91},
	}
	signals, err := s.GenerateSignals(context.Background(), series)
	if err != nil {
		t.Fatal(err)
	}
	if signals[0].Price != 100 || signals[1].Price != 90 || signals[1].Direction != domain.Buy {
		t.Errorf("signals = %+v", signals)
	}

	_, err = s.GenerateSignals(context.Background(), domain.Series{{Timestamp: t0}})
	if !errors.Is(err, domain.ErrNoPrice) {
		t.Errorf("GenerateSignals(no price) error = %v, want ErrNoPrice", err)
	}
}

func TestConstructorValidation(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"sma short >= long", func() error { _, err := NewSMACross(5, 5, 1); return err }()},
		{"sma zero period", func() error { _, err := NewSMACross(0, 5, 1); return err }()},
		{"sma zero size", func() error { _, err := NewSMACross(2, 5, 0); return err }()},
		{"mr window 1", func() error { _, err := NewMeanReversion(1, 2, 0.5, 1); return err }()},
		{"mr exit > entry", func() error { _, err := NewMeanReversion(20, 1, 2, 1); return err }()},
		{"momentum thresholds", func() error { _, err := NewMomentum(5, 0.1, 0.05, 1); return err }()},
		{"momentum lookback", func() error { _, err := NewMomentum(0, -0.1, 0.1, 1); return err }()},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, strategy.ErrInvalidParam) {
			t.Errorf("%s: error = %v, want ErrInvalidParam", tt.name, tt.err)
		}
	}
}

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry()
	want := []string{MeanReversionName, MomentumName, SMACrossName}
	if got := r.List(); !reflect.DeepEqual(got, want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}

	s, err := r.New(SMACrossName, nil)
	if err != nil {
		t.Fatal(err)
	}
	sma := s.(*SMACross)
	if sma.shortPeriod != 20 || sma.longPeriod != 50 || sma.positionSize != 1 {
		t.Errorf("defaults = %d/%d/%v, want 20/50/1", sma.shortPeriod, sma.longPeriod, sma.positionSize)
	}

	s, err = r.New(MeanReversionName, strategy.Params{"window": 10})
	if err != nil {
		t.Fatal(err)
	}
	if got := s.(*MeanReversion).window; got != 10 {
		t.Errorf("window = %d, want 10", got)
	}

	if _, err := r.New(SMACrossName, strategy.Params{"short_window": 60}); !errors.Is(err, strategy.ErrInvalidParam) {
		t.Errorf("New(short > long) error = %v, want ErrInvalidParam", err)
	}
}
