package store

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quantlab/internal/domain"
	"quantlab/internal/portfolio"
)

func TestReadSeriesCSV(t *testing.T) {
	input := `timestamp,price,bid_1,ask_1,bid_vol_1
2024-01-01 00:00:00,50000,,,1.5
2024-01-01T00:01:00Z,,49990,50010,2
1704067320,50020.5,,,0
`
	series, err := ReadSeriesCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadSeriesCSV: %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("ReadSeriesCSV returned %d rows, want 3", len(series))
	}

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range series {
		if want := t0.Add(time.Duration(i) * time.Minute); !p.Timestamp.Equal(want) {
			t.Errorf("row %d timestamp = %v, want %v", i, p.Timestamp, want)
		}
	}
	if series[0].Price != 50000 {
		t.Errorf("row 0 price = %v, want 50000", series[0].Price)
	}
	if series[1].Price != 0 || series[1].Bid != 49990 || series[1].Ask != 50010 {
		t.Errorf("row 1 = %+v, want bid/ask only", series[1])
	}
	if err := series.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestReadSeriesCSVBadValue(t *testing.T) {
	_, err := ReadSeriesCSV(strings.NewReader("timestamp,price\n2024-01-01,abc\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("ReadSeriesCSV error = %v, want a line 2 error", err)
	}
	_, err = ReadSeriesCSV(strings.NewReader("timestamp,price\nyesterday,1\n"))
	if err == nil {
		t.Error("ReadSeriesCSV accepted an unparseable timestamp")
	}
}

func TestSeriesCSVRoundTrip(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	series := domain.Series{
		{Timestamp: t0, Price: 100.25, Bid: 100.2, Ask: 100.3},
		{Timestamp: t0.Add(time.Minute), Bid: 100.1, Ask: 100.4},
	}

	path := filepath.Join(t.TempDir(), "sample.csv")
	var buf bytes.Buffer
	if err := WriteSeriesCSV(&buf, series); err != nil {
		t.Fatalf("WriteSeriesCSV: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadSeriesCSV(path)
	if err != nil {
		t.Fatalf("LoadSeriesCSV: %v", err)
	}
	if len(got) != len(series) {
		t.Fatalf("LoadSeriesCSV returned %d rows, want %d", len(got), len(series))
	}
	for i := range series {
		g, w := got[i], series[i]
		if !g.Timestamp.Equal(w.Timestamp) || g.Price != w.Price || g.Bid != w.Bid || g.Ask != w.Ask {
			t.Errorf("row %d = %+v, want %+v", i, g, w)
		}
	}
}

func TestWriteTradesCSV(t *testing.T) {
	p, err := portfolio.New(1000, 0.001)
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if ok, err := p.ExecuteTrade(ts, "SPY", domain.SideBuy, 100, 2); !ok || err != nil {
		t.Fatalf("ExecuteTrade = (%v, %v)", ok, err)
	}

	var buf bytes.Buffer
	if err := WriteTradesCSV(&buf, p.Trades()); err != nil {
		t.Fatalf("WriteTradesCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header + 1 row:\n%s", len(lines), buf.String())
	}
	if lines[0] != "timestamp,symbol,side,price,quantity,value,commission,cash" {
		t.Errorf("header = %q", lines[0])
	}
	if want := "2024-01-02T00:00:00Z,SPY,buy,100,2,200,0.2,799.8"; lines[1] != want {
		t.Errorf("row = %q, want %q", lines[1], want)
	}
}

func TestParseTimestampMillis(t *testing.T) {
	got, err := ParseTimestamp("1704067200000")
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("ParseTimestamp(ms) = %v, want %v", got, want)
	}
}
