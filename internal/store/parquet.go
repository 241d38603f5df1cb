package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"quantlab/internal/domain"
	"quantlab/internal/portfolio"
)

var _ BarStore = (*ParquetStore)(nil)

// ParquetStore keeps daily bars in one Parquet file per symbol and year:
//
//	<DataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
type ParquetStore struct {
	DataDir string
}

// NewParquetStore returns a ParquetStore rooted at dataDir.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// barRow is the on-disk bar schema. Timestamps are Unix milliseconds.
type barRow struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"`
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

func newBarRow(symbol string, b domain.Bar) barRow {
	return barRow{
		Symbol:     symbol,
		Timestamp:  b.Timestamp.UnixMilli(),
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
		TradeCount: b.TradeCount,
		VWAP:       b.VWAP,
	}
}

func (r barRow) bar() domain.Bar {
	return domain.Bar{
		Symbol:     r.Symbol,
		Timestamp:  time.UnixMilli(r.Timestamp).UTC(),
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
		TradeCount: r.TradeCount,
		VWAP:       r.VWAP,
	}
}

// equityRow is the on-disk schema of an exported equity curve.
type equityRow struct {
	Timestamp      int64   `parquet:"timestamp,timestamp(millisecond)"`
	Equity         float64 `parquet:"equity"`
	Cash           float64 `parquet:"cash"`
	PositionsValue float64 `parquet:"positions_value"`
}

// WriteBars merges bars into their symbol/year files. An incoming bar
// replaces a stored bar with the same timestamp.
func (s *ParquetStore) WriteBars(_ context.Context, market string, bars []domain.Bar) error {
	files := make(map[string][]barRow)
	for _, b := range bars {
		sym := strings.ToUpper(b.Symbol)
		path := s.barFile(market, sym, b.Timestamp.UTC().Year())
		files[path] = append(files[path], newBarRow(sym, b))
	}

	for path, rows := range files {
		stored, err := parquet.ReadFile[barRow](path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if err := writeRows(path, mergeByTimestamp(stored, rows)); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}

// ReadBars returns symbol's bars within [start, end] in timestamp order.
// Years without a file are skipped, so an unknown symbol yields no bars.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error) {
	lo, hi := start.UnixMilli(), end.UnixMilli()
	var bars []domain.Bar
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		path := s.barFile(market, strings.ToUpper(symbol), year)
		rows, err := parquet.ReadFile[barRow](path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		for _, r := range rows {
			if r.Timestamp >= lo && r.Timestamp <= hi {
				bars = append(bars, r.bar())
			}
		}
	}
	return bars, nil
}

// ListSymbols returns the sorted symbols with bar data in market.
func (s *ParquetStore) ListSymbols(_ context.Context, market string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, market, "daily"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	slices.Sort(symbols)
	return symbols, nil
}

func (s *ParquetStore) barFile(market, symbol string, year int) string {
	return filepath.Join(s.DataDir, market, "daily", symbol, strconv.Itoa(year)+".parquet")
}

// WriteEquityCurve writes curve to a Parquet file at path, creating parent
// directories as needed.
func WriteEquityCurve(path string, curve []portfolio.EquityPoint) error {
	rows := make([]equityRow, len(curve))
	for i, p := range curve {
		rows[i] = equityRow{
			Timestamp:      p.Timestamp.UnixMilli(),
			Equity:         p.Equity,
			Cash:           p.Cash,
			PositionsValue: p.PositionsValue,
		}
	}
	return writeRows(path, rows)
}

// ReadEquityCurve reads a file written by WriteEquityCurve.
func ReadEquityCurve(path string) ([]portfolio.EquityPoint, error) {
	rows, err := parquet.ReadFile[equityRow](path)
	if err != nil {
		return nil, err
	}
	curve := make([]portfolio.EquityPoint, len(rows))
	for i, r := range rows {
		curve[i] = portfolio.EquityPoint{
			Timestamp:      time.UnixMilli(r.Timestamp).UTC(),
			Equity:         r.Equity,
			Cash:           r.Cash,
			PositionsValue: r.PositionsValue,
		}
	}
	return curve, nil
}

func writeRows[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, rows)
}

// mergeByTimestamp combines the rows of one symbol file, letting incoming
// rows win, and returns them sorted by timestamp.
func mergeByTimestamp(stored, incoming []barRow) []barRow {
	byTS := make(map[int64]barRow, len(stored)+len(incoming))
	for _, r := range stored {
		byTS[r.Timestamp] = r
	}
	for _, r := range incoming {
		byTS[r.Timestamp] = r
	}
	out := make([]barRow, 0, len(byTS))
	for _, r := range byTS {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b barRow) int { return cmp.Compare(a.Timestamp, b.Timestamp) })
	return out
}
