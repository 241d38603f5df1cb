package store

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"quantlab/internal/domain"
	"quantlab/internal/portfolio"
)

// marketRow is one line of a market-data CSV. Fields stay strings so blank
// cells and mixed timestamp layouts can be handled here rather than by the
// decoder.
type marketRow struct {
	Timestamp string `csv:"timestamp"`
	Price     string `csv:"price"`
	Bid       string `csv:"bid_1"`
	Ask       string `csv:"ask_1"`
}

// tradeRow is one line of an exported trade log.
type tradeRow struct {
	Timestamp  string `csv:"timestamp"`
	Symbol     string `csv:"symbol"`
	Side       string `csv:"side"`
	Price      string `csv:"price"`
	Quantity   string `csv:"quantity"`
	Value      string `csv:"value"`
	Commission string `csv:"commission"`
	Cash       string `csv:"cash"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339, "YYYY-MM-DD[ HH:MM:SS[.frac]]" (UTC) or
// a Unix time in seconds or milliseconds.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		// Values past 1e11 cannot be seconds for any realistic date.
		if n > 1e11 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func parseOptionalFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// ReadSeriesCSV decodes a market-data CSV with a header row. Recognised
// columns are timestamp, price, bid_1 and ask_1; others are ignored. Rows
// are returned in file order and are not validated.
func ReadSeriesCSV(r io.Reader) (domain.Series, error) {
	var rows []*marketRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("decode csv: %w", err)
	}

	series := make(domain.Series, 0, len(rows))
	for i, row := range rows {
		ts, err := ParseTimestamp(row.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		var p domain.MarketPoint
		p.Timestamp = ts
		if p.Price, err = parseOptionalFloat(row.Price); err != nil {
			return nil, fmt.Errorf("line %d: price: %w", i+2, err)
		}
		if p.Bid, err = parseOptionalFloat(row.Bid); err != nil {
			return nil, fmt.Errorf("line %d: bid_1: %w", i+2, err)
		}
		if p.Ask, err = parseOptionalFloat(row.Ask); err != nil {
			return nil, fmt.Errorf("line %d: ask_1: %w", i+2, err)
		}
		series = append(series, p)
	}
	return series, nil
}

// LoadSeriesCSV opens path and decodes it with ReadSeriesCSV.
func LoadSeriesCSV(path string) (domain.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSeriesCSV(f)
}

// WriteSeriesCSV encodes series in the layout ReadSeriesCSV reads.
func WriteSeriesCSV(w io.Writer, series domain.Series) error {
	rows := make([]marketRow, len(series))
	for i, p := range series {
		rows[i] = marketRow{
			Timestamp: p.Timestamp.UTC().Format(time.RFC3339Nano),
			Price:     formatFloat(p.Price),
			Bid:       formatFloat(p.Bid),
			Ask:       formatFloat(p.Ask),
		}
	}
	return gocsv.Marshal(rows, w)
}

// WriteTradesCSV writes the trade log with one row per execution.
func WriteTradesCSV(w io.Writer, trades []portfolio.Trade) error {
	rows := make([]tradeRow, len(trades))
	for i, t := range trades {
		rows[i] = tradeRow{
			Timestamp:  t.Timestamp.UTC().Format(time.RFC3339Nano),
			Symbol:     t.Symbol,
			Side:       string(t.Side),
			Price:      t.Price.String(),
			Quantity:   t.Quantity.String(),
			Value:      t.Value().String(),
			Commission: t.Commission.String(),
			Cash:       t.Cash.String(),
		}
	}
	return gocsv.Marshal(rows, w)
}

func formatFloat(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
