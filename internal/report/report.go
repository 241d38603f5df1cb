// Package report renders and exports finished backtest runs.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quantlab/internal/engine"
	"quantlab/internal/metrics"
	"quantlab/internal/store"
)

// File names written by Export.
const (
	TextFile   = "report.txt"
	JSONFile   = "results.json"
	TradesFile = "trades.csv"
	EquityFile = "equity.parquet"
)

// WriteText prints a run header followed by the metrics summary.
func WriteText(w io.Writer, res *engine.Results) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s%s\n", "Run:", res.RunID)
	fmt.Fprintf(&b, "%-20s%s\n", "Strategy:", res.Strategy)
	fmt.Fprintf(&b, "%-20s%s\n", "Symbol:", res.Symbol)
	fmt.Fprintf(&b, "%-20s%s to %s\n", "Period:", formatTime(res.Start), formatTime(res.End))
	fmt.Fprintf(&b, "%-20s%d\n", "Data Points:", len(res.EquityCurve))
	fmt.Fprintf(&b, "%-20s%s\n", "Commission:", metrics.FormatPct(res.Options.CommissionRate))
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	return metrics.WriteReport(w, res.Metrics)
}

func formatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.RFC3339)
}

// WriteJSON writes res as indented JSON.
func WriteJSON(w io.Writer, res *engine.Results) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// Files lists the paths Export wrote.
type Files struct {
	Dir    string
	Text   string
	JSON   string
	Trades string
	Equity string
}

// Export writes the text report, JSON results, trade log CSV and equity
// curve Parquet file into <dir>/<run id>/.
func Export(dir string, res *engine.Results) (Files, error) {
	runDir := filepath.Join(dir, res.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return Files{}, fmt.Errorf("creating %s: %w", runDir, err)
	}
	f := Files{
		Dir:    runDir,
		Text:   filepath.Join(runDir, TextFile),
		JSON:   filepath.Join(runDir, JSONFile),
		Trades: filepath.Join(runDir, TradesFile),
		Equity: filepath.Join(runDir, EquityFile),
	}

	if err := writeFile(f.Text, func(w io.Writer) error { return WriteText(w, res) }); err != nil {
		return Files{}, err
	}
	if err := writeFile(f.JSON, func(w io.Writer) error { return WriteJSON(w, res) }); err != nil {
		return Files{}, err
	}
	if err := writeFile(f.Trades, func(w io.Writer) error { return store.WriteTradesCSV(w, res.Trades) }); err != nil {
		return Files{}, err
	}
	if err := store.WriteEquityCurve(f.Equity, res.EquityCurve); err != nil {
		return Files{}, fmt.Errorf("writing %s: %w", f.Equity, err)
	}
	return f, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(out); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return out.Close()
}
