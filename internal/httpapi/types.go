// Package httpapi serves backtests over HTTP: list strategies, submit runs
// and fetch stored results.
package httpapi

import (
	"time"

	"quantlab/internal/engine"
	"quantlab/internal/metrics"
)

// CatalogJSON lists what a backtest request may name.
type CatalogJSON struct {
	Strategies []string `json:"strategies"`
	Sources    []string `json:"sources"`
}

// RunSummaryJSON is the short form of a stored run.
type RunSummaryJSON struct {
	RunID     string           `json:"run_id"`
	Strategy  string           `json:"strategy"`
	Symbol    string           `json:"symbol"`
	Source    string           `json:"source"`
	Start     time.Time        `json:"start"`
	End       time.Time        `json:"end"`
	Rows      int              `json:"rows"`
	Trades    int              `json:"trades"`
	Metrics   *metrics.Metrics `json:"metrics"`
	CreatedAt time.Time        `json:"created_at"`
}

// run is one completed backtest kept in memory.
type run struct {
	source    string
	results   *engine.Results
	createdAt time.Time
}

func (r *run) summary() RunSummaryJSON {
	res := r.results
	return RunSummaryJSON{
		RunID:     res.RunID,
		Strategy:  res.Strategy,
		Symbol:    res.Symbol,
		Source:    r.source,
		Start:     res.Start,
		End:       res.End,
		Rows:      len(res.EquityCurve),
		Trades:    len(res.Trades),
		Metrics:   res.Metrics,
		CreatedAt: r.createdAt,
	}
}
