// Package quantlab is a Go client for the backtest-server HTTP API.
package quantlab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned when the server has no run with the given ID.
var ErrNotFound = errors.New("run not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("quantlab: %d %s", e.StatusCode, e.Message)
}

// Options mirrors the server's run options.
type Options struct {
	InitialCapital float64 `json:"initial_capital,omitempty"`
	CommissionRate float64 `json:"commission_rate,omitempty"`
	RiskFreeRate   float64 `json:"risk_free_rate,omitempty"`
	PeriodsPerYear int     `json:"periods_per_year,omitempty"`
}

// BacktestRequest describes a run to submit.
type BacktestRequest struct {
	Strategy  string             `json:"strategy"`
	Params    map[string]float64 `json:"params,omitempty"`
	Source    string             `json:"source"`
	Symbol    string             `json:"symbol"`
	Market    string             `json:"market,omitempty"`
	Timeframe string             `json:"timeframe,omitempty"`
	Start     *time.Time         `json:"start,omitempty"`
	End       *time.Time         `json:"end,omitempty"`
	Limit     int                `json:"limit,omitempty"`
	Options   Options            `json:"options"`
}

// Metrics is the performance summary of a run.
type Metrics struct {
	TotalReturn         float64  `json:"total_return"`
	TotalReturnPct      float64  `json:"total_return_pct"`
	SharpeRatio         float64  `json:"sharpe_ratio"`
	MaxDrawdown         float64  `json:"max_drawdown"`
	MaxDrawdownPct      float64  `json:"max_drawdown_pct"`
	MaxDrawdownDuration int      `json:"max_drawdown_duration"`
	TotalTrades         int      `json:"total_trades"`
	InitialCapital      float64  `json:"initial_capital"`
	FinalEquity         float64  `json:"final_equity"`
	Profit              float64  `json:"profit"`
	Volatility          *float64 `json:"volatility,omitempty"`
	AvgReturn           *float64 `json:"avg_return,omitempty"`
	RoundTrips          int      `json:"round_trips"`
	WinRate             *float64 `json:"win_rate,omitempty"`
	ProfitFactor        *float64 `json:"profit_factor,omitempty"`
}

// RunSummary is returned when a run is created or listed.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	Strategy  string    `json:"strategy"`
	Symbol    string    `json:"symbol"`
	Source    string    `json:"source"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Rows      int       `json:"rows"`
	Trades    int       `json:"trades"`
	Metrics   *Metrics  `json:"metrics"`
	CreatedAt time.Time `json:"created_at"`
}

// EquityPoint is one row of a run's equity curve.
type EquityPoint struct {
	Timestamp      time.Time `json:"timestamp"`
	Equity         float64   `json:"equity"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
}

// Catalog lists the strategies and data sources the server knows.
type Catalog struct {
	Strategies []string `json:"strategies"`
	Sources    []string `json:"sources"`
}

// Client provides a Go SDK for interacting with the backtest-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Catalog fetches the available strategies and sources.
func (c *Client) Catalog(ctx context.Context) (Catalog, error) {
	var out Catalog
	err := c.do(ctx, http.MethodGet, "/api/strategies", nil, &out)
	return out, err
}

// RunBacktest submits req and waits for the run to finish.
func (c *Client) RunBacktest(ctx context.Context, req BacktestRequest) (RunSummary, error) {
	var out RunSummary
	err := c.do(ctx, http.MethodPost, "/api/backtests", req, &out)
	return out, err
}

// ListRuns returns stored runs, newest first.
func (c *Client) ListRuns(ctx context.Context) ([]RunSummary, error) {
	var out []RunSummary
	err := c.do(ctx, http.MethodGet, "/api/backtests", nil, &out)
	return out, err
}

// GetRun returns the full results of a run as raw JSON.
func (c *Client) GetRun(ctx context.Context, id string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, http.MethodGet, "/api/backtests/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Equity returns the equity curve of a run.
func (c *Client) Equity(ctx context.Context, id string) ([]EquityPoint, error) {
	var out []EquityPoint
	err := c.do(ctx, http.MethodGet, "/api/backtests/"+url.PathEscape(id)+"/equity", nil, &out)
	return out, err
}

// TradesCSV returns the trade log of a run as CSV.
func (c *Client) TradesCSV(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/backtests/"+url.PathEscape(id)+"/trades", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// DeleteRun removes a stored run.
func (c *Client) DeleteRun(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/backtests/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

// send performs the request and converts error statuses into *APIError.
func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var e struct {
		Error string `json:"error"`
	}
	if json.NewDecoder(resp.Body).Decode(&e) == nil {
		apiErr.Message = e.Error
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, apiErr)
	}
	return nil, apiErr
}
