package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quantlab.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATA_DIR", "SQLITE_PATH", "LOG_LEVEL",
		"APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
		"BACKTEST_INITIAL_CAPITAL", "BACKTEST_COMMISSION_RATE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/quantlab/data"
  sqlite_path: "/tmp/quantlab/quantlab.db"
server:
  host: "0.0.0.0"
  port: 9000
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  feed: "sip"
logging:
  level: "debug"
  format: "text"
gather:
  symbols: ["AAPL", "MSFT"]
  bars:
    start_date: "2020-01-01"
    batch_size: 500
    rate_limit_per_min: 150
backtest:
  source: "parquet"
  symbol: "AAPL"
  initial_capital: 250000
  commission_rate: 0.0005
strategy:
  name: "mean-reversion"
  params:
    window: 30
    entry_threshold: 1.5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/quantlab/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/quantlab/data")
	}
	if cfg.Storage.SQLitePath != "/tmp/quantlab/quantlab.db" {
		t.Errorf("Storage.SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "/tmp/quantlab/quantlab.db")
	}

	// -- Server --
	if got := cfg.Server.Addr(); got != "0.0.0.0:9000" {
		t.Errorf("Server.Addr() = %q, want %q", got, "0.0.0.0:9000")
	}

	// -- Alpaca --
	if cfg.Alpaca.APIKey != "test-key" || cfg.Alpaca.APISecret != "test-secret" || cfg.Alpaca.Feed != "sip" {
		t.Errorf("Alpaca = %+v", cfg.Alpaca)
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want debug/text", cfg.Logging)
	}

	// -- Gather --
	if len(cfg.Gather.Symbols) != 2 || cfg.Gather.Symbols[1] != "MSFT" {
		t.Errorf("Gather.Symbols = %v", cfg.Gather.Symbols)
	}
	if cfg.Gather.Bars.BatchSize != 500 || cfg.Gather.Bars.RateLimitPerMin != 150 {
		t.Errorf("Gather.Bars = %+v", cfg.Gather.Bars)
	}
	// Unset job fields take defaults.
	if cfg.Gather.Bars.MaxWorkers != 4 || cfg.Gather.Quotes.BatchSize != 10 {
		t.Errorf("Gather defaults not applied: %+v", cfg.Gather)
	}

	// -- Backtest --
	if cfg.Backtest.Source != SourceParquet || cfg.Backtest.Symbol != "AAPL" {
		t.Errorf("Backtest = %+v", cfg.Backtest)
	}
	if cfg.Backtest.InitialCapital != 250000 || cfg.Backtest.CommissionRate != 0.0005 {
		t.Errorf("Backtest capital/commission = %v/%v", cfg.Backtest.InitialCapital, cfg.Backtest.CommissionRate)
	}
	if cfg.Backtest.Timeframe != "1d" || cfg.Backtest.Sample.Seed != 42 {
		t.Errorf("Backtest defaults not applied: %+v", cfg.Backtest)
	}

	// -- Strategy --
	if cfg.Strategy.Name != "mean-reversion" || cfg.Strategy.Params["window"] != 30 {
		t.Errorf("Strategy = %+v", cfg.Strategy)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
backtest:
  initial_capital: 1000
`)

	t.Setenv("APCA_API_KEY_ID", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("BACKTEST_INITIAL_CAPITAL", "5000")
	t.Setenv("BACKTEST_COMMISSION_RATE", "0.002")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Backtest.InitialCapital != 5000 || cfg.Backtest.CommissionRate != 0.002 {
		t.Errorf("Backtest capital/commission = %v/%v, want 5000/0.002",
			cfg.Backtest.InitialCapital, cfg.Backtest.CommissionRate)
	}
}

func TestLoadBadEnvValue(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "logging:\n  level: info\n")
	t.Setenv("BACKTEST_INITIAL_CAPITAL", "lots")
	if _, err := Load(path); err == nil {
		t.Error("Load() with non-numeric BACKTEST_INITIAL_CAPITAL returned nil error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) error = %v, want os.ErrNotExist", err)
	}
}

func TestLoadOrDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_DIR", "/env/data")
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault(missing) returned error: %v", err)
	}
	if cfg.Storage.DataDir != "/env/data" || cfg.Backtest.Source != SourceSample {
		t.Errorf("cfg = %+v", cfg)
	}

	path := writeConfig(t, "backtest:\n  symbol: ETH\n")
	cfg, err = LoadOrDefault(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backtest.Symbol != "ETH" {
		t.Errorf("Backtest.Symbol = %q, want ETH", cfg.Backtest.Symbol)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capital", func(c *Config) { c.Backtest.InitialCapital = 0 }},
		{"commission 1", func(c *Config) { c.Backtest.CommissionRate = 1 }},
		{"negative commission", func(c *Config) { c.Backtest.CommissionRate = -0.1 }},
		{"unknown source", func(c *Config) { c.Backtest.Source = "mysql" }},
		{"csv without path", func(c *Config) { c.Backtest.Source = SourceCSV }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}

func TestPath(t *testing.T) {
	t.Setenv("QUANTLAB_CONFIG", "")
	if got := Path(); got != DefaultPath {
		t.Errorf("Path() = %q, want %q", got, DefaultPath)
	}
	t.Setenv("QUANTLAB_CONFIG", "/etc/quantlab.yaml")
	if got := Path(); got != "/etc/quantlab.yaml" {
		t.Errorf("Path() = %q, want %q", got, "/etc/quantlab.yaml")
	}
}
