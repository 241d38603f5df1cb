package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when QUANTLAB_CONFIG is unset.
const DefaultPath = "config/quantlab.yaml"

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Market-data sources a backtest can read from.
const (
	SourceSample  = "sample"
	SourceCSV     = "csv"
	SourceParquet = "parquet"
	SourceSQLite  = "sqlite"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for quantlab.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Gather   GatherConfig   `yaml:"gather"`
	Backtest BacktestConfig `yaml:"backtest"`
	Strategy StrategyConfig `yaml:"strategy"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"` // trading API, used for the market calendar
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GatherConfig controls the Alpaca download jobs.
type GatherConfig struct {
	Symbols []string        `yaml:"symbols"`
	Bars    GatherJobConfig `yaml:"bars"`
	Quotes  GatherJobConfig `yaml:"quotes"`
}

// GatherJobConfig holds parameters for a single data gathering job.
type GatherJobConfig struct {
	StartDate       string `yaml:"start_date"`
	BatchSize       int    `yaml:"batch_size"`
	MaxWorkers      int    `yaml:"max_workers"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// BacktestConfig selects the data a backtest runs on and the ledger
// parameters.
type BacktestConfig struct {
	Source         string  `yaml:"source"`
	Symbol         string  `yaml:"symbol"`
	Market         string  `yaml:"market"`
	Timeframe      string  `yaml:"timeframe"`
	Start          string  `yaml:"start"`
	End            string  `yaml:"end"`
	CSVPath        string  `yaml:"csv_path"`
	InitialCapital float64 `yaml:"initial_capital"`
	CommissionRate float64 `yaml:"commission_rate"`
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
	Sample         Sample  `yaml:"sample"`
}

// Sample parameterizes the synthetic random-walk source.
type Sample struct {
	Points       int     `yaml:"points"`
	InitialPrice float64 `yaml:"initial_price"`
	Volatility   float64 `yaml:"volatility"`
	Seed         int64   `yaml:"seed"`
}

// StrategyConfig names the strategy to run and its parameters.
type StrategyConfig struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns QUANTLAB_CONFIG when set, else DefaultPath.
func Path() string {
	if v := os.Getenv("QUANTLAB_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, fills defaults,
// loads a .env file from the working directory if one exists, and then
// applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return cfg, loadEnv(cfg)
}

// LoadOrDefault is Load, except that a missing file yields Default() with
// the .env file and environment overrides still applied.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}
	cfg = Default()
	return cfg, loadEnv(cfg)
}

func loadEnv(cfg *Config) error {
	// .env never overrides variables already set in the process.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return applyEnvOverrides(cfg)
}

// Default returns a configuration with every default applied, for commands
// that can run without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/quantlab.db"
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Alpaca.Feed == "" {
		c.Alpaca.Feed = "iex"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	defaultJob(&c.Gather.Bars, 100, 4, 200)
	defaultJob(&c.Gather.Quotes, 10, 2, 200)

	b := &c.Backtest
	if b.Source == "" {
		b.Source = SourceSample
	}
	if b.Symbol == "" {
		b.Symbol = "BTC-PERPETUAL"
	}
	if b.Market == "" {
		b.Market = "us"
	}
	if b.Timeframe == "" {
		b.Timeframe = "1d"
	}
	if b.InitialCapital == 0 {
		b.InitialCapital = 100000
	}
	if b.CommissionRate == 0 {
		b.CommissionRate = 0.001
	}
	if b.Sample.Points == 0 {
		b.Sample.Points = 1000
	}
	if b.Sample.InitialPrice == 0 {
		b.Sample.InitialPrice = 50000
	}
	if b.Sample.Volatility == 0 {
		b.Sample.Volatility = 0.02
	}
	if b.Sample.Seed == 0 {
		b.Sample.Seed = 42
	}
	if c.Strategy.Name == "" {
		c.Strategy.Name = "sma-cross"
	}
}

func defaultJob(j *GatherJobConfig, batch, workers, rate int) {
	if j.BatchSize == 0 {
		j.BatchSize = batch
	}
	if j.MaxWorkers == 0 {
		j.MaxWorkers = workers
	}
	if j.RateLimitPerMin == 0 {
		j.RateLimitPerMin = rate
	}
}

// Validate reports the first out-of-range setting.
func (c *Config) Validate() error {
	b := c.Backtest
	if b.InitialCapital <= 0 {
		return fmt.Errorf("%w: backtest.initial_capital must be positive, got %v", ErrInvalid, b.InitialCapital)
	}
	if b.CommissionRate < 0 || b.CommissionRate >= 1 {
		return fmt.Errorf("%w: backtest.commission_rate must be in [0, 1), got %v", ErrInvalid, b.CommissionRate)
	}
	switch b.Source {
	case SourceSample, SourceCSV, SourceParquet, SourceSQLite:
	default:
		return fmt.Errorf("%w: unknown backtest.source %q", ErrInvalid, b.Source)
	}
	if b.Source == SourceCSV && b.CSVPath == "" {
		return fmt.Errorf("%w: backtest.csv_path is required for the csv source", ErrInvalid)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalid, c.Server.Port)
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars, the names the SDK itself reads.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if err := envFloat("BACKTEST_INITIAL_CAPITAL", &cfg.Backtest.InitialCapital); err != nil {
		return err
	}
	return envFloat("BACKTEST_COMMISSION_RATE", &cfg.Backtest.CommissionRate)
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}
