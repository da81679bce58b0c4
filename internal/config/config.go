// Package config loads the YAML configuration for the gridbot platform and
// applies environment variable overrides and defaults.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the gridbot backtesting platform.
type Config struct {
	Storage    Storage         `yaml:"storage"`
	Alpaca     Alpaca          `yaml:"alpaca"`
	Logging    Logging         `yaml:"logging"`
	Backtest   BacktestConfig  `yaml:"backtest"`
	Indicators IndicatorConfig `yaml:"indicators"`
	Optimizer  OptimizerConfig `yaml:"optimizer"`
	Fetch      FetchConfig     `yaml:"fetch"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BacktestConfig defines simulation parameters shared by all runs.
type BacktestConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
	CommissionRate float64 `yaml:"commission_rate"`
	RiskFraction   float64 `yaml:"risk_fraction"`
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
	Interval       string  `yaml:"interval"`
}

// IndicatorConfig holds the windows used by the indicator preprocessor.
type IndicatorConfig struct {
	SMAWindows   []int   `yaml:"sma_windows"`
	BBWindow     int     `yaml:"bb_window"`
	BBStd        float64 `yaml:"bb_std"`
	RSIWindow    int     `yaml:"rsi_window"`
	ATRWindow    int     `yaml:"atr_window"`
	MACDFast     int     `yaml:"macd_fast"`
	MACDSlow     int     `yaml:"macd_slow"`
	MACDSignal   int     `yaml:"macd_signal"`
	MinChunkSize int     `yaml:"min_chunk_size"`
}

// OptimizerConfig bounds the parameter search.
type OptimizerConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

// FetchConfig holds parameters for the market-data fetch job.
type FetchConfig struct {
	StartDate       string `yaml:"start_date"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	MaxAttempts     int    `yaml:"max_attempts"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills unset
// fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// Default returns a Config with every field at its default value, for
// callers that run without a config file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Canonical Alpaca env vars take highest priority.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// applyDefaults fills zero-valued fields so callers never have to
// special-case an absent config section.
func applyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "gridbot.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Backtest.InitialCapital == 0 {
		cfg.Backtest.InitialCapital = 100000
	}
	if cfg.Backtest.CommissionRate == 0 {
		cfg.Backtest.CommissionRate = 0.001
	}
	if cfg.Backtest.RiskFraction == 0 {
		cfg.Backtest.RiskFraction = 0.02
	}
	if cfg.Backtest.RiskFreeRate == 0 {
		cfg.Backtest.RiskFreeRate = 0.02
	}
	if cfg.Backtest.Interval == "" {
		cfg.Backtest.Interval = "1d"
	}

	if len(cfg.Indicators.SMAWindows) == 0 {
		cfg.Indicators.SMAWindows = []int{20, 50, 200}
	}
	if cfg.Indicators.BBWindow == 0 {
		cfg.Indicators.BBWindow = 20
	}
	if cfg.Indicators.BBStd == 0 {
		cfg.Indicators.BBStd = 2
	}
	if cfg.Indicators.RSIWindow == 0 {
		cfg.Indicators.RSIWindow = 14
	}
	if cfg.Indicators.ATRWindow == 0 {
		cfg.Indicators.ATRWindow = 14
	}
	if cfg.Indicators.MACDFast == 0 {
		cfg.Indicators.MACDFast = 12
	}
	if cfg.Indicators.MACDSlow == 0 {
		cfg.Indicators.MACDSlow = 26
	}
	if cfg.Indicators.MACDSignal == 0 {
		cfg.Indicators.MACDSignal = 9
	}
	if cfg.Indicators.MinChunkSize == 0 {
		cfg.Indicators.MinChunkSize = 250
	}

	if cfg.Fetch.StartDate == "" {
		cfg.Fetch.StartDate = "2020-01-01"
	}
	if cfg.Fetch.RateLimitPerMin == 0 {
		cfg.Fetch.RateLimitPerMin = 200
	}
	if cfg.Fetch.MaxAttempts == 0 {
		cfg.Fetch.MaxAttempts = 3
	}
}
