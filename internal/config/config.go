package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for tradesim.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Gather   GatherConfig   `yaml:"gather"`
	Backtest BacktestConfig `yaml:"backtest"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints. BaseURL is the trading API, used
// only for the market calendar.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GatherConfig controls historical bar downloads.
type GatherConfig struct {
	Symbols         []string `yaml:"symbols"`
	StartDate       string   `yaml:"start_date"`
	EndDate         string   `yaml:"end_date"`
	Timeframe       string   `yaml:"timeframe"`
	BatchSize       int      `yaml:"batch_size"`
	MaxWorkers      int      `yaml:"max_workers"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
	MaxRetries      int      `yaml:"max_retries"`
}

// Sizing modes.
const (
	SizingAllIn     = "all_in"
	SizingVolScaled = "vol_scaled"
)

// BacktestConfig holds every option of a simulation run. It is copied by
// value into each run and never mutated afterwards.
type BacktestConfig struct {
	Strategy   string `yaml:"strategy"`
	Symbol     string `yaml:"symbol"`
	PairSymbol string `yaml:"pair_symbol"`
	Benchmark  string `yaml:"benchmark"`
	Market     string `yaml:"market"`
	StartDate  string `yaml:"start_date"`
	EndDate    string `yaml:"end_date"`

	// Signal parameters.
	ShortWindow int     `yaml:"short_window"`
	LongWindow  int     `yaml:"long_window"`
	Lookback    int     `yaml:"lookback"`
	Window      int     `yaml:"window"`
	NumStd      float64 `yaml:"num_std"`
	ZThreshold  float64 `yaml:"z_threshold"`
	EntryZ      float64 `yaml:"entry_z"`
	ExitZ       float64 `yaml:"exit_z"`
	Latency     int     `yaml:"latency"`

	// Execution and sizing.
	Slippage    float64 `yaml:"slippage"`
	Fee         float64 `yaml:"fee"`
	Capital     float64 `yaml:"capital"`
	Sizing      string  `yaml:"sizing"`
	MaxVol      float64 `yaml:"max_vol"`
	VolLookback int     `yaml:"vol_lookback"`
	AllowShort  bool    `yaml:"allow_short"`

	// Annualisation. BarsPerYear wins over Timeframe when positive.
	BarsPerYear float64 `yaml:"bars_per_year"`
	Timeframe   string  `yaml:"timeframe"`

	MaxWorkers int `yaml:"max_workers"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Default returns the configuration used when a key is absent from the YAML
// file.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/tradesim.db",
		},
		Alpaca: Alpaca{
			BaseURL: "https://paper-api.alpaca.markets",
			DataURL: "https://data.alpaca.markets",
			Feed:    "iex",
		},
		Logging: Logging{Level: "info", Format: "json"},
		Gather: GatherConfig{
			StartDate:       "2020-01-01",
			Timeframe:       "1Day",
			BatchSize:       100,
			MaxWorkers:      4,
			RateLimitPerMin: 200,
			MaxRetries:      3,
		},
		Backtest: DefaultBacktest(),
	}
}

// DefaultBacktest returns the default simulation options.
func DefaultBacktest() BacktestConfig {
	return BacktestConfig{
		Strategy:    "crossover",
		Market:      "us",
		ShortWindow: 20,
		LongWindow:  50,
		Lookback:    20,
		Window:      20,
		NumStd:      2,
		ZThreshold:  1,
		EntryZ:      -1,
		ExitZ:       0,
		Latency:     0,
		Slippage:    0.0005,
		Fee:         0.0003,
		Capital:     10000,
		Sizing:      SizingAllIn,
		MaxVol:      0.02,
		VolLookback: 60,
		Timeframe:   "1Day",
		MaxWorkers:  4,
	}
}

// Validate rejects option combinations no run can execute.
func (b BacktestConfig) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}

	switch b.Strategy {
	case "crossover":
		positive("short_window", b.ShortWindow)
		positive("long_window", b.LongWindow)
		if b.ShortWindow >= b.LongWindow {
			errs = append(errs, fmt.Errorf("short_window (%d) must be less than long_window (%d)", b.ShortWindow, b.LongWindow))
		}
	case "momentum":
		positive("lookback", b.Lookback)
	case "band":
		if b.Window < 2 {
			errs = append(errs, fmt.Errorf("window must be at least 2, got %d", b.Window))
		}
		if b.NumStd <= 0 {
			errs = append(errs, fmt.Errorf("num_std must be positive, got %v", b.NumStd))
		}
	case "pair":
		if b.Window < 2 {
			errs = append(errs, fmt.Errorf("window must be at least 2, got %d", b.Window))
		}
		if b.ZThreshold <= 0 {
			errs = append(errs, fmt.Errorf("z_threshold must be positive, got %v", b.ZThreshold))
		}
	case "meanrev":
		if b.Lookback < 2 {
			errs = append(errs, fmt.Errorf("lookback must be at least 2, got %d", b.Lookback))
		}
		if b.EntryZ >= b.ExitZ {
			errs = append(errs, fmt.Errorf("entry_z (%v) must be below exit_z (%v)", b.EntryZ, b.ExitZ))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown strategy %q", b.Strategy))
	}

	if b.Latency < 0 {
		errs = append(errs, fmt.Errorf("latency must not be negative, got %d", b.Latency))
	}
	if b.Slippage < 0 || b.Slippage >= 1 {
		errs = append(errs, fmt.Errorf("slippage must be in [0, 1), got %v", b.Slippage))
	}
	if b.Fee < 0 || b.Fee >= 1 {
		errs = append(errs, fmt.Errorf("fee must be in [0, 1), got %v", b.Fee))
	}
	if b.Capital <= 0 {
		errs = append(errs, fmt.Errorf("capital must be positive, got %v", b.Capital))
	}

	switch b.Sizing {
	case SizingAllIn:
	case SizingVolScaled:
		if b.MaxVol <= 0 {
			errs = append(errs, fmt.Errorf("max_vol must be positive, got %v", b.MaxVol))
		}
		if b.VolLookback < 2 {
			errs = append(errs, fmt.Errorf("vol_lookback must be at least 2, got %d", b.VolLookback))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sizing %q", b.Sizing))
	}

	if b.BarsPerYear < 0 {
		errs = append(errs, fmt.Errorf("bars_per_year must not be negative, got %v", b.BarsPerYear))
	}
	if b.MaxWorkers < 0 {
		errs = append(errs, fmt.Errorf("max_workers must not be negative, got %d", b.MaxWorkers))
	}

	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path on top of
// Default, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOptional is like Load but falls back to Default, plus environment
// overrides, when no file exists at path.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return cfg, err
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

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars take precedence, matching the SDK.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
