package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tradesim.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATA_DIR", "SQLITE_PATH", "ALPACA_API_KEY", "ALPACA_API_SECRET",
		"APCA_API_KEY_ID", "APCA_API_SECRET_KEY", "ALPACA_BASE_URL", "ALPACA_DATA_URL", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/tradesim/data"
  sqlite_path: "/tmp/tradesim/tradesim.db"
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
logging:
  level: "debug"
  format: "text"
gather:
  symbols: ["SPY", "QQQ"]
  start_date: "2021-01-01"
  rate_limit_per_min: 100
backtest:
  strategy: meanrev
  symbol: SPY
  lookback: 30
  entry_z: -1.5
  exit_z: 0.25
  sizing: vol_scaled
  capital: 1000000
  timeframe: 1Min
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/tradesim/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/tradesim/data")
	}

	// -- Alpaca --
	if cfg.Alpaca.APIKey != "test-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "test-key")
	}
	if cfg.Alpaca.DataURL != "https://data.alpaca.markets" {
		t.Errorf("Alpaca.DataURL = %q, want default", cfg.Alpaca.DataURL)
	}

	// -- Logging --
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "text")
	}

	// -- Gather --
	if len(cfg.Gather.Symbols) != 2 || cfg.Gather.Symbols[1] != "QQQ" {
		t.Errorf("Gather.Symbols = %v, want [SPY QQQ]", cfg.Gather.Symbols)
	}
	if cfg.Gather.MaxRetries != 3 {
		t.Errorf("Gather.MaxRetries = %d, want default 3", cfg.Gather.MaxRetries)
	}

	// -- Backtest --
	b := cfg.Backtest
	if b.Strategy != "meanrev" || b.Lookback != 30 {
		t.Errorf("Backtest strategy/lookback = %q/%d, want meanrev/30", b.Strategy, b.Lookback)
	}
	if b.EntryZ != -1.5 || b.ExitZ != 0.25 {
		t.Errorf("Backtest entry/exit = %v/%v, want -1.5/0.25", b.EntryZ, b.ExitZ)
	}
	if b.Slippage != 0.0005 || b.Fee != 0.0003 {
		t.Errorf("Backtest slippage/fee = %v/%v, want defaults 0.0005/0.0003", b.Slippage, b.Fee)
	}
	if b.VolLookback != 60 {
		t.Errorf("Backtest.VolLookback = %d, want default 60", b.VolLookback)
	}
	if err := b.Validate(); err != nil {
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
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("APCA_API_SECRET_KEY", "apca-secret")
	t.Setenv("ALPACA_BASE_URL", "https://api.alpaca.markets")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	if cfg.Alpaca.APISecret != "apca-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (APCA override)", cfg.Alpaca.APISecret, "apca-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Alpaca.BaseURL != "https://api.alpaca.markets" {
		t.Errorf("Alpaca.BaseURL = %q, want %q (env override)", cfg.Alpaca.BaseURL, "https://api.alpaca.markets")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOptional(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_DIR", "/srv/bars")

	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg.Storage.DataDir != "/srv/bars" {
		t.Errorf("DataDir = %q, want %q", cfg.Storage.DataDir, "/srv/bars")
	}
	if cfg.Backtest.Capital != 10000 {
		t.Errorf("Backtest.Capital = %v, want 10000", cfg.Backtest.Capital)
	}

	if _, err := LoadOptional(writeConfig(t, "storage: [")); err == nil {
		t.Error("expected parse error for malformed file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*BacktestConfig)
		wantErr string
	}{
		{"defaults", func(*BacktestConfig) {}, ""},
		{"crossed windows", func(b *BacktestConfig) { b.ShortWindow = 50 }, "short_window"},
		{"unknown strategy", func(b *BacktestConfig) { b.Strategy = "astrology" }, "unknown strategy"},
		{"negative fee", func(b *BacktestConfig) { b.Fee = -0.1 }, "fee"},
		{"zero capital", func(b *BacktestConfig) { b.Capital = 0 }, "capital"},
		{"negative latency", func(b *BacktestConfig) { b.Latency = -1 }, "latency"},
		{"hysteresis inverted", func(b *BacktestConfig) {
			b.Strategy = "meanrev"
			b.EntryZ, b.ExitZ = 1, 0
		}, "entry_z"},
		{"vol sizing without lookback", func(b *BacktestConfig) {
			b.Sizing = SizingVolScaled
			b.VolLookback = 1
		}, "vol_lookback"},
		{"band needs window", func(b *BacktestConfig) {
			b.Strategy = "band"
			b.Window = 1
		}, "window"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := DefaultBacktest()
			tt.mutate(&b)
			err := b.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}
