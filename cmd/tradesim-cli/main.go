package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"tradesim/internal/config"
	"tradesim/internal/store"
	"tradesim/internal/util"
)

const version = "0.1.0"

// app holds what every subcommand needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	bars   *store.ParquetStore
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tradesim-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version      Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  strategies   List the signal generators\n")
		fmt.Fprintf(os.Stderr, "  run          Run one backtest\n")
		fmt.Fprintf(os.Stderr, "  sweep        Run a crossover window grid concurrently\n")
		fmt.Fprintf(os.Stderr, "  runs         List saved runs\n")
		fmt.Fprintf(os.Stderr, "  show <id>    Print a saved run\n")
		fmt.Fprintf(os.Stderr, "  aggregate    Bucket a tick CSV into bars\n")
		fmt.Fprintf(os.Stderr, "\nThe config file is read from $TRADESIM_CONFIG (default config/tradesim.yaml).\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "version" {
		fmt.Printf("tradesim-cli %s\n", version)
		return
	}

	a := setup()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd {
	case "strategies":
		err = cmdStrategies()
	case "run":
		err = cmdRun(ctx, a, args)
	case "sweep":
		err = cmdSweep(ctx, a, args)
	case "runs":
		err = cmdRuns(ctx, a, args)
	case "show":
		err = cmdShow(ctx, a, args)
	case "aggregate":
		err = cmdAggregate(ctx, a, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func setup() *app {
	cfgPath := "config/tradesim.yaml"
	if p := os.Getenv("TRADESIM_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.LoadOptional(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Reports go to stdout, logs to stderr.
	logger := util.NewLoggerTo(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	return &app{
		cfg:    cfg,
		logger: logger,
		bars:   store.NewParquetStore(cfg.Storage.DataDir).WithTimeframe(cfg.Backtest.Timeframe),
	}
}

func (a *app) openRuns() (*store.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(a.cfg.Storage.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(a.cfg.Storage.SQLitePath)
}
