package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"tradesim/internal/config"
	"tradesim/internal/domain"
	"tradesim/internal/gather"
	"tradesim/internal/store"
	"tradesim/internal/util"
)

func main() {
	symbols := flag.String("symbols", "", "comma-separated symbols, overrides gather.symbols")
	start := flag.String("start", "", "first date, YYYY-MM-DD, overrides gather.start_date")
	end := flag.String("end", "", "last date, YYYY-MM-DD, overrides gather.end_date")
	timeframe := flag.String("timeframe", "", "bar timeframe such as 1Day or 15Min, overrides gather.timeframe")
	logDir := flag.String("log-dir", os.TempDir(), "directory for the daily log file; empty disables it")
	flag.Parse()

	cfgPath := "config/tradesim.yaml"
	if p := os.Getenv("TRADESIM_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *symbols != "" {
		cfg.Gather.Symbols = strings.Split(*symbols, ",")
	}
	if *start != "" {
		cfg.Gather.StartDate = *start
	}
	if *end != "" {
		cfg.Gather.EndDate = *end
	}
	if *timeframe != "" {
		cfg.Gather.Timeframe = *timeframe
	}

	// Dual logger: stdout + log file.
	var w io.Writer = os.Stdout
	var logFileName string
	if *logDir != "" {
		logFileName = filepath.Join(*logDir, fmt.Sprintf("tradesim-gather-%s.log", time.Now().Format("2006-01-02")))
		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("failed to create log file: %v", err)
		}
		defer logFile.Close()
		w = io.MultiWriter(os.Stdout, logFile)
	}
	logger := util.NewLoggerTo(w, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	pstore := store.NewParquetStore(cfg.Storage.DataDir).WithTimeframe(cfg.Gather.Timeframe)
	progressDir := filepath.Join(cfg.Storage.DataDir, string(domain.MarketUS), "progress", strings.ToLower(cfg.Gather.Timeframe))

	gatherer, err := gather.NewAlpacaBarGatherer(cfg.Alpaca, cfg.Gather, pstore, progressDir)
	if err != nil {
		log.Fatalf("failed to create gatherer: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting tradesim-gather",
		"gatherer", gatherer.Name(),
		"logFile", logFileName,
		"timeframe", cfg.Gather.Timeframe,
		"symbols", len(cfg.Gather.Symbols),
	)
	if err := gatherer.Run(ctx); err != nil {
		log.Fatalf("gather error: %v", err)
	}
}
