package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"tradesim/internal/series"
	"tradesim/internal/store"
)

// cmdAggregate buckets ticks into fixed-width bars. The ticks are kept in
// the tick store and the bars are written under a timeframe named after the
// bucket width, e.g. "1Min", ready for "run".
func cmdAggregate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("aggregate", flag.ExitOnError)
	csvPath := fs.String("csv", "", "tick CSV file (timestamp,bid_price,ask_price,bid_size,ask_size,side,trade_size)")
	symbol := fs.String("symbol", "", "symbol; defaults to the file name")
	market := fs.String("market", a.cfg.Backtest.Market, "us or crypto")
	width := fs.Duration("width", time.Minute, "bucket width")
	fs.Parse(args)

	if *csvPath == "" {
		return fmt.Errorf("-csv is required")
	}
	if *symbol == "" {
		*symbol = symbolFromPath(*csvPath)
	}

	ticks, err := store.LoadTicksCSV(*csvPath, *symbol)
	if err != nil {
		return err
	}
	if err := a.bars.WriteTicks(ctx, *market, ticks); err != nil {
		return err
	}

	buckets, err := series.AggregateTicks(*symbol, ticks, *width)
	if err != nil {
		return err
	}
	tf := timeframeFor(*width)
	if err := a.bars.WithTimeframe(tf).WriteBars(ctx, *market, series.BucketBars(buckets)); err != nil {
		return err
	}

	a.logger.Info("ticks aggregated",
		"symbol", *symbol,
		"ticks", len(ticks),
		"bars", len(buckets),
		"timeframe", tf,
	)
	fmt.Printf("%-20s  %10s  %10s  %10s  %10s  %8s  %8s  %10s\n",
		"BUCKET", "OPEN", "HIGH", "LOW", "CLOSE", "OBI", "FLOW", "SPREAD")
	for _, b := range buckets {
		fmt.Printf("%-20s  %10.4f  %10.4f  %10.4f  %10.4f  %8.3f  %8.2f  %10.5f\n",
			b.Timestamp.Format("2006-01-02 15:04:05"),
			b.Open, b.High, b.Low, b.Close,
			b.Imbalance, b.TradeFlow, b.Spread,
		)
	}
	return nil
}

// timeframeFor names a bucket width in Alpaca timeframe notation.
func timeframeFor(d time.Duration) string {
	switch {
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dDay", int64(d/(24*time.Hour)))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dHour", int64(d/time.Hour))
	case d%time.Minute == 0:
		return fmt.Sprintf("%dMin", int64(d/time.Minute))
	default:
		return fmt.Sprintf("%dSec", int64(d/time.Second))
	}
}
