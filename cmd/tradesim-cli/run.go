package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"tradesim/internal/config"
	"tradesim/internal/report"
	"tradesim/internal/series"
	"tradesim/internal/store"
	"tradesim/internal/strategy"
	"tradesim/internal/strategy/builtins"
)

func cmdStrategies() error {
	for _, k := range strategy.Kinds() {
		fmt.Println(k)
	}
	return nil
}

// backtestFlags binds the common simulation options onto fs, defaulting to
// the values in bt.
func backtestFlags(fs *flag.FlagSet, bt *config.BacktestConfig) {
	fs.StringVar(&bt.Strategy, "strategy", bt.Strategy, "crossover, momentum, band, pair or meanrev")
	fs.StringVar(&bt.Symbol, "symbol", bt.Symbol, "primary symbol")
	fs.StringVar(&bt.PairSymbol, "pair", bt.PairSymbol, "second symbol of a pair strategy")
	fs.StringVar(&bt.Benchmark, "benchmark", bt.Benchmark, "benchmark symbol")
	fs.StringVar(&bt.Market, "market", bt.Market, "us or crypto")
	fs.StringVar(&bt.StartDate, "start", bt.StartDate, "first date, YYYY-MM-DD")
	fs.StringVar(&bt.EndDate, "end", bt.EndDate, "last date, YYYY-MM-DD")
	fs.StringVar(&bt.Sizing, "sizing", bt.Sizing, "all_in or vol_scaled")
	fs.Float64Var(&bt.Capital, "capital", bt.Capital, "starting cash")
	fs.Float64Var(&bt.Slippage, "slippage", bt.Slippage, "slippage fraction")
	fs.Float64Var(&bt.Fee, "fee", bt.Fee, "fee fraction of notional")
	fs.IntVar(&bt.Latency, "latency", bt.Latency, "bars between signal and execution")
	fs.BoolVar(&bt.AllowShort, "allow-short", bt.AllowShort, "allow negative holdings")
}

// csvFiles names CSV sources that replace the bar store.
type csvFiles struct {
	primary, pair, benchmark string
}

func (c csvFiles) set() bool { return c.primary != "" }

func (c *csvFiles) bind(fs *flag.FlagSet) {
	fs.StringVar(&c.primary, "csv", "", "read primary bars from this CSV instead of the store")
	fs.StringVar(&c.pair, "pair-csv", "", "CSV for the pair symbol")
	fs.StringVar(&c.benchmark, "benchmark-csv", "", "CSV for the benchmark symbol")
}

// load reads the CSV files named in c. Symbols default to the file name.
func (c csvFiles) load(bt *config.BacktestConfig) (strategy.Input, *series.Series, error) {
	var in strategy.Input
	var err error
	if bt.Symbol == "" {
		bt.Symbol = symbolFromPath(c.primary)
	}
	if in.Primary, err = loadCSVSeries(c.primary, bt.Symbol); err != nil {
		return in, nil, err
	}
	if bt.Strategy == string(strategy.KindPair) {
		if c.pair == "" {
			return in, nil, fmt.Errorf("pair strategy needs -pair-csv")
		}
		if bt.PairSymbol == "" {
			bt.PairSymbol = symbolFromPath(c.pair)
		}
		if in.Secondary, err = loadCSVSeries(c.pair, bt.PairSymbol); err != nil {
			return in, nil, err
		}
	}
	var bench *series.Series
	if c.benchmark == "" {
		bt.Benchmark = ""
	} else {
		if bt.Benchmark == "" {
			bt.Benchmark = symbolFromPath(c.benchmark)
		}
		if bench, err = loadCSVSeries(c.benchmark, bt.Benchmark); err != nil {
			return in, nil, err
		}
	}
	return in, bench, nil
}

func loadCSVSeries(path, symbol string) (*series.Series, error) {
	bars, err := store.LoadBarsCSV(path, symbol)
	if err != nil {
		return nil, err
	}
	return series.New(symbol, bars)
}

func symbolFromPath(path string) string {
	base := filepath.Base(path)
	return strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base)))
}

func cmdRun(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	bt := a.cfg.Backtest
	backtestFlags(fs, &bt)
	var csv csvFiles
	csv.bind(fs)
	asJSON := fs.Bool("json", false, "print the report as JSON")
	dump := fs.Bool("dump", false, "write the per-bar states to Parquet")
	noSave := fs.Bool("no-save", false, "do not record the run in SQLite")
	fs.Parse(args)

	var (
		in    strategy.Input
		bench *series.Series
		err   error
	)
	if csv.set() {
		if in, bench, err = csv.load(&bt); err != nil {
			return err
		}
	}

	gen, err := builtins.New(bt)
	if err != nil {
		return err
	}
	reg := strategy.NewRegistry()
	reg.Register(gen)
	backtester := strategy.NewBacktester(a.bars, reg, a.logger)
	if !*noSave {
		runs, err := a.openRuns()
		if err != nil {
			return err
		}
		defer runs.Close()
		backtester.WithRunStore(runs)
	}

	spec := strategy.RunSpec{Strategy: gen.Name(), Config: bt}
	var res *strategy.BacktestResult
	if csv.set() {
		res, err = backtester.RunSeries(ctx, spec, in, bench)
	} else {
		res, err = backtester.Run(ctx, spec)
	}
	if err != nil {
		return err
	}

	if *dump {
		path, err := a.bars.WriteStates(res.RunID, res.States)
		if err != nil {
			return err
		}
		a.logger.Info("states written", "run_id", res.RunID, "path", path)
	}

	r := report.FromResult(res)
	if *asJSON {
		return report.WriteJSON(os.Stdout, r)
	}
	return report.WriteText(os.Stdout, r)
}

func cmdSweep(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	bt := a.cfg.Backtest
	backtestFlags(fs, &bt)
	var csv csvFiles
	csv.bind(fs)
	shorts := fs.String("short", "5,10,20", "comma-separated short windows")
	longs := fs.String("long", "50,100,200", "comma-separated long windows")
	workers := fs.Int("workers", bt.MaxWorkers, "concurrent runs")
	fs.Parse(args)

	bt.Strategy = string(strategy.KindCrossover)
	shortWins, err := parseInts(*shorts)
	if err != nil {
		return fmt.Errorf("-short: %w", err)
	}
	longWins, err := parseInts(*longs)
	if err != nil {
		return fmt.Errorf("-long: %w", err)
	}

	var (
		in    strategy.Input
		bench *series.Series
	)
	if csv.set() {
		if in, bench, err = csv.load(&bt); err != nil {
			return err
		}
	}

	var cfgs []config.BacktestConfig
	for _, s := range shortWins {
		for _, l := range longWins {
			if s >= l {
				continue
			}
			c := bt
			c.ShortWindow, c.LongWindow = s, l
			cfgs = append(cfgs, c)
		}
	}
	if len(cfgs) == 0 {
		return fmt.Errorf("no window pair with short < long")
	}

	reg := strategy.NewRegistry()
	gens, err := builtins.Register(reg, cfgs...)
	if err != nil {
		return err
	}
	specs := make([]strategy.RunSpec, len(cfgs))
	for i, c := range cfgs {
		specs[i] = strategy.RunSpec{Strategy: gens[i].Name(), Config: c}
	}

	var bars store.BarStore = a.bars
	if csv.set() {
		bars = newSeriesBars(in.Primary, in.Secondary, bench)
	}
	backtester := strategy.NewBacktester(bars, reg, a.logger)
	runs, err := a.openRuns()
	if err != nil {
		return err
	}
	defer runs.Close()
	backtester.WithRunStore(runs)

	results, err := backtester.RunMany(ctx, specs, *workers)
	if err != nil {
		return err
	}

	for _, res := range results {
		fmt.Printf("%-24s  final %14s  return %9s  sharpe %7s  mdd %9s\n",
			res.Strategy,
			report.FormatMoney(res.Summary.FinalValue),
			report.FormatPct(res.Summary.TotalReturnPct),
			report.FormatRatio(res.Summary.Sharpe),
			report.FormatPct(res.Summary.MaxDrawdown*100),
		)
	}
	return nil
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
