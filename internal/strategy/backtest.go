package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tradesim/internal/config"
	"tradesim/internal/domain"
	"tradesim/internal/engine"
	"tradesim/internal/performance"
	"tradesim/internal/series"
	"tradesim/internal/sizing"
	"tradesim/internal/store"
	"tradesim/internal/util"
)

// historyStart is used when a run has no start date.
var historyStart = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

// RunSpec names a registered generator and the options it runs with.
type RunSpec struct {
	Strategy string
	Config   config.BacktestConfig
}

// BacktestResult holds everything one run produced.
type BacktestResult struct {
	RunID       string
	Strategy    string
	Config      config.BacktestConfig
	BarsPerYear float64
	Signals     []domain.Signal
	States      []domain.PortfolioState
	Fills       []domain.Fill
	Cumulative  []float64
	Benchmark   []float64 // nil without a benchmark symbol
	Summary     performance.Summary
}

// Backtester replays historical bars through registered generators, sizes
// and books the resulting signals, and evaluates the outcome.
type Backtester struct {
	bars     store.BarStore
	runs     store.RunStore
	registry *Registry
	logger   *slog.Logger
	now      func() time.Time
}

// NewBacktester creates a Backtester that reads bars from the given store
// and looks up generators in the provided registry.
func NewBacktester(barStore store.BarStore, registry *Registry, logger *slog.Logger) *Backtester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backtester{
		bars:     barStore,
		registry: registry,
		logger:   logger.With("component", "backtester"),
		now:      time.Now,
	}
}

// WithRunStore makes the Backtester persist every completed run.
func (bt *Backtester) WithRunStore(rs store.RunStore) *Backtester {
	bt.runs = rs
	return bt
}

// Run loads the bars named by spec.Config and executes one simulation.
func (bt *Backtester) Run(ctx context.Context, spec RunSpec) (*BacktestResult, error) {
	in, bench, err := bt.Load(ctx, spec.Config)
	if err != nil {
		return nil, err
	}
	return bt.RunSeries(ctx, spec, in, bench)
}

// RunMany executes independent runs concurrently, at most maxWorkers at a
// time. Results are returned in the order of specs. The first failure cancels runs
// that have not started yet.
func (bt *Backtester) RunMany(ctx context.Context, specs []RunSpec, maxWorkers int) ([]*BacktestResult, error) {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	results := make([]*BacktestResult, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)
	for i, spec := range specs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := bt.Run(gctx, spec)
			if err != nil {
				return fmt.Errorf("run %s: %w", spec.Strategy, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunSeries executes one simulation over already loaded series. bench may
// be nil.
func (bt *Backtester) RunSeries(ctx context.Context, spec RunSpec, in Input, bench *series.Series) (*BacktestResult, error) {
	gen, ok := bt.registry.Get(spec.Strategy)
	if !ok {
		return nil, fmt.Errorf("strategy %q not registered", spec.Strategy)
	}
	if err := spec.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options for %s: %w", spec.Strategy, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := Simulate(gen, in, bench, spec.Config, bt.logger)
	if err != nil {
		return nil, err
	}
	res.RunID = uuid.NewString()

	bt.logger.Info("run complete",
		"run_id", res.RunID,
		"strategy", res.Strategy,
		"bars", res.Summary.Bars,
		"trades", res.Summary.Trades,
		"refused", res.Summary.Refused,
		"final_value", res.Summary.FinalValue,
	)

	if bt.runs != nil {
		if err := bt.save(ctx, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Load reads the primary, secondary and benchmark series named by cfg.
func (bt *Backtester) Load(ctx context.Context, cfg config.BacktestConfig) (Input, *series.Series, error) {
	var in Input
	start, end, err := runWindow(cfg, bt.now())
	if err != nil {
		return in, nil, err
	}

	if in.Primary, err = bt.loadSeries(ctx, cfg.Symbol, cfg.Market, start, end); err != nil {
		return in, nil, err
	}
	if cfg.Strategy == string(KindPair) {
		if cfg.PairSymbol == "" {
			return in, nil, fmt.Errorf("pair strategy needs pair_symbol")
		}
		if in.Secondary, err = bt.loadSeries(ctx, cfg.PairSymbol, cfg.Market, start, end); err != nil {
			return in, nil, err
		}
	}

	var bench *series.Series
	if cfg.Benchmark != "" {
		if bench, err = bt.loadSeries(ctx, cfg.Benchmark, cfg.Market, start, end); err != nil {
			return in, nil, fmt.Errorf("benchmark: %w", err)
		}
	}
	return in, bench, nil
}

func (bt *Backtester) loadSeries(ctx context.Context, symbol, market string, start, end time.Time) (*series.Series, error) {
	if symbol == "" {
		return nil, fmt.Errorf("no symbol configured")
	}
	bars, err := bt.bars.ReadBars(ctx, symbol, market, start, end)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", symbol, err)
	}
	s, err := series.New(symbol, bars)
	if err != nil {
		return nil, err
	}
	bt.logger.Debug("series loaded", "symbol", symbol, "bars", s.Len())
	return s, nil
}

func (bt *Backtester) save(ctx context.Context, res *BacktestResult) error {
	cfgJSON, err := json.Marshal(res.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	run := &store.Run{
		ID:         res.RunID,
		Strategy:   res.Strategy,
		Symbol:     res.Config.Symbol,
		PairSymbol: res.Config.PairSymbol,
		Sizing:     res.Config.Sizing,
		Start:      res.States[0].Timestamp,
		End:        res.States[len(res.States)-1].Timestamp,
		CreatedAt:  bt.now().UTC(),
		Config:     cfgJSON,
		Summary:    res.Summary,
	}
	if err := bt.runs.SaveRun(ctx, run, res.States); err != nil {
		return fmt.Errorf("save run %s: %w", res.RunID, err)
	}
	return nil
}

// Simulate runs the pure pipeline: signals, latency, sizing, ledger and
// evaluation. It performs no I/O.
func Simulate(gen Generator, in Input, bench *series.Series, cfg config.BacktestConfig, logger *slog.Logger) (*BacktestResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bpy, err := AnnualBars(cfg)
	if err != nil {
		return nil, err
	}

	signals, err := gen.Generate(in)
	if err != nil {
		return nil, err
	}
	signals = ApplyLatency(signals, cfg.Latency)

	closes, err := barCloses(gen, in)
	if err != nil {
		return nil, err
	}
	sizer, err := sizing.New(cfg, bpy, closes)
	if err != nil {
		return nil, err
	}
	ledger := engine.NewLedger(engine.LedgerConfig{
		Capital:  cfg.Capital,
		Slippage: cfg.Slippage,
		Fee:      cfg.Fee,
		LongOnly: !cfg.AllowShort,
	}, logger.With("strategy", gen.Name()))

	out, err := ledger.Run(signals, sizer)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", gen.Name(), err)
	}

	summary := performance.Evaluate(out.States, bpy)
	summary.Refused = out.Refused

	res := &BacktestResult{
		Strategy:    gen.Name(),
		Config:      cfg,
		BarsPerYear: bpy,
		Signals:     signals,
		States:      out.States,
		Fills:       out.Fills,
		Cumulative:  performance.Cumulative(out.States),
		Summary:     summary,
	}
	if bench != nil {
		res.Benchmark = performance.Benchmark(out.States, bench)
	}
	return res, nil
}

// barCloses returns the bar closes that the generator's signal indices
// refer to: the primary series, aligned to the secondary for a pair.
func barCloses(gen Generator, in Input) ([]float64, error) {
	if gen.Kind() != KindPair {
		return in.Primary.Closes(), nil
	}
	a, _, err := series.Align(in.Primary, in.Secondary)
	if err != nil {
		return nil, err
	}
	return a.Closes(), nil
}

// AnnualBars returns cfg.BarsPerYear, or derives it from the market and
// timeframe when unset.
func AnnualBars(cfg config.BacktestConfig) (float64, error) {
	if cfg.BarsPerYear > 0 {
		return cfg.BarsPerYear, nil
	}
	market := domain.Market(cfg.Market)
	if market == "" {
		market = domain.MarketUS
	}
	return util.BarsPerYear(market, cfg.Timeframe)
}

func runWindow(cfg config.BacktestConfig, now time.Time) (time.Time, time.Time, error) {
	start, end := historyStart, now.UTC()
	var err error
	if cfg.StartDate != "" {
		if start, err = time.Parse(time.DateOnly, cfg.StartDate); err != nil {
			return start, end, fmt.Errorf("start_date: %w", err)
		}
	}
	if cfg.EndDate != "" {
		if end, err = time.Parse(time.DateOnly, cfg.EndDate); err != nil {
			return start, end, fmt.Errorf("end_date: %w", err)
		}
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("end_date %s before start_date %s", cfg.EndDate, cfg.StartDate)
	}
	return start, end, nil
}
