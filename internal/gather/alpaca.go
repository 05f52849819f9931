package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"tradesim/internal/config"
	"tradesim/internal/domain"
	"tradesim/internal/store"
	"tradesim/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ Gatherer = (*AlpacaBarGatherer)(nil)
var _ barsClient = (*alpacaClient)(nil)

// ---------------------------------------------------------------------------
// Alpaca client
// ---------------------------------------------------------------------------

// barsClient fetches bars for several symbols in one request.
type barsClient interface {
	MultiBars(ctx context.Context, symbols []string, start, end time.Time) ([]domain.Bar, error)
}

// alpacaClient adapts the Alpaca market-data client to barsClient.
type alpacaClient struct {
	client    *marketdata.Client
	timeframe marketdata.TimeFrame
	feed      string
}

func newAlpacaClient(cfg config.Alpaca, timeframe string) (*alpacaClient, error) {
	tf, err := alpacaTimeFrame(timeframe)
	if err != nil {
		return nil, err
	}
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	return &alpacaClient{
		client:    marketdata.NewClient(opts),
		timeframe: tf,
		feed:      cfg.Feed,
	}, nil
}

// MultiBars fetches split- and dividend-adjusted bars. Bars are returned
// per symbol in time order.
func (c *alpacaClient) MultiBars(ctx context.Context, symbols []string, start, end time.Time) ([]domain.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	req := marketdata.GetBarsRequest{
		TimeFrame:  c.timeframe,
		Adjustment: marketdata.All,
		Start:      start,
		End:        end,
	}
	if c.feed != "" {
		req.Feed = marketdata.Feed(c.feed)
	}
	multiBars, err := c.client.GetMultiBars(symbols, req)
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  ab.Timestamp,
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars, nil
}

// alpacaTimeFrame maps a timeframe such as "1Day" or "15Min" onto the
// Alpaca request type.
func alpacaTimeFrame(tf string) (marketdata.TimeFrame, error) {
	n, unit, err := util.ParseTimeframe(tf)
	if err != nil {
		return marketdata.TimeFrame{}, err
	}
	switch unit {
	case "min":
		return marketdata.NewTimeFrame(n, marketdata.Min), nil
	case "hour":
		return marketdata.NewTimeFrame(n, marketdata.Hour), nil
	case "day":
		return marketdata.NewTimeFrame(n, marketdata.Day), nil
	case "week":
		return marketdata.NewTimeFrame(n, marketdata.Week), nil
	default:
		return marketdata.NewTimeFrame(n, marketdata.Month), nil
	}
}

// ---------------------------------------------------------------------------
// AlpacaBarGatherer
// ---------------------------------------------------------------------------

// AlpacaBarGatherer downloads bars for the configured US equity symbols and
// writes them to a bar store. A pass is resumable: symbols already written
// or found empty for the same date range are skipped.
type AlpacaBarGatherer struct {
	client      barsClient
	calendar    tradingCalendar // nil: end defaults to yesterday
	store       store.BarStore
	progressDir string
	symbols     []string
	startDate   string
	endDate     string
	batchSize   int
	maxWorkers  int
	maxRetries  int
	retryDelay  time.Duration
	limiter     *util.RateLimiter
	now         func() time.Time
	log         *slog.Logger
}

// NewAlpacaBarGatherer creates a gatherer from the alpaca and gather config
// sections. Progress files are kept under progressDir.
func NewAlpacaBarGatherer(acfg config.Alpaca, gcfg config.GatherConfig, s store.BarStore, progressDir string) (*AlpacaBarGatherer, error) {
	client, err := newAlpacaClient(acfg, gcfg.Timeframe)
	if err != nil {
		return nil, err
	}
	g := newBarGatherer(client, gcfg, s, progressDir)
	if acfg.BaseURL != "" {
		g.calendar = newAlpacaCalendar(acfg)
	}
	return g, nil
}

func newBarGatherer(client barsClient, gcfg config.GatherConfig, s store.BarStore, progressDir string) *AlpacaBarGatherer {
	symbols := make([]string, 0, len(gcfg.Symbols))
	seen := make(map[string]struct{}, len(gcfg.Symbols))
	for _, sym := range gcfg.Symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if _, dup := seen[sym]; sym == "" || dup {
			continue
		}
		seen[sym] = struct{}{}
		symbols = append(symbols, sym)
	}

	return &AlpacaBarGatherer{
		client:      client,
		store:       s,
		progressDir: progressDir,
		symbols:     symbols,
		startDate:   gcfg.StartDate,
		endDate:     gcfg.EndDate,
		batchSize:   max(gcfg.BatchSize, 1),
		maxWorkers:  max(gcfg.MaxWorkers, 1),
		maxRetries:  max(gcfg.MaxRetries, 1),
		retryDelay:  time.Second,
		limiter:     util.NewRateLimiter(gcfg.RateLimitPerMin),
		now:         time.Now,
		log:         slog.Default().With("gatherer", "alpaca-bars"),
	}
}

// Name returns the gatherer identifier.
func (g *AlpacaBarGatherer) Name() string { return "alpaca-bars" }

// Run fetches bars for every pending symbol in batches spread over a worker
// pool. Without an end date the pass ends at the latest finished trading
// day. A failed batch is logged and left pending for the next pass; Run
// reports how many batches failed.
func (g *AlpacaBarGatherer) Run(ctx context.Context) error {
	end := g.endDate
	if end == "" && g.calendar != nil {
		day, err := latestFinishedTradingDay(g.calendar, g.now())
		if err != nil {
			g.log.Warn("trading calendar unavailable, ending yesterday", "err", err)
		} else {
			end = day.Format(time.DateOnly)
		}
	}
	dr, err := ParseDateRange(g.startDate, end, g.now())
	if err != nil {
		return err
	}
	if len(g.symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}

	tracker, err := newProgressTracker(g.progressDir, dr.Key())
	if err != nil {
		return fmt.Errorf("creating progress tracker: %w", err)
	}
	defer tracker.Close()

	remaining := tracker.Pending(g.symbols)
	var batches [][]string
	for i := 0; i < len(remaining); i += g.batchSize {
		end := min(i+g.batchSize, len(remaining))
		batches = append(batches, remaining[i:end])
	}

	g.log.Info("starting",
		"range", dr.Key(),
		"total", len(g.symbols),
		"remaining", len(remaining),
		"batches", len(batches),
	)
	if len(batches) == 0 {
		return nil
	}

	batchCh := make(chan int, len(batches))
	for i := range batches {
		batchCh <- i
	}
	close(batchCh)

	var (
		wg        sync.WaitGroup
		totalBars atomic.Int64
		totalMiss atomic.Int64
		failed    atomic.Int64
		runStart  = time.Now()
	)

	workers := min(g.maxWorkers, len(batches))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batchIdx := range batchCh {
				if ctx.Err() != nil {
					return
				}
				batch := batches[batchIdx]
				label := fmt.Sprintf("%d/%d", batchIdx+1, len(batches))

				written, empty, err := g.gatherBatch(ctx, tracker, batch, dr)
				if err != nil {
					failed.Add(1)
					g.log.Error("batch failed", "batch", label, "err", err)
					continue
				}
				totalBars.Add(int64(written))
				totalMiss.Add(int64(empty))

				g.log.Info("batch done",
					"batch", label,
					"bars", written,
					"empty", empty,
					"elapsed", time.Since(runStart).Round(time.Second),
				)
			}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	g.log.Info("complete",
		"bars", totalBars.Load(),
		"empty", totalMiss.Load(),
		"failed_batches", failed.Load(),
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d batches failed", n, len(batches))
	}
	return nil
}

// gatherBatch fetches, stores and records one batch. It returns the number
// of bars written and of symbols without data.
func (g *AlpacaBarGatherer) gatherBatch(ctx context.Context, tracker *progressTracker, batch []string, dr DateRange) (int, int, error) {
	var bars []domain.Bar
	err := util.Retry(ctx, g.maxRetries, g.retryDelay, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var err error
		bars, err = g.client.MultiBars(ctx, batch, dr.Start, dr.End)
		return err
	})
	if err != nil {
		return 0, 0, err
	}

	hit := make(map[string]struct{})
	for _, b := range bars {
		hit[b.Symbol] = struct{}{}
	}
	var done, empty []string
	for _, sym := range batch {
		if _, ok := hit[sym]; ok {
			done = append(done, sym)
		} else {
			empty = append(empty, sym)
		}
	}

	if len(bars) > 0 {
		if err := g.store.WriteBars(ctx, string(domain.MarketUS), bars); err != nil {
			return 0, 0, fmt.Errorf("writing bars: %w", err)
		}
		if err := tracker.MarkDone(done); err != nil {
			g.log.Error("marking done failed", "err", err)
		}
	}
	if len(empty) > 0 {
		if err := tracker.MarkEmpty(empty); err != nil {
			g.log.Error("marking empty failed", "err", err)
		}
	}
	return len(bars), len(empty), nil
}
