package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"tradesim/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ TickStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore and TickStore using Parquet files on
// disk, and dumps run state series for offline analysis.
type ParquetStore struct {
	DataDir   string
	Timeframe string // bar timeframe, "1Day" when empty
}

// NewParquetStore creates a new daily-bar ParquetStore rooted at the given
// data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir, Timeframe: "1Day"}
}

// WithTimeframe returns a copy of the store reading and writing bars of the
// given timeframe.
func (s *ParquetStore) WithTimeframe(tf string) *ParquetStore {
	return &ParquetStore{DataDir: s.DataDir, Timeframe: tf}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// TickRecord is the Parquet schema for quote/trade ticks.
type TickRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(nanosecond)"` // Unix ns
	BidPrice  float64 `parquet:"bid_price"`
	AskPrice  float64 `parquet:"ask_price"`
	BidSize   float64 `parquet:"bid_size"`
	AskSize   float64 `parquet:"ask_size"`
	Side      string  `parquet:"side"`
	TradeSize float64 `parquet:"trade_size"`
}

// StateRecord is the Parquet schema for a run's ledger rows.
type StateRecord struct {
	Seq       int64   `parquet:"seq"`
	Timestamp int64   `parquet:"timestamp,timestamp(nanosecond)"`
	Price     float64 `parquet:"price"`
	Signal    float64 `parquet:"signal"`
	Target    float64 `parquet:"target"`
	Cash      float64 `parquet:"cash"`
	Holdings  float64 `parquet:"holdings"`
	Total     float64 `parquet:"total"`
	Return    float64 `parquet:"return"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year,
// merging with bars already on disk. Each symbol+year combination produces
// a separate file at:
//
//	<DataDir>/<market>/<frame>/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, market string, bars []domain.Bar) error {
	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: strings.ToUpper(b.Symbol), year: b.Timestamp.UTC().Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:     k.symbol,
			Timestamp:  b.Timestamp.UnixMilli(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			TradeCount: b.TradeCount,
			VWAP:       b.VWAP,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, market, k.year)

		existing, err := readParquetFile[BarRecord](path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reading bars for %s/%d: %w", k.symbol, k.year, err)
		}
		merged := mergeRecords(existing, records,
			func(r BarRecord) int64 { return r.Timestamp },
			func(r BarRecord) int64 { return r.Timestamp })

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given symbol and time
// range. Missing year files are skipped.
func (s *ParquetStore) ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := readParquetFile[BarRecord](s.barPath(symbol, market, year))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading bars for %s/%d: %w", symbol, year, err)
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol:     r.Symbol,
				Timestamp:  ts,
				Open:       r.Open,
				High:       r.High,
				Low:        r.Low,
				Close:      r.Close,
				Volume:     r.Volume,
				TradeCount: r.TradeCount,
				VWAP:       r.VWAP,
			})
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data in the given market.
func (s *ParquetStore) ListSymbols(_ context.Context, market string) ([]string, error) {
	dir := filepath.Join(s.DataDir, market, s.frameDir())
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// TickStore implementation
// ---------------------------------------------------------------------------

// WriteTicks writes ticks to Parquet files organized by symbol and UTC date.
func (s *ParquetStore) WriteTicks(_ context.Context, market string, ticks []domain.Tick) error {
	type key struct {
		symbol string
		date   string // YYYY-MM-DD
	}
	groups := make(map[key][]TickRecord)
	for _, t := range ticks {
		k := key{symbol: strings.ToUpper(t.Symbol), date: t.Timestamp.UTC().Format(time.DateOnly)}
		groups[k] = append(groups[k], TickRecord{
			Symbol:    k.symbol,
			Timestamp: t.Timestamp.UnixNano(),
			BidPrice:  t.BidPrice,
			AskPrice:  t.AskPrice,
			BidSize:   t.BidSize,
			AskSize:   t.AskSize,
			Side:      string(t.Side),
			TradeSize: t.TradeSize,
		})
	}

	for k, records := range groups {
		day, _ := time.Parse(time.DateOnly, k.date)
		path := s.tickPath(k.symbol, market, day)

		existing, err := readParquetFile[TickRecord](path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reading ticks for %s/%s: %w", k.symbol, k.date, err)
		}
		merged := mergeRecords(existing, records,
			func(r TickRecord) TickRecord { return r },
			func(r TickRecord) int64 { return r.Timestamp })

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing ticks for %s/%s: %w", k.symbol, k.date, err)
		}
	}
	return nil
}

// ReadTicks reads ticks from Parquet files for the given symbol and time
// range.
func (s *ParquetStore) ReadTicks(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Tick, error) {
	var ticks []domain.Tick
	first := start.UTC().Truncate(24 * time.Hour)
	for d := first; !d.After(end); d = d.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := readParquetFile[TickRecord](s.tickPath(symbol, market, d))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading ticks for %s/%s: %w", symbol, d.Format(time.DateOnly), err)
		}
		for _, r := range records {
			ts := time.Unix(0, r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			ticks = append(ticks, domain.Tick{
				Symbol:    r.Symbol,
				Timestamp: ts,
				BidPrice:  r.BidPrice,
				AskPrice:  r.AskPrice,
				BidSize:   r.BidSize,
				AskSize:   r.AskSize,
				Side:      domain.TradeSide(r.Side),
				TradeSize: r.TradeSize,
			})
		}
	}
	return ticks, nil
}

// ---------------------------------------------------------------------------
// State dumps
// ---------------------------------------------------------------------------

// WriteStates dumps the state series of a run to
// <DataDir>/runs/<runID>/states.parquet, replacing any previous dump.
func (s *ParquetStore) WriteStates(runID string, states []domain.PortfolioState) (string, error) {
	records := make([]StateRecord, len(states))
	for i, st := range states {
		records[i] = StateRecord{
			Seq:       int64(i),
			Timestamp: st.Timestamp.UnixNano(),
			Price:     st.Price,
			Signal:    st.Signal,
			Target:    st.Target,
			Cash:      st.Cash,
			Holdings:  st.Holdings,
			Total:     st.Total,
			Return:    st.Return,
		}
	}
	path := s.statePath(runID)
	if err := writeParquetFile(path, records); err != nil {
		return "", fmt.Errorf("writing states for run %s: %w", runID, err)
	}
	return path, nil
}

// ReadStates loads a state dump written by WriteStates.
func (s *ParquetStore) ReadStates(runID string) ([]domain.PortfolioState, error) {
	records, err := readParquetFile[StateRecord](s.statePath(runID))
	if err != nil {
		return nil, fmt.Errorf("reading states for run %s: %w", runID, err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })

	states := make([]domain.PortfolioState, len(records))
	for i, r := range records {
		states[i] = domain.PortfolioState{
			Timestamp: time.Unix(0, r.Timestamp).UTC(),
			Price:     r.Price,
			Signal:    r.Signal,
			Target:    r.Target,
			Cash:      r.Cash,
			Holdings:  r.Holdings,
			Total:     r.Total,
			Return:    r.Return,
		}
	}
	return states, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// frameDir maps the store's timeframe to a directory name. Daily bars keep
// the "daily" directory; other frames use the lowercased timeframe.
func (s *ParquetStore) frameDir() string {
	switch strings.ToLower(s.Timeframe) {
	case "", "1day", "day", "1d":
		return "daily"
	default:
		return strings.ToLower(s.Timeframe)
	}
}

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/<frame>/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, market string, year int) string {
	return filepath.Join(s.DataDir, market, s.frameDir(), strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// tickPath returns the filesystem path for a tick Parquet file.
// Layout: <dataDir>/<market>/ticks/<SYMBOL>/<YYYY-MM-DD>.parquet
func (s *ParquetStore) tickPath(symbol, market string, day time.Time) string {
	return filepath.Join(s.DataDir, market, "ticks", strings.ToUpper(symbol), day.Format(time.DateOnly)+".parquet")
}

func (s *ParquetStore) statePath(runID string) string {
	return filepath.Join(s.DataDir, "runs", runID, "states.parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeRecords deduplicates records by key, preferring incoming over
// existing ones, and sorts the result by ts.
func mergeRecords[T any, K comparable](existing, incoming []T, key func(T) K, ts func(T) int64) []T {
	seen := make(map[K]T, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key(r)] = r
	}
	for _, r := range incoming {
		seen[key(r)] = r
	}

	merged := make([]T, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return ts(merged[i]) < ts(merged[j])
	})
	return merged
}
