// Package store defines storage interfaces for price history and simulation
// runs, with Parquet, SQLite and CSV implementations.
package store

import (
	"context"
	"errors"
	"time"

	"tradesim/internal/domain"
	"tradesim/internal/performance"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage under the given market.
	WriteBars(ctx context.Context, market string, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// TickStore persists and retrieves quote/trade ticks.
type TickStore interface {
	// WriteTicks persists a batch of ticks to storage.
	WriteTicks(ctx context.Context, market string, ticks []domain.Tick) error

	// ReadTicks returns ticks for the given symbol within [start, end].
	ReadTicks(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Tick, error)
}

// Run is the persisted record of one simulation run.
type Run struct {
	ID         string
	Strategy   string
	Symbol     string
	PairSymbol string
	Sizing     string
	Start      time.Time // first simulated bar
	End        time.Time // last simulated bar
	CreatedAt  time.Time
	Config     []byte // JSON encoded backtest options
	Summary    performance.Summary
}

// RunStore persists simulation runs and their state series.
type RunStore interface {
	// SaveRun inserts a run together with its per-bar states.
	SaveRun(ctx context.Context, run *Run, states []domain.PortfolioState) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// ReadStates returns the state series of a run in bar order.
	ReadStates(ctx context.Context, id string) ([]domain.PortfolioState, error)
}
