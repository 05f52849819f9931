package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tradesim/internal/domain"
	"tradesim/internal/series"
	"tradesim/internal/store"
)

var _ store.BarStore = seriesBars(nil)

// seriesBars serves bars already loaded from CSV files, so that sweeps over
// CSV input can go through the same Backtester path as stored bars.
type seriesBars map[string]*series.Series

func newSeriesBars(ss ...*series.Series) seriesBars {
	m := seriesBars{}
	for _, s := range ss {
		if s != nil {
			m[s.Symbol()] = s
		}
	}
	return m
}

func (m seriesBars) WriteBars(context.Context, string, []domain.Bar) error {
	return fmt.Errorf("CSV input is read-only")
}

func (m seriesBars) ReadBars(_ context.Context, symbol, _ string, start, end time.Time) ([]domain.Bar, error) {
	s, ok := m[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, store.ErrNotFound)
	}
	var out []domain.Bar
	for _, b := range s.Bars() {
		if !b.Timestamp.Before(start) && !b.Timestamp.After(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m seriesBars) ListSymbols(context.Context, string) ([]string, error) {
	out := make([]string, 0, len(m))
	for sym := range m {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}
