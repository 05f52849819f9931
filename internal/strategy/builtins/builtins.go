// Package builtins provides the signal generators that ship with tradesim.
package builtins

import (
	"fmt"

	"tradesim/internal/config"
	"tradesim/internal/domain"
	"tradesim/internal/series"
	"tradesim/internal/stats"
	"tradesim/internal/strategy"
)

// New builds the generator selected by cfg.Strategy.
func New(cfg config.BacktestConfig) (strategy.Generator, error) {
	kind, err := strategy.ParseKind(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	switch kind {
	case strategy.KindCrossover:
		return NewCrossover(cfg.ShortWindow, cfg.LongWindow)
	case strategy.KindMomentum:
		return NewMomentum(cfg.Lookback)
	case strategy.KindBand:
		return NewBand(cfg.Window, cfg.NumStd)
	case strategy.KindPair:
		return NewPair(cfg.Window, cfg.ZThreshold)
	default:
		return NewMeanReversion(cfg.Lookback, cfg.EntryZ, cfg.ExitZ)
	}
}

// Register builds the generator for every config and adds it to r.
func Register(r *strategy.Registry, cfgs ...config.BacktestConfig) ([]strategy.Generator, error) {
	gens := make([]strategy.Generator, 0, len(cfgs))
	for _, cfg := range cfgs {
		g, err := New(cfg)
		if err != nil {
			return nil, err
		}
		r.Register(g)
		gens = append(gens, g)
	}
	return gens, nil
}

// signalAt builds the signal row for bar i of s.
func signalAt(s *series.Series, i int, score, value float64) domain.Signal {
	return domain.Signal{
		Index:     i,
		Timestamp: s.Timestamp(i),
		Price:     s.Close(i),
		Score:     score,
		Value:     value,
	}
}

// finish rejects an empty signal set.
func finish(g strategy.Generator, out []domain.Signal) ([]domain.Signal, error) {
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no defined signal rows: %w", g.Name(), strategy.ErrInsufficientHistory)
	}
	return out, nil
}

// zscores returns the trailing z-score of xs over window, Undefined wherever
// the window is incomplete or flat.
func zscores(xs []float64, window int) []float64 {
	means := stats.RollingMean(xs, window)
	stds := stats.RollingStdDev(xs, window)
	out := make([]float64, len(xs))
	for i := range xs {
		out[i] = stats.ZScore(xs[i], means[i], stds[i])
	}
	return out
}
