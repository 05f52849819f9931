// Package strategy defines the signal Generator contract, a Registry of
// configured generators, and the Backtester that wires price series,
// generators, sizing, the ledger and performance evaluation together.
package strategy

import (
	"errors"
	"fmt"
	"sort"

	"tradesim/internal/domain"
	"tradesim/internal/series"
)

// ErrInsufficientHistory is returned when a generator cannot produce a
// single signal row from the bars it was given.
var ErrInsufficientHistory = errors.New("insufficient history")

// Kind enumerates the supported signal rules.
type Kind string

const (
	KindCrossover Kind = "crossover"
	KindMomentum  Kind = "momentum"
	KindBand      Kind = "band"
	KindPair      Kind = "pair"
	KindMeanRev   Kind = "meanrev"
)

// Kinds returns every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindCrossover, KindMomentum, KindBand, KindPair, KindMeanRev}
}

// ParseKind validates s as a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown strategy kind %q", s)
}

// Input is the price data a generator reads. Secondary is only set for
// two-asset strategies.
type Input struct {
	Primary   *series.Series
	Secondary *series.Series
}

// Generator turns a price history into trading signals.
type Generator interface {
	// Name returns the unique identifier for this configured generator.
	Name() string

	// Kind returns the rule family the generator implements.
	Kind() Kind

	// Warmup returns the number of bars needed before the first signal row
	// can be produced.
	Warmup() int

	// Generate returns one signal per bar that has a defined indicator, in
	// bar order. Every signal is computed only from bars at or before its
	// own timestamp. Rows inside the warm-up window, or whose indicator is
	// undefined, are omitted.
	Generate(in Input) ([]domain.Signal, error)
}

// CheckHistory returns ErrInsufficientHistory, wrapped with the generator
// name, when s holds fewer bars than g needs.
func CheckHistory(g Generator, s *series.Series) error {
	if s == nil || s.Len() < g.Warmup() {
		have := 0
		if s != nil {
			have = s.Len()
		}
		return fmt.Errorf("%s: need %d bars, have %d: %w", g.Name(), g.Warmup(), have, ErrInsufficientHistory)
	}
	return nil
}

// ApplyLatency delays every signal value by n rows. The first n rows become
// flat. The input is not modified.
func ApplyLatency(signals []domain.Signal, n int) []domain.Signal {
	out := make([]domain.Signal, len(signals))
	copy(out, signals)
	if n <= 0 {
		return out
	}
	for i := range out {
		if i < n {
			out[i].Value = 0
			continue
		}
		out[i].Value = signals[i-n].Value
	}
	return out
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Registry holds a named collection of generators for lookup and enumeration.
type Registry struct {
	generators map[string]Generator
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		generators: make(map[string]Generator),
	}
}

// Register adds a generator to the registry, keyed by its Name(). A later
// registration under the same name replaces the earlier one.
func (r *Registry) Register(g Generator) {
	r.generators[g.Name()] = g
}

// Get retrieves a generator by name. The second return value indicates
// whether it was found.
func (r *Registry) Get(name string) (Generator, bool) {
	g, ok := r.generators[name]
	return g, ok
}

// List returns a sorted slice of all registered generator names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
