// Package series provides the validated, immutable price table every
// simulation run is built on.
package series

import (
	"fmt"
	"math"
	"time"

	"tradesim/internal/domain"
)

// InputError reports a malformed price table. A run never starts on a table
// that fails validation.
type InputError struct {
	Symbol string
	Index  int // offending row, -1 when the table as a whole is invalid
	Reason string
}

func (e *InputError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid price table %q: %s", e.Symbol, e.Reason)
	}
	return fmt.Sprintf("invalid price table %q at row %d: %s", e.Symbol, e.Index, e.Reason)
}

// Series is a time-ordered, gap-free sequence of bars. It is read-only once
// constructed and safe to share between concurrent runs.
type Series struct {
	symbol string
	bars   []domain.Bar
	closes []float64
}

// New validates bars and returns a Series owning a private copy of them.
// Bars must be non-empty with strictly increasing unique timestamps and a
// finite positive close.
func New(symbol string, bars []domain.Bar) (*Series, error) {
	if len(bars) == 0 {
		return nil, &InputError{Symbol: symbol, Index: -1, Reason: "no bars"}
	}

	owned := make([]domain.Bar, len(bars))
	copy(owned, bars)
	closes := make([]float64, len(owned))

	for i, b := range owned {
		if b.Timestamp.IsZero() {
			return nil, &InputError{Symbol: symbol, Index: i, Reason: "missing timestamp"}
		}
		if i > 0 {
			prev := owned[i-1].Timestamp
			switch {
			case b.Timestamp.Equal(prev):
				return nil, &InputError{Symbol: symbol, Index: i, Reason: "duplicate timestamp " + b.Timestamp.Format(time.RFC3339)}
			case b.Timestamp.Before(prev):
				return nil, &InputError{Symbol: symbol, Index: i, Reason: "timestamps not increasing"}
			}
		}
		if math.IsNaN(b.Close) || math.IsInf(b.Close, 0) || b.Close <= 0 {
			return nil, &InputError{Symbol: symbol, Index: i, Reason: "missing or non-positive close"}
		}
		if b.Symbol == "" {
			owned[i].Symbol = symbol
		}
		closes[i] = b.Close
	}

	return &Series{symbol: symbol, bars: owned, closes: closes}, nil
}

// Symbol returns the instrument the series belongs to.
func (s *Series) Symbol() string { return s.symbol }

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.bars) }

// Bar returns the bar at index i.
func (s *Series) Bar(i int) domain.Bar { return s.bars[i] }

// Timestamp returns the timestamp of bar i.
func (s *Series) Timestamp(i int) time.Time { return s.bars[i].Timestamp }

// Close returns the close of bar i.
func (s *Series) Close(i int) float64 { return s.closes[i] }

// Closes returns a copy of the close column.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.closes))
	copy(out, s.closes)
	return out
}

// Bars returns a copy of the underlying bars.
func (s *Series) Bars() []domain.Bar {
	out := make([]domain.Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

// Start returns the first timestamp.
func (s *Series) Start() time.Time { return s.bars[0].Timestamp }

// End returns the last timestamp.
func (s *Series) End() time.Time { return s.bars[len(s.bars)-1].Timestamp }

// Head returns a new series holding the first n bars. It is used to prove
// that signals do not depend on later data.
func (s *Series) Head(n int) (*Series, error) {
	if n > len(s.bars) {
		n = len(s.bars)
	}
	return New(s.symbol, s.bars[:n])
}

// Align intersection-joins two series on timestamp, dropping rows present in
// only one of them. Both returned series have identical timestamps.
func Align(a, b *Series) (*Series, *Series, error) {
	var left, right []domain.Bar
	i, j := 0, 0
	for i < a.Len() && j < b.Len() {
		ta, tb := a.Timestamp(i), b.Timestamp(j)
		switch {
		case ta.Equal(tb):
			left = append(left, a.bars[i])
			right = append(right, b.bars[j])
			i++
			j++
		case ta.Before(tb):
			i++
		default:
			j++
		}
	}
	if len(left) == 0 {
		return nil, nil, &InputError{
			Symbol: a.symbol + "/" + b.symbol,
			Index:  -1,
			Reason: "no overlapping timestamps",
		}
	}

	la, err := New(a.symbol, left)
	if err != nil {
		return nil, nil, err
	}
	lb, err := New(b.symbol, right)
	if err != nil {
		return nil, nil, err
	}
	return la, lb, nil
}
