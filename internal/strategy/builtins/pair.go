package builtins

import (
	"errors"
	"fmt"

	"tradesim/internal/domain"
	"tradesim/internal/series"
	"tradesim/internal/stats"
	"tradesim/internal/strategy"
)

var _ strategy.Generator = (*Pair)(nil)

// Pair trades the spread close(A) - close(B) of two instruments joined on
// timestamp. A z-score below -threshold goes long the spread, above
// +threshold goes short. Signals carry the close of A as valuation price.
type Pair struct {
	window    int
	threshold float64
}

// NewPair creates a Pair generator.
func NewPair(window int, threshold float64) (*Pair, error) {
	if window < 2 || threshold <= 0 {
		return nil, fmt.Errorf("pair: invalid window=%d threshold=%v", window, threshold)
	}
	return &Pair{window: window, threshold: threshold}, nil
}

func (p *Pair) Name() string        { return fmt.Sprintf("pair-%d-%g", p.window, p.threshold) }
func (p *Pair) Kind() strategy.Kind { return strategy.KindPair }
func (p *Pair) Warmup() int         { return p.window }

// Generate returns signals indexed into the aligned A series.
func (p *Pair) Generate(in strategy.Input) ([]domain.Signal, error) {
	if in.Primary == nil || in.Secondary == nil {
		return nil, errors.New("pair: two price series required")
	}
	a, b, err := series.Align(in.Primary, in.Secondary)
	if err != nil {
		return nil, fmt.Errorf("pair: %w", err)
	}
	if err := strategy.CheckHistory(p, a); err != nil {
		return nil, err
	}

	spread := make([]float64, a.Len())
	for i := range spread {
		spread[i] = a.Close(i) - b.Close(i)
	}
	z := zscores(spread, p.window)

	var out []domain.Signal
	for i, zi := range z {
		if stats.IsUndefined(zi) {
			continue
		}
		var v float64
		switch {
		case zi < -p.threshold:
			v = 1
		case zi > p.threshold:
			v = -1
		}
		out = append(out, signalAt(a, i, zi, v))
	}
	return finish(p, out)
}
