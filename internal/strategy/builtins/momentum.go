package builtins

import (
	"fmt"

	"tradesim/internal/domain"
	"tradesim/internal/stats"
	"tradesim/internal/strategy"
)

var _ strategy.Generator = (*Momentum)(nil)

// Momentum takes the sign of the percentage change of close over a fixed
// lookback.
type Momentum struct {
	lookback int
}

// NewMomentum creates a Momentum generator.
func NewMomentum(lookback int) (*Momentum, error) {
	if lookback <= 0 {
		return nil, fmt.Errorf("momentum: invalid lookback %d", lookback)
	}
	return &Momentum{lookback: lookback}, nil
}

func (m *Momentum) Name() string        { return fmt.Sprintf("momentum-%d", m.lookback) }
func (m *Momentum) Kind() strategy.Kind { return strategy.KindMomentum }
func (m *Momentum) Warmup() int         { return m.lookback + 1 }

func (m *Momentum) Generate(in strategy.Input) ([]domain.Signal, error) {
	if err := strategy.CheckHistory(m, in.Primary); err != nil {
		return nil, err
	}
	changes := stats.PctChange(in.Primary.Closes(), m.lookback)

	var out []domain.Signal
	for i, r := range changes {
		if stats.IsUndefined(r) {
			continue
		}
		out = append(out, signalAt(in.Primary, i, r, stats.Sign(r)))
	}
	return finish(m, out)
}
