package builtins

import (
	"fmt"

	"tradesim/internal/domain"
	"tradesim/internal/stats"
	"tradesim/internal/strategy"
)

var _ strategy.Generator = (*MeanReversion)(nil)

// MeanReversion is a long-only z-score rule with hysteresis. Starting flat,
// it enters when the z-score of close drops below entry and exits when it
// rises above exit. Between the two thresholds the previous state is held.
type MeanReversion struct {
	lookback int
	entry    float64
	exit     float64
}

// NewMeanReversion creates a MeanReversion generator. entry must be below
// exit.
func NewMeanReversion(lookback int, entry, exit float64) (*MeanReversion, error) {
	if lookback < 2 || entry >= exit {
		return nil, fmt.Errorf("meanrev: invalid lookback=%d entry=%v exit=%v", lookback, entry, exit)
	}
	return &MeanReversion{lookback: lookback, entry: entry, exit: exit}, nil
}

func (m *MeanReversion) Name() string {
	return fmt.Sprintf("meanrev-%d-%g-%g", m.lookback, m.entry, m.exit)
}
func (m *MeanReversion) Kind() strategy.Kind { return strategy.KindMeanRev }
func (m *MeanReversion) Warmup() int         { return m.lookback }

// Generate carries the position state across bars it omits for an undefined
// z-score.
func (m *MeanReversion) Generate(in strategy.Input) ([]domain.Signal, error) {
	if err := strategy.CheckHistory(m, in.Primary); err != nil {
		return nil, err
	}
	z := zscores(in.Primary.Closes(), m.lookback)

	var (
		out   []domain.Signal
		state float64
	)
	for i, zi := range z {
		if stats.IsUndefined(zi) {
			continue
		}
		switch {
		case zi < m.entry:
			state = 1
		case zi > m.exit:
			state = 0
		}
		out = append(out, signalAt(in.Primary, i, zi, state))
	}
	return finish(m, out)
}
