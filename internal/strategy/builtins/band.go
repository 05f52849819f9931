package builtins

import (
	"fmt"

	"tradesim/internal/domain"
	"tradesim/internal/stats"
	"tradesim/internal/strategy"
)

var _ strategy.Generator = (*Band)(nil)

// Band is a Bollinger-style mean reversion rule: long when close falls below
// mean - k*std of the trailing window, short when it rises above mean + k*std,
// flat inside the band.
type Band struct {
	window int
	k      float64
}

// NewBand creates a Band generator.
func NewBand(window int, k float64) (*Band, error) {
	if window < 2 || k <= 0 {
		return nil, fmt.Errorf("band: invalid window=%d k=%v", window, k)
	}
	return &Band{window: window, k: k}, nil
}

func (b *Band) Name() string        { return fmt.Sprintf("band-%d-%g", b.window, b.k) }
func (b *Band) Kind() strategy.Kind { return strategy.KindBand }
func (b *Band) Warmup() int         { return b.window }

// Generate skips bars whose trailing window has zero or undefined deviation.
func (b *Band) Generate(in strategy.Input) ([]domain.Signal, error) {
	if err := strategy.CheckHistory(b, in.Primary); err != nil {
		return nil, err
	}
	closes := in.Primary.Closes()
	means := stats.RollingMean(closes, b.window)
	stds := stats.RollingStdDev(closes, b.window)

	var out []domain.Signal
	for i, c := range closes {
		if stats.IsUndefined(stds[i]) || stds[i] == 0 {
			continue
		}
		var v float64
		switch {
		case c < means[i]-b.k*stds[i]:
			v = 1
		case c > means[i]+b.k*stds[i]:
			v = -1
		}
		out = append(out, signalAt(in.Primary, i, (c-means[i])/stds[i], v))
	}
	return finish(b, out)
}
