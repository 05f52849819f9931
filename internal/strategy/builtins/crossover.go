package builtins

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"tradesim/internal/domain"
	"tradesim/internal/stats"
	"tradesim/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Generator = (*Crossover)(nil)

// Crossover is long while the short simple moving average of close is above
// the long one and short while it is below. Equal averages give a flat
// signal; averages that differ only by rounding residue count as equal.
type Crossover struct {
	short int
	long  int
}

// NewCrossover creates a Crossover with the given window lengths.
func NewCrossover(short, long int) (*Crossover, error) {
	if short <= 0 || long <= 0 || short >= long {
		return nil, fmt.Errorf("crossover: invalid windows short=%d long=%d", short, long)
	}
	return &Crossover{short: short, long: long}, nil
}

func (c *Crossover) Name() string        { return fmt.Sprintf("crossover-%d-%d", c.short, c.long) }
func (c *Crossover) Kind() strategy.Kind { return strategy.KindCrossover }
func (c *Crossover) Warmup() int         { return c.long }

// Generate emits a signal for every bar from index long-1 onward.
func (c *Crossover) Generate(in strategy.Input) ([]domain.Signal, error) {
	if err := strategy.CheckHistory(c, in.Primary); err != nil {
		return nil, err
	}
	closes := in.Primary.Closes()
	fast := talib.Sma(closes, c.short)
	slow := talib.Sma(closes, c.long)

	out := make([]domain.Signal, 0, len(closes)-c.long+1)
	for i := c.long - 1; i < len(closes); i++ {
		diff := fast[i] - slow[i]
		if stats.Near(fast[i], slow[i]) {
			diff = 0
		}
		out = append(out, signalAt(in.Primary, i, diff, stats.Sign(diff)))
	}
	return finish(c, out)
}
