// Package sizing turns signal rows into target holdings.
package sizing

import (
	"errors"
	"fmt"
	"math"

	"tradesim/internal/config"
	"tradesim/internal/domain"
	"tradesim/internal/stats"
)

// Sizer is prepared once per run over the full signal sequence and then
// asked for the target holdings of each row in order. prev is the ledger
// state after the previous row, or the initial state for row 0.
type Sizer interface {
	Prepare(signals []domain.Signal) error
	Target(i int, prev domain.PortfolioState) float64
}

// New returns the sizer selected by cfg.Sizing. barsPerYear annualises
// realized volatility for the volatility-scaled mode, which measures it over
// closes, the full bar history that Signal.Index refers to.
func New(cfg config.BacktestConfig, barsPerYear float64, closes []float64) (Sizer, error) {
	switch cfg.Sizing {
	case config.SizingAllIn, "":
		return &AllIn{Slippage: cfg.Slippage, Fee: cfg.Fee}, nil
	case config.SizingVolScaled:
		if barsPerYear <= 0 {
			return nil, fmt.Errorf("vol_scaled sizing: bars per year must be positive, got %v", barsPerYear)
		}
		return &VolScaled{
			Capital:     cfg.Capital,
			MaxVol:      cfg.MaxVol,
			Lookback:    cfg.VolLookback,
			BarsPerYear: barsPerYear,
			AllowShort:  cfg.AllowShort,
			Closes:      closes,
		}, nil
	default:
		return nil, fmt.Errorf("unknown sizing %q", cfg.Sizing)
	}
}

// ---------------------------------------------------------------------------
// All-in / all-out
// ---------------------------------------------------------------------------

// AllIn buys as many whole shares as cash affords when the signal steps up
// while flat, and sells the whole position when it steps down while
// holding. Any other row holds. Orders are never partially filled.
type AllIn struct {
	Slippage float64
	Fee      float64

	signals []domain.Signal
}

var _ Sizer = (*AllIn)(nil)

func (a *AllIn) Prepare(signals []domain.Signal) error {
	a.signals = signals
	return nil
}

func (a *AllIn) Target(i int, prev domain.PortfolioState) float64 {
	if i == 0 {
		return prev.Holdings
	}
	step := a.signals[i].Value - a.signals[i-1].Value
	switch {
	case step > 0 && prev.Holdings == 0:
		return a.Affordable(prev.Cash, a.signals[i].Price)
	case step < 0 && prev.Holdings > 0:
		return 0
	default:
		return prev.Holdings
	}
}

// Affordable returns the largest whole number of shares whose slipped,
// fee-loaded cost does not exceed cash.
func (a *AllIn) Affordable(cash, price float64) float64 {
	unit := price * (1 + a.Slippage) * (1 + a.Fee)
	if unit <= 0 || cash <= 0 {
		return 0
	}
	return math.Floor(cash / unit)
}

// ---------------------------------------------------------------------------
// Volatility scaled
// ---------------------------------------------------------------------------

// VolScaled sizes the position so that its annualised volatility targets
// MaxVol, never exceeding Capital in notional. Realized volatility is the
// trailing sample deviation of bar-to-bar close returns over Lookback bars,
// read at each row's bar index, so bars without a signal row still count.
// Rows with zero or undefined volatility get a flat target.
type VolScaled struct {
	Capital     float64
	MaxVol      float64
	Lookback    int
	BarsPerYear float64
	AllowShort  bool
	// Closes is the bar history the signal rows index into.
	Closes []float64

	signals []domain.Signal
	vol     []float64
}

var _ Sizer = (*VolScaled)(nil)

func (v *VolScaled) Prepare(signals []domain.Signal) error {
	if v.Lookback < 2 {
		return errors.New("vol_scaled sizing: lookback must be at least 2")
	}
	if len(v.Closes) == 0 {
		return errors.New("vol_scaled sizing: no bar history")
	}
	barVol := stats.RollingStdDev(stats.PctChange(v.Closes, 1), v.Lookback)
	scale := math.Sqrt(v.BarsPerYear)

	v.vol = make([]float64, len(signals))
	for i, s := range signals {
		if s.Index < 0 || s.Index >= len(barVol) {
			return fmt.Errorf("vol_scaled sizing: row %d refers to bar %d of %d", i, s.Index, len(barVol))
		}
		v.vol[i] = barVol[s.Index] * scale
	}
	v.signals = signals
	return nil
}

// Vol returns the annualised realized volatility at row i.
func (v *VolScaled) Vol(i int) float64 { return v.vol[i] }

func (v *VolScaled) Target(i int, _ domain.PortfolioState) float64 {
	vol := v.vol[i]
	if stats.IsUndefined(vol) || vol == 0 {
		return 0
	}
	sig := v.signals[i]
	notional := math.Min(v.Capital, v.Capital*v.MaxVol/vol)
	target := sig.Value * notional / sig.Price
	if target < 0 && !v.AllowShort {
		return 0
	}
	return target
}
