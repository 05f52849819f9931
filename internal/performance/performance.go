// Package performance computes risk-adjusted statistics over a completed
// ledger run. Statistics that cannot be computed are NaN (see package
// stats) and are never reported as zero.
package performance

import (
	"encoding/json"
	"math"

	"tradesim/internal/domain"
	"tradesim/internal/stats"
)

const daysPerYear = 365

// Summary is the immutable result of Evaluate.
type Summary struct {
	Sharpe         float64
	MaxDrawdown    float64
	CAGR           float64
	Turnover       float64
	HitRate        float64
	FinalValue     float64
	TotalReturnPct float64
	Bars           int
	Trades         int
	Refused        int
}

// Evaluate computes the summary of a state series. barsPerYear annualises
// the Sharpe ratio.
func Evaluate(states []domain.PortfolioState, barsPerYear float64) Summary {
	s := Summary{
		Sharpe:         stats.Undefined(),
		MaxDrawdown:    stats.Undefined(),
		CAGR:           stats.Undefined(),
		Turnover:       stats.Undefined(),
		HitRate:        stats.Undefined(),
		FinalValue:     stats.Undefined(),
		TotalReturnPct: stats.Undefined(),
		Bars:           len(states),
	}
	if len(states) == 0 {
		return s
	}

	rets := Returns(states)
	cum := Cumulative(states)
	final := cum[len(cum)-1]

	s.Sharpe = Sharpe(rets, barsPerYear)
	s.MaxDrawdown = MaxDrawdown(cum)
	s.CAGR = cagr(final, states)
	s.Turnover, s.Trades = turnover(states)
	s.HitRate = HitRate(rets)
	s.FinalValue = states[len(states)-1].Total
	s.TotalReturnPct = (final - 1) * 100
	return s
}

// Returns returns the bar-to-bar percentage change of total value. The first
// bar has no predecessor and is excluded, so len(result) == len(states)-1.
func Returns(states []domain.PortfolioState) []float64 {
	if len(states) < 2 {
		return nil
	}
	out := make([]float64, len(states)-1)
	for i := 1; i < len(states); i++ {
		out[i-1] = stats.Div(states[i].Total, states[i-1].Total) - 1
	}
	return out
}

// Cumulative returns the running growth of total value relative to the first
// bar. The first element is exactly 1.
func Cumulative(states []domain.PortfolioState) []float64 {
	out := make([]float64, len(states))
	if len(states) == 0 {
		return out
	}
	out[0] = 1
	for i := 1; i < len(states); i++ {
		out[i] = out[i-1] * stats.Div(states[i].Total, states[i-1].Total)
	}
	return out
}

// Sharpe returns sqrt(barsPerYear) * mean / sample std of rets. It is
// undefined for fewer than two returns or a zero deviation.
func Sharpe(rets []float64, barsPerYear float64) float64 {
	if len(rets) < 2 {
		return stats.Undefined()
	}
	sd := stats.StdDev(rets)
	if sd == 0 {
		return stats.Undefined()
	}
	return math.Sqrt(barsPerYear) * stats.Div(stats.Mean(rets), sd)
}

// MaxDrawdown returns the deepest peak-to-trough decline of cum, in [-1, 0].
func MaxDrawdown(cum []float64) float64 {
	if len(cum) == 0 {
		return stats.Undefined()
	}
	peak := cum[0]
	worst := 0.0
	for _, c := range cum {
		if stats.IsUndefined(c) {
			return stats.Undefined()
		}
		peak = math.Max(peak, c)
		if peak <= 0 {
			continue
		}
		worst = math.Min(worst, (c-peak)/peak)
	}
	return math.Max(worst, -1)
}

// HitRate returns the share of positive returns among non-zero returns.
func HitRate(rets []float64) float64 {
	var wins, moves int
	for _, r := range rets {
		if stats.IsUndefined(r) || r == 0 {
			continue
		}
		moves++
		if r > 0 {
			wins++
		}
	}
	return stats.Div(float64(wins), float64(moves))
}

// cagr annualises final growth over the elapsed calendar time, measured in
// fractional days.
func cagr(final float64, states []domain.PortfolioState) float64 {
	days := states[len(states)-1].Timestamp.Sub(states[0].Timestamp).Hours() / 24
	if days <= 0 || stats.IsUndefined(final) || final < 0 {
		return stats.Undefined()
	}
	return math.Pow(final, daysPerYear/days) - 1
}

// turnover returns total traded shares over mean absolute holdings, counting
// the first bar's change from flat, plus the number of bars that traded.
func turnover(states []domain.PortfolioState) (float64, int) {
	var traded, exposure float64
	var trades int
	prev := 0.0
	for _, s := range states {
		d := math.Abs(s.Holdings - prev)
		if d != 0 {
			trades++
		}
		traded += d
		exposure += math.Abs(s.Holdings)
		prev = s.Holdings
	}
	return stats.Div(traded, exposure/float64(len(states))), trades
}

// ---------------------------------------------------------------------------
// JSON
// ---------------------------------------------------------------------------

type summaryJSON struct {
	Sharpe         *float64 `json:"sharpe"`
	MaxDrawdown    *float64 `json:"max_drawdown"`
	CAGR           *float64 `json:"cagr"`
	Turnover       *float64 `json:"turnover"`
	HitRate        *float64 `json:"hit_rate"`
	FinalValue     *float64 `json:"final_value"`
	TotalReturnPct *float64 `json:"total_return_pct"`
	Bars           int      `json:"bars"`
	Trades         int      `json:"trades"`
	Refused        int      `json:"refused"`
}

func nullable(v float64) *float64 {
	if stats.IsUndefined(v) {
		return nil
	}
	return &v
}

func orUndefined(p *float64) float64 {
	if p == nil {
		return stats.Undefined()
	}
	return *p
}

// MarshalJSON encodes undefined statistics as null.
func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(summaryJSON{
		Sharpe:         nullable(s.Sharpe),
		MaxDrawdown:    nullable(s.MaxDrawdown),
		CAGR:           nullable(s.CAGR),
		Turnover:       nullable(s.Turnover),
		HitRate:        nullable(s.HitRate),
		FinalValue:     nullable(s.FinalValue),
		TotalReturnPct: nullable(s.TotalReturnPct),
		Bars:           s.Bars,
		Trades:         s.Trades,
		Refused:        s.Refused,
	})
}

// UnmarshalJSON decodes null statistics back to NaN.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var raw summaryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Summary{
		Sharpe:         orUndefined(raw.Sharpe),
		MaxDrawdown:    orUndefined(raw.MaxDrawdown),
		CAGR:           orUndefined(raw.CAGR),
		Turnover:       orUndefined(raw.Turnover),
		HitRate:        orUndefined(raw.HitRate),
		FinalValue:     orUndefined(raw.FinalValue),
		TotalReturnPct: orUndefined(raw.TotalReturnPct),
		Bars:           raw.Bars,
		Trades:         raw.Trades,
		Refused:        raw.Refused,
	}
	return nil
}
