package performance

import (
	"sort"

	"tradesim/internal/domain"
	"tradesim/internal/series"
	"tradesim/internal/stats"
)

// Benchmark returns the buy-and-hold cumulative return of bench on the
// timestamps of states. Each state takes the last benchmark close at or
// before its timestamp; states before the first benchmark bar are NaN. The
// base is the first state that has a benchmark price.
func Benchmark(states []domain.PortfolioState, bench *series.Series) []float64 {
	out := make([]float64, len(states))
	base := stats.Undefined()
	for i, s := range states {
		j := sort.Search(bench.Len(), func(k int) bool {
			return bench.Timestamp(k).After(s.Timestamp)
		}) - 1
		if j < 0 {
			out[i] = stats.Undefined()
			continue
		}
		price := bench.Close(j)
		if stats.IsUndefined(base) {
			base = price
		}
		out[i] = price / base
	}
	return out
}

// TotalReturnPct returns the percentage gain of a cumulative return series,
// using its last defined value.
func TotalReturnPct(cum []float64) float64 {
	for i := len(cum) - 1; i >= 0; i-- {
		if !stats.IsUndefined(cum[i]) {
			return (cum[i] - 1) * 100
		}
	}
	return stats.Undefined()
}
