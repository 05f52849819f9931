// Package report renders simulation results as text or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"tradesim/internal/performance"
	"tradesim/internal/stats"
	"tradesim/internal/store"
	"tradesim/internal/strategy"
)

// Report is the printable outcome of one run.
type Report struct {
	RunID     string
	Strategy  string
	Symbol    string
	Sizing    string
	Start     time.Time
	End       time.Time
	Summary   performance.Summary
	Benchmark string
	// BenchmarkReturnPct is the buy-and-hold return of Benchmark over the
	// same bars, NaN without a benchmark.
	BenchmarkReturnPct float64
}

// FromResult builds a report from a completed backtest.
func FromResult(res *strategy.BacktestResult) Report {
	r := Report{
		RunID:              res.RunID,
		Strategy:           res.Strategy,
		Symbol:             res.Config.Symbol,
		Sizing:             res.Config.Sizing,
		Summary:            res.Summary,
		BenchmarkReturnPct: stats.Undefined(),
	}
	if res.Config.PairSymbol != "" {
		r.Symbol += "/" + res.Config.PairSymbol
	}
	if n := len(res.States); n > 0 {
		r.Start = res.States[0].Timestamp
		r.End = res.States[n-1].Timestamp
	}
	if res.Benchmark != nil {
		r.Benchmark = res.Config.Benchmark
		r.BenchmarkReturnPct = performance.TotalReturnPct(res.Benchmark)
	}
	return r
}

// FromRun builds a report from a persisted run.
func FromRun(run *store.Run) Report {
	r := Report{
		RunID:              run.ID,
		Strategy:           run.Strategy,
		Symbol:             run.Symbol,
		Sizing:             run.Sizing,
		Start:              run.Start,
		End:                run.End,
		Summary:            run.Summary,
		BenchmarkReturnPct: stats.Undefined(),
	}
	if run.PairSymbol != "" {
		r.Symbol += "/" + run.PairSymbol
	}
	return r
}

// WriteText prints the report as aligned label/value lines.
func WriteText(w io.Writer, r Report) error {
	s := r.Summary
	lines := [][2]string{
		{"Run", r.RunID},
		{"Strategy", r.Strategy},
		{"Symbol", r.Symbol},
		{"Sizing", r.Sizing},
		{"Period", period(r.Start, r.End)},
		{"Bars", FormatInt(s.Bars)},
		{"Trades", FormatInt(s.Trades)},
		{"Refused", FormatInt(s.Refused)},
		{"Final value", FormatMoney(s.FinalValue)},
		{"Total return", FormatPct(s.TotalReturnPct)},
		{"Sharpe", FormatRatio(s.Sharpe)},
		{"Max drawdown", FormatPct(s.MaxDrawdown * 100)},
		{"CAGR", FormatPct(s.CAGR * 100)},
		{"Hit rate", FormatPct(s.HitRate * 100)},
		{"Turnover", FormatRatio(s.Turnover)},
	}
	if r.Benchmark != "" {
		lines = append(lines, [2]string{"Benchmark " + r.Benchmark, FormatPct(r.BenchmarkReturnPct)})
	}

	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%-22s %s\n", l[0]+":", l[1]); err != nil {
			return err
		}
	}
	return nil
}

type reportJSON struct {
	RunID              string              `json:"run_id"`
	Strategy           string              `json:"strategy"`
	Symbol             string              `json:"symbol"`
	Sizing             string              `json:"sizing,omitempty"`
	Start              *time.Time          `json:"start,omitempty"`
	End                *time.Time          `json:"end,omitempty"`
	Summary            performance.Summary `json:"summary"`
	Benchmark          string              `json:"benchmark,omitempty"`
	BenchmarkReturnPct *float64            `json:"benchmark_return_pct,omitempty"`
}

// WriteJSON prints the report as indented JSON. Money and percentages are
// rounded to two decimals, ratios to four; undefined values are null.
func WriteJSON(w io.Writer, r Report) error {
	out := reportJSON{
		RunID:     r.RunID,
		Strategy:  r.Strategy,
		Symbol:    r.Symbol,
		Sizing:    r.Sizing,
		Summary:   Rounded(r.Summary),
		Benchmark: r.Benchmark,
	}
	if !r.Start.IsZero() {
		out.Start, out.End = &r.Start, &r.End
	}
	if r.Benchmark != "" {
		if v, ok := Round2(r.BenchmarkReturnPct); ok {
			out.BenchmarkReturnPct = &v
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// Rounded returns s with money and percentage fields rounded to two
// decimals and ratios to four. Undefined values stay undefined.
func Rounded(s performance.Summary) performance.Summary {
	s.FinalValue, _ = roundTo(s.FinalValue, 2)
	s.TotalReturnPct, _ = roundTo(s.TotalReturnPct, 2)
	s.Turnover, _ = roundTo(s.Turnover, 4)
	s.Sharpe, _ = roundTo(s.Sharpe, 4)
	s.MaxDrawdown, _ = roundTo(s.MaxDrawdown, 4)
	s.CAGR, _ = roundTo(s.CAGR, 4)
	s.HitRate, _ = roundTo(s.HitRate, 4)
	return s
}

// WriteRuns prints one line per persisted run, newest first.
func WriteRuns(w io.Writer, runs []store.Run) error {
	if _, err := fmt.Fprintf(w, "%-36s  %-24s  %-12s  %-10s  %14s  %9s  %7s\n",
		"ID", "STRATEGY", "SYMBOL", "CREATED", "FINAL", "RETURN", "SHARPE"); err != nil {
		return err
	}
	for _, run := range runs {
		sym := run.Symbol
		if run.PairSymbol != "" {
			sym += "/" + run.PairSymbol
		}
		_, err := fmt.Fprintf(w, "%-36s  %-24s  %-12s  %-10s  %14s  %9s  %7s\n",
			run.ID,
			run.Strategy,
			sym,
			run.CreatedAt.Format(time.DateOnly),
			FormatMoney(run.Summary.FinalValue),
			FormatPct(run.Summary.TotalReturnPct),
			FormatRatio(run.Summary.Sharpe),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func period(start, end time.Time) string {
	if start.IsZero() {
		return notAvailable
	}
	layout := time.DateOnly
	if start.Hour() != 0 || start.Minute() != 0 || end.Hour() != 0 || end.Minute() != 0 {
		layout = "2006-01-02 15:04"
	}
	return start.Format(layout) + " .. " + end.Format(layout)
}
