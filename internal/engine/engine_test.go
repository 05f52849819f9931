package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"tradesim/internal/domain"
	"tradesim/internal/sizing"
)

// fixedSizer returns a predetermined target per row.
type fixedSizer struct{ targets []float64 }

func (f *fixedSizer) Prepare([]domain.Signal) error { return nil }
func (f *fixedSizer) Target(i int, _ domain.PortfolioState) float64 {
	return f.targets[i]
}

func makeSignals(prices, values []float64) []domain.Signal {
	t0 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Signal, len(prices))
	for i := range prices {
		out[i] = domain.Signal{Index: i, Timestamp: t0.AddDate(0, 0, i), Price: prices[i], Value: values[i]}
	}
	return out
}

func TestKnownTradeScenario(t *testing.T) {
	l := NewLedger(LedgerConfig{Capital: 1000}, nil)
	res, err := l.Run(makeSignals([]float64{100, 100, 110}, []float64{0, 1, 0}), &sizing.AllIn{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := res.States[1].Holdings; got != 10 {
		t.Errorf("holdings after buy = %v, want 10", got)
	}
	if got := res.States[1].Cash; got != 0 {
		t.Errorf("cash after buy = %v, want 0", got)
	}
	final := res.States[2]
	if final.Cash != 1100 || final.Holdings != 0 || final.Total != 1100 {
		t.Errorf("final state = %+v, want cash 1100 holdings 0 total 1100", final)
	}
	if len(res.Fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(res.Fills))
	}
	if res.Fills[0].Side != domain.FillSideBuy || res.Fills[1].Side != domain.FillSideSell {
		t.Errorf("fill sides = %s, %s, want buy, sell", res.Fills[0].Side, res.Fills[1].Side)
	}
}

func TestValueConservation(t *testing.T) {
	prices := []float64{100, 102, 98, 105, 103, 99, 101, 108}
	values := []float64{0, 1, 1, -1, 1, -1, 1, 0}
	l := NewLedger(LedgerConfig{Capital: 10000, Slippage: 0.001, Fee: 0.002}, nil)
	res, err := l.Run(makeSignals(prices, values), &sizing.AllIn{Slippage: 0.001, Fee: 0.002})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, s := range res.States {
		if diff := math.Abs(s.Total - (s.Cash + s.Holdings*s.Price)); diff > 1e-9 {
			t.Errorf("row %d: total %v != cash + holdings*price (diff %v)", i, s.Total, diff)
		}
		if s.Holdings < 0 || s.Holdings != math.Trunc(s.Holdings) {
			t.Errorf("row %d: holdings %v not a non-negative integer", i, s.Holdings)
		}
		if s.Cash < -1e-9 {
			t.Errorf("row %d: cash %v negative", i, s.Cash)
		}
	}
}

func TestZeroSignalIdempotence(t *testing.T) {
	prices := []float64{10, 11, 9, 12}
	l := NewLedger(LedgerConfig{Capital: 5000, Slippage: 0.01, Fee: 0.01}, nil)
	res, err := l.Run(makeSignals(prices, make([]float64, len(prices))), &sizing.AllIn{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, s := range res.States {
		if s.Cash != 5000 || s.Holdings != 0 || s.Total != 5000 {
			t.Errorf("row %d = %+v, want untouched capital", i, s)
		}
	}
	if len(res.Fills) != 0 {
		t.Errorf("fills = %d, want 0", len(res.Fills))
	}
}

func TestFlatPriceRoundTrip(t *testing.T) {
	prices := []float64{100, 100, 100, 100, 100, 100}
	values := []float64{-1, 1, -1, 1, -1, 1}
	l := NewLedger(LedgerConfig{Capital: 10000}, nil)
	res, err := l.Run(makeSignals(prices, values), &sizing.AllIn{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, s := range res.States {
		if s.Total != 10000 {
			t.Errorf("row %d total = %v, want 10000", i, s.Total)
		}
	}
	if len(res.Fills) != 5 {
		t.Errorf("fills = %d, want 5", len(res.Fills))
	}
}

func TestRefusedTradeKeepsHoldings(t *testing.T) {
	l := NewLedger(LedgerConfig{Capital: 1000, LongOnly: true}, nil)
	sizer := &fixedSizer{targets: []float64{5, 50, 5, -3}}
	res, err := l.Run(makeSignals([]float64{100, 100, 100, 100}, []float64{1, 1, 1, -1}), sizer)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Refused != 2 {
		t.Errorf("Refused = %d, want 2", res.Refused)
	}
	if got := res.States[1].Holdings; got != 5 {
		t.Errorf("holdings after refused buy = %v, want 5", got)
	}
	if got := res.States[1].Cash; got != 500 {
		t.Errorf("cash after refused buy = %v, want 500", got)
	}
	if got := res.States[3].Holdings; got != 5 {
		t.Errorf("holdings after refused short = %v, want 5", got)
	}
	if len(res.Fills) != 1 {
		t.Errorf("fills = %d, want 1", len(res.Fills))
	}
}

func TestCostsApplied(t *testing.T) {
	l := NewLedger(LedgerConfig{Capital: 1000, Slippage: 0.01, Fee: 0.001}, nil)
	res, err := l.Run(makeSignals([]float64{100, 100}, []float64{1, 1}), &fixedSizer{targets: []float64{0, 2}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	f := res.Fills[0]
	if math.Abs(f.Price-101) > 1e-9 {
		t.Errorf("fill price = %v, want 101", f.Price)
	}
	if math.Abs(f.Cost-0.202) > 1e-12 {
		t.Errorf("fill cost = %v, want 0.202", f.Cost)
	}
	wantCash := 1000 - 2*f.Price - f.Cost
	if got := res.States[1].Cash; math.Abs(got-wantCash) > 1e-9 {
		t.Errorf("cash = %v, want %v", got, wantCash)
	}
}

func TestMissingPrice(t *testing.T) {
	l := NewLedger(LedgerConfig{Capital: 1000}, nil)
	_, err := l.Run(makeSignals([]float64{100, math.NaN()}, []float64{0, 1}), &fixedSizer{targets: []float64{0, 1}})
	if !errors.Is(err, ErrMissingPrice) {
		t.Fatalf("err = %v, want ErrMissingPrice", err)
	}
}

func TestRunRejectsEmpty(t *testing.T) {
	l := NewLedger(LedgerConfig{Capital: 1000}, nil)
	if _, err := l.Run(nil, &sizing.AllIn{}); err == nil {
		t.Fatal("expected error for empty signals")
	}
}

func TestRiskManagerCheckFill(t *testing.T) {
	tests := []struct {
		name     string
		longOnly bool
		p        FillProposal
		refused  bool
	}{
		{"affordable", true, FillProposal{Cash: 100, Target: 1, CashAfter: 0}, false},
		{"overspend", true, FillProposal{Cash: 100, Target: 2, CashAfter: -100}, true},
		{"short", true, FillProposal{Cash: 100, Target: -1, CashAfter: 200}, true},
		{"short allowed", false, FillProposal{Cash: 100, Target: -1, CashAfter: 200}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRiskManager(tt.longOnly).CheckFill(tt.p)
			if got := errors.Is(err, ErrExecutionConstraint); got != tt.refused {
				t.Errorf("refused = %v (err %v), want %v", got, err, tt.refused)
			}
		})
	}
}
