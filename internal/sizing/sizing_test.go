package sizing

import (
	"math"
	"testing"
	"time"

	"tradesim/internal/config"
	"tradesim/internal/domain"
	"tradesim/internal/stats"
)

func signals(prices, values []float64) []domain.Signal {
	t0 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Signal, len(prices))
	for i := range prices {
		out[i] = domain.Signal{Index: i, Timestamp: t0.AddDate(0, 0, i), Price: prices[i], Value: values[i]}
	}
	return out
}

func TestAllInSteps(t *testing.T) {
	a := &AllIn{}
	sigs := signals([]float64{100, 100, 100, 110, 110}, []float64{-1, 1, 1, -1, -1})
	if err := a.Prepare(sigs); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	flat := domain.PortfolioState{Cash: 1000}
	if got := a.Target(0, flat); got != 0 {
		t.Errorf("row 0 target = %v, want 0 (no previous signal)", got)
	}
	if got := a.Target(1, flat); got != 10 {
		t.Errorf("upward step target = %v, want 10", got)
	}
	held := domain.PortfolioState{Cash: 0, Holdings: 10}
	if got := a.Target(2, held); got != 10 {
		t.Errorf("unchanged signal target = %v, want hold 10", got)
	}
	if got := a.Target(3, held); got != 0 {
		t.Errorf("downward step target = %v, want 0", got)
	}
	if got := a.Target(4, flat); got != 0 {
		t.Errorf("flat row target = %v, want 0", got)
	}
}

func TestAllInAffordableIncludesCosts(t *testing.T) {
	a := &AllIn{Slippage: 0.01, Fee: 0.01}
	// 100 * 1.01 * 1.01 = 102.01 per share.
	if got := a.Affordable(1020, 100); got != 9 {
		t.Errorf("Affordable = %v, want 9", got)
	}
	if got := a.Affordable(0, 100); got != 0 {
		t.Errorf("Affordable with no cash = %v, want 0", got)
	}
}

func TestVolScaledConstantPriceGuard(t *testing.T) {
	prices := []float64{50, 50, 50, 50, 50, 50}
	v := &VolScaled{Capital: 1e6, MaxVol: 0.02, Lookback: 3, BarsPerYear: 252, Closes: prices}
	sigs := signals(prices, []float64{1, 1, 1, 1, 1, 1})
	if err := v.Prepare(sigs); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	for i := range sigs {
		if got := v.Target(i, domain.PortfolioState{}); got != 0 {
			t.Errorf("row %d target = %v, want 0 for constant prices", i, got)
		}
	}
}

func TestVolScaledTarget(t *testing.T) {
	prices := []float64{100, 101, 99, 102, 100}
	v := &VolScaled{Capital: 1e6, MaxVol: 0.02, Lookback: 3, BarsPerYear: 252, Closes: prices}
	sigs := signals(prices, []float64{1, 1, 1, 1, -1})
	if err := v.Prepare(sigs); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	for i := 0; i < 3; i++ {
		if got := v.Target(i, domain.PortfolioState{}); got != 0 {
			t.Errorf("warm-up row %d target = %v, want 0", i, got)
		}
	}

	vol := v.Vol(3)
	if vol <= 0 || math.IsNaN(vol) {
		t.Fatalf("Vol(3) = %v, want positive", vol)
	}
	want := math.Min(1e6, 1e6*0.02/vol) / 102
	if got := v.Target(3, domain.PortfolioState{}); math.Abs(got-want) > 1e-9 {
		t.Errorf("row 3 target = %v, want %v", got, want)
	}
	if got := v.Target(4, domain.PortfolioState{}); got != 0 {
		t.Errorf("short signal long-only target = %v, want 0", got)
	}

	v.AllowShort = true
	if got := v.Target(4, domain.PortfolioState{}); got >= 0 {
		t.Errorf("short signal with AllowShort target = %v, want negative", got)
	}
}

// gappedSignals returns rows at the given bar indices of closes.
func gappedSignals(closes []float64, idx ...int) []domain.Signal {
	t0 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Signal, len(idx))
	for i, j := range idx {
		out[i] = domain.Signal{Index: j, Timestamp: t0.AddDate(0, 0, j), Price: closes[j], Value: 1}
	}
	return out
}

func TestVolScaledUsesBarHistory(t *testing.T) {
	closes := make([]float64, 54)
	for i := range closes {
		base := 100.0
		if i >= 50 {
			base = 150
		}
		closes[i] = base + float64(i%2)
	}
	v := &VolScaled{Capital: 1e6, MaxVol: 0.02, Lookback: 3, BarsPerYear: 252, Closes: closes}
	sigs := gappedSignals(closes, 10, 11, 12, 13, 50, 51, 52, 53)
	if err := v.Prepare(sigs); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	// Bars before the first row fill the lookback.
	if got := v.Target(0, domain.PortfolioState{}); got <= 0 {
		t.Errorf("first row target = %v, want positive", got)
	}

	// After the gap, returns are still bar to bar.
	rets := []float64{151.0/150 - 1, 150.0/151 - 1, 151.0/150 - 1}
	want := stats.StdDev(rets) * math.Sqrt(252)
	if got := v.Vol(7); math.Abs(got-want) > 1e-12 {
		t.Errorf("Vol(7) = %v, want %v", got, want)
	}
	wantTarget := math.Min(1e6, 1e6*0.02/want) / 151
	if got := v.Target(7, domain.PortfolioState{}); math.Abs(got-wantTarget) > 1e-6 {
		t.Errorf("row 7 target = %v, want %v", got, wantTarget)
	}
}

func TestVolScaledRejectsBadIndex(t *testing.T) {
	closes := []float64{100, 101, 102}
	v := &VolScaled{Capital: 1e6, MaxVol: 0.02, Lookback: 2, BarsPerYear: 252, Closes: closes}
	sigs := signals([]float64{100, 101, 102, 103}, []float64{1, 1, 1, 1})
	if err := v.Prepare(sigs); err == nil {
		t.Error("expected error for a row past the bar history")
	}

	v.Closes = nil
	if err := v.Prepare(sigs[:1]); err == nil {
		t.Error("expected error without bar history")
	}
}

func TestNew(t *testing.T) {
	cfg := config.DefaultBacktest()
	s, err := New(cfg, 252, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := s.(*AllIn); !ok {
		t.Errorf("New(all_in) = %T, want *AllIn", s)
	}

	cfg.Sizing = config.SizingVolScaled
	if _, err := New(cfg, 0, nil); err == nil {
		t.Error("expected error for zero bars per year")
	}
	s, err = New(cfg, 252, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if vs, ok := s.(*VolScaled); !ok || vs.Lookback != 60 {
		t.Errorf("New(vol_scaled) = %#v, want *VolScaled lookback 60", s)
	}

	cfg.Sizing = "kelly"
	if _, err := New(cfg, 252, nil); err == nil {
		t.Error("expected error for unknown sizing")
	}
}
