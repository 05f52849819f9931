package builtins

import (
	"errors"
	"math"
	"testing"
	"time"

	"tradesim/internal/config"
	"tradesim/internal/domain"
	"tradesim/internal/series"
	"tradesim/internal/strategy"
)

var t0 = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

func mustSeries(t *testing.T, symbol string, closes ...float64) *series.Series {
	t.Helper()
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Timestamp: t0.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	s, err := series.New(symbol, bars)
	if err != nil {
		t.Fatalf("series.New: %v", err)
	}
	return s
}

// wave returns a deterministic oscillating price path.
func wave(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 10*math.Sin(float64(i)/3) + float64(i%7)
	}
	return out
}

func allGenerators(t *testing.T) []strategy.Generator {
	t.Helper()
	base := config.DefaultBacktest()
	var gens []strategy.Generator
	for _, kind := range []string{"crossover", "momentum", "band", "meanrev"} {
		cfg := base
		cfg.Strategy = kind
		cfg.ShortWindow, cfg.LongWindow = 3, 8
		cfg.Lookback, cfg.Window = 5, 6
		g, err := New(cfg)
		if err != nil {
			t.Fatalf("New(%s): %v", kind, err)
		}
		gens = append(gens, g)
	}
	return gens
}

func TestNoLookAhead(t *testing.T) {
	full := mustSeries(t, "X", wave(60)...)
	for _, g := range allGenerators(t) {
		t.Run(g.Name(), func(t *testing.T) {
			all, err := g.Generate(strategy.Input{Primary: full})
			if err != nil {
				t.Fatalf("Generate(full): %v", err)
			}
			for _, cut := range []int{20, 35, 50} {
				head, _ := full.Head(cut)
				prefix, err := g.Generate(strategy.Input{Primary: head})
				if err != nil {
					t.Fatalf("Generate(head %d): %v", cut, err)
				}
				for j, sig := range prefix {
					if sig != all[j] {
						t.Fatalf("cut %d row %d: %+v != %+v", cut, j, sig, all[j])
					}
				}
			}
		})
	}
}

func TestWarmupRowsDropped(t *testing.T) {
	s := mustSeries(t, "X", wave(30)...)

	c, _ := NewCrossover(3, 8)
	sigs, err := c.Generate(strategy.Input{Primary: s})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sigs[0].Index != 7 {
		t.Errorf("crossover first index = %d, want 7", sigs[0].Index)
	}
	if len(sigs) != 23 {
		t.Errorf("crossover rows = %d, want 23", len(sigs))
	}

	m, _ := NewMomentum(5)
	sigs, err = m.Generate(strategy.Input{Primary: s})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sigs[0].Index != 5 {
		t.Errorf("momentum first index = %d, want 5", sigs[0].Index)
	}
}

func TestInsufficientHistory(t *testing.T) {
	s := mustSeries(t, "X", 1, 2, 3)
	c, _ := NewCrossover(2, 5)
	_, err := c.Generate(strategy.Input{Primary: s})
	if !errors.Is(err, strategy.ErrInsufficientHistory) {
		t.Fatalf("err = %v, want ErrInsufficientHistory", err)
	}
}

func TestCrossoverValues(t *testing.T) {
	// Rising then falling prices: fast SMA leads the slow one both ways.
	s := mustSeries(t, "X", 1, 2, 3, 4, 5, 6, 5, 4, 3, 2, 1)
	c, _ := NewCrossover(2, 4)
	sigs, err := c.Generate(strategy.Input{Primary: s})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sigs[0].Value != 1 {
		t.Errorf("first value = %v, want 1 in uptrend", sigs[0].Value)
	}
	if last := sigs[len(sigs)-1]; last.Value != -1 {
		t.Errorf("last value = %v, want -1 in downtrend", last.Value)
	}
	if sigs[0].Price != 4 || !sigs[0].Timestamp.Equal(s.Timestamp(3)) {
		t.Errorf("first signal = %+v, want price 4 at bar 3", sigs[0])
	}
}

func TestBandSkipsFlatWindows(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 10, 10, 12, 8, 10, 30}
	s := mustSeries(t, "X", closes...)
	b, _ := NewBand(3, 1)
	sigs, err := b.Generate(strategy.Input{Primary: s})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, sig := range sigs {
		if sig.Index < 6 {
			t.Errorf("row %d has flat window and must be omitted", sig.Index)
		}
		if math.IsNaN(sig.Score) || math.IsInf(sig.Score, 0) {
			t.Errorf("row %d score %v not finite", sig.Index, sig.Score)
		}
	}
	last := sigs[len(sigs)-1]
	if last.Index != 9 || last.Value != -1 {
		t.Errorf("spike row = %+v, want index 9 value -1", last)
	}
}

func TestBandAllFlat(t *testing.T) {
	s := mustSeries(t, "X", 5, 5, 5, 5, 5)
	b, _ := NewBand(3, 2)
	if _, err := b.Generate(strategy.Input{Primary: s}); !errors.Is(err, strategy.ErrInsufficientHistory) {
		t.Fatalf("err = %v, want ErrInsufficientHistory", err)
	}
}

func TestMeanReversionHysteresis(t *testing.T) {
	m, _ := NewMeanReversion(3, -1, 0)
	// Windows: [10 10 9] z<-1 enters; [10 9 9.5] between holds;
	// [9 9.5 10] z>0 exits.
	s := mustSeries(t, "X", 10, 10, 9, 9.5, 10)
	sigs, err := m.Generate(strategy.Input{Primary: s})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := []float64{1, 1, 0}
	if len(sigs) != len(want) {
		t.Fatalf("rows = %d, want %d", len(sigs), len(want))
	}
	for i, w := range want {
		if sigs[i].Value != w {
			t.Errorf("row %d value = %v (z=%v), want %v", i, sigs[i].Value, sigs[i].Score, w)
		}
	}
}

func TestPairAlignsAndValuesOnA(t *testing.T) {
	n := 40
	aCloses := make([]float64, n)
	bCloses := make([]float64, n)
	for i := 0; i < n; i++ {
		aCloses[i] = 50 + 5*math.Sin(float64(i)/2)
		bCloses[i] = 40 + float64(i%3)
	}
	a := mustSeries(t, "A", aCloses...)
	// B misses its first two bars.
	b := mustSeries(t, "B", bCloses...)
	bTrim, _ := series.New("B", b.Bars()[2:])

	p, _ := NewPair(10, 1)
	sigs, err := p.Generate(strategy.Input{Primary: a, Secondary: bTrim})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !sigs[0].Timestamp.Equal(a.Timestamp(11)) {
		t.Errorf("first pair signal at %v, want %v", sigs[0].Timestamp, a.Timestamp(11))
	}
	for _, sig := range sigs {
		want := 0.0
		if sig.Score < -1 {
			want = 1
		} else if sig.Score > 1 {
			want = -1
		}
		if sig.Value != want {
			t.Errorf("z=%v value=%v, want %v", sig.Score, sig.Value, want)
		}
	}
	if sigs[0].Price != aCloses[11] {
		t.Errorf("valuation price = %v, want close of A %v", sigs[0].Price, aCloses[11])
	}

	if _, err := p.Generate(strategy.Input{Primary: a}); err == nil {
		t.Error("expected error without secondary series")
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	cfg := config.DefaultBacktest()
	cfg.Strategy = "martingale"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestRegister(t *testing.T) {
	r := strategy.NewRegistry()
	a := config.DefaultBacktest()
	b := a
	b.Strategy, b.Lookback = "momentum", 10
	if _, err := Register(r, a, b); err != nil {
		t.Fatalf("Register: %v", err)
	}
	names := r.List()
	if len(names) != 2 || names[0] != "crossover-20-50" || names[1] != "momentum-10" {
		t.Errorf("List() = %v, want [crossover-20-50 momentum-10]", names)
	}
}

func constantCloses(c float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = c
	}
	return out
}

func TestCrossoverConstantPriceIsFlat(t *testing.T) {
	c, _ := NewCrossover(3, 7)
	for _, price := range []float64{100, 100.1, 33.3, 0.7} {
		s := mustSeries(t, "X", constantCloses(price, 60)...)
		sigs, err := c.Generate(strategy.Input{Primary: s})
		if err != nil {
			t.Fatalf("Generate(%v): %v", price, err)
		}
		for i, sig := range sigs {
			if sig.Value != 0 || sig.Score != 0 {
				t.Fatalf("close %v row %d: value=%v score=%v, want 0", price, i, sig.Value, sig.Score)
			}
		}
	}
}

func TestCrossoverFlatPriceRoundTrip(t *testing.T) {
	cfg := config.DefaultBacktest()
	cfg.Symbol = "X"
	cfg.ShortWindow, cfg.LongWindow = 3, 7
	gen, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, price := range []float64{100, 100.1, 0.7} {
		for _, sizing := range []string{config.SizingAllIn, config.SizingVolScaled} {
			cfg.Sizing = sizing
			cfg.VolLookback = 5
			s := mustSeries(t, "X", constantCloses(price, 60)...)
			res, err := strategy.Simulate(gen, strategy.Input{Primary: s}, nil, cfg, nil)
			if err != nil {
				t.Fatalf("Simulate(%v, %s): %v", price, sizing, err)
			}
			if len(res.Fills) != 0 {
				t.Errorf("close %v %s: fills = %d, want 0", price, sizing, len(res.Fills))
			}
			if got := res.Summary.FinalValue; got != 10000 {
				t.Errorf("close %v %s: final value = %v, want 10000", price, sizing, got)
			}
		}
	}
}
