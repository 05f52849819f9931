package strategy

import (
	"errors"
	"testing"
	"time"

	"tradesim/internal/domain"
)

// stubGenerator emits a fixed value sequence, one signal per bar.
type stubGenerator struct {
	name   string
	values []float64
}

func (s *stubGenerator) Name() string { return s.name }
func (s *stubGenerator) Kind() Kind   { return KindCrossover }
func (s *stubGenerator) Warmup() int  { return len(s.values) }
func (s *stubGenerator) Generate(in Input) ([]domain.Signal, error) {
	if err := CheckHistory(s, in.Primary); err != nil {
		return nil, err
	}
	out := make([]domain.Signal, len(s.values))
	for i, v := range s.values {
		out[i] = domain.Signal{Index: i, Timestamp: in.Primary.Timestamp(i), Price: in.Primary.Close(i), Value: v}
	}
	return out, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	s := &stubGenerator{name: "test-strategy"}

	r.Register(s)

	got, ok := r.Get("test-strategy")
	if !ok {
		t.Fatal("Get returned false for registered generator")
	}
	if got.Name() != "test-strategy" {
		t.Errorf("Get returned generator with Name() = %q, want %q", got.Name(), "test-strategy")
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Error("Get returned true for unregistered generator")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubGenerator{name: "beta"})
	r.Register(&stubGenerator{name: "alpha"})

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
	if names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
}

func TestApplyLatency(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	in := make([]domain.Signal, 5)
	for i := range in {
		in[i] = domain.Signal{Index: i, Timestamp: t0.AddDate(0, 0, i), Value: float64(i + 1)}
	}

	out := ApplyLatency(in, 2)
	want := []float64{0, 0, 1, 2, 3}
	for i, w := range want {
		if out[i].Value != w {
			t.Errorf("out[%d].Value = %v, want %v", i, out[i].Value, w)
		}
		if out[i].Index != i {
			t.Errorf("out[%d].Index = %d, latency must not move rows", i, out[i].Index)
		}
	}
	if in[2].Value != 3 {
		t.Error("ApplyLatency modified its input")
	}

	same := ApplyLatency(in, 0)
	if same[0].Value != 1 {
		t.Errorf("zero latency changed values: %v", same[0].Value)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(string(k))
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseKind("grid"); err == nil {
		t.Error("ParseKind(grid) should fail")
	}
}

func TestCheckHistory(t *testing.T) {
	g := &stubGenerator{name: "stub", values: []float64{1, 2, 3}}
	err := CheckHistory(g, nil)
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Errorf("CheckHistory(nil) = %v, want ErrInsufficientHistory", err)
	}
}
