package random

import "testing"

func TestNewSeedVaries(t *testing.T) {
	a, err := NewSeed()
	if err != nil {
		t.Fatalf("new seed: %v", err)
	}
	b, err := NewSeed()
	if err != nil {
		t.Fatalf("new seed: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct seeds, got %d twice", a)
	}
}

func TestSeededFloat64SourceIsDeterministic(t *testing.T) {
	first := SeededFloat64Source(42)
	second := SeededFloat64Source(42)
	for i := 0; i < 5; i++ {
		a, b := first(), second()
		if a != b {
			t.Fatalf("draw %d = %v and %v, want equal", i, a, b)
		}
		if a < 0 || a >= 1 {
			t.Fatalf("draw %d = %v, want [0,1)", i, a)
		}
	}
}

func TestFixedRepeatsLastValue(t *testing.T) {
	src := Fixed(0.1, 0.9)
	got := []float64{src(), src(), src()}
	want := []float64{0.1, 0.9, 0.9}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("draw %d = %v, want %v", i, got[i], want[i])
		}
	}
	if Fixed()() != 0 {
		t.Fatal("expected empty fixed source to yield 0")
	}
}
