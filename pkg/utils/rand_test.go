package utils

import "testing"

func TestRandSourceDeterminism(t *testing.T) {
	r1 := NewRandSource(42)
	r2 := NewRandSource(42)

	for i := 0; i < 10; i++ {
		v1 := r1.Float64()
		v2 := r2.Float64()
		if v1 != v2 {
			t.Fatalf("same seed produced different values at step %d: %f vs %f", i, v1, v2)
		}
	}
}

func TestRandSourceRanges(t *testing.T) {
	r := NewRandSource(1)

	for i := 0; i < 1000; i++ {
		v := r.Float64()
		if v < 0 || v >= 1 {
			t.Fatalf("Float64 out of range: %f", v)
		}
		n := r.Intn(10)
		if n < 0 || n >= 10 {
			t.Fatalf("Intn out of range: %d", n)
		}
		j := r.Jitter(0.5)
		if j < -0.5 || j >= 0.5 {
			t.Fatalf("Jitter out of range: %f", j)
		}
	}
}

func TestRandSourcePerm(t *testing.T) {
	r := NewRandSource(7)
	p := r.Perm(5)
	if len(p) != 5 {
		t.Fatalf("expected permutation of length 5, got %d", len(p))
	}
	seen := make(map[int]bool)
	for _, v := range p {
		if v < 0 || v >= 5 || seen[v] {
			t.Fatalf("invalid permutation: %v", p)
		}
		seen[v] = true
	}
}

func TestRandSourceZeroSeed(t *testing.T) {
	r := NewRandSource(0)
	if r == nil {
		t.Fatal("expected non-nil source for zero seed")
	}
	_ = r.Float64()
}
