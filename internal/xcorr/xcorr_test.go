package xcorr

import (
	"math"
	"testing"

	"pgregory.net/rapid"
)

const sr = 8000

func TestEstimateIdenticalBuffersIsZero(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(64, 2048).Draw(t, "n")
		b := make([]float64, n)
		for i := range b {
			b[i] = rapid.Float64Range(-1, 1).Draw(t, "v")
		}
		got := Estimate(b, b, sr)
		if math.IsNaN(got) {
			t.Skip("degenerate buffer (zero variance)")
		}
		if got != 0 {
			t.Fatalf("Estimate(b, b) = %v, want 0", got)
		}
	})
}

func TestEstimateKnownShift(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(256, 4096).Draw(t, "n")
		k := rapid.IntRange(-n/3, n/3).Draw(t, "k")

		base := make([]float64, n)
		for i := range base {
			base[i] = math.Sin(float64(i) * 0.07)
		}
		shifted := shift(base, k)

		got := Estimate(base, shifted, sr)
		if math.IsNaN(got) {
			t.Skip("degenerate correlation")
		}
		want := float64(k) / float64(sr) * 1000
		tol := 1000.0 / float64(sr)
		if math.Abs(got-want) > tol+1e-6 {
			t.Fatalf("Estimate shift k=%d: got %v want %v (tol %v)", k, got, want, tol)
		}
	})
}

// shift produces a buffer such that shift(b, k) places b's content k
// samples later (k may be negative). Out-of-range positions are zero.
func shift(b []float64, k int) []float64 {
	out := make([]float64, len(b))
	for i := range out {
		src := i - k
		if src >= 0 && src < len(b) {
			out[i] = b[src]
		}
	}
	return out
}

func TestEstimateAllZeroIsNaN(t *testing.T) {
	z := make([]float64, 4000)
	got := Estimate(z, z, sr)
	if !math.IsNaN(got) {
		t.Fatalf("Estimate(zeros, zeros) = %v, want NaN", got)
	}
}
