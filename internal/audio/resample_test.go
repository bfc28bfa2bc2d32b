package audio

import "testing"

func TestResampleNoopWhenRatesMatch(t *testing.T) {
	in := []float64{1, 2, 3}
	out := resample(in, 8000, 8000)
	if len(out) != len(in) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(in))
	}
}

func TestResampleDownsampleHalvesLength(t *testing.T) {
	in := make([]float64, 16000)
	for i := range in {
		in[i] = float64(i)
	}
	out := resample(in, 16000, 8000)
	if out == nil || len(out) < 7900 || len(out) > 8100 {
		t.Fatalf("len(out) = %d, want ~8000", len(out))
	}
}

func TestResampleUpsampleDoublesLength(t *testing.T) {
	in := make([]float64, 8000)
	out := resample(in, 8000, 16000)
	if len(out) < 15900 || len(out) > 16100 {
		t.Fatalf("len(out) = %d, want ~16000", len(out))
	}
}
