package fingerprint

import (
	"math"
	"testing"
)

func sineWave(freq float64, sr, n int) []float64 {
	y := make([]float64, n)
	for i := range y {
		y[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sr))
	}
	return y
}

func TestComputeUnitNorm(t *testing.T) {
	const sr = 8000
	y := sineWave(440, sr, 4*sr)

	vec, ok := Compute(y, sr)
	if !ok {
		t.Fatal("expected ok=true for a real tone")
	}
	if len(vec) != Length {
		t.Fatalf("len(vec) = %d, want %d", len(vec), Length)
	}

	norm := l2Norm(vec)
	if math.Abs(norm-1) > 1e-6 {
		t.Fatalf("||vec|| = %v, want 1", norm)
	}
}

func TestComputeSilenceIsAbsent(t *testing.T) {
	y := make([]float64, 8000*4)
	if _, ok := Compute(y, 8000); ok {
		t.Fatal("expected ok=false for silence (zero-norm feature vector)")
	}
}

func TestComputeEmptyIsAbsent(t *testing.T) {
	if _, ok := Compute(nil, 8000); ok {
		t.Fatal("expected ok=false for empty input")
	}
}

func TestSimilarityIdenticalIsOne(t *testing.T) {
	const sr = 8000
	y := sineWave(440, sr, 4*sr)
	vec, ok := Compute(y, sr)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if s := Similarity(vec, vec); math.Abs(s-1) > 1e-6 {
		t.Fatalf("Similarity(v, v) = %v, want 1", s)
	}
}

func TestSimilarityAbsentIsZero(t *testing.T) {
	if s := Similarity(nil, []float64{1, 2, 3}); s != 0 {
		t.Fatalf("Similarity(nil, v) = %v, want 0", s)
	}
}

func TestMatchPicksBestAboveThreshold(t *testing.T) {
	const sr = 8000
	lowTone, _ := Compute(sineWave(220, sr, 4*sr), sr)
	highTone, _ := Compute(sineWave(880, sr, 4*sr), sr)

	videos := []Entry{{Path: "video.mp4", Vector: lowTone}}
	audios := []Entry{
		{Path: "match.wav", Vector: lowTone},
		{Path: "other.wav", Vector: highTone},
	}

	pairs, unmatched := Match(videos, audios, 0.99)
	if len(unmatched) != 0 {
		t.Fatalf("unexpected unmatched: %v", unmatched)
	}
	if len(pairs) != 1 || pairs[0].SecondaryPath != "match.wav" {
		t.Fatalf("pairs = %+v, want a single pair to match.wav", pairs)
	}
}

func TestMatchBelowThresholdIsUnmatched(t *testing.T) {
	const sr = 8000
	lowTone, _ := Compute(sineWave(220, sr, 4*sr), sr)
	highTone, _ := Compute(sineWave(880, sr, 4*sr), sr)

	videos := []Entry{{Path: "video.mp4", Vector: lowTone}}
	audios := []Entry{{Path: "other.wav", Vector: highTone}}

	pairs, unmatched := Match(videos, audios, 0.999999)
	if len(pairs) != 0 {
		t.Fatalf("expected no pairs, got %+v", pairs)
	}
	if len(unmatched) != 1 || unmatched[0] != "video.mp4" {
		t.Fatalf("unmatched = %v, want [video.mp4]", unmatched)
	}
}
