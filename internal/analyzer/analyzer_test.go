package analyzer

import (
	"context"
	"math"
	"testing"

	"github.com/adkhex/audiosync/internal/models"
	"github.com/adkhex/audiosync/internal/segcache"
)

const sr = 8000

// fakeLoader serves pre-built full-length buffers sliced by offset and
// duration, standing in for the decoder gateway so these tests exercise
// only the analysis protocol, not real media decode.
type fakeLoader struct {
	buffers   map[string][]float64
	durations map[string]float64
}

func (f *fakeLoader) Load(_ context.Context, path string, targetSR int, duration *float64, offset float64) ([]float64, bool) {
	buf, ok := f.buffers[path]
	if !ok {
		return nil, false
	}
	start := int(offset * float64(targetSR))
	if start > len(buf) {
		start = len(buf)
	}
	end := len(buf)
	if duration != nil {
		if n := start + int(*duration*float64(targetSR)); n < end {
			end = n
		}
	}
	if start > end {
		start = end
	}
	out := make([]float64, end-start)
	copy(out, buf[start:end])
	return out, true
}

func (f *fakeLoader) Duration(_ context.Context, path string) (float64, bool) {
	d, ok := f.durations[path]
	return d, ok
}

func sineBuf(seconds float64) []float64 {
	n := int(seconds * sr)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * 220 * float64(i) / sr)
	}
	return out
}

func silence(seconds float64) []float64 {
	return make([]float64, int(seconds*sr))
}

func concat(bufs ...[]float64) []float64 {
	var out []float64
	for _, b := range bufs {
		out = append(out, b...)
	}
	return out
}

func newAnalyzer(loader Loader) *Analyzer {
	return New(loader, nil) // nil cache: Acquire() falls through to the loader every time
}

func TestAnalyzeIdenticalTracksZeroDelay(t *testing.T) {
	base := sineBuf(60)
	loader := &fakeLoader{
		buffers:   map[string][]float64{"v.mp4": base, "a.wav": base},
		durations: map[string]float64{"v.mp4": 60, "a.wav": 60},
	}
	a := newAnalyzer(loader)
	result := a.Analyze(context.Background(), models.Pair{PrimaryPath: "v.mp4", SecondaryPath: "a.wav"}, 5)

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.StartDelayMs == nil || math.Abs(*result.StartDelayMs) > 0.3 {
		t.Fatalf("start delay = %v, want ~0", result.StartDelayMs)
	}
	if result.EndDelayMs == nil || math.Abs(*result.EndDelayMs) > 0.3 {
		t.Fatalf("end delay = %v, want ~0", result.EndDelayMs)
	}
	if result.Confidence() != models.ConfidenceHigh {
		t.Fatalf("confidence = %v, want High", result.Confidence())
	}
}

func TestAnalyzeConstantShift(t *testing.T) {
	base := sineBuf(60)
	shifted := concat(silence(0.25), base[:len(base)-int(0.25*sr)])

	loader := &fakeLoader{
		buffers:   map[string][]float64{"v.mp4": base, "a.wav": shifted},
		durations: map[string]float64{"v.mp4": 60, "a.wav": 60},
	}
	a := newAnalyzer(loader)
	result := a.Analyze(context.Background(), models.Pair{PrimaryPath: "v.mp4", SecondaryPath: "a.wav"}, 5)

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.StartDelayMs == nil || math.Abs(*result.StartDelayMs-250) > 5 {
		t.Fatalf("start delay = %v, want ~250", result.StartDelayMs)
	}
	if result.EndDelayMs == nil || math.Abs(*result.EndDelayMs-250) > 5 {
		t.Fatalf("end delay = %v, want ~250", result.EndDelayMs)
	}
}

func TestAnalyzeLengthMismatchReconciledAtEnd(t *testing.T) {
	base := sineBuf(60)
	// Secondary is the last 50s of primary's content: its own t=0 equals
	// primary's t=10s.
	trimmed := append([]float64(nil), base[10*sr:]...)

	loader := &fakeLoader{
		buffers:   map[string][]float64{"v.mp4": base, "a.wav": trimmed},
		durations: map[string]float64{"v.mp4": 60, "a.wav": 50},
	}
	a := newAnalyzer(loader)
	result := a.Analyze(context.Background(), models.Pair{PrimaryPath: "v.mp4", SecondaryPath: "a.wav"}, 5)

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.StartDelayMs == nil || result.EndDelayMs == nil {
		t.Fatal("expected both delays present")
	}
	if math.Abs(*result.StartDelayMs) < 5000 {
		t.Fatalf("start delay = %v, want a large offset (~10000ms magnitude)", *result.StartDelayMs)
	}
	if math.Abs(*result.EndDelayMs) > 50 {
		t.Fatalf("end delay = %v, want close to 0 after duration reconciliation", *result.EndDelayMs)
	}
}

func TestAnalyzeInsufficientAudioAtStart(t *testing.T) {
	short := sineBuf(0.5)
	loader := &fakeLoader{
		buffers:   map[string][]float64{"v.mp4": short, "a.wav": short},
		durations: map[string]float64{"v.mp4": 0.5, "a.wav": 0.5},
	}
	a := newAnalyzer(loader)
	result := a.Analyze(context.Background(), models.Pair{PrimaryPath: "v.mp4", SecondaryPath: "a.wav"}, 5)

	if result.Error != "Insufficient audio at start for analysis." {
		t.Fatalf("error = %q, want the insufficient-audio message", result.Error)
	}
	if result.StartDelayMs != nil || result.EndDelayMs != nil {
		t.Fatalf("expected both delays absent, got start=%v end=%v", result.StartDelayMs, result.EndDelayMs)
	}
}

func TestAnalyzeSimpleConstantShift(t *testing.T) {
	base := sineBuf(60)
	shifted := concat(silence(0.25), base[:len(base)-int(0.25*sr)])

	loader := &fakeLoader{
		buffers:   map[string][]float64{"v.mp4": base, "a.wav": shifted},
		durations: map[string]float64{"v.mp4": 60, "a.wav": 60},
	}
	// A cache is deliberately attached: AnalyzeSimple must not touch it.
	a := New(loader, segcache.OpenAt(t.TempDir()))
	result := a.AnalyzeSimple(context.Background(), models.Pair{PrimaryPath: "v.mp4", SecondaryPath: "a.wav"}, 5)

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.StartDelayMs == nil || math.Abs(*result.StartDelayMs-250) > 5 {
		t.Fatalf("start delay = %v, want ~250", result.StartDelayMs)
	}
	if result.EndDelayMs == nil || math.Abs(*result.EndDelayMs-250) > 5 {
		t.Fatalf("end delay = %v, want ~250", result.EndDelayMs)
	}
}

func TestAnalyzeFailedLoadReportsError(t *testing.T) {
	loader := &fakeLoader{buffers: map[string][]float64{}, durations: map[string]float64{}}
	a := newAnalyzer(loader)
	result := a.Analyze(context.Background(), models.Pair{PrimaryPath: "missing.mp4", SecondaryPath: "missing.wav"}, 5)

	if result.Error != "Failed to load start segment." {
		t.Fatalf("error = %q", result.Error)
	}
}
