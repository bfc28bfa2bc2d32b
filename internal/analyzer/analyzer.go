// Package analyzer implements the Pair Analyzer (C6): the start/mid/end
// protocol that turns a video/audio file pair into a Result, wiring
// together the decoder gateway, segment cache, energy windower and
// cross-correlation estimator.
package analyzer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/adkhex/audiosync/internal/models"
	"github.com/adkhex/audiosync/internal/segcache"
	"github.com/adkhex/audiosync/internal/window"
	"github.com/adkhex/audiosync/internal/xcorr"
)

// Loader is the subset of audio.Gateway the analyzer depends on, so
// tests can supply a fake decoder.
type Loader interface {
	Load(ctx context.Context, path string, targetSR int, duration *float64, offset float64) ([]float64, bool)
	Duration(ctx context.Context, path string) (float64, bool)
}

// Analyzer runs the start/mid/end protocol over a single pair.
type Analyzer struct {
	Loader     Loader
	Cache      *segcache.Cache
	SampleRate int

	// OnMidDelay, if set, is called with the diagnostic mid-point delay
	// (in ms) once computed. It is never reflected in the Result.
	OnMidDelay func(pair models.Pair, delayMs float64)
}

// New returns an Analyzer using the fixed measurement sample rate.
func New(loader Loader, cache *segcache.Cache) *Analyzer {
	return &Analyzer{Loader: loader, Cache: cache, SampleRate: models.MeasurementSampleRate}
}

// Analyze runs the full start/mid/end protocol for one pair. The mid
// stage is diagnostic only: its failure never affects the Result.
func (a *Analyzer) Analyze(ctx context.Context, pair models.Pair, segmentSec float64) models.Result {
	result := models.Result{VideoFile: pair.PrimaryPath, AudioFile: pair.SecondaryPath}
	sr := a.SampleRate
	windowSec := segmentSec
	if windowSec > 30 {
		windowSec = 30
	}

	startPrimary, ok1 := a.Acquire(ctx, pair.PrimaryPath, segcache.TagStart, 0, &segmentSec, windowSec)
	startSecondary, ok2 := a.Acquire(ctx, pair.SecondaryPath, segcache.TagStart, 0, &segmentSec, windowSec)
	if !ok1 || !ok2 {
		result.Error = "Failed to load start segment."
		return result
	}

	minLen := min(len(startPrimary), len(startSecondary))
	if minLen <= sr {
		result.Error = "Insufficient audio at start for analysis."
		return result
	}

	startDelay := xcorr.Estimate(startPrimary[:minLen], startSecondary[:minLen], sr)
	result.StartDelayMs = ptr(startDelay)

	primaryDuration, okD1 := a.Loader.Duration(ctx, pair.PrimaryPath)
	secondaryDuration, okD2 := a.Loader.Duration(ctx, pair.SecondaryPath)
	if !okD1 || !okD2 {
		result.Error = "Could not get duration for end analysis."
		return result
	}

	a.logMidDelay(ctx, pair, segmentSec, windowSec, primaryDuration, secondaryDuration)

	endOffsetPrimary := maxFloat(0, primaryDuration-segmentSec)
	endOffsetSecondary := maxFloat(0, secondaryDuration-segmentSec)
	endPrimary, ok3 := a.Acquire(ctx, pair.PrimaryPath, segcache.TagEnd, endOffsetPrimary, &segmentSec, windowSec)
	endSecondary, ok4 := a.Acquire(ctx, pair.SecondaryPath, segcache.TagEnd, endOffsetSecondary, &segmentSec, windowSec)
	if !ok3 || !ok4 {
		result.Error = "Failed to load end segment."
		return result
	}

	minLenEnd := min(len(endPrimary), len(endSecondary))
	if minLenEnd <= sr {
		result.Error = "Insufficient audio at end for analysis."
		return result
	}

	endDelayRaw := xcorr.Estimate(endPrimary[:minLenEnd], endSecondary[:minLenEnd], sr)
	// Subtle: each end segment is the last segmentSec of its own file, so
	// when the primary runs longer than the secondary the raw end-segment
	// lag comes out larger than the true offset by exactly the duration
	// difference — it must be taken back out to report the true offset,
	// not the apparent one at the tail.
	endDelay := endDelayRaw - (primaryDuration-secondaryDuration)*1000
	result.EndDelayMs = ptr(endDelay)
	return result
}

// AnalyzeSimple is the reduced fallback path: start and end stages
// only, loading segments straight from the decoder — no mid-point
// diagnostic, no energy windowing, no segment cache. The job pool
// switches to it when the full Analyze panics, so it must not share
// Acquire's code paths.
func (a *Analyzer) AnalyzeSimple(ctx context.Context, pair models.Pair, segmentSec float64) models.Result {
	result := models.Result{VideoFile: pair.PrimaryPath, AudioFile: pair.SecondaryPath}
	sr := a.SampleRate

	startPrimary, ok1 := a.Loader.Load(ctx, pair.PrimaryPath, sr, &segmentSec, 0)
	startSecondary, ok2 := a.Loader.Load(ctx, pair.SecondaryPath, sr, &segmentSec, 0)
	if !ok1 || !ok2 {
		result.Error = "Failed to load start segment."
		return result
	}

	minLen := min(len(startPrimary), len(startSecondary))
	if minLen <= sr {
		result.Error = "Insufficient audio at start for analysis."
		return result
	}
	result.StartDelayMs = ptr(xcorr.Estimate(startPrimary[:minLen], startSecondary[:minLen], sr))

	primaryDuration, okD1 := a.Loader.Duration(ctx, pair.PrimaryPath)
	secondaryDuration, okD2 := a.Loader.Duration(ctx, pair.SecondaryPath)
	if !okD1 || !okD2 {
		result.Error = "Could not get duration for end analysis."
		return result
	}

	endPrimary, ok3 := a.Loader.Load(ctx, pair.PrimaryPath, sr, &segmentSec, maxFloat(0, primaryDuration-segmentSec))
	endSecondary, ok4 := a.Loader.Load(ctx, pair.SecondaryPath, sr, &segmentSec, maxFloat(0, secondaryDuration-segmentSec))
	if !ok3 || !ok4 {
		result.Error = "Failed to load end segment."
		return result
	}

	minLenEnd := min(len(endPrimary), len(endSecondary))
	if minLenEnd <= sr {
		result.Error = "Insufficient audio at end for analysis."
		return result
	}
	endDelayRaw := xcorr.Estimate(endPrimary[:minLenEnd], endSecondary[:minLenEnd], sr)
	result.EndDelayMs = ptr(endDelayRaw - (primaryDuration-secondaryDuration)*1000)
	return result
}

func (a *Analyzer) logMidDelay(ctx context.Context, pair models.Pair, segmentSec, windowSec, primaryDuration, secondaryDuration float64) {
	if a.OnMidDelay == nil {
		return
	}
	midOffsetPrimary := maxFloat(0, primaryDuration/2-segmentSec/2)
	midOffsetSecondary := maxFloat(0, secondaryDuration/2-segmentSec/2)
	midPrimary, ok1 := a.Acquire(ctx, pair.PrimaryPath, segcache.TagMid, midOffsetPrimary, &segmentSec, windowSec)
	midSecondary, ok2 := a.Acquire(ctx, pair.SecondaryPath, segcache.TagMid, midOffsetSecondary, &segmentSec, windowSec)
	if !ok1 || !ok2 {
		return
	}
	minLenMid := min(len(midPrimary), len(midSecondary))
	if minLenMid <= a.SampleRate {
		return
	}
	midDelay := xcorr.Estimate(midPrimary[:minLenMid], midSecondary[:minLenMid], a.SampleRate)
	a.OnMidDelay(pair, midDelay)
}

// Acquire loads, windows and caches the segment of path named by
// (offset, duration, tag), going through the segment cache first. The
// fingerprint matcher reuses this path (with TagFingerprint) so its
// segments share the cache with delay analysis.
func (a *Analyzer) Acquire(ctx context.Context, path string, tag segcache.Tag, offset float64, duration *float64, windowSec float64) ([]float64, bool) {
	key := a.cacheKey(path, offset, duration, tag)

	if a.Cache != nil {
		if cached, ok := a.Cache.Get(key); ok {
			return float32sToFloat64s(cached), true
		}
	}

	raw, ok := a.Loader.Load(ctx, path, a.SampleRate, duration, offset)
	if !ok {
		return nil, false
	}

	windowed := window.Select(raw, a.SampleRate, windowSec)

	if a.Cache != nil {
		a.Cache.Put(key, float64sToFloat32s(windowed))
	}
	return windowed, true
}

func (a *Analyzer) cacheKey(path string, offset float64, duration *float64, tag segcache.Tag) segcache.Key {
	key := segcache.Key{
		CanonicalPath: canonicalPath(path),
		SampleRate:    a.SampleRate,
		OffsetSec:     offset,
		Tag:           tag,
	}
	if duration != nil {
		key.HasDuration = true
		key.DurationSec = *duration
	}
	if info, err := os.Stat(path); err == nil {
		key.HasStat = true
		key.ModTimeUnix = info.ModTime().Unix()
		key.SizeBytes = info.Size()
	} else {
		slog.Debug("analyzer: stat failed, cache entry will not be reused across runs", "path", path, "error", err)
	}
	return key
}

func canonicalPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func ptr(v float64) *float64 { return &v }

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func float32sToFloat64s(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func float64sToFloat32s(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
