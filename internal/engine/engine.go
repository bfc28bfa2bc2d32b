// Package engine wires the decoder gateway, segment cache, pair
// analyzer, filename pairer, fingerprinter and job pool together into
// the single operation both front-ends (the CLI and the host-driven
// bridge) drive: resolve a request into file pairs, run them through
// the job pool, return the aggregate.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/adkhex/audiosync/internal/analyzer"
	"github.com/adkhex/audiosync/internal/audio"
	"github.com/adkhex/audiosync/internal/events"
	"github.com/adkhex/audiosync/internal/fingerprint"
	"github.com/adkhex/audiosync/internal/jobpool"
	"github.com/adkhex/audiosync/internal/ledger"
	"github.com/adkhex/audiosync/internal/models"
	"github.com/adkhex/audiosync/internal/pairer"
	"github.com/adkhex/audiosync/internal/segcache"
)

// batchVideoExtensions are scanned for video files in movie mode.
var batchVideoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".webm": true, ".avi": true, ".mov": true,
}

// seriesAudioExtensions are scanned for the audio side of series mode,
// in addition to the video extension set (a "video" container can still
// hold the reference audio track).
var seriesAudioExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".aac": true, ".flac": true, ".ogg": true,
	".m4a": true, ".eac3": true, ".ac3": true,
}

const defaultFingerprintThreshold = 0.7
const fingerprintSegmentSec = 30.0

// Engine is the long-lived (for the duration of one batch) set of
// collaborators a request is run against.
type Engine struct {
	Gateway   *audio.Gateway
	Cache     *segcache.Cache
	Analyzer  *analyzer.Analyzer
	Pool      *jobpool.Pool
	Emitter   *events.Emitter
	Ledger    *ledger.Ledger
	Threshold float64
}

// Options carries the tunables both front-ends read from appconfig.
type Options struct {
	Workers              int // 0 means GOMAXPROCS
	CacheDir             string
	FingerprintThreshold float64
}

// New builds an Engine with the default collaborator wiring: a decoder
// gateway, an on-disk segment cache, an analyzer that logs its
// mid-point diagnostic delay through emitter, and a job pool sized per
// opts.
func New(emitter *events.Emitter, hist *ledger.Ledger, opts Options) *Engine {
	gateway := audio.NewGateway()
	cache := segcache.Open(opts.CacheDir)
	a := analyzer.New(gateway, cache)
	a.OnMidDelay = func(pair models.Pair, delayMs float64) {
		if emitter != nil {
			emitter.Log("mid-point diagnostic delay for %s / %s: %.1fms", pair.PrimaryPath, pair.SecondaryPath, delayMs)
		}
	}
	threshold := opts.FingerprintThreshold
	if threshold <= 0 {
		threshold = defaultFingerprintThreshold
	}
	pool := &jobpool.Pool{Analyzer: a, Emitter: emitter, Ledger: hist, Workers: opts.Workers}
	return &Engine{Gateway: gateway, Cache: cache, Analyzer: a, Pool: pool, Emitter: emitter, Ledger: hist, Threshold: threshold}
}

// Run resolves req into pairs and runs them through the job pool,
// recording the batch in the ledger (if configured) under a generated
// run ID.
func (e *Engine) Run(ctx context.Context, req models.Request) ([]models.Result, error) {
	segmentSec := req.SegmentDuration
	if segmentSec <= 0 {
		segmentSec = models.DefaultSegmentDuration
	}

	pairs, err := e.ResolvePairs(ctx, req)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	if e.Ledger != nil {
		primary, secondary := requestEndpoints(req)
		_ = e.Ledger.BeginRun(runID, ledger.RunArgs{
			Mode: req.Mode, Primary: primary, Secondary: secondary,
			SegmentSeconds: segmentSec, MatchPattern: req.MatchPattern,
		})
	}

	return e.Pool.Run(ctx, pairs, segmentSec, runID), nil
}

func requestEndpoints(req models.Request) (primary, secondary string) {
	switch {
	case req.VideoFolder != "" || len(req.VideoFiles) > 0:
		primary = req.VideoFolder
		if primary == "" && len(req.VideoFiles) > 0 {
			primary = req.VideoFiles[0]
		}
		secondary = req.AudioFile
		if secondary == "" {
			secondary = req.AudioFolder
		}
	}
	return primary, secondary
}

// ResolvePairs turns a request into the list of (video, audio) pairs to
// analyze.
func (e *Engine) ResolvePairs(ctx context.Context, req models.Request) ([]models.Pair, error) {
	switch req.Mode {
	case "movie", "single", "":
		return e.resolveMovie(req)
	case "series", "batch":
		return e.resolveSeries(ctx, req)
	default:
		return nil, fmt.Errorf("engine: unknown mode %q", req.Mode)
	}
}

// resolveMovie pairs every video (explicit list, or every file scanned
// from video_folder) against the single reference audio_file.
func (e *Engine) resolveMovie(req models.Request) ([]models.Pair, error) {
	videos := req.VideoFiles
	if len(videos) == 0 && req.VideoFolder != "" {
		var err error
		videos, err = scanDir(req.VideoFolder, batchVideoExtensions)
		if err != nil {
			return nil, fmt.Errorf("engine: scan video folder: %w", err)
		}
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("engine: no video files to analyze")
	}
	if req.AudioFile == "" {
		return nil, fmt.Errorf("engine: movie mode requires audio_file")
	}

	pairs := make([]models.Pair, 0, len(videos))
	for _, v := range videos {
		pairs = append(pairs, models.Pair{PrimaryPath: v, SecondaryPath: req.AudioFile})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].PrimaryPath < pairs[j].PrimaryPath })
	return pairs, nil
}

// resolveSeries scans both folders, tries filename pairing, and on
// zero matches falls back to fingerprint-based matching.
func (e *Engine) resolveSeries(ctx context.Context, req models.Request) ([]models.Pair, error) {
	if req.VideoFolder == "" || req.AudioFolder == "" {
		return nil, fmt.Errorf("engine: series mode requires video_folder and audio_folder")
	}

	videoExt := batchVideoExtensions
	audioExt := union(seriesAudioExtensions, batchVideoExtensions)

	videos, err := scanDir(req.VideoFolder, videoExt)
	if err != nil {
		return nil, fmt.Errorf("engine: scan video folder: %w", err)
	}
	audios, err := scanDir(req.AudioFolder, audioExt)
	if err != nil {
		return nil, fmt.Errorf("engine: scan audio folder: %w", err)
	}

	pairs := pairer.Pair(videos, audios, req.MatchPattern)
	if len(pairs) > 0 {
		return pairs, nil
	}

	if e.Emitter != nil {
		e.Emitter.Log("filename pairing found no matches for %d video(s) / %d audio(s); falling back to fingerprint matching", len(videos), len(audios))
	}

	fpPairs, unmatched := e.matchByFingerprint(ctx, videos, audios)
	for _, u := range unmatched {
		if e.Emitter != nil {
			e.Emitter.Log("no fingerprint match above threshold for %s", u)
		}
	}
	if len(fpPairs) == 0 {
		return nil, nil
	}
	sort.Slice(fpPairs, func(i, j int) bool { return fpPairs[i].PrimaryPath < fpPairs[j].PrimaryPath })
	return fpPairs, nil
}

// matchByFingerprint pairs videos to audios by spectral similarity when
// filename pairing fails.
func (e *Engine) matchByFingerprint(ctx context.Context, videos, audios []string) (pairs []models.Pair, unmatched []string) {
	audioEntries := make([]fingerprint.Entry, 0, len(audios))
	for _, a := range audios {
		vec, ok := e.fingerprintOf(ctx, a)
		if !ok {
			continue
		}
		audioEntries = append(audioEntries, fingerprint.Entry{Path: a, Vector: vec})
	}

	videoEntries := make([]fingerprint.Entry, 0, len(videos))
	for _, v := range videos {
		vec, ok := e.fingerprintOf(ctx, v)
		if !ok {
			unmatched = append(unmatched, v)
			continue
		}
		videoEntries = append(videoEntries, fingerprint.Entry{Path: v, Vector: vec})
	}

	threshold := e.Threshold
	if threshold <= 0 {
		threshold = defaultFingerprintThreshold
	}
	p, u := fingerprint.Match(videoEntries, audioEntries, threshold)
	pairs = append(pairs, p...)
	unmatched = append(unmatched, u...)
	return pairs, unmatched
}

func (e *Engine) fingerprintOf(ctx context.Context, path string) ([]float64, bool) {
	samples, ok := e.Analyzer.Acquire(ctx, path, segcache.TagFingerprint, 0, floatPtr(fingerprintSegmentSec), fingerprintSegmentSec)
	if !ok {
		return nil, false
	}
	return fingerprint.Compute(samples, models.MeasurementSampleRate)
}

func floatPtr(v float64) *float64 { return &v }

func scanDir(dir string, exts map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(ent.Name()))
		if exts[ext] {
			out = append(out, filepath.Join(dir, ent.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func union(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool, len(a)+len(b))
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}
