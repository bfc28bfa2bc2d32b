// Package jobpool dispatches one analysis task per file pair across a
// bounded worker pool, publishes progress events as tasks complete, and
// aggregates results.
package jobpool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adkhex/audiosync/internal/events"
	"github.com/adkhex/audiosync/internal/ledger"
	"github.com/adkhex/audiosync/internal/models"
)

// Analyzer is the subset of analyzer.Analyzer the pool depends on, so
// tests can supply a fake.
type Analyzer interface {
	Analyze(ctx context.Context, pair models.Pair, segmentSec float64) models.Result
	AnalyzeSimple(ctx context.Context, pair models.Pair, segmentSec float64) models.Result
}

// Pool dispatches pair analyses across a worker pool sized to available
// parallelism (or an explicit override).
type Pool struct {
	Analyzer Analyzer
	Emitter  *events.Emitter
	Ledger   *ledger.Ledger
	Workers  int // 0 means runtime.GOMAXPROCS(0)
}

// New returns a Pool with the given collaborators and default (GOMAXPROCS)
// worker count.
func New(a Analyzer, e *events.Emitter, l *ledger.Ledger) *Pool {
	return &Pool{Analyzer: a, Emitter: e, Ledger: l}
}

// Run submits one task per pair, waits for all to complete, and returns
// the aggregate in completion order (nondeterministic). runID, if
// non-empty, scopes ledger writes to that batch.
func (p *Pool) Run(ctx context.Context, pairs []models.Pair, segmentSec float64, runID string) []models.Result {
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers < 1 {
		workers = 1
	}

	var (
		mu        sync.Mutex
		results   = make([]models.Result, 0, len(pairs))
		processed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, pair := range pairs {
		pair := pair
		g.Go(func() error {
			start := time.Now()
			if p.Emitter != nil {
				p.Emitter.FileStart(pair)
				p.Emitter.FileProgress(pair, 0)
			}

			result := p.analyzeRecovering(gctx, pair, segmentSec)
			result.ElapsedMs = time.Since(start).Milliseconds()

			if p.Emitter != nil {
				p.Emitter.FileProgress(pair, 100)
				p.Emitter.FileEnd(pair, time.Since(start))
			}
			if p.Ledger != nil && runID != "" {
				p.Ledger.RecordResult(runID, result)
			}

			mu.Lock()
			results = append(results, result)
			processed++
			n := processed
			mu.Unlock()

			if p.Emitter != nil {
				p.Emitter.Result(result)
				p.Emitter.Progress(n, len(pairs), pair)
			}
			return nil
		})
	}

	// Every task above always returns nil: per-pair failures attach to the
	// Result, they never abort the batch. Wait only synchronizes.
	_ = g.Wait()

	if p.Emitter != nil {
		p.Emitter.Done(results)
	}
	return results
}

// analyzeRecovering runs the full analyzer, falling back to the
// start/end-only analyzer if the full path panics.
func (p *Pool) analyzeRecovering(ctx context.Context, pair models.Pair, segmentSec float64) (result models.Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("jobpool: analyzer panicked, falling back to simple analysis", "pair", pair, "recovered", r)
			result = p.analyzeSimpleRecovering(ctx, pair, segmentSec, fmt.Sprintf("%v", r))
		}
	}()
	return p.Analyzer.Analyze(ctx, pair, segmentSec)
}

func (p *Pool) analyzeSimpleRecovering(ctx context.Context, pair models.Pair, segmentSec float64, cause string) (result models.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = models.Result{
				VideoFile: pair.PrimaryPath,
				AudioFile: pair.SecondaryPath,
				Error:     fmt.Sprintf("internal analysis error: %s", cause),
			}
		}
	}()
	return p.Analyzer.AnalyzeSimple(ctx, pair, segmentSec)
}
