// Package events implements a single-writer, mutex-serialized stream of
// newline-delimited JSON records describing batch progress, consumed by
// a host process driving the bridge or logged to stderr by the CLI.
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/adkhex/audiosync/internal/models"
)

// Kind names the event discriminant.
type Kind string

const (
	KindLog          Kind = "log"
	KindFileStart    Kind = "file_start"
	KindFileProgress Kind = "file_progress"
	KindFileEnd      Kind = "file_end"
	KindProgress     Kind = "progress"
	KindResult       Kind = "result"
	KindDone         Kind = "done"
)

// Event is the envelope written for every line of the stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Emitter serializes Events to w, one JSON object per line, flushing
// immediately after each write. The mutex ensures two goroutines never
// interleave partial lines.
type Emitter struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

// New wraps w (typically os.Stdout) as an Emitter.
func New(w io.Writer) *Emitter {
	return &Emitter{w: w, enc: json.NewEncoder(w)}
}

func (e *Emitter) emit(kind Kind, data any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.enc.Encode(Event{Type: string(kind), Data: data})
	if f, ok := e.w.(flusher); ok {
		f.Flush()
	}
}

type flusher interface{ Flush() error }

// Log emits a free-form diagnostic line, e.g. the mid-point diagnostic
// delay or the filename-pairing fallback notice.
func (e *Emitter) Log(format string, args ...any) {
	e.emit(KindLog, map[string]string{"message": fmt.Sprintf(format, args...)})
}

// FileStart announces that analysis of one pair has begun.
func (e *Emitter) FileStart(pair models.Pair) {
	e.emit(KindFileStart, map[string]string{
		"videoFile": pair.PrimaryPath,
		"audioFile": pair.SecondaryPath,
	})
}

// FileProgress reports a 0-100 percent completion value for one pair's
// analysis. The job pool emits 0 when a pair starts and 100 when it
// ends; no intermediate values are emitted.
func (e *Emitter) FileProgress(pair models.Pair, percent int) {
	e.emit(KindFileProgress, map[string]any{
		"videoFile": pair.PrimaryPath,
		"audioFile": pair.SecondaryPath,
		"percent":   percent,
	})
}

// FileEnd announces that one pair's analysis has finished, carrying its
// wall-clock duration.
func (e *Emitter) FileEnd(pair models.Pair, elapsed time.Duration) {
	e.emit(KindFileEnd, map[string]any{
		"videoFile":  pair.PrimaryPath,
		"audioFile":  pair.SecondaryPath,
		"elapsed_ms": elapsed.Milliseconds(),
	})
}

// Progress reports overall batch completion: processed out of total
// pairs, with the pair most recently completed.
func (e *Emitter) Progress(processed, total int, current models.Pair) {
	e.emit(KindProgress, map[string]any{
		"processed": processed,
		"total":     total,
		"current": map[string]string{
			"videoFile": current.PrimaryPath,
			"audioFile": current.SecondaryPath,
		},
	})
}

// Result publishes one pair's completed Result, as it happens. Order
// mirrors task completion, not input order.
func (e *Emitter) Result(r models.Result) {
	e.emit(KindResult, r)
}

// Done publishes the full aggregate once every task has completed. It
// is emitted unconditionally: even a batch where every pair errored
// still reaches Done.
func (e *Emitter) Done(results []models.Result) {
	e.emit(KindDone, map[string]any{"results": results})
}
