// Package ledger implements the optional run ledger: a SQLite-backed
// history of past batches and their per-pair results. History-keeping
// is opt-in and activates only when a caller opens a ledger at all.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/adkhex/audiosync/internal/models"
)

// Ledger persists batch run metadata and per-pair results for later
// querying. A nil *Ledger is valid and every method on it is a no-op,
// so callers can pass it through unconditionally when history is
// disabled.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite database at path and
// ensures its schema exists.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			slog.Warn("ledger: pragma failed", "pragma", p, "error", err)
		}
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: schema: %w", err)
	}

	return &Ledger{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS run (
		id              TEXT PRIMARY KEY,
		started_at      DATETIME NOT NULL,
		mode            TEXT NOT NULL,
		segment_seconds REAL NOT NULL,
		args_json       TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pair_result (
		run_id         TEXT NOT NULL REFERENCES run(id),
		video_file     TEXT NOT NULL,
		audio_file     TEXT NOT NULL,
		start_delay_ms REAL,
		end_delay_ms   REAL,
		confidence     TEXT NOT NULL,
		error          TEXT NOT NULL DEFAULT '',
		elapsed_ms     INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_pair_result_run ON pair_result (run_id);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying database handle. Safe to call on a nil
// *Ledger.
func (l *Ledger) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}

// RunArgs is the subset of the CLI/bridge invocation worth recording
// alongside a batch's results, for later reproduction.
type RunArgs struct {
	Mode           string  `json:"mode"`
	Primary        string  `json:"primary"`
	Secondary      string  `json:"secondary"`
	SegmentSeconds float64 `json:"segment_seconds"`
	MatchPattern   string  `json:"match_pattern,omitempty"`
}

// BeginRun records the start of a batch under the caller-supplied runID.
// Safe to call on a nil *Ledger (returns nil).
func (l *Ledger) BeginRun(runID string, args RunArgs) error {
	if l == nil {
		return nil
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("ledger: marshal args: %w", err)
	}
	_, err = l.db.Exec(
		`INSERT INTO run (id, started_at, mode, segment_seconds, args_json) VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now().UTC().Format(time.RFC3339Nano), args.Mode, args.SegmentSeconds, string(argsJSON),
	)
	if err != nil {
		return fmt.Errorf("ledger: begin run: %w", err)
	}
	return nil
}

// RecordResult appends one pair's result to the ledger under runID.
// Safe to call on a nil *Ledger. Failures are logged, not propagated —
// history-keeping never interrupts a batch in progress.
func (l *Ledger) RecordResult(runID string, r models.Result) {
	if l == nil {
		return
	}
	_, err := l.db.Exec(
		`INSERT INTO pair_result (run_id, video_file, audio_file, start_delay_ms, end_delay_ms, confidence, error, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, r.VideoFile, r.AudioFile, nullableFloat(r.StartDelayMs), nullableFloat(r.EndDelayMs),
		string(r.Confidence()), r.Error, r.ElapsedMs,
	)
	if err != nil {
		slog.Warn("ledger: record result failed", "error", err)
	}
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
