// Command audiosync-bridge reads one JSON request object from stdin,
// runs the batch it describes, and writes the event stream to stdout,
// one JSON record per line. Stderr is reserved for fatal initialization
// failures.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/adkhex/audiosync/internal/appconfig"
	"github.com/adkhex/audiosync/internal/engine"
	"github.com/adkhex/audiosync/internal/events"
	"github.com/adkhex/audiosync/internal/ledger"
	"github.com/adkhex/audiosync/internal/models"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "optional TOML file of engine defaults")
	debug := flag.Bool("debug", false, "enable verbose (debug) logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audiosync-bridge: reading stdin: %v\n", err)
		return 1
	}

	var req models.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		fmt.Fprintf(os.Stderr, "audiosync-bridge: parsing request: %v\n", err)
		return 1
	}
	if req.Mode != "movie" && req.Mode != "series" {
		fmt.Fprintf(os.Stderr, "audiosync-bridge: request.mode must be \"movie\" or \"series\", got %q\n", req.Mode)
		return 1
	}

	defaults, err := appconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audiosync-bridge: loading config: %v\n", err)
		return 1
	}
	if req.SegmentDuration <= 0 {
		req.SegmentDuration = defaults.SegmentDurationSec
	}

	var hist *ledger.Ledger
	if req.HistoryDB != "" {
		hist, err = ledger.Open(req.HistoryDB)
		if err != nil {
			fmt.Fprintf(os.Stderr, "audiosync-bridge: opening history db: %v\n", err)
			return 1
		}
		defer hist.Close()
	}

	emitter := events.New(os.Stdout)
	eng := engine.New(emitter, hist, engine.Options{
		Workers:              defaults.Workers,
		CacheDir:             defaults.CacheDir,
		FingerprintThreshold: defaults.FingerprintThreshold,
	})

	if _, err := eng.Run(context.Background(), req); err != nil {
		// A resolution failure (bad folder, missing audio_file) is a
		// startup error: nothing was submitted to the pool, so there is
		// no Done event to emit.
		fmt.Fprintf(os.Stderr, "audiosync-bridge: %v\n", err)
		return 1
	}
	return 0
}
