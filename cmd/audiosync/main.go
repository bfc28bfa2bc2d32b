// Command audiosync measures the delay between a video's embedded audio
// track and a reference audio file (or many video files against one
// audio file, or two name-paired folders), printing a result table and
// optionally a CSV.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/lipgloss"

	"github.com/adkhex/audiosync/internal/appconfig"
	"github.com/adkhex/audiosync/internal/engine"
	"github.com/adkhex/audiosync/internal/events"
	"github.com/adkhex/audiosync/internal/ledger"
	"github.com/adkhex/audiosync/internal/models"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("audiosync", flag.ContinueOnError)
	single := fs.Bool("single", false, "primary and secondary are a single video/audio file pair")
	batch := fs.Bool("batch", false, "primary is a folder of videos, secondary is a single reference audio file")
	series := fs.Bool("series", false, "primary and secondary are folders, paired by filename or fingerprint")
	segment := fs.Float64("crosscorr_segment", models.DefaultSegmentDuration, "segment duration in seconds for each analysis window")
	matchPattern := fs.String("match_pattern", "", "custom regular expression for series filename pairing")
	outputCSV := fs.String("output_csv", "", "write results to this CSV path in addition to the table")
	historyDB := fs.String("history-db", "", "optional SQLite path to record this batch for later querying")
	configPath := fs.String("config", "", "optional TOML file of engine defaults")
	verbose := fs.Bool("v", false, "enable verbose (debug) logging")
	fs.BoolVar(verbose, "verbose", *verbose, "enable verbose (debug) logging")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	modeCount := boolCount(*single, *batch, *series)
	if modeCount != 1 {
		fmt.Fprintln(os.Stderr, "audiosync: exactly one of --single, --batch, --series is required")
		return 1
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "audiosync: usage: audiosync [--single|--batch|--series] <primary> <secondary>")
		return 1
	}
	primary, secondary := fs.Arg(0), fs.Arg(1)

	if _, err := os.Stat(primary); err != nil {
		fmt.Fprintf(os.Stderr, "audiosync: cannot read primary input %q: %v\n", primary, err)
		return 1
	}
	if _, err := os.Stat(secondary); err != nil {
		fmt.Fprintf(os.Stderr, "audiosync: cannot read secondary input %q: %v\n", secondary, err)
		return 1
	}

	defaults, err := appconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audiosync: loading config: %v\n", err)
		return 1
	}
	var hist *ledger.Ledger
	if *historyDB != "" {
		hist, err = ledger.Open(*historyDB)
		if err != nil {
			fmt.Fprintf(os.Stderr, "audiosync: opening history db: %v\n", err)
			return 1
		}
		defer hist.Close()
	}

	emitter := events.New(os.Stderr)
	eng := engine.New(emitter, hist, engine.Options{
		Workers:              defaults.Workers,
		CacheDir:             defaults.CacheDir,
		FingerprintThreshold: defaults.FingerprintThreshold,
	})

	segmentSec := *segment
	segmentSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "crosscorr_segment" {
			segmentSet = true
		}
	})
	if !segmentSet && defaults.SegmentDurationSec > 0 {
		segmentSec = defaults.SegmentDurationSec
	}

	req := buildRequest(*single, *batch, *series, primary, secondary, segmentSec, *matchPattern)

	results, err := eng.Run(context.Background(), req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audiosync: %v\n", err)
		return 1
	}

	sort.Slice(results, func(i, j int) bool { return results[i].VideoFile < results[j].VideoFile })

	printTable(os.Stdout, results)

	if *outputCSV != "" {
		if err := writeCSV(*outputCSV, results); err != nil {
			fmt.Fprintf(os.Stderr, "audiosync: writing CSV: %v\n", err)
			return 1
		}
	}

	return 0
}

func boolCount(bs ...bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}

func buildRequest(single, batch, series bool, primary, secondary string, segment float64, matchPattern string) models.Request {
	req := models.Request{SegmentDuration: segment, MatchPattern: matchPattern}
	switch {
	case single:
		req.Mode = "movie"
		req.VideoFiles = []string{primary}
		req.AudioFile = secondary
	case batch:
		req.Mode = "movie"
		req.VideoFolder = primary
		req.AudioFile = secondary
	case series:
		req.Mode = "series"
		req.VideoFolder = primary
		req.AudioFolder = secondary
	}
	return req
}

var (
	styleHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleHeader = lipgloss.NewStyle().Bold(true)
)

func printTable(w *os.File, results []models.Result) {
	headers := []string{"Primary File", "Secondary File", "Start Delay (ms)", "End Delay (ms)", "Confidence", "Status"}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			filepath.Base(r.VideoFile),
			filepath.Base(r.AudioFile),
			formatDelay(r.StartDelayMs),
			formatDelay(r.EndDelayMs),
			string(r.Confidence()),
			r.Status(),
		})
	}

	widths := columnWidths(headers, rows)
	fmt.Fprintln(w, styleHeader.Render(formatRow(headers, widths)))
	for _, row := range rows {
		confidence := row[4]
		styled := append([]string(nil), row...)
		styled[4] = colorConfidence(confidence)
		fmt.Fprintln(w, formatRow(styled, widths))
	}
}

func colorConfidence(c string) string {
	switch models.Confidence(c) {
	case models.ConfidenceHigh:
		return styleHigh.Render(c)
	case models.ConfidenceMedium:
		return styleMedium.Render(c)
	case models.ConfidenceLow:
		return styleLow.Render(c)
	default:
		return c
	}
}

func formatDelay(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%+.1f", *v)
}

func columnWidths(headers []string, rows [][]string) []int {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	return widths
}

func formatRow(cells []string, widths []int) string {
	out := ""
	for i, c := range cells {
		pad := widths[i] - lipgloss.Width(c)
		if pad < 0 {
			pad = 0
		}
		out += c
		for p := 0; p < pad; p++ {
			out += " "
		}
		out += "  "
	}
	return out
}

func writeCSV(path string, results []models.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if err := cw.Write([]string{"Video File", "Audio File", "Start Delay (ms)", "End Delay (ms)", "Error"}); err != nil {
		return err
	}
	for _, r := range results {
		if err := cw.Write([]string{
			r.VideoFile,
			r.AudioFile,
			csvDelay(r.StartDelayMs),
			csvDelay(r.EndDelayMs),
			r.Error,
		}); err != nil {
			return err
		}
	}
	return cw.Error()
}

func csvDelay(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.1f", *v)
}
