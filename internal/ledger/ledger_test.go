package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adkhex/audiosync/internal/models"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestBeginRunAndRecordResult(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.BeginRun("run-1", RunArgs{
		Mode: "series", Primary: "/videos", Secondary: "/audios", SegmentSeconds: 300,
	}))

	start, end := 120.5, 121.0
	l.RecordResult("run-1", models.Result{
		VideoFile: "v.mkv", AudioFile: "a.flac",
		StartDelayMs: &start, EndDelayMs: &end, ElapsedMs: 4200,
	})
	l.RecordResult("run-1", models.Result{
		VideoFile: "v2.mkv", AudioFile: "a2.flac",
		Error: "Insufficient audio at start for analysis.",
	})

	var n int
	require.NoError(t, l.db.QueryRow(`SELECT COUNT(*) FROM pair_result WHERE run_id = ?`, "run-1").Scan(&n))
	require.Equal(t, 2, n)

	var confidence string
	var startDelay float64
	require.NoError(t, l.db.QueryRow(
		`SELECT confidence, start_delay_ms FROM pair_result WHERE video_file = ?`, "v.mkv",
	).Scan(&confidence, &startDelay))
	require.Equal(t, "High", confidence)
	require.InDelta(t, 120.5, startDelay, 1e-9)
}

func TestRecordResultStoresNullDelays(t *testing.T) {
	l := openTestLedger(t)
	require.NoError(t, l.BeginRun("run-2", RunArgs{Mode: "movie", SegmentSeconds: 300}))

	l.RecordResult("run-2", models.Result{VideoFile: "v.mp4", AudioFile: "a.wav", Error: "Failed to load start segment."})

	var startDelay, endDelay *float64
	require.NoError(t, l.db.QueryRow(
		`SELECT start_delay_ms, end_delay_ms FROM pair_result WHERE run_id = ?`, "run-2",
	).Scan(&startDelay, &endDelay))
	require.Nil(t, startDelay)
	require.Nil(t, endDelay)
}

func TestNilLedgerIsNoOp(t *testing.T) {
	var l *Ledger
	require.NoError(t, l.BeginRun("ignored", RunArgs{}))
	l.RecordResult("ignored", models.Result{})
	require.NoError(t, l.Close())
}
