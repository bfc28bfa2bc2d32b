package pairer

import "testing"

func TestPairBySxE(t *testing.T) {
	videos := []string{"Show.S01E02.mkv", "Show.S01E01.mkv"}
	audios := []string{"show_s01e01_ref.flac", "show_s01e02_ref.flac"}

	pairs := Pair(videos, audios, "")
	if len(pairs) != 2 {
		t.Fatalf("len(pairs) = %d, want 2", len(pairs))
	}
	if pairs[0].PrimaryPath != "Show.S01E01.mkv" || pairs[0].SecondaryPath != "show_s01e01_ref.flac" {
		t.Fatalf("pairs[0] = %+v, want Show.S01E01.mkv / show_s01e01_ref.flac", pairs[0])
	}
	if pairs[1].PrimaryPath != "Show.S01E02.mkv" || pairs[1].SecondaryPath != "show_s01e02_ref.flac" {
		t.Fatalf("pairs[1] = %+v", pairs[1])
	}
}

func TestPairByNxM(t *testing.T) {
	videos := []string{"series_1x03.mp4"}
	audios := []string{"series_1x03_dub.wav"}
	pairs := Pair(videos, audios, "")
	if len(pairs) != 1 || pairs[0].SecondaryPath != "series_1x03_dub.wav" {
		t.Fatalf("pairs = %+v", pairs)
	}
}

func TestPairFallsBackToIntegerTuples(t *testing.T) {
	videos := []string{"weird-naming-42.mp4"}
	audios := []string{"completely.different.scheme.42.wav"}
	pairs := Pair(videos, audios, "")
	if len(pairs) != 1 || pairs[0].SecondaryPath != audios[0] {
		t.Fatalf("pairs = %+v, want fallback integer-tuple match", pairs)
	}
}

func TestPairUserPatternFailureFallsToIntegerTuples(t *testing.T) {
	// The user pattern only matches the video name (no "ep-" in the
	// audio names), so it yields zero shared keys and the pipeline
	// falls straight to the integer-tuple fallback.
	videos := []string{"ep-007.mp4"}
	audios := []string{"ref-007.wav", "ref-s00e07.wav"}
	pairs := Pair(videos, audios, `ep-(\d+)`)
	if len(pairs) != 1 || pairs[0].SecondaryPath != "ref-007.wav" {
		t.Fatalf("pairs = %+v, want a single integer-tuple pair to ref-007.wav", pairs)
	}
}

func TestPairUserPatternReplacesBuiltins(t *testing.T) {
	// The built-in S/E pattern would pair these, and the integer tuples
	// differ (1,2,1 vs 1,2), so any pairing could only come from the
	// built-ins running despite the user pattern.
	videos := []string{"Show.S01E02.part1.mkv"}
	audios := []string{"ref_s01e02.wav"}
	pairs := Pair(videos, audios, `zzz-(\d+)`)
	if len(pairs) != 0 {
		t.Fatalf("pairs = %+v, want none (user pattern must replace built-ins)", pairs)
	}
}

func TestPairNoMatchReturnsEmpty(t *testing.T) {
	videos := []string{"alpha.mp4"}
	audios := []string{"beta.wav"}
	pairs := Pair(videos, audios, "")
	if len(pairs) != 0 {
		t.Fatalf("pairs = %+v, want none", pairs)
	}
}

func TestPairSortedByPrimaryPath(t *testing.T) {
	videos := []string{"z_S01E01.mkv", "a_S01E01.mkv"}
	audios := []string{"z_S01E01.wav", "a_S01E01.wav"}
	pairs := Pair(videos, audios, "")
	if len(pairs) != 2 {
		t.Fatalf("len(pairs) = %d, want 2", len(pairs))
	}
	if pairs[0].PrimaryPath != "a_S01E01.mkv" {
		t.Fatalf("pairs not sorted: %+v", pairs)
	}
}
