// Package fingerprint computes a compact timbral signature per audio
// segment (MFCC + spectral contrast statistics, L2-normalized) and
// pairs video to audio files by cosine similarity when filename-based
// pairing fails.
package fingerprint

import (
	"math"

	"github.com/adkhex/audiosync/internal/models"
)

const (
	mfccCount     = 20
	contrastBands = 6 // librosa's default n_bands; yields contrastBands+1 sub-band values
	// Length is 2*mfccCount (mean+std) + 2*(contrastBands+1) (mean+std).
	Length = 2*mfccCount + 2*(contrastBands+1)
)

// Compute returns y's fingerprint: a unit-L2-normalized vector of
// [mfccMean, mfccStd, contrastMean, contrastStd]. ok is false when y is
// empty, when y is silence (every sample zero), or when the feature
// vector's norm is zero — in that case the fingerprint is absent and
// must not be matched.
func Compute(y []float64, sr int) (vector []float64, ok bool) {
	if len(y) == 0 {
		return nil, false
	}
	silent := true
	for _, v := range y {
		if v != 0 {
			silent = false
			break
		}
	}
	if silent {
		return nil, false
	}

	frames := stft(y)
	if len(frames) == 0 {
		return nil, false
	}

	mfccMean, mfccStd := mfccStats(frames, sr)
	contrastMean, contrastStd := spectralContrastStats(frames, sr)

	features := make([]float64, 0, Length)
	features = append(features, mfccMean...)
	features = append(features, mfccStd...)
	features = append(features, contrastMean...)
	features = append(features, contrastStd...)

	norm := l2Norm(features)
	if norm == 0 {
		return nil, false
	}
	for i := range features {
		features[i] /= norm
	}
	return features, true
}

// Similarity returns the cosine similarity of two fingerprints. Since
// Compute always returns unit vectors this reduces to a dot product.
// Returns 0 if either fingerprint is absent.
func Similarity(a, b []float64) float64 {
	if a == nil || b == nil {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	return dot
}

func l2Norm(v []float64) float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	return math.Sqrt(sumSq)
}

// Entry is one file's fingerprint; Vector is nil when fingerprinting the
// file failed or produced a degenerate (silent) signature.
type Entry struct {
	Path   string
	Vector []float64
}

// Match pairs each video against the audio file with highest cosine
// similarity. A video whose best score falls below threshold is
// reported in unmatched rather than paired; one audio file may be
// matched to more than one video.
func Match(videos, audios []Entry, threshold float64) (pairs []models.Pair, unmatched []string) {
	for _, v := range videos {
		bestPath := ""
		bestScore := -1.0
		for _, a := range audios {
			score := Similarity(v.Vector, a.Vector)
			if score > bestScore {
				bestScore = score
				bestPath = a.Path
			}
		}
		if bestPath != "" && bestScore >= threshold {
			pairs = append(pairs, models.Pair{PrimaryPath: v.Path, SecondaryPath: bestPath})
		} else {
			unmatched = append(unmatched, v.Path)
		}
	}
	return pairs, unmatched
}
