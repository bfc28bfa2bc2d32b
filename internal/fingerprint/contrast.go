package fingerprint

import (
	"math"
	"sort"
)

// contrastFMin and contrastAlpha match librosa.feature.spectral_contrast's
// defaults: octave sub-bands starting at 200Hz, peak/valley computed from
// the top/bottom 2% of each sub-band's magnitudes.
const (
	contrastFMin  = 200.0
	contrastAlpha = 0.02
)

// spectralContrastStats computes the per-octave-band contrast (difference
// between the spectral peak and valley, in dB) mean and std across
// frames. Returns contrastBands+1 values per statistic: one band below
// the first octave edge plus contrastBands octave bands above it.
func spectralContrastStats(frames [][]float64, sr int) (mean, std []float64) {
	numBins := len(frames[0])
	edges := octaveBandEdges(sr, float64(sr)/2)

	perFrame := make([][]float64, len(frames))
	for fi, spec := range frames {
		perFrame[fi] = contrastForFrame(spec, edges, sr, numBins)
	}
	return meanStd(perFrame, contrastBands+1)
}

// octaveBandEdges returns contrastBands+2 frequency edges: 0, then
// contrastFMin doubled contrastBands times, clamped to Nyquist.
func octaveBandEdges(sr int, nyquist float64) []float64 {
	edges := make([]float64, contrastBands+2)
	edges[0] = 0
	f := contrastFMin
	for i := 1; i < len(edges); i++ {
		if f > nyquist {
			f = nyquist
		}
		edges[i] = f
		f *= 2
	}
	return edges
}

func contrastForFrame(spec []float64, edges []float64, sr, numBins int) []float64 {
	out := make([]float64, contrastBands+1)
	binHz := float64(sr) / 2 / float64(numBins-1)

	for b := 0; b < len(edges)-1; b++ {
		lowBin := int(math.Floor(edges[b] / binHz))
		highBin := int(math.Ceil(edges[b+1] / binHz))
		if lowBin < 0 {
			lowBin = 0
		}
		if highBin > numBins {
			highBin = numBins
		}
		if highBin <= lowBin {
			out[b] = 0
			continue
		}
		band := append([]float64(nil), spec[lowBin:highBin]...)
		sort.Float64s(band)

		k := int(math.Ceil(float64(len(band)) * contrastAlpha))
		if k < 1 {
			k = 1
		}
		if k > len(band) {
			k = len(band)
		}
		valley := meanOf(band[:k])
		peak := meanOf(band[len(band)-k:])
		out[b] = powerToDB(peak*peak) - powerToDB(valley*valley)
	}
	return out
}

func meanOf(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}
