package fingerprint

import (
	"math"

	fft "github.com/mjibson/go-dsp/fft"
)

// STFT parameters matching librosa's defaults.
const (
	nFFT   = 2048
	hopLen = 512
	nMels  = 128
)

// stft returns the magnitude spectrum (bins 0..nFFT/2) of each
// Hann-windowed, hop-advanced frame of y, built on the same FFT
// primitive the cross-correlation estimator uses.
func stft(y []float64) [][]float64 {
	if len(y) < nFFT {
		// Zero-pad a single short frame rather than discard it.
		padded := make([]float64, nFFT)
		copy(padded, y)
		return [][]float64{magnitudeSpectrum(padded)}
	}

	win := hannWindow(nFFT)
	numFrames := (len(y)-nFFT)/hopLen + 1
	frames := make([][]float64, 0, numFrames)
	for start := 0; start+nFFT <= len(y); start += hopLen {
		frame := make([]float64, nFFT)
		for i := 0; i < nFFT; i++ {
			frame[i] = y[start+i] * win[i]
		}
		frames = append(frames, magnitudeSpectrum(frame))
	}
	return frames
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

func magnitudeSpectrum(frame []float64) []float64 {
	c := make([]complex128, len(frame))
	for i, v := range frame {
		c[i] = complex(v, 0)
	}
	spec := fft.FFT(c)
	out := make([]float64, len(frame)/2+1)
	for i := range out {
		out[i] = cmplxAbs(spec[i])
	}
	return out
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

// melFilterbank builds nMels triangular filters on the HTK mel scale
// (2595·log10(1+f/700)) spanning [0, sr/2], applied to nFFT/2+1
// spectrum bins.
func melFilterbank(sr, nFFT, nMels int) [][]float64 {
	fMin, fMax := 0.0, float64(sr)/2
	melMin, melMax := hzToMel(fMin), hzToMel(fMax)

	points := make([]float64, nMels+2)
	for i := range points {
		points[i] = melToHz(melMin + (melMax-melMin)*float64(i)/float64(nMels+1))
	}

	bin := make([]int, len(points))
	for i, hz := range points {
		bin[i] = int(math.Floor((float64(nFFT) + 1) * hz / float64(sr)))
	}

	numBins := nFFT/2 + 1
	filters := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		filters[m] = make([]float64, numBins)
		left, center, right := bin[m], bin[m+1], bin[m+2]
		for k := left; k < center && k < numBins; k++ {
			if center > left {
				filters[m][k] = float64(k-left) / float64(center-left)
			}
		}
		for k := center; k < right && k < numBins; k++ {
			if right > center {
				filters[m][k] = float64(right-k) / float64(right-center)
			}
		}
	}
	return filters
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// mfccStats computes MFCC mean and std across frames. dct-II with
// orthonormal scaling is applied to log-mel energies, keeping the first
// mfccCount coefficients, mirroring librosa.feature.mfcc's default path.
func mfccStats(frames [][]float64, sr int) (mean, std []float64) {
	filters := melFilterbank(sr, nFFT, nMels)
	dctTable := dctIIOrthonormalTable(nMels, mfccCount)

	coeffs := make([][]float64, len(frames))
	for fi, spec := range frames {
		melEnergies := make([]float64, nMels)
		for m, filt := range filters {
			var sum float64
			for k, w := range filt {
				if w != 0 {
					sum += w * spec[k] * spec[k]
				}
			}
			melEnergies[m] = powerToDB(sum)
		}
		coeffs[fi] = applyDCT(melEnergies, dctTable)
	}
	return meanStd(coeffs, mfccCount)
}

func powerToDB(power float64) float64 {
	const amin = 1e-10
	if power < amin {
		power = amin
	}
	return 10 * math.Log10(power)
}

// dctIIOrthonormalTable precomputes the orthonormal DCT-II basis vectors
// for the first outN coefficients over an input of length inN.
func dctIIOrthonormalTable(inN, outN int) [][]float64 {
	table := make([][]float64, outN)
	for k := 0; k < outN; k++ {
		row := make([]float64, inN)
		scale := math.Sqrt(2.0 / float64(inN))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(inN))
		}
		for n := 0; n < inN; n++ {
			row[n] = scale * math.Cos(math.Pi/float64(inN)*(float64(n)+0.5)*float64(k))
		}
		table[k] = row
	}
	return table
}

func applyDCT(x []float64, table [][]float64) []float64 {
	out := make([]float64, len(table))
	for k, row := range table {
		var sum float64
		for n, v := range x {
			sum += v * row[n]
		}
		out[k] = sum
	}
	return out
}

// meanStd computes the per-coefficient mean and population standard
// deviation across frames, for a feature of dimension dim.
func meanStd(frames [][]float64, dim int) (mean, std []float64) {
	mean = make([]float64, dim)
	std = make([]float64, dim)
	if len(frames) == 0 {
		return mean, std
	}
	for _, f := range frames {
		for i := 0; i < dim; i++ {
			mean[i] += f[i]
		}
	}
	for i := range mean {
		mean[i] /= float64(len(frames))
	}
	for _, f := range frames {
		for i := 0; i < dim; i++ {
			d := f[i] - mean[i]
			std[i] += d * d
		}
	}
	for i := range std {
		std[i] = math.Sqrt(std[i] / float64(len(frames)))
	}
	return mean, std
}
