// Package xcorr implements the cross-correlation offset estimator:
// given two equal-length normalized sample buffers, find the lag of
// maximum correlation via FFT convolution and report it as a millisecond
// delay.
package xcorr

import (
	"math"

	fft "github.com/mjibson/go-dsp/fft"
)

// Estimate computes the delay in milliseconds between primary and
// secondary at sample rate sr. A positive result means secondary lags
// behind primary (appears later).
//
// Both inputs must already share the same length; the caller is
// responsible for truncating to min(len(a), len(b)). Returns NaN if the
// correlation is undefined (either input is all-zero after
// normalization).
func Estimate(primary, secondary []float64, sr int) float64 {
	n := len(secondary)
	if n == 0 || len(primary) == 0 {
		return math.NaN()
	}

	p, pDegenerate := normalize(primary)
	s, sDegenerate := normalize(secondary)
	if pDegenerate || sDegenerate {
		return math.NaN()
	}

	corr := fftConvolveFull(p, reverse(s))

	maxIdx := 0
	maxVal := math.Inf(-1)
	for i, v := range corr {
		if v > maxVal {
			maxVal = v
			maxIdx = i
		}
	}

	// corr peaks at index (n-1)-k when secondary is primary delayed by k
	// samples, so the lag is read off from the other end.
	lag := (n - 1) - maxIdx
	delaySec := float64(lag) / float64(sr)
	return delaySec * 1000
}

// normalize subtracts the mean and, if the standard deviation exceeds
// 1e-8, divides by it (mean-subtract always; scale only when there is
// meaningful variance). Reports degenerate=true when the input has no
// meaningful variance (constant signal): the correlation is then
// undefined.
func normalize(y []float64) (out []float64, degenerate bool) {
	out = make([]float64, len(y))
	var sum float64
	for _, v := range y {
		sum += v
	}
	mean := sum / float64(len(y))

	var sqSum float64
	for i, v := range y {
		c := v - mean
		out[i] = c
		sqSum += c * c
	}
	std := math.Sqrt(sqSum / float64(len(y)))
	if std > 1e-8 {
		for i := range out {
			out[i] /= std
		}
		return out, false
	}
	return out, true
}

func reverse(y []float64) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		out[len(y)-1-i] = v
	}
	return out
}

// fftConvolveFull computes the "full" linear convolution of a and b via
// zero-padded FFT multiplication, equivalent to scipy's
// fftconvolve(a, b, mode="full").
func fftConvolveFull(a, b []float64) []float64 {
	outLen := len(a) + len(b) - 1
	size := nextPow2(outLen)

	fa := make([]complex128, size)
	for i, v := range a {
		fa[i] = complex(v, 0)
	}
	fb := make([]complex128, size)
	for i, v := range b {
		fb[i] = complex(v, 0)
	}

	fa = fft.FFT(fa)
	fb = fft.FFT(fb)

	prod := make([]complex128, size)
	for i := range prod {
		prod[i] = fa[i] * fb[i]
	}

	inv := fft.IFFT(prod)

	out := make([]float64, outLen)
	for i := 0; i < outLen; i++ {
		out[i] = real(inv[i])
	}
	return out
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
