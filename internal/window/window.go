// Package window selects the sub-window of highest short-term energy
// from a decoded buffer, so that cross-correlation runs on
// content-bearing audio rather than silence.
package window

import "math"

const (
	frameSec = 0.050
	hopSec   = 0.025
)

// Select extracts the wSec-long sub-window of y (sampled at sr) whose
// summed short-time RMS energy is highest; it starts at the first frame
// of that run of frames. If y is already no longer than wSec*sr it is
// returned unchanged.
func Select(y []float64, sr int, wSec float64) []float64 {
	windowLen := int(wSec * float64(sr))
	if windowLen <= 0 || len(y) <= windowLen {
		return y
	}

	frame := int(frameSec * float64(sr))
	hop := int(hopSec * float64(sr))
	if frame <= 0 || hop <= 0 {
		if windowLen < len(y) {
			return y[:windowLen]
		}
		return y
	}

	rms := shortTimeRMS(y, frame, hop)
	if len(rms) == 0 {
		return y[:windowLen]
	}

	windowFrames := int(wSec / hopSec)
	if windowFrames < 1 {
		windowFrames = 1
	}

	var argmax int
	if len(rms) < windowFrames {
		argmax = argmaxFloat(rms)
	} else {
		energy := movingSum(rms, windowFrames)
		argmax = argmaxFloat(energy)
	}

	start := argmax * hop
	end := start + windowLen
	if end > len(y) {
		end = len(y)
		start = end - windowLen
		if start < 0 {
			start = 0
		}
	}
	return y[start:end]
}

// shortTimeRMS computes the root-mean-square energy of y in overlapping
// frames of the given length and hop.
func shortTimeRMS(y []float64, frame, hop int) []float64 {
	if frame > len(y) {
		return nil
	}
	n := (len(y)-frame)/hop + 1
	out := make([]float64, 0, n)
	for start := 0; start+frame <= len(y); start += hop {
		var sum float64
		for _, v := range y[start : start+frame] {
			sum += v * v
		}
		out = append(out, math.Sqrt(sum/float64(frame)))
	}
	return out
}

// movingSum convolves x with a uniform window of the given length
// ("valid" mode — output is shorter than input by length-1).
func movingSum(x []float64, length int) []float64 {
	if length > len(x) {
		length = len(x)
	}
	outLen := len(x) - length + 1
	if outLen <= 0 {
		return nil
	}
	out := make([]float64, outLen)
	var running float64
	for i := 0; i < length; i++ {
		running += x[i]
	}
	out[0] = running
	for i := 1; i < outLen; i++ {
		running += x[i+length-1] - x[i-1]
		out[i] = running
	}
	return out
}

func argmaxFloat(x []float64) int {
	best := 0
	bestVal := math.Inf(-1)
	for i, v := range x {
		if v > bestVal {
			bestVal = v
			best = i
		}
	}
	return best
}
