package audio

// resample converts samples from fromSR to toSR via linear
// interpolation. Used for native decoders, which read audio at its
// original sample rate; the transcoder path asks ffmpeg to resample
// directly and skips this step.
func resample(samples []float64, fromSR, toSR int) []float64 {
	if fromSR <= 0 || toSR <= 0 || fromSR == toSR || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromSR) / float64(toSR)
	outLen := int(float64(len(samples)) / ratio)
	out := make([]float64, outLen)

	for i := range out {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)
		if idx+1 < len(samples) {
			out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
		} else {
			out[i] = samples[len(samples)-1]
		}
	}
	return out
}
