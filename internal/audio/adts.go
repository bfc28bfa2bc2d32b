package audio

import (
	"fmt"
	"os"

	aacdecoder "github.com/skrashevich/go-aac/pkg/decoder"
)

// adtsSampleRates is the MPEG-4 sampling_frequency_index table used by
// raw ADTS headers.
var adtsSampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

// decodeRawADTS decodes a bare .aac file (no MP4 box structure, just a
// stream of ADTS frames) into mono float64 PCM. Used as the native tier
// for .aac files, which have no decoder in loadNative.
func decodeRawADTS(path string, offset float64, duration *float64) ([]float64, int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: read %s: %w", path, err)
	}

	frames, sampleRate, channels, err := splitADTS(raw)
	if err != nil {
		return nil, 0, err
	}
	if len(frames) == 0 {
		return nil, 0, fmt.Errorf("audio: no ADTS frames found")
	}

	dec := aacdecoder.New()
	startFrame, frameCount := timeRangeToFrameRange(len(frames), sampleRate, offset, duration)

	mono := make([]float64, 0, frameCount*1024)
	for _, raw := range frames[startFrame : startFrame+frameCount] {
		pcm, err := dec.DecodeFrame(raw)
		if err != nil {
			continue
		}
		frameLen := len(pcm) / channels
		for i := 0; i < frameLen; i++ {
			var sum float32
			for ch := 0; ch < channels; ch++ {
				sum += pcm[i*channels+ch]
			}
			mono = append(mono, float64(sum/float32(channels)))
		}
	}
	return mono, sampleRate, nil
}

// timeRangeToFrameRange assumes 1024 samples/frame, the standard AAC
// frame size, to map a time window onto ADTS frame indices.
func timeRangeToFrameRange(numFrames, sampleRate int, offset float64, duration *float64) (start, count int) {
	const samplesPerFrame = 1024
	framesPerSec := float64(sampleRate) / samplesPerFrame
	start = int(offset * framesPerSec)
	if start < 0 {
		start = 0
	}
	if start >= numFrames {
		return numFrames, 0
	}
	if duration == nil {
		return start, numFrames - start
	}
	count = int(*duration*framesPerSec) + 1
	if start+count > numFrames {
		count = numFrames - start
	}
	return start, count
}

// splitADTS walks a raw ADTS byte stream and returns each frame's payload
// (header included, as required by the decoder), plus the sample rate and
// channel count read from the first header.
func splitADTS(data []byte) (frames [][]byte, sampleRate, channels int, err error) {
	i := 0
	for i+7 <= len(data) {
		if data[i] != 0xFF || data[i+1]&0xF0 != 0xF0 {
			return nil, 0, 0, fmt.Errorf("audio: not an ADTS stream")
		}
		protectionAbsent := data[i+1] & 0x01
		freqIdx := (data[i+2] >> 2) & 0x0F
		chanCfg := ((data[i+2] & 0x01) << 2) | ((data[i+3] >> 6) & 0x03)
		frameLen := (int(data[i+3]&0x03) << 11) | (int(data[i+4]) << 3) | (int(data[i+5]) >> 5)

		if sampleRate == 0 {
			if int(freqIdx) >= len(adtsSampleRates) {
				return nil, 0, 0, fmt.Errorf("audio: invalid ADTS sampling frequency index")
			}
			sampleRate = adtsSampleRates[freqIdx]
			channels = int(chanCfg)
			if channels < 1 {
				channels = 1
			}
		}

		headerLen := 7
		if protectionAbsent == 0 {
			headerLen = 9
		}
		if frameLen < headerLen || i+frameLen > len(data) {
			break
		}
		frames = append(frames, data[i:i+frameLen])
		i += frameLen
	}
	if sampleRate == 0 {
		return nil, 0, 0, fmt.Errorf("audio: could not parse ADTS header")
	}
	return frames, sampleRate, channels, nil
}
