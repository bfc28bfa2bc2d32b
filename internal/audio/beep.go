package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"
)

// openBeep opens path and returns a streamer and its format, dispatching
// by extension to the matching gopxl/beep decoder.
func openBeep(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return wav.Decode(f)
	case ".mp3":
		return mp3.Decode(f)
	case ".flac":
		return flac.Decode(f)
	case ".ogg":
		return vorbis.Decode(f)
	default:
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("audio: no beep decoder for %s", path)
	}
}

// decodeBeep decodes the [offset, offset+duration) window of path using
// gopxl/beep, returning mono float64 PCM at the file's native rate.
func decodeBeep(path string, offset float64, duration *float64) ([]float64, int, error) {
	streamer, format, err := openBeep(path)
	if err != nil {
		return nil, 0, err
	}
	defer streamer.Close()

	sr := int(format.SampleRate)
	startSample := int(offset * float64(sr))
	if startSample < 0 {
		startSample = 0
	}
	if startSample >= streamer.Len() {
		return nil, sr, nil
	}
	if err := streamer.Seek(startSample); err != nil {
		return nil, 0, fmt.Errorf("audio: seek %s: %w", path, err)
	}

	wantSamples := streamer.Len() - startSample
	if duration != nil {
		if n := int(*duration * float64(sr)); n < wantSamples {
			wantSamples = n
		}
	}
	if wantSamples <= 0 {
		return nil, sr, nil
	}

	const chunk = 4096
	buf := make([][2]float64, chunk)
	mono := make([]float64, 0, wantSamples)
	for len(mono) < wantSamples {
		n, ok := streamer.Stream(buf)
		if n > 0 {
			for i := 0; i < n && len(mono) < wantSamples; i++ {
				mono = append(mono, (buf[i][0]+buf[i][1])/2)
			}
		}
		if !ok {
			break
		}
	}
	return mono, sr, nil
}

// beepDuration returns a pure-audio file's duration via its own decoder,
// the last tier of the duration fallback chain.
func beepDuration(path string) (float64, error) {
	streamer, format, err := openBeep(path)
	if err != nil {
		return 0, err
	}
	defer streamer.Close()
	if format.SampleRate == 0 {
		return 0, fmt.Errorf("audio: zero sample rate")
	}
	return format.SampleRate.D(streamer.Len()).Seconds(), nil
}
