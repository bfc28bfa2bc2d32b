package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// loadViaTranscoder decodes path's audio between offset and
// offset+duration into mono float64 PCM at targetSR by shelling out to
// ffmpeg, for containers with no native decoder in this package (mkv,
// webm, avi, mov, ac3, eac3) or as a last resort after a native failure.
func (g *Gateway) loadViaTranscoder(ctx context.Context, path string, offset float64, duration *float64, targetSR int) ([]float64, error) {
	inputArgs := ffmpeg.KwArgs{}
	if offset > 0 {
		inputArgs["ss"] = fmt.Sprintf("%f", offset)
	}
	outputArgs := ffmpeg.KwArgs{
		"f":   "s16le",
		"c:a": "pcm_s16le",
		"ar":  strconv.Itoa(targetSR),
		"ac":  "1",
		"vn":  "",
	}
	if duration != nil {
		outputArgs["t"] = fmt.Sprintf("%f", *duration)
	}

	var out bytes.Buffer
	node := ffmpeg.Input(path, inputArgs).
		Output("pipe:", outputArgs).
		WithOutput(&out).
		ErrorToStdOut()
	if g.FFmpegPath != "" {
		node.SetFfmpegPath(g.FFmpegPath)
	}
	cmd := node.Compile()

	done := make(chan error, 1)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("audio: start ffmpeg for %s: %w", path, err)
	}
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		return nil, fmt.Errorf("audio: ffmpeg transcode %s: %w", path, ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("audio: ffmpeg transcode %s: %w", path, err)
		}
	}

	raw := out.Bytes()
	samples := make([]float64, len(raw)/2)
	for i := range samples {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768.0
	}
	return samples, nil
}

// ffprobeDuration shells out to ffprobe via ffmpeg-go's Probe helper, the
// second tier of the duration fallback chain.
func (g *Gateway) ffprobeDuration(ctx context.Context, path string) (float64, error) {
	raw, err := ffmpeg.Probe(path)
	if err != nil {
		return 0, fmt.Errorf("audio: ffprobe %s: %w", path, err)
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return 0, fmt.Errorf("audio: parse ffprobe output: %w", err)
	}
	d, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("audio: ffprobe reported no duration")
	}
	return d, nil
}
