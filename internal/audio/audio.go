// Package audio loads an arbitrary media file as mono float64 PCM at a
// fixed measurement sample rate, and discovers a file's duration, using
// whichever of several pure-Go decoders or the external transcoder can
// actually read it.
//
// Strategy for Load, in order:
//  1. Native decode: go-mp4 + AAC/Opus for .mp4, gopxl/beep for plain
//     audio containers (wav/mp3/flac/ogg).
//  2. Native fallback: for a bare .aac file with no MP4 box structure,
//     decode it as a raw ADTS stream directly.
//  3. External transcoder: shell out to ffmpeg via u2takey/ffmpeg-go for
//     anything the native path can't read (mkv/webm/avi/mov/ac3/eac3, or
//     any native failure).
//  4. Retry native: if the transcoder reports the input has no video
//     stream at all (i.e. it was actually a plain audio file we
//     misclassified), retry once via beep before giving up.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// VideoExtensions lists the extensions treated as video containers. Load
// does not consult it: it tries a native decoder wherever one exists for
// the extension (e.g. .mp4) and falls back to the transcoder otherwise.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".webm": true,
	".avi":  true,
	".mov":  true,
	".eac3": true,
	".ac3":  true,
}

var nativeAudioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
}

// Gateway decodes media files into the fixed-rate mono buffers the rest
// of the engine operates on. The zero value is ready to use; FFmpegPath
// overrides PATH lookup of the ffmpeg binary.
type Gateway struct {
	FFmpegPath string
}

// NewGateway returns a Gateway that resolves ffmpeg from PATH.
func NewGateway() *Gateway {
	return &Gateway{}
}

// Load returns path's audio as mono float64 PCM resampled to targetSR,
// starting at offset seconds and spanning duration seconds (nil means to
// end of file). The second return value is false if the file could not
// be decoded by any strategy.
func (g *Gateway) Load(ctx context.Context, path string, targetSR int, duration *float64, offset float64) ([]float64, bool) {
	ext := strings.ToLower(filepath.Ext(path))

	if samples, sr, err := g.loadNative(path, ext, offset, duration); err == nil {
		return resample(samples, sr, targetSR), true
	} else {
		slog.Debug("audio: native decode failed", "path", path, "error", err)
	}

	if ext == ".aac" {
		if samples, sr, err := decodeRawADTS(path, offset, duration); err == nil {
			return resample(samples, sr, targetSR), true
		} else {
			slog.Debug("audio: raw ADTS fallback failed", "path", path, "error", err)
		}
	}

	samples, err := g.loadViaTranscoder(ctx, path, offset, duration, targetSR)
	if err == nil {
		return samples, true
	}

	if isNoVideoStreamError(err) {
		slog.Debug("audio: transcoder found no video stream, retrying as plain audio", "path", path)
		if samples, sr, nerr := decodeBeep(path, offset, duration); nerr == nil {
			return resample(samples, sr, targetSR), true
		}
	}

	slog.Warn("audio: could not decode file", "path", path, "error", err)
	return nil, false
}

// loadNative dispatches to the decoder that reads the container natively
// without invoking an external process.
func (g *Gateway) loadNative(path, ext string, offset float64, duration *float64) ([]float64, int, error) {
	switch {
	case ext == ".mp4":
		return decodeMP4(path, offset, duration)
	case nativeAudioExtensions[ext]:
		return decodeBeep(path, offset, duration)
	default:
		return nil, 0, fmt.Errorf("audio: %s has no native decoder", ext)
	}
}

func isNoVideoStreamError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "does not contain any stream") ||
		strings.Contains(msg, "stream map '0:v' matches no streams") ||
		strings.Contains(msg, "no video stream")
}

// Duration returns path's duration in seconds, trying a media-info style
// probe, then ffprobe, then the native audio decoder's own length.
func (g *Gateway) Duration(ctx context.Context, path string) (float64, bool) {
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".mp4" {
		if d, err := mp4Duration(path); err == nil {
			return d, true
		}
	}

	if d, err := g.ffprobeDuration(ctx, path); err == nil {
		return d, true
	}

	if nativeAudioExtensions[ext] || ext == ".aac" {
		if d, err := beepDuration(path); err == nil {
			return d, true
		}
	}

	return 0, false
}
