package audio

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	gomp4 "github.com/abema/go-mp4"
	concentus "github.com/lostromb/concentus/go/opus"
	aacdecoder "github.com/skrashevich/go-aac/pkg/decoder"
)

// audioCodec identifies the audio coding format inside an MP4 container.
type audioCodec int

const (
	codecUnknown audioCodec = iota
	codecAAC
	codecOpus
)

// mp4Duration returns an MP4's audio track duration in seconds, the
// first tier of the duration fallback chain: it reads only the moov
// box, never the full audio payload.
func mp4Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := gomp4.Probe(f)
	if err != nil {
		return 0, fmt.Errorf("mp4 probe: %w", err)
	}
	track, err := findAudioTrack(info, detectAudioCodec(f))
	if err != nil {
		return 0, err
	}
	if track.Timescale == 0 {
		return 0, fmt.Errorf("mp4 duration: zero timescale")
	}
	var total uint64
	for _, s := range track.Samples {
		total += uint64(s.TimeDelta)
	}
	if total == 0 {
		return 0, fmt.Errorf("mp4 duration: no samples")
	}
	return float64(total) / float64(track.Timescale), nil
}

// decodeMP4 decodes path's audio track between offset and offset+duration
// (duration nil means to end of file) into mono float64 PCM at the
// track's native sample rate.
func decodeMP4(path string, offset float64, duration *float64) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := gomp4.Probe(f)
	if err != nil {
		return nil, 0, fmt.Errorf("mp4 probe: %w", err)
	}
	codec := detectAudioCodec(f)
	track, err := findAudioTrack(info, codec)
	if err != nil {
		return nil, 0, err
	}

	sampleRate := int(track.Timescale)
	startSample, sampleCount := trackSampleRange(track, offset, duration)

	switch codec {
	case codecAAC:
		return decodeAAC(f, track, sampleRate, startSample, sampleCount)
	case codecOpus:
		return decodeOpus(f, track, sampleRate, startSample, sampleCount)
	default:
		return nil, 0, fmt.Errorf("audio: unsupported MP4 audio codec")
	}
}

// trackSampleRange converts a [offset, offset+duration) time window into
// a [startSample, sampleCount) range over track's samples, using each
// sample's nominal duration as a uniform clock.
func trackSampleRange(track *gomp4.Track, offset float64, duration *float64) (start, count int) {
	if len(track.Samples) == 0 || track.Timescale == 0 {
		return 0, 0
	}
	// Assume roughly uniform per-sample duration (true for AAC/Opus frames).
	var perSample float64
	if track.Samples[0].TimeDelta > 0 {
		perSample = float64(track.Samples[0].TimeDelta) / float64(track.Timescale)
	} else {
		perSample = float64(len(track.Samples)) // degenerate fallback, avoids divide-by-zero below
	}
	if perSample <= 0 {
		return 0, len(track.Samples)
	}
	start = int(offset / perSample)
	if start < 0 {
		start = 0
	}
	if start >= len(track.Samples) {
		return len(track.Samples), 0
	}
	if duration == nil {
		return start, len(track.Samples) - start
	}
	count = int(*duration/perSample) + 1
	if start+count > len(track.Samples) {
		count = len(track.Samples) - start
	}
	return start, count
}

func detectAudioCodec(rs io.ReadSeeker) audioCodec {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return codecUnknown
	}
	codec := codecUnknown
	_, _ = gomp4.ReadBoxStructure(rs, func(h *gomp4.ReadHandle) (interface{}, error) {
		if codec != codecUnknown {
			return nil, nil
		}
		switch h.BoxInfo.Type {
		case gomp4.BoxTypeMp4a():
			codec = codecAAC
			return nil, nil
		case gomp4.BoxTypeOpus():
			codec = codecOpus
			return nil, nil
		case gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(),
			gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd():
			_, _ = h.Expand()
		}
		return nil, nil
	})
	return codec
}

func findAudioTrack(info *gomp4.ProbeInfo, codec audioCodec) (*gomp4.Track, error) {
	if codec == codecAAC {
		for _, t := range info.Tracks {
			if t.Codec == gomp4.CodecMP4A {
				return t, nil
			}
		}
	}
	for _, t := range info.Tracks {
		if t.Codec == gomp4.CodecAVC1 {
			continue
		}
		if len(t.Samples) == 0 || len(t.Chunks) == 0 {
			continue
		}
		if isAudioTimescale(t.Timescale) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("audio: no audio track found (%d tracks)", len(info.Tracks))
}

func isAudioTimescale(ts uint32) bool {
	switch ts {
	case 8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000:
		return true
	}
	return false
}

type sampleLoc struct {
	offset uint64
	size   uint32
}

// sampleLocations returns the (file-offset, size) of samples
// [start, start+count) of track.
func sampleLocations(track *gomp4.Track, start, count int) []sampleLoc {
	if count <= 0 {
		return nil
	}
	result := make([]sampleLoc, 0, count)
	sampleIdx := 0

	for _, chunk := range track.Chunks {
		off := chunk.DataOffset
		for j := uint32(0); j < chunk.SamplesPerChunk; j++ {
			if sampleIdx >= len(track.Samples) {
				return result
			}
			sz := track.Samples[sampleIdx].Size
			if sampleIdx >= start && sampleIdx < start+count {
				result = append(result, sampleLoc{offset: off, size: sz})
			}
			off += uint64(sz)
			sampleIdx++
			if sampleIdx >= start+count {
				return result
			}
		}
	}
	return result
}

func decodeAAC(rs io.ReadSeeker, track *gomp4.Track, sampleRate, start, count int) ([]float64, int, error) {
	asc, err := getAudioSpecificConfig(rs)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: get AudioSpecificConfig: %w", err)
	}

	dec := aacdecoder.New()
	if err := dec.SetASC(asc); err != nil {
		return nil, 0, fmt.Errorf("audio: set ASC: %w", err)
	}
	if dec.Config.SampleRate > 0 {
		sampleRate = dec.Config.SampleRate
	}
	channels := dec.Config.ChanConfig
	if channels < 1 {
		channels = 1
	}

	locs := sampleLocations(track, start, count)
	mono := make([]float64, 0, count*1024)
	var maxRawSize uint32
	for _, loc := range locs {
		if loc.size > maxRawSize {
			maxRawSize = loc.size
		}
	}
	rawBuf := make([]byte, maxRawSize)

	for _, loc := range locs {
		if _, err := rs.Seek(int64(loc.offset), io.SeekStart); err != nil {
			continue
		}
		raw := rawBuf[:loc.size]
		if _, err := io.ReadFull(rs, raw); err != nil {
			continue
		}
		pcm, err := dec.DecodeFrame(raw)
		if err != nil {
			slog.Debug("audio: skip AAC frame", "error", err)
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

func getAudioSpecificConfig(rs io.ReadSeeker) ([]byte, error) {
	paths := []gomp4.BoxPath{
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd(), gomp4.BoxTypeMp4a(), gomp4.BoxTypeEsds()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd(), gomp4.BoxTypeMp4a(), gomp4.BoxTypeWave(), gomp4.BoxTypeEsds()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd(), gomp4.BoxTypeEnca(), gomp4.BoxTypeEsds()},
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	bips, err := gomp4.ExtractBoxesWithPayload(rs, nil, paths)
	if err != nil {
		return nil, fmt.Errorf("extract esds: %w", err)
	}
	for _, bip := range bips {
		if bip.Info.Type != gomp4.BoxTypeEsds() {
			continue
		}
		esds, ok := bip.Payload.(*gomp4.Esds)
		if !ok {
			continue
		}
		for _, desc := range esds.Descriptors {
			if desc.Tag == gomp4.DecSpecificInfoTag && len(desc.Data) >= 2 {
				return desc.Data, nil
			}
		}
	}
	return nil, fmt.Errorf("AudioSpecificConfig not found in esds")
}

func decodeOpus(rs io.ReadSeeker, track *gomp4.Track, sampleRate, start, count int) ([]float64, int, error) {
	decoderRate := sampleRate
	switch decoderRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		decoderRate = 48000
	}

	dec, err := concentus.NewOpusDecoder(decoderRate, 2)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: create opus decoder: %w", err)
	}

	locs := sampleLocations(track, start, count)
	mono := make([]float64, 0, count*960)
	var maxRawSize uint32
	for _, loc := range locs {
		if loc.size > maxRawSize {
			maxRawSize = loc.size
		}
	}
	rawBuf := make([]byte, maxRawSize)
	pcm16 := make([]int16, 5760*2)
	skipErrors := 0

	for _, loc := range locs {
		if loc.size <= 3 {
			continue
		}
		if _, err := rs.Seek(int64(loc.offset), io.SeekStart); err != nil {
			continue
		}
		raw := rawBuf[:loc.size]
		if _, err := io.ReadFull(rs, raw); err != nil {
			continue
		}
		nSamples, err := dec.Decode(raw, 0, len(raw), pcm16, 0, 5760, false)
		if err != nil {
			skipErrors++
			continue
		}
		const channels = 2
		for i := 0; i < nSamples; i++ {
			var sum float64
			for ch := 0; ch < channels; ch++ {
				sum += float64(pcm16[i*channels+ch]) / 32768.0
			}
			mono = append(mono, sum/float64(channels))
		}
	}
	if skipErrors > 0 {
		slog.Debug("audio: skipped undecoded Opus frames", "count", skipErrors, "total", len(locs))
	}
	return mono, decoderRate, nil
}
