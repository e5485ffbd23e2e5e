package capture

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/petems/audiocapture/internal/audio"
	"github.com/petems/audiocapture/internal/wavfile"
)

const pcm16Scale = 32767

// ExportResult describes a written WAV file.
type ExportResult struct {
	Path       string
	Frames     int
	Samples    int
	Channels   int
	SampleRate int
}

// Export writes the recording to the configured output file. See ExportTo.
func (s *Session) Export() (ExportResult, error) {
	return s.ExportTo(s.OutputFile())
}

// ExportTo writes the recording to name as 16-bit PCM WAV, replacing or
// appending the .wav extension. Exporting while capturing is rejected. The
// recording is left intact, so repeated exports produce the same file.
func (s *Session) ExportTo(name string) (ExportResult, error) {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()

	if s.capturing.Load() || s.stopping.Load() {
		return ExportResult{}, fmt.Errorf("%w: cannot export while capturing", ErrInvalidState)
	}

	raw := s.recording.Snapshot()
	if len(raw) == 0 {
		s.log.Error().Msg("No audio data to save")
		return ExportResult{}, ErrEmptyRecording
	}

	channels := int(s.channels.Load())
	sampleRate := int(s.sampleRate.Load())
	path := WavPath(name)
	pcm := ToPCM16(nil, audio.DecodeFloat32LE(nil, raw))

	w, err := wavfile.Create(path, wavfile.Format{
		Channels:      channels,
		SampleRate:    sampleRate,
		BitsPerSample: 16,
	})
	if err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("Failed to initialize WAV file")
		return ExportResult{}, fmt.Errorf("%w: %s: %w", ErrEncoderInit, path, err)
	}

	frames, werr := w.WritePCMFrames(pcm)
	cerr := w.Close()
	if werr == nil && frames == 0 {
		werr = fmt.Errorf("0 of %d samples written", len(pcm))
	}
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		s.log.Error().Err(werr).Str("path", path).Msg("Failed to write audio data")
		if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
			s.log.Warn().Err(rerr).Str("path", path).Msg("Failed to remove partial WAV file")
		}
		return ExportResult{}, fmt.Errorf("%w: %s: %w", ErrEncoderWrite, path, werr)
	}

	res := ExportResult{
		Path:       path,
		Frames:     frames,
		Samples:    frames * channels,
		Channels:   channels,
		SampleRate: sampleRate,
	}
	s.log.Info().
		Str("path", res.Path).
		Int("frames", res.Frames).
		Int("samples", res.Samples).
		Int("channels", res.Channels).
		Int("sample_rate", res.SampleRate).
		Msg("WAV audio saved")
	return res, nil
}

// WavPath returns name with its extension replaced by .wav, or with .wav
// appended when it has none. A name already ending in .wav (any case) is
// returned unchanged.
func WavPath(name string) string {
	ext := filepath.Ext(name)
	if strings.EqualFold(ext, ".wav") {
		return name
	}
	return strings.TrimSuffix(name, ext) + ".wav"
}

// ToPCM16 appends samples to dst converted to signed 16-bit PCM: each value
// is clamped to [-1, 1], scaled by 32767 and truncated toward zero. NaN
// becomes 0.
func ToPCM16(dst []int16, samples []float32) []int16 {
	for _, v := range samples {
		switch {
		case math.IsNaN(float64(v)):
			v = 0
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		dst = append(dst, int16(v*pcm16Scale))
	}
	return dst
}
