package capture

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petems/audiocapture/internal/audio"
	"github.com/petems/audiocapture/internal/wavfile"
)

func exportAfterStop(t *testing.T, s *Session) (ExportResult, error) {
	t.Helper()
	require.NoError(t, s.Stop())
	return s.Export()
}

func TestExportRoundTrip(t *testing.T) {
	s, stream := newStartedSession(t, newFakeBackend("mic"))

	const frames = 480
	var input []float32
	for i := 0; i < frames; i++ {
		left := float32(i)/frames*2 - 1
		input = append(input, left, -left)
	}
	// Out of range values are clamped.
	input = append(input, 1.5, -3)

	for off := 0; off < len(input); off += 96 {
		end := min(off+96, len(input))
		stream.deliver(input[off:end])
	}

	res, err := exportAfterStop(t, s)
	require.NoError(t, err)
	assert.Equal(t, frames+1, res.Frames)
	assert.Equal(t, (frames+1)*2, res.Samples)
	assert.Equal(t, 2, res.Channels)
	assert.Equal(t, 48000, res.SampleRate)
	assert.Equal(t, s.OutputFile(), res.Path)

	format, samples, err := wavfile.Read(res.Path)
	require.NoError(t, err)
	assert.Equal(t, wavfile.Format{Channels: 2, SampleRate: 48000, BitsPerSample: 16}, format)
	require.Len(t, samples, len(input))
	for i, v := range input {
		if v > 1 {
			v = 1
		}
		if v < -1 {
			v = -1
		}
		require.Equal(t, int16(v*32767), samples[i], "sample %d", i)
	}
	assert.Equal(t, int16(32767), samples[len(samples)-2])
	assert.Equal(t, int16(-32767), samples[len(samples)-1])
}

func TestExportIsRepeatable(t *testing.T) {
	s, stream := newStartedSession(t, newFakeBackend("mic"))
	stream.deliver([]float32{0.25, -0.25, 0.5, -0.5})

	res, err := exportAfterStop(t, s)
	require.NoError(t, err)
	first, err := os.ReadFile(res.Path)
	require.NoError(t, err)

	res2, err := s.Export()
	require.NoError(t, err)
	second, err := os.ReadFile(res2.Path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, s.Status().RecordedFrames, "export does not consume the recording")
}

func TestExportEmptyRecording(t *testing.T) {
	s, _ := newStartedSession(t, newFakeBackend("mic"))

	_, err := exportAfterStop(t, s)
	require.ErrorIs(t, err, ErrEmptyRecording)
	_, statErr := os.Stat(s.OutputFile())
	assert.True(t, os.IsNotExist(statErr))
}

func TestExportNeverStarted(t *testing.T) {
	s := newTestSession(t, newFakeBackend("mic"))
	_, err := s.Export()
	assert.ErrorIs(t, err, ErrEmptyRecording)
}

func TestExportWhileCapturing(t *testing.T) {
	s, stream := newStartedSession(t, newFakeBackend("mic"))
	stream.deliver([]float32{0.1, 0.1})

	_, err := s.Export()
	require.ErrorIs(t, err, ErrInvalidState)
	_, statErr := os.Stat(s.OutputFile())
	assert.True(t, os.IsNotExist(statErr))
}

func TestExportEncoderInitError(t *testing.T) {
	s, stream := newStartedSession(t, newFakeBackend("mic"))
	stream.deliver([]float32{0.1, 0.1})
	require.NoError(t, s.Stop())

	_, err := s.ExportTo(filepath.Join(t.TempDir(), "missing-dir", "out.wav"))
	assert.ErrorIs(t, err, ErrEncoderInit)
}

func TestExportAppliesWavExtension(t *testing.T) {
	b := newFakeBackend("mic")
	dir := t.TempDir()
	s := New(Config{
		Open:       func(zerolog.Logger) (audio.Backend, error) { return b, nil },
		OutputFile: filepath.Join(dir, "take.mp3"),
		Logger:     zerolog.Nop(),
	})
	t.Cleanup(func() { _ = s.Teardown() })
	require.NoError(t, s.Initialize())
	require.NoError(t, s.Start(DefaultDevice))
	b.lastStream(t).deliver([]float32{0.1, 0.1})

	res, err := exportAfterStop(t, s)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "take.wav"), res.Path)
	_, err = os.Stat(filepath.Join(dir, "take.mp3"))
	assert.True(t, os.IsNotExist(err))
}

func TestExportMonoSession(t *testing.T) {
	b := newFakeBackend("mic")
	s := New(Config{
		Open:       func(zerolog.Logger) (audio.Backend, error) { return b, nil },
		Channels:   1,
		SampleRate: 16000,
		OutputFile: filepath.Join(t.TempDir(), "mono"),
		Logger:     zerolog.Nop(),
	})
	t.Cleanup(func() { _ = s.Teardown() })
	require.NoError(t, s.Initialize())
	require.NoError(t, s.Start(DefaultDevice))
	b.lastStream(t).deliver([]float32{0, 0.5, -0.5})

	res, err := exportAfterStop(t, s)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Frames)

	format, samples, err := wavfile.Read(res.Path)
	require.NoError(t, err)
	assert.Equal(t, 1, format.Channels)
	assert.Equal(t, 16000, format.SampleRate)
	assert.Equal(t, []int16{0, 16383, -16383}, samples)
}

func TestWavPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"foo.mp3", "foo.wav"},
		{"foo", "foo.wav"},
		{"foo.wav", "foo.wav"},
		{"foo.WAV", "foo.WAV"},
		{"dir.d/foo", "dir.d/foo.wav"},
		{"archive.tar.gz", "archive.tar.wav"},
		{"captured-audio.wav", "captured-audio.wav"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, WavPath(tt.in))
		})
	}
}

func TestToPCM16(t *testing.T) {
	nan := float32(0)
	nan = nan / nan
	got := ToPCM16(nil, []float32{0, 1, -1, 0.5, -0.5, 2, -2, 0.00001, -0.99999, nan})
	want := []int16{0, 32767, -32767, 16383, -16383, 32767, -32767, 0, -32766, 0}
	assert.Equal(t, want, got)
}

func TestExportEncoderWriteErrorRemovesFile(t *testing.T) {
	s, _ := newStartedSession(t, newFakeBackend("mic"))
	require.NoError(t, s.Stop())

	// One sample is less than one stereo frame, so nothing can be written.
	s.recording.Append(audio.AppendFloat32LE(nil, []float32{0.5}))

	_, err := s.Export()
	require.ErrorIs(t, err, ErrEncoderWrite)
	assert.NotErrorIs(t, err, ErrEncoderInit)
	_, statErr := os.Stat(s.OutputFile())
	assert.True(t, os.IsNotExist(statErr), "partial file removed")
}
