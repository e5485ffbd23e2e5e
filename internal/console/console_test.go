package console

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petems/audiocapture/internal/audio"
	"github.com/petems/audiocapture/internal/capture"
	"github.com/petems/audiocapture/internal/wavfile"
)

func init() {
	color.NoColor = true
}

type testConsole struct {
	*Console
	session *capture.Session
	out     *bytes.Buffer
	copied  []string
}

func newTestConsole(t *testing.T, input io.Reader, copyPath bool) *testConsole {
	t.Helper()

	session := capture.New(capture.Config{
		Open: func(log zerolog.Logger) (audio.Backend, error) {
			return audio.NewSynth(audio.SynthConfig{Interval: time.Millisecond}, log), nil
		},
		SampleRate:    8000,
		LatencyFrames: 64,
		OutputFile:    filepath.Join(t.TempDir(), "take.wav"),
		Logger:        zerolog.Nop(),
	})
	t.Cleanup(func() { _ = session.Teardown() })

	tc := &testConsole{session: session, out: &bytes.Buffer{}}
	tc.Console = New(Config{
		Session:        session,
		Logger:         zerolog.Nop(),
		In:             input,
		Out:            tc.out,
		MeterInterval:  10,
		CopyPathOnSave: copyPath,
		Clipboard: func(text string) error {
			tc.copied = append(tc.copied, text)
			return nil
		},
	})
	return tc
}

func (tc *testConsole) exec(t *testing.T, line string) string {
	t.Helper()
	tc.out.Reset()
	require.NoError(t, tc.Execute(context.Background(), line))
	return tc.out.String()
}

func (tc *testConsole) waitForFrames(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return tc.session.Status().RecordedFrames > 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStartStatusStopSave(t *testing.T) {
	tc := newTestConsole(t, strings.NewReader("\n"), false)

	out := tc.exec(t, "start")
	assert.Contains(t, out, "Available input devices:")
	assert.Contains(t, out, "0: Synthetic tone (440 Hz)")
	assert.Contains(t, out, "Audio capture started")
	assert.Contains(t, out, "Using device: Synthetic tone (440 Hz)")
	tc.waitForFrames(t)

	out = tc.exec(t, "status")
	assert.Contains(t, out, "Status: Capturing audio")
	assert.Contains(t, out, "Backend: synth")
	assert.Contains(t, out, "Sample Rate: 8000 Hz")
	assert.Contains(t, out, "Channels: 2")

	out = tc.exec(t, "stop")
	assert.Contains(t, out, "WAV audio saved to "+tc.session.OutputFile())
	assert.Contains(t, out, "Capture stopped")
	assert.False(t, tc.session.IsCapturing())

	format, samples, err := wavfile.Read(tc.session.OutputFile())
	require.NoError(t, err)
	assert.Equal(t, 2, format.Channels)
	assert.Equal(t, 8000, format.SampleRate)
	assert.NotEmpty(t, samples)
	assert.Empty(t, tc.copied)

	out = tc.exec(t, "status")
	assert.Contains(t, out, "Status: Not capturing")
	assert.Contains(t, out, "Last recording: ")
}

func TestStartPromptFallsBackToDefault(t *testing.T) {
	for input, msg := range map[string]string{
		"7\n":   "Invalid device number, using default device",
		"abc\n": "Invalid input, using default device",
	} {
		t.Run(strings.TrimSpace(input), func(t *testing.T) {
			tc := newTestConsole(t, strings.NewReader(input), false)
			out := tc.exec(t, "start")
			assert.Contains(t, out, msg)
			assert.True(t, tc.session.IsCapturing())
		})
	}
}

func TestStartWithIndexSkipsPrompt(t *testing.T) {
	tc := newTestConsole(t, strings.NewReader(""), false)
	out := tc.exec(t, "start 0")
	assert.NotContains(t, out, "Enter device number")
	assert.True(t, tc.session.IsCapturing())

	out = tc.exec(t, "start")
	assert.Contains(t, out, "Already capturing")
}

func TestStartWithInvalidIndex(t *testing.T) {
	tc := newTestConsole(t, strings.NewReader(""), false)

	err := tc.Execute(context.Background(), "start 4")
	assert.ErrorIs(t, err, capture.ErrInvalidDevice)
	assert.False(t, tc.session.IsCapturing())

	assert.Error(t, tc.Execute(context.Background(), "start first"))
}

func TestStopWhenIdle(t *testing.T) {
	tc := newTestConsole(t, strings.NewReader(""), false)
	assert.Contains(t, tc.exec(t, "stop"), "No capture running")
}

func TestSaveWithoutRecording(t *testing.T) {
	tc := newTestConsole(t, strings.NewReader(""), false)
	assert.Contains(t, tc.exec(t, "save"), "Nothing recorded")
	_, err := os.Stat(tc.session.OutputFile())
	assert.True(t, os.IsNotExist(err))
}

func TestSaveCopiesPathToClipboard(t *testing.T) {
	tc := newTestConsole(t, strings.NewReader(""), true)
	tc.exec(t, "start 0")
	tc.waitForFrames(t)

	out := tc.exec(t, "stop")
	assert.Contains(t, out, "Path copied to clipboard")
	assert.Equal(t, []string{tc.session.OutputFile()}, tc.copied)

	tc.exec(t, "save")
	assert.Len(t, tc.copied, 2)
}

func TestDevicesAndSelection(t *testing.T) {
	tc := newTestConsole(t, strings.NewReader(""), false)

	out := tc.exec(t, "devices")
	assert.Contains(t, out, "*[0] Synthetic tone (440 Hz)")

	assert.Contains(t, tc.exec(t, "device 0"), "Selected device: Synthetic tone")
	assert.ErrorIs(t, tc.Execute(context.Background(), "device 3"), capture.ErrInvalidDevice)
	assert.Error(t, tc.Execute(context.Background(), "device"))
	assert.Error(t, tc.Execute(context.Background(), "device x"))
}

func TestOutputCommand(t *testing.T) {
	tc := newTestConsole(t, strings.NewReader(""), false)
	dir := t.TempDir()

	out := tc.exec(t, "output "+filepath.Join(dir, "next.mp3"))
	assert.Contains(t, out, "Output file: "+filepath.Join(dir, "next.wav"))
	assert.Equal(t, filepath.Join(dir, "next.mp3"), tc.session.OutputFile())
}

func TestUnknownAndEmptyCommands(t *testing.T) {
	tc := newTestConsole(t, strings.NewReader(""), false)
	assert.Empty(t, tc.exec(t, "   "))

	out := tc.exec(t, "record")
	assert.Contains(t, out, "Unknown command: record")
	assert.Contains(t, out, "Type 'help'")
}

func TestQuitCommands(t *testing.T) {
	tc := newTestConsole(t, strings.NewReader(""), false)
	assert.ErrorIs(t, tc.Execute(context.Background(), "quit"), errQuit)
	assert.ErrorIs(t, tc.Execute(context.Background(), "EXIT"), errQuit)
}

func TestRunUntilQuit(t *testing.T) {
	tc := newTestConsole(t, strings.NewReader("help\nbogus\nquit\nstatus\n"), false)

	require.NoError(t, tc.Run(context.Background()))
	out := tc.out.String()
	assert.Contains(t, out, "Commands:")
	assert.Contains(t, out, "Unknown command: bogus")
	assert.NotContains(t, out, "Status:")
}

func TestRunPrintsCommandErrors(t *testing.T) {
	tc := newTestConsole(t, strings.NewReader("device 9\n"), false)

	require.NoError(t, tc.Run(context.Background()))
	assert.Contains(t, tc.out.String(), "Error: ")
}

func TestRunShutsDownOnEOF(t *testing.T) {
	tc := newTestConsole(t, strings.NewReader("start 0\n"), false)

	require.NoError(t, tc.Run(context.Background()))
	assert.False(t, tc.session.IsCapturing())
	assert.Equal(t, capture.StateUninitialized, tc.session.State())
}

func TestRunStopsOnCancel(t *testing.T) {
	r, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })
	tc := newTestConsole(t, r, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tc.Run(ctx) }()

	_, err := io.WriteString(w, "start 0\n")
	require.NoError(t, err)
	require.Eventually(t, tc.session.IsCapturing, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, tc.session.IsCapturing())
}
