package capture

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/petems/audiocapture/internal/audio"
)

// fakeBackend is a scripted audio.Backend. Deliveries are driven by the
// test through fakeStream.deliver.
type fakeBackend struct {
	mu       sync.Mutex
	devices  []audio.Device
	listErr  error
	openErr  error
	startErr error
	stopErr  error
	closed   int
	streams  []*fakeStream

	// startStates are reported by Start right after StateStarted.
	startStates []audio.StreamState
	// stopFlush is delivered from inside Stop, like a final buffer the
	// backend drains before its stop call returns.
	stopFlush []float32
	// stopGate, when set, blocks Stop until it is closed.
	stopGate chan struct{}
}

func newFakeBackend(names ...string) *fakeBackend {
	b := &fakeBackend{}
	for i, name := range names {
		b.devices = append(b.devices, audio.Device{ID: "dev-" + name, Name: name, Index: i, Default: i == 0})
	}
	return b
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) InputDevices() ([]audio.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	return append([]audio.Device(nil), b.devices...), nil
}

func (b *fakeBackend) OpenStream(dev audio.Device, params audio.StreamParams, data audio.DataFunc, state audio.StateFunc) (audio.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	s := &fakeStream{
		dev:      dev,
		params:   params,
		data:     data,
		state:    state,
		startErr:    b.startErr,
		stopErr:     b.stopErr,
		startStates: b.startStates,
		stopFlush:   b.stopFlush,
		stopGate:    b.stopGate,
	}
	b.streams = append(b.streams, s)
	return s, nil
}

func (b *fakeBackend) Close() error {
	b.mu.Lock()
	b.closed++
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) set(fn func(b *fakeBackend)) {
	b.mu.Lock()
	fn(b)
	b.mu.Unlock()
}

func (b *fakeBackend) closeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *fakeBackend) streamCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.streams)
}

func (b *fakeBackend) lastStream(t *testing.T) *fakeStream {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		t.Fatal("no stream opened")
	}
	return b.streams[len(b.streams)-1]
}

type fakeStream struct {
	dev    audio.Device
	params audio.StreamParams
	data   audio.DataFunc
	state  audio.StateFunc

	startStates []audio.StreamState
	stopFlush   []float32
	stopGate    chan struct{}

	mu       sync.Mutex
	startErr error
	stopErr  error
	started  bool
	stopped  bool
	closed   bool
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	if s.startErr != nil {
		s.mu.Unlock()
		return s.startErr
	}
	s.started = true
	s.mu.Unlock()
	s.state(audio.StateStarted)
	for _, st := range s.startStates {
		s.state(st)
	}
	return nil
}

func (s *fakeStream) Stop() error {
	if s.stopFlush != nil {
		s.deliver(s.stopFlush)
	}
	if s.stopGate != nil {
		<-s.stopGate
	}
	s.mu.Lock()
	if s.stopErr != nil {
		s.mu.Unlock()
		return s.stopErr
	}
	s.stopped = true
	s.mu.Unlock()
	s.state(audio.StateStopped)
	return nil
}

func (s *fakeStream) Latency() (int, error) {
	return s.params.LatencyFrames, nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) flags() (started, stopped, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started, s.stopped, s.closed
}

// deliver feeds interleaved samples through the data callback the way the
// backend's realtime thread would.
func (s *fakeStream) deliver(samples []float32) int {
	return s.data(audio.AppendFloat32LE(nil, samples), len(samples)/s.params.Channels)
}

var errBackend = errors.New("backend failure")

func newTestSession(t *testing.T, b *fakeBackend) *Session {
	t.Helper()
	s := New(Config{
		Open: func(zerolog.Logger) (audio.Backend, error) {
			return b, nil
		},
		OutputFile: filepath.Join(t.TempDir(), "capture.wav"),
		Logger:     zerolog.Nop(),
	})
	t.Cleanup(func() { _ = s.Teardown() })
	return s
}

func newStartedSession(t *testing.T, b *fakeBackend) (*Session, *fakeStream) {
	t.Helper()
	s := newTestSession(t, b)
	if err := s.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := s.Start(DefaultDevice); err != nil {
		t.Fatalf("start: %v", err)
	}
	return s, b.lastStream(t)
}
