// Package capture drives an audio input stream: device selection, the
// start/stop lifecycle, delivery of captured frames to a consumer callback
// and export of the recorded signal to a WAV file.
package capture

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/petems/audiocapture/internal/audio"
)

const (
	// DefaultDevice passed to Start keeps the currently selected device.
	DefaultDevice = -1

	DefaultSampleRate    = 48000
	DefaultChannels      = 2
	DefaultLatencyFrames = 4096
	DefaultOutputFile    = "captured-audio.wav"

	bytesPerSample = 4
)

// State is the lifecycle state of a Session.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config configures a Session.
type Config struct {
	// Backend is the registered audio backend name passed to audio.Open.
	Backend string
	// Open overrides Backend with a custom backend opener.
	Open audio.Opener

	SampleRate    int
	Channels      int
	LatencyFrames int
	OutputFile    string

	// Callback receives every captured batch. It may be replaced later
	// with SetCallback.
	Callback FrameFunc
	Logger   zerolog.Logger
}

// Session owns one backend context and at most one capture stream.
type Session struct {
	open          audio.Opener
	backendName   string
	sampleRateCfg int
	channelsCfg   int
	latencyFrames int
	log           zerolog.Logger

	// stopMu serializes Stop and Teardown. It is held across the backend
	// stop call, ctlMu is not.
	stopMu sync.Mutex
	// ctlMu serializes control-plane operations.
	ctlMu      sync.Mutex
	backend    audio.Backend
	stream     audio.Stream
	device     audio.Device
	outputFile string
	runID      uuid.UUID

	initialized atomic.Bool
	capturing   atomic.Bool
	stopping    atomic.Bool
	sampleRate  atomic.Int32
	channels    atomic.Int32
	generation  atomic.Uint64
	dropped     atomic.Int64

	// cbMu is held while the callback is invoked and while it is replaced.
	cbMu     sync.Mutex
	callback FrameFunc

	recording Recording
}

// New returns an uninitialized Session. Call Initialize before use.
func New(cfg Config) *Session {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = DefaultChannels
	}
	if cfg.LatencyFrames <= 0 {
		cfg.LatencyFrames = DefaultLatencyFrames
	}
	if cfg.OutputFile == "" {
		cfg.OutputFile = DefaultOutputFile
	}

	open := cfg.Open
	if open == nil {
		name := cfg.Backend
		open = func(log zerolog.Logger) (audio.Backend, error) {
			return audio.Open(name, log)
		}
	}

	return &Session{
		open:          open,
		backendName:   cfg.Backend,
		sampleRateCfg: cfg.SampleRate,
		channelsCfg:   cfg.Channels,
		latencyFrames: cfg.LatencyFrames,
		log:           cfg.Logger,
		outputFile:    cfg.OutputFile,
		callback:      cfg.Callback,
	}
}

// Initialize opens the backend context and selects the first input device.
// On failure the session stays uninitialized.
func (s *Session) Initialize() error {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()

	if s.initialized.Load() {
		return fmt.Errorf("%w: already initialized", ErrInvalidState)
	}

	backend, err := s.open(s.log)
	if err != nil {
		s.log.Error().Err(err).Str("backend", s.backendName).Msg("Error initializing audio backend")
		return fmt.Errorf("%w: open backend %q: %w", ErrInitialization, s.backendName, err)
	}

	devices, err := backend.InputDevices()
	if err != nil {
		s.log.Error().Err(err).Msg("Error enumerating devices")
		s.closeBackend(backend)
		return fmt.Errorf("%w: enumerate input devices: %w", ErrInitialization, err)
	}
	if len(devices) == 0 {
		s.log.Error().Msg("No input devices found")
		s.closeBackend(backend)
		return fmt.Errorf("%w: no input devices found on %s", ErrInitialization, backend.Name())
	}

	s.backend = backend
	s.backendName = backend.Name()
	s.device = devices[0]
	s.initialized.Store(true)

	s.log.Info().
		Str("backend", backend.Name()).
		Int("devices", len(devices)).
		Str("device", s.device.Name).
		Msg("Audio system initialized")
	return nil
}

func (s *Session) closeBackend(b audio.Backend) {
	if err := b.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Error closing audio backend")
	}
}

// Start opens a capture stream on the device at index, or on the current
// device for DefaultDevice, and starts it. The recording is cleared.
func (s *Session) Start(index int) error {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()

	if !s.initialized.Load() {
		return fmt.Errorf("%w: start: audio system not initialized", ErrInvalidState)
	}
	if s.capturing.Load() {
		return fmt.Errorf("%w: start: capture already running", ErrInvalidState)
	}
	if s.stopping.Load() {
		return fmt.Errorf("%w: start: stop in progress", ErrInvalidState)
	}

	if index != DefaultDevice {
		if err := s.selectDeviceLocked(index); err != nil {
			return err
		}
	}

	// A stream kept from the previous run is released here.
	s.releaseStreamLocked()

	params := audio.StreamParams{
		Format:        audio.Float32LE,
		SampleRate:    s.sampleRateCfg,
		Channels:      s.channelsCfg,
		LatencyFrames: s.latencyFrames,
	}

	// Callbacks from an older stream must not touch the new run.
	gen := s.generation.Add(1)
	data := func(input []byte, frames int) int {
		if s.generation.Load() != gen {
			return 0
		}
		return s.ingest(input, frames)
	}
	state := func(st audio.StreamState) {
		if s.generation.Load() != gen {
			return
		}
		s.handleState(st)
	}

	stream, err := s.backend.OpenStream(s.device, params, data, state)
	if err != nil {
		s.log.Error().Err(err).Str("device", s.device.Name).Msg("Error creating stream")
		return fmt.Errorf("%w: device %q, %d Hz, %d channels: %w",
			ErrStreamCreation, s.device.Name, params.SampleRate, params.Channels, err)
	}

	runID := uuid.New()
	log := s.log.With().Str("run", runID.String()).Logger()
	if latency, err := stream.Latency(); err != nil {
		log.Debug().Err(err).Msg("Stream latency unavailable")
	} else {
		log.Debug().Int("latency_frames", latency).Msg("Stream latency")
	}

	s.recording.Reset()
	s.dropped.Store(0)
	s.sampleRate.Store(int32(params.SampleRate))
	s.channels.Store(int32(params.Channels))
	s.stream = stream
	s.runID = runID

	// Set before the backend starts so a Stopped or Error notification
	// racing the start is not overwritten.
	s.capturing.Store(true)
	if err := stream.Start(); err != nil {
		log.Error().Err(err).Msg("Error starting stream")
		s.capturing.Store(false)
		s.stream = nil
		if cerr := stream.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Error destroying stream")
		}
		return fmt.Errorf("%w: device %q: %w", ErrStreamStart, s.device.Name, err)
	}

	log.Info().
		Str("device", s.device.Name).
		Int("sample_rate", params.SampleRate).
		Int("channels", params.Channels).
		Msg("Audio capture started")
	return nil
}

// Stop stops the running stream. It is a no-op when not capturing and
// always leaves the session not capturing; backend stop errors are only
// logged. The backend stop call runs without holding the control lock, so
// a consumer callback may still query the session while Stop waits for it.
func (s *Session) Stop() error {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	s.stopStream()
	return nil
}

// stopStream stops the current stream. The caller holds stopMu.
func (s *Session) stopStream() {
	s.ctlMu.Lock()
	if !s.capturing.Load() {
		s.ctlMu.Unlock()
		return
	}
	stream := s.stream
	channels := int(s.channels.Load())
	log := s.log.With().Str("run", s.runID.String()).Logger()
	s.stopping.Store(true)
	s.ctlMu.Unlock()

	log.Info().Msg("Stopping audio capture")
	if stream != nil {
		if err := stream.Stop(); err != nil {
			log.Error().Err(err).Msg("Error stopping stream")
		}
	}
	s.capturing.Store(false)
	s.stopping.Store(false)

	log.Info().
		Int("frames", s.recording.Frames(channels)).
		Int64("dropped", s.dropped.Load()).
		Msg("Audio capture stopped")
}

func (s *Session) releaseStreamLocked() {
	if s.stream == nil {
		return
	}
	if err := s.stream.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Error destroying stream")
	}
	s.stream = nil
}

// Teardown stops any capture, destroys the stream and the backend context
// and returns the session to the uninitialized state. The registered
// callback and output file are kept. It is safe to call repeatedly.
func (s *Session) Teardown() error {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	// A Start may slip in between stopping and taking ctlMu.
	for {
		s.stopStream()
		s.ctlMu.Lock()
		if !s.capturing.Load() {
			break
		}
		s.ctlMu.Unlock()
	}
	defer s.ctlMu.Unlock()

	s.releaseStreamLocked()
	s.generation.Add(1)

	var err error
	if s.backend != nil {
		err = s.backend.Close()
		if err != nil {
			s.log.Warn().Err(err).Msg("Error closing audio backend")
		}
		s.backend = nil
	}

	s.device = audio.Device{}
	s.runID = uuid.Nil
	s.initialized.Store(false)
	s.sampleRate.Store(0)
	s.channels.Store(0)
	s.dropped.Store(0)
	s.recording.Reset()
	return err
}

// Close is Teardown.
func (s *Session) Close() error {
	return s.Teardown()
}

// IsCapturing reports whether a stream is running. It turns false on its
// own when the backend reports the stream stopped or failed.
func (s *Session) IsCapturing() bool {
	return s.capturing.Load()
}

// SampleRate returns the rate negotiated by the last successful Start, or 0.
func (s *Session) SampleRate() int {
	return int(s.sampleRate.Load())
}

// Channels returns the channel count negotiated by the last successful
// Start, or 0.
func (s *Session) Channels() int {
	return int(s.channels.Load())
}

// State returns the lifecycle state.
func (s *Session) State() State {
	switch {
	case !s.initialized.Load():
		return StateUninitialized
	case s.stopping.Load():
		return StateStopping
	case s.capturing.Load():
		return StateRunning
	default:
		return StateInitialized
	}
}

// CurrentDevice returns the selected input device.
func (s *Session) CurrentDevice() audio.Device {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	return s.device
}

// SetOutputFile sets the path Export writes to. An empty name restores the
// default.
func (s *Session) SetOutputFile(name string) {
	if name == "" {
		name = DefaultOutputFile
	}
	s.ctlMu.Lock()
	s.outputFile = name
	s.ctlMu.Unlock()
}

// OutputFile returns the configured output path, before the .wav suffix is
// applied.
func (s *Session) OutputFile() string {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	return s.outputFile
}

// Status is a point-in-time view of a Session.
type Status struct {
	State          State
	Backend        string
	Device         audio.Device
	SampleRate     int
	Channels       int
	RecordedFrames int
	DroppedBuffers int64
	OutputFile     string
}

// Status returns a snapshot of the session state.
func (s *Session) Status() Status {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()

	channels := int(s.channels.Load())
	return Status{
		State:          s.State(),
		Backend:        s.backendName,
		Device:         s.device,
		SampleRate:     int(s.sampleRate.Load()),
		Channels:       channels,
		RecordedFrames: s.recording.Frames(channels),
		DroppedBuffers: s.dropped.Load(),
		OutputFile:     s.outputFile,
	}
}
