package audio

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	Register("synth", func(log zerolog.Logger) (Backend, error) {
		return NewSynth(SynthConfig{}, log), nil
	})
}

// SynthConfig configures the synthetic tone backend.
type SynthConfig struct {
	// Frequency of the generated sine wave in Hz. Defaults to 440.
	Frequency float64
	// Amplitude of the sine wave, in [0, 1]. Defaults to 0.5.
	Amplitude float64
	// Interval between deliveries. Defaults to the duration of one period
	// at the stream sample rate.
	Interval time.Duration
}

// Synth is a Backend with one input device that generates a sine tone on
// its own goroutine. It needs no hardware and is available in every build.
type Synth struct {
	cfg SynthConfig
	log zerolog.Logger
}

// NewSynth returns a synthetic tone backend.
func NewSynth(cfg SynthConfig, log zerolog.Logger) *Synth {
	if cfg.Frequency <= 0 {
		cfg.Frequency = 440
	}
	if cfg.Amplitude <= 0 {
		cfg.Amplitude = 0.5
	}
	return &Synth{cfg: cfg, log: log}
}

func (s *Synth) Name() string {
	return "synth"
}

func (s *Synth) InputDevices() ([]Device, error) {
	return indexDevices([]Device{{
		ID:      "synth:tone",
		Name:    fmt.Sprintf("Synthetic tone (%.0f Hz)", s.cfg.Frequency),
		Default: true,
	}}), nil
}

func (s *Synth) OpenStream(dev Device, params StreamParams, data DataFunc, state StateFunc) (Stream, error) {
	if dev.ID != "synth:tone" {
		return nil, fmt.Errorf("device not found: %s", dev.ID)
	}
	if params.Format != Float32LE {
		return nil, fmt.Errorf("unsupported sample format %d", params.Format)
	}
	if params.SampleRate <= 0 || params.Channels <= 0 || params.LatencyFrames <= 0 {
		return nil, fmt.Errorf("invalid stream parameters %+v", params)
	}

	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Duration(params.LatencyFrames) * time.Second / time.Duration(params.SampleRate)
	}
	return &synthStream{
		cfg:      s.cfg,
		params:   params,
		interval: interval,
		data:     data,
		state:    state,
	}, nil
}

func (s *Synth) Close() error {
	return nil
}

type synthStream struct {
	cfg      SynthConfig
	params   StreamParams
	interval time.Duration
	data     DataFunc
	state    StateFunc

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	phase   float64
	stopped bool
}

var errStreamClosed = errors.New("stream closed")

func (s *synthStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return errStreamClosed
	}
	if s.stop != nil {
		return errors.New("stream already started")
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done)
	s.state(StateStarted)
	return nil
}

func (s *synthStream) run(stop, done chan struct{}) {
	defer close(done)

	frames := s.params.LatencyFrames
	channels := s.params.Channels
	samples := make([]float32, frames*channels)
	buf := make([]byte, 0, len(samples)*4)
	step := 2 * math.Pi * s.cfg.Frequency / float64(s.params.SampleRate)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		for i := 0; i < frames; i++ {
			v := float32(s.cfg.Amplitude * math.Sin(s.phase))
			for c := 0; c < channels; c++ {
				samples[i*channels+c] = v
			}
			s.phase += step
			if s.phase >= 2*math.Pi {
				s.phase -= 2 * math.Pi
			}
		}
		buf = AppendFloat32LE(buf[:0], samples)
		s.data(buf, frames)
	}
}

// Stop waits for the generator goroutine to exit, so no data callback runs
// after it returns.
func (s *synthStream) Stop() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	s.state(StateStopped)
	return nil
}

func (s *synthStream) Latency() (int, error) {
	return s.params.LatencyFrames, nil
}

func (s *synthStream) Close() error {
	err := s.Stop()
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return err
}
