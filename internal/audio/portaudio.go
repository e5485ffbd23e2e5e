//go:build cgo && !noaudio

package audio

import (
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

func init() {
	Register("portaudio", newPortAudioBackend)
}

type portAudioBackend struct {
	log zerolog.Logger
}

func newPortAudioBackend(log zerolog.Logger) (Backend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioBackend{log: log}, nil
}

func (p *portAudioBackend) Name() string {
	return "portaudio"
}

func portAudioDeviceID(d *portaudio.DeviceInfo) string {
	if d.HostApi != nil {
		return d.HostApi.Name + "/" + d.Name
	}
	return d.Name
}

func (p *portAudioBackend) inputDevices() ([]*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]*portaudio.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, d)
		}
	}
	return result, nil
}

func (p *portAudioBackend) InputDevices() ([]Device, error) {
	devices, err := p.inputDevices()
	if err != nil {
		return nil, err
	}

	defaultDevice, _ := portaudio.DefaultInputDevice()
	result := make([]Device, 0, len(devices))
	for _, d := range devices {
		result = append(result, Device{
			ID:      portAudioDeviceID(d),
			Name:    d.Name,
			Default: d == defaultDevice,
		})
	}

	return indexDevices(result), nil
}

func (p *portAudioBackend) OpenStream(dev Device, params StreamParams, data DataFunc, state StateFunc) (Stream, error) {
	if params.Format != Float32LE {
		return nil, fmt.Errorf("unsupported sample format %d", params.Format)
	}

	devices, err := p.inputDevices()
	if err != nil {
		return nil, err
	}
	var device *portaudio.DeviceInfo
	for _, d := range devices {
		if portAudioDeviceID(d) == dev.ID {
			device = d
			break
		}
	}
	if device == nil {
		return nil, fmt.Errorf("device not found: %s", dev.ID)
	}

	latency := device.DefaultHighInputLatency
	if params.LatencyFrames > 0 && params.SampleRate > 0 {
		latency = time.Duration(params.LatencyFrames) * time.Second / time.Duration(params.SampleRate)
	}

	channels := params.Channels
	var scratch []byte
	cb := func(in []float32) {
		scratch = AppendFloat32LE(scratch[:0], in)
		data(scratch, len(in)/channels)
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  latency,
		},
		SampleRate:      float64(params.SampleRate),
		FramesPerBuffer: portaudio.FramesPerBufferUnspecified,
	}, cb)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}

	return &portAudioStream{
		stream:     stream,
		state:      state,
		sampleRate: params.SampleRate,
	}, nil
}

func (p *portAudioBackend) Close() error {
	return portaudio.Terminate()
}

type portAudioStream struct {
	stream     *portaudio.Stream
	state      StateFunc
	sampleRate int
}

func (s *portAudioStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return err
	}
	s.state(StateStarted)
	return nil
}

// Stop blocks until pending callbacks have returned.
func (s *portAudioStream) Stop() error {
	err := s.stream.Stop()
	if err != nil {
		s.state(StateError)
		return err
	}
	s.state(StateStopped)
	return nil
}

func (s *portAudioStream) Latency() (int, error) {
	info := s.stream.Info()
	if info == nil {
		return 0, fmt.Errorf("stream info unavailable")
	}
	return int(info.InputLatency.Seconds() * float64(s.sampleRate)), nil
}

func (s *portAudioStream) Close() error {
	return s.stream.Close()
}
