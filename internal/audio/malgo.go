//go:build cgo && !noaudio

package audio

import (
	"encoding/hex"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"
)

func init() {
	Register("malgo", newMalgoBackend)
}

// malgoBackend is an implementation of Backend which offloads the work to
// the malgo (miniaudio) library.
type malgoBackend struct {
	malgoCtx *malgo.AllocatedContext
	log      zerolog.Logger
}

func newMalgoBackend(log zerolog.Logger) (Backend, error) {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug().Str("src", "miniaudio").Msg(message)
	})
	if err != nil {
		return nil, fmt.Errorf("init malgo context: %w", err)
	}
	return &malgoBackend{malgoCtx: malgoCtx, log: log}, nil
}

func (mb *malgoBackend) Name() string {
	return "malgo"
}

func (mb *malgoBackend) InputDevices() ([]Device, error) {
	devices, err := mb.malgoCtx.Devices(malgo.Capture)
	if err != nil {
		return nil, err
	}

	res := make([]Device, 0, len(devices))
	seen := make(map[string]struct{}, len(devices))
	for _, dev := range devices {
		// Avoid duplicate device IDs.
		id := string(append([]byte(nil), dev.ID[:]...))
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		name := dev.Name()
		if name == "" {
			name = hex.EncodeToString(dev.ID[:])
		}
		res = append(res, Device{
			ID:      id,
			Name:    name,
			Default: dev.IsDefault == 1,
		})
	}

	return indexDevices(res), nil
}

func (mb *malgoBackend) OpenStream(dev Device, params StreamParams, data DataFunc, state StateFunc) (Stream, error) {
	if params.Format != Float32LE {
		return nil, fmt.Errorf("unsupported sample format %d", params.Format)
	}

	var malgoDeviceID malgo.DeviceID
	copy(malgoDeviceID[:], dev.ID)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.DeviceID = malgoDeviceID.Pointer()
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(params.Channels)
	deviceConfig.SampleRate = uint32(params.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(params.LatencyFrames)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, frameCount uint32) {
			data(pInputSamples, int(frameCount))
		},
		// Called on explicit stop and when the device goes away.
		Stop: func() {
			state(StateStopped)
		},
	}

	device, err := malgo.InitDevice(mb.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, err
	}
	return &malgoStream{
		device:        device,
		state:         state,
		latencyFrames: params.LatencyFrames,
	}, nil
}

func (mb *malgoBackend) Close() error {
	if err := mb.malgoCtx.Uninit(); err != nil {
		return err
	}
	mb.malgoCtx.Free()
	return nil
}

type malgoStream struct {
	device        *malgo.Device
	state         StateFunc
	latencyFrames int
}

func (s *malgoStream) Start() error {
	if err := s.device.Start(); err != nil {
		return err
	}
	s.state(StateStarted)
	return nil
}

func (s *malgoStream) Stop() error {
	return s.device.Stop()
}

// Latency reports the requested period size; miniaudio does not expose the
// negotiated one through malgo.
func (s *malgoStream) Latency() (int, error) {
	return s.latencyFrames, nil
}

func (s *malgoStream) Close() error {
	s.device.Uninit()
	return nil
}
