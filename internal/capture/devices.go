package capture

import (
	"fmt"

	"github.com/petems/audiocapture/internal/audio"
)

// ListInputDevices enumerates the backend's input devices. It returns an
// empty list when the session is not initialized or enumeration fails. The
// indices are only valid until the next enumeration.
func (s *Session) ListInputDevices() []audio.Device {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()

	if !s.initialized.Load() || s.backend == nil {
		return nil
	}

	devices, err := s.backend.InputDevices()
	if err != nil {
		s.log.Error().Err(err).Msg("Error enumerating devices")
		return nil
	}
	return devices
}

// SelectDevice re-enumerates and selects the input device at index for the
// next Start. Changing the device while capturing is rejected.
func (s *Session) SelectDevice(index int) error {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	return s.selectDeviceLocked(index)
}

func (s *Session) selectDeviceLocked(index int) error {
	if !s.initialized.Load() || s.backend == nil {
		return fmt.Errorf("%w: select device %d: %w", ErrInvalidState, index, errNotInitialized)
	}
	if s.capturing.Load() || s.stopping.Load() {
		return fmt.Errorf("%w: cannot change device while capturing", ErrInvalidState)
	}

	devices, err := s.backend.InputDevices()
	if err != nil {
		s.log.Error().Err(err).Msg("Error enumerating devices")
		return fmt.Errorf("%w: select device %d: %w", ErrInvalidDevice, index, err)
	}
	if index < 0 || index >= len(devices) {
		s.log.Error().Int("index", index).Int("count", len(devices)).Msg("Invalid device index")
		return fmt.Errorf("%w: index %d out of range, %d devices available",
			ErrInvalidDevice, index, len(devices))
	}

	s.device = devices[index]
	s.log.Info().Str("device", s.device.Name).Int("index", index).Msg("Input device set")
	return nil
}
