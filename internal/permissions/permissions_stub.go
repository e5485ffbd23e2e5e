//go:build !darwin

package permissions

import "errors"

// ErrMicrophoneDenied is returned when capture is not authorized.
var ErrMicrophoneDenied = errors.New("microphone permission not granted")

// EnsureMicrophone is a no-op on non-macOS platforms.
func EnsureMicrophone() error {
	return nil
}
