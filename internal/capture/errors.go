package capture

import "errors"

// Errors returned by Session operations. Returned errors wrap one of these
// together with the operation context and the underlying backend or I/O
// error, so callers check them with errors.Is.
var (
	// ErrInitialization means the backend could not be opened or has no
	// input devices.
	ErrInitialization = errors.New("audio system initialization failed")

	// ErrInvalidDevice means a device index is out of range or the device
	// list could not be read.
	ErrInvalidDevice = errors.New("invalid input device")

	// ErrInvalidState means the operation is not allowed in the current
	// lifecycle state.
	ErrInvalidState = errors.New("invalid capture state")

	// ErrStreamCreation means the backend rejected the stream parameters.
	ErrStreamCreation = errors.New("failed to create stream")

	// ErrStreamStart means the backend could not start the stream.
	ErrStreamStart = errors.New("failed to start stream")

	// ErrEmptyRecording means there is no captured audio to export.
	ErrEmptyRecording = errors.New("no audio data to save")

	// ErrEncoderInit means the output file could not be created.
	ErrEncoderInit = errors.New("failed to initialize WAV file")

	// ErrEncoderWrite means writing the PCM data failed.
	ErrEncoderWrite = errors.New("failed to write audio data")
)

var errNotInitialized = errors.New("audio system not initialized")
