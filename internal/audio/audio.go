package audio

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Backend is an opened audio I/O context. It enumerates input devices and
// opens capture streams on them.
type Backend interface {
	Name() string
	InputDevices() ([]Device, error)
	OpenStream(dev Device, params StreamParams, data DataFunc, state StateFunc) (Stream, error)
	Close() error
}

// Stream is a capture stream opened by a Backend. Once Stop returns the
// backend delivers no further data callbacks.
type Stream interface {
	Start() error
	Stop() error
	Latency() (int, error)
	Close() error
}

// DataFunc receives one input buffer of interleaved little-endian samples
// from the backend's realtime thread. It returns the number of frames
// consumed.
type DataFunc func(input []byte, frames int) int

// StateFunc receives stream state notifications.
type StateFunc func(state StreamState)

// StreamState is an advisory stream state reported by a backend.
type StreamState int

const (
	StateStarted StreamState = iota
	StateStopped
	StateDrained
	StateError
)

func (s StreamState) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateDrained:
		return "drained"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("StreamState(%d)", int(s))
}

// SampleFormat is the sample encoding of a stream.
type SampleFormat int

const (
	// Float32LE is interleaved little-endian IEEE 754 float32.
	Float32LE SampleFormat = iota
)

// BytesPerSample returns the size of one sample in bytes.
func (f SampleFormat) BytesPerSample() int {
	return 4
}

// StreamParams describes the stream a caller asks a backend to open.
type StreamParams struct {
	Format        SampleFormat
	SampleRate    int
	Channels      int
	LatencyFrames int
}

// Device represents an audio input device in one enumeration snapshot.
// Index is only meaningful until the next enumeration.
type Device struct {
	ID      string
	Name    string
	Index   int
	Default bool
}

// Opener opens a backend context.
type Opener func(log zerolog.Logger) (Backend, error)

var (
	registryMu sync.Mutex
	registry   = map[string]Opener{}
)

// ErrUnknownBackend is returned by Open for names nothing registered.
var ErrUnknownBackend = errors.New("unknown audio backend")

// Register makes a backend available under name. It is called from init
// functions of the backend implementations.
func Register(name string, open Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = open
}

// Backends returns the names of the compiled-in backends.
func Backends() []string {
	registryMu.Lock()
	defer registryMu.Unlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// preferredBackends lists backends in the order DefaultBackend tries them.
var preferredBackends = []string{"malgo", "portaudio", "synth"}

// DefaultBackend returns the name of the preferred compiled-in backend.
func DefaultBackend() string {
	registryMu.Lock()
	defer registryMu.Unlock()

	for _, name := range preferredBackends {
		if _, ok := registry[name]; ok {
			return name
		}
	}
	return "synth"
}

// Open opens the backend registered under name. An empty name selects
// DefaultBackend.
func Open(name string, log zerolog.Logger) (Backend, error) {
	if name == "" {
		name = DefaultBackend()
	}

	registryMu.Lock()
	open, ok := registry[name]
	registryMu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, Backends())
	}
	return open(log.With().Str("backend", name).Logger())
}

// indexDevices assigns snapshot ordinals and fills in missing names.
func indexDevices(devices []Device) []Device {
	for i := range devices {
		devices[i].Index = i
		if devices[i].Name == "" {
			devices[i].Name = devices[i].ID
		}
	}
	return devices
}
