package capture

import "sync"

// Recording accumulates the raw little-endian float32 samples delivered
// since the last successful Start.
type Recording struct {
	mu  sync.Mutex
	buf []byte
}

// Append adds one delivery worth of raw sample bytes.
func (r *Recording) Append(b []byte) {
	r.mu.Lock()
	r.buf = append(r.buf, b...)
	r.mu.Unlock()
}

// Reset empties the recording, keeping its storage.
func (r *Recording) Reset() {
	r.mu.Lock()
	r.buf = r.buf[:0]
	r.mu.Unlock()
}

// Len returns the recorded size in bytes.
func (r *Recording) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Frames returns the number of whole frames recorded for the given channel
// count.
func (r *Recording) Frames(channels int) int {
	if channels <= 0 {
		return 0
	}
	return r.Len() / (bytesPerSample * channels)
}

// Snapshot returns a copy of the recorded bytes.
func (r *Recording) Snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.buf...)
}
