package console

import (
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/petems/audiocapture/internal/capture"
)

// Level is the signal level of one captured batch.
type Level struct {
	Peak float64
	RMS  float64
}

// DBFS returns the peak level in dB relative to full scale.
func (l Level) DBFS() float64 {
	if l.Peak <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(l.Peak)
}

// Measure returns the peak and RMS of samples.
func Measure(samples []float32) Level {
	if len(samples) == 0 {
		return Level{}
	}

	var peak, sum float64
	for _, s := range samples {
		v := float64(s)
		if a := math.Abs(v); a > peak {
			peak = a
		}
		sum += v * v
	}
	return Level{Peak: peak, RMS: math.Sqrt(sum / float64(len(samples)))}
}

// Meter is a capture callback that logs the signal level every N batches.
type Meter struct {
	every int
	log   zerolog.Logger

	mu    sync.Mutex
	calls int
	last  Level
}

// NewMeter returns a Meter logging every n callbacks. n <= 0 only tracks
// the level without logging.
func NewMeter(every int, log zerolog.Logger) *Meter {
	return &Meter{every: every, log: log}
}

// Observe is a capture.FrameFunc.
func (m *Meter) Observe(b capture.Batch) {
	level := Measure(b.Samples)

	m.mu.Lock()
	m.calls++
	m.last = level
	calls := m.calls
	m.mu.Unlock()

	if m.every > 0 && calls%m.every == 0 {
		m.log.Info().
			Int("callback", calls).
			Float64("peak", level.Peak).
			Float64("rms", level.RMS).
			Int("frames", b.Frames).
			Msg("Audio level")
	}
}

// Last returns the level of the most recent batch and the number of
// batches observed since the last Reset.
func (m *Meter) Last() (Level, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.calls
}

func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = 0
	m.last = Level{}
}
