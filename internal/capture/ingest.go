package capture

import (
	"github.com/petems/audiocapture/internal/audio"
)

// Batch is one delivery of captured audio. Samples are interleaved by
// channel. The session does not keep the batch after the callback returns.
type Batch struct {
	Samples    []float32
	Frames     int
	SampleRate int
	Channels   int
}

// FrameFunc consumes captured batches. It runs on the backend's realtime
// thread and must return quickly. It may call the session's query methods
// but must not call SetCallback, Stop or Teardown: those wait for the
// running callback to return.
type FrameFunc func(b Batch)

// SetCallback replaces the consumer callback. A delivery in progress
// finishes with the previous callback before the new one is installed.
func (s *Session) SetCallback(fn FrameFunc) {
	s.cbMu.Lock()
	s.callback = fn
	s.cbMu.Unlock()
}

// ingest is the backend data callback. It never fails: unusable input is
// dropped and reported as zero frames consumed.
func (s *Session) ingest(input []byte, frames int) int {
	if s == nil {
		return 0
	}
	if input == nil || frames <= 0 {
		s.dropped.Add(1)
		return 0
	}

	channels := int(s.channels.Load())
	if channels <= 0 {
		s.dropped.Add(1)
		return 0
	}
	if avail := len(input) / (bytesPerSample * channels); frames > avail {
		frames = avail
	}
	if frames == 0 {
		s.dropped.Add(1)
		return 0
	}

	raw := input[:frames*channels*bytesPerSample]
	batch := Batch{
		Samples:    audio.DecodeFloat32LE(make([]float32, 0, frames*channels), raw),
		Frames:     frames,
		SampleRate: int(s.sampleRate.Load()),
		Channels:   channels,
	}

	s.recording.Append(raw)
	s.deliver(batch)
	return frames
}

func (s *Session) deliver(batch Batch) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	defer func() {
		// A panicking consumer must not unwind into the backend.
		if r := recover(); r != nil {
			s.dropped.Add(1)
		}
	}()

	if s.callback != nil {
		s.callback(batch)
	}
}

func (s *Session) handleState(st audio.StreamState) {
	log := s.log.With().Str("state", st.String()).Logger()
	switch st {
	case audio.StateStarted:
		log.Debug().Msg("Stream started")
	case audio.StateStopped:
		log.Debug().Msg("Stream stopped")
		s.capturing.Store(false)
	case audio.StateDrained:
		log.Debug().Msg("Stream drained")
	case audio.StateError:
		log.Error().Msg("Stream error")
		s.capturing.Store(false)
	}
}
