// Package wavfile writes and reads RIFF/WAVE files holding 16-bit PCM audio.
package wavfile

import (
	"errors"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// pcmFormat is the WAVE format tag for integer PCM.
const pcmFormat = 1

// Format describes the layout of the PCM data in a file.
type Format struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
}

func (f Format) validate() error {
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", f.Channels)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", f.SampleRate)
	}
	if f.BitsPerSample != 16 {
		return fmt.Errorf("unsupported bits per sample %d", f.BitsPerSample)
	}
	return nil
}

// Writer streams interleaved PCM frames into a WAVE container. The file is
// only valid after Close.
type Writer struct {
	f       *os.File
	enc     *wav.Encoder
	format  goaudio.Format
	chans   int
	frames  int
	scratch []int
}

// Create creates (or truncates) path and prepares it for PCM frames in the
// given format.
func Create(path string, format Format) (*Writer, error) {
	if err := format.validate(); err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	return &Writer{
		f:     f,
		enc:   wav.NewEncoder(f, format.SampleRate, format.BitsPerSample, format.Channels, pcmFormat),
		chans: format.Channels,
		format: goaudio.Format{
			NumChannels: format.Channels,
			SampleRate:  format.SampleRate,
		},
	}, nil
}

// WritePCMFrames writes interleaved samples and returns the number of whole
// frames written. A trailing partial frame is dropped.
func (w *Writer) WritePCMFrames(samples []int16) (int, error) {
	frames := len(samples) / w.chans
	if frames == 0 {
		return 0, nil
	}

	n := frames * w.chans
	if cap(w.scratch) < n {
		w.scratch = make([]int, n)
	}
	data := w.scratch[:n]
	for i := range data {
		data[i] = int(samples[i])
	}

	err := w.enc.Write(&goaudio.IntBuffer{
		Format:         &w.format,
		Data:           data,
		SourceBitDepth: 16,
	})
	if err != nil {
		return 0, err
	}
	w.frames += frames
	return frames, nil
}

// Frames returns the number of frames written so far.
func (w *Writer) Frames() int {
	return w.frames
}

// Close finalizes the container header and closes the file.
func (w *Writer) Close() error {
	encErr := w.enc.Close()
	syncErr := w.f.Sync()
	return errors.Join(encErr, syncErr, w.f.Close())
}

// Read decodes a 16-bit PCM WAVE file.
func Read(path string) (Format, []int16, error) {
	f, err := os.Open(path)
	if err != nil {
		return Format{}, nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Format{}, nil, fmt.Errorf("not a valid wav file: %s", path)
	}

	format := Format{
		Channels:      int(dec.NumChans),
		SampleRate:    int(dec.SampleRate),
		BitsPerSample: int(dec.BitDepth),
	}
	if dec.WavAudioFormat != pcmFormat {
		return format, nil, fmt.Errorf("unsupported wav format tag %d", dec.WavAudioFormat)
	}
	if format.BitsPerSample != 16 {
		return format, nil, fmt.Errorf("unsupported bits per sample %d", format.BitsPerSample)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return format, nil, err
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return format, samples, nil
}
