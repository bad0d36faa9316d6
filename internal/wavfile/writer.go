package wavfile

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// FormatIEEEFloat is the RIFF format tag for floating-point samples.
	FormatIEEEFloat = 3

	// BitDepth is fixed at 32-bit float samples.
	BitDepth = 32
)

// ErrClosed is returned for appends after Close.
var ErrClosed = errors.New("wav writer closed")

// Writer appends planar float32 sample blocks to a multichannel
// IEEE-float WAV container. Samples are interleaved frame-major at the
// container boundary; the planar layout upstream is untouched.
//
// Close patches the RIFF header sizes so the container is valid after
// any number of appends. The underlying writer is owned by the caller
// and is never closed here.
type Writer struct {
	enc    *wav.Encoder
	format *audio.Format
	frames int64
	closed bool
}

// NewWriter prepares a float WAV container on out at the given sample
// rate and channel count. Nothing is written until the first append.
func NewWriter(out io.WriteSeeker, sampleRate, channels int) (*Writer, error) {
	if out == nil {
		return nil, errors.New("output writer cannot be nil")
	}
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	if channels <= 0 {
		return nil, errors.New("channel count must be positive")
	}

	return &Writer{
		enc: wav.NewEncoder(out, sampleRate, BitDepth, channels, FormatIEEEFloat),
		format: &audio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
	}, nil
}

// Format returns the container's PCM format descriptor.
func (w *Writer) Format() *audio.Format {
	return w.format
}

// WriteBlock appends frames frames from the planar block. The block
// must carry at least the writer's channel count of planes; a plane
// shorter than frames is padded with silence for the missing tail.
func (w *Writer) WriteBlock(planar [][]float32, frames int) error {
	if w.closed {
		return ErrClosed
	}
	if len(planar) < w.format.NumChannels {
		return fmt.Errorf("block has %d planes, container expects %d", len(planar), w.format.NumChannels)
	}

	for f := 0; f < frames; f++ {
		for ch := 0; ch < w.format.NumChannels; ch++ {
			var sample float32
			if plane := planar[ch]; f < len(plane) {
				sample = plane[f]
			}
			if err := w.enc.WriteFrame(sample); err != nil {
				return fmt.Errorf("failed to append sample frame: %w", err)
			}
		}
	}

	w.frames += int64(frames)

	return nil
}

// Frames returns the number of frames appended so far.
func (w *Writer) Frames() int64 {
	return w.frames
}

// Bytes returns the number of container bytes written so far,
// including headers.
func (w *Writer) Bytes() int64 {
	return int64(w.enc.WrittenBytes)
}

// Close finalizes the container header. A writer that never received
// audio is closed with a single silent frame so the file stays
// openable. Safe to call more than once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}

	if w.frames == 0 {
		silence := make([][]float32, w.format.NumChannels)
		for ch := range silence {
			silence[ch] = []float32{0}
		}
		if err := w.WriteBlock(silence, 1); err != nil {
			return fmt.Errorf("failed to finalize empty container: %w", err)
		}
	}

	w.closed = true

	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav container: %w", err)
	}

	return nil
}
