package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/tapehead/tapehead/internal/device"
	"github.com/tapehead/tapehead/internal/dsp"
	"github.com/tapehead/tapehead/internal/mp3"
)

const (
	// SimpleSampleRate is the fixed encoder rate for simple recordings.
	SimpleSampleRate = 44100

	// simpleRingCapacity keeps roughly one second of mono samples for
	// level readout.
	simpleRingCapacity = SimpleSampleRate

	packetQueueSize = 64
)

// SimpleBackend records one compressed mono track: packets delivered
// by the capture stream are pumped straight into the streaming MP3
// encoder. No per-buffer processing hook exists in this mode.
//
// The backend owns its output file. The stream is opened by Start and
// halted by Stop; releasing the stream after Stop is the caller's job.
// A session that captured zero packets still finalizes to a valid,
// openable container.
type SimpleBackend struct {
	stream     device.Stream
	path       string
	sampleRate int

	mu      sync.Mutex
	started bool

	file         *os.File
	encoder      *mp3.StreamingEncoder
	encoderInput chan []byte

	dataC    chan []byte
	quit     chan struct{}
	pumpDone chan struct{}

	ring          *dsp.SampleRing[int16]
	bytesCaptured atomic.Int64
	dropped       atomic.Int64

	accepting atomic.Bool
}

// NewSimpleBackend prepares a simple recording to the given path. The
// stream must be configured for mono S16 capture at sampleRate.
func NewSimpleBackend(stream device.Stream, path string, sampleRate int) *SimpleBackend {
	return &SimpleBackend{
		stream:     stream,
		path:       path,
		sampleRate: sampleRate,
		ring:       dsp.NewSampleRing[int16](simpleRingCapacity),
	}
}

// Start creates the output file, opens the capture stream and begins
// encoding. A failed start removes the partial file and leaves the
// stream released.
func (b *SimpleBackend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	file, err := os.Create(b.path)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", b.path, err)
	}

	if err := b.stream.Open(ctx, b.onData); err != nil {
		b.discard(file)
		return fmt.Errorf("failed to open capture stream: %w", err)
	}

	encoderInput := make(chan []byte, packetQueueSize)
	encoderConfig := mp3.EncoderConfig{
		SampleRate: b.sampleRate,
		Channels:   1,
	}.WithDefaults()

	encoder, err := mp3.NewStreamingEncoder(encoderConfig, encoderInput, file)
	if err != nil {
		b.stream.Dealloc(ctx)
		b.discard(file)
		return fmt.Errorf("failed to create MP3 encoder: %w", err)
	}

	if err := encoder.Start(ctx); err != nil {
		b.stream.Dealloc(ctx)
		b.discard(file)
		return fmt.Errorf("failed to start MP3 encoder: %w", err)
	}

	b.file = file
	b.encoder = encoder
	b.encoderInput = encoderInput
	b.dataC = make(chan []byte, packetQueueSize)
	b.quit = make(chan struct{})
	b.pumpDone = make(chan struct{})

	go b.pump()

	// Accept before the stream starts so the first buffers are kept.
	b.accepting.Store(true)

	if err := b.stream.Start(ctx); err != nil {
		b.accepting.Store(false)
		close(b.quit)
		<-b.pumpDone
		_ = encoder.Wait()
		b.stream.Dealloc(ctx)
		b.discard(file)
		b.file = nil
		b.encoder = nil
		return fmt.Errorf("failed to start capture stream: %w", err)
	}

	b.started = true

	return nil
}

// Stop halts the stream, drains pending packets, finalizes the MP3
// container and closes the output file. Safe to call when the backend
// was never started and safe to call twice.
func (b *SimpleBackend) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return nil
	}

	b.accepting.Store(false)

	var firstErr error
	if err := b.stream.Stop(ctx); err != nil {
		firstErr = fmt.Errorf("failed to stop capture stream: %w", err)
	}

	close(b.quit)
	<-b.pumpDone

	if err := b.encoder.Wait(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to finalize MP3 stream: %w", err)
	}

	if err := b.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close output file: %w", err)
	}

	b.started = false

	return firstErr
}

// BytesCaptured returns the raw PCM byte count captured so far.
func (b *SimpleBackend) BytesCaptured() int64 {
	return b.bytesCaptured.Load()
}

// Dropped returns the number of packets dropped on the callback path.
func (b *SimpleBackend) Dropped() int64 {
	return b.dropped.Load()
}

// RecentSamples returns up to n of the most recent captured samples in
// chronological order, for level and waveform readout.
func (b *SimpleBackend) RecentSamples(n int) []int16 {
	return b.ring.ReadSamples(n)
}

// onData runs on the device's audio thread. The samples slice is only
// valid for the duration of the call, so it is copied before crossing
// goroutines. The send never blocks: a full queue drops the packet.
func (b *SimpleBackend) onData(samples []byte, frames int) {
	if !b.accepting.Load() {
		return
	}

	packet := make([]byte, len(samples))
	copy(packet, samples)

	select {
	case b.dataC <- packet:
	default:
		b.dropped.Add(1)
	}
}

// pump moves packets from the capture queue into the encoder and the
// level ring. It drains whatever is still queued after quit so the
// tail of the recording is not lost, then closes the encoder input.
func (b *SimpleBackend) pump() {
	defer close(b.pumpDone)
	defer close(b.encoderInput)

	for {
		select {
		case packet := <-b.dataC:
			b.consume(packet)
		case <-b.quit:
			for {
				select {
				case packet := <-b.dataC:
					b.consume(packet)
				default:
					return
				}
			}
		}
	}
}

// consume hands one packet to the encoder. The send never blocks: a
// stalled or failed encoder costs packets, not the ability to stop.
func (b *SimpleBackend) consume(packet []byte) {
	select {
	case b.encoderInput <- packet:
		b.ring.Write(dsp.BytesToInt16(packet))
		b.bytesCaptured.Add(int64(len(packet)))
	default:
		b.dropped.Add(1)
	}
}

func (b *SimpleBackend) discard(file *os.File) {
	if err := file.Close(); err != nil {
		slog.Warn("failed to close partial recording", "path", b.path, "error", err)
	}
	if err := os.Remove(b.path); err != nil {
		slog.Warn("failed to remove partial recording", "path", b.path, "error", err)
	}
}
