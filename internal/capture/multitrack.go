package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/tapehead/tapehead/internal/device"
	"github.com/tapehead/tapehead/internal/dsp"
	"github.com/tapehead/tapehead/internal/wavfile"
)

const (
	// blockPoolSize bounds both the free list and the write queue.
	blockPoolSize = 8

	// appendFailureLogEvery rate-limits write failure logging: the
	// first failure is logged, then every Nth after it.
	appendFailureLogEvery = 100
)

// block is one planar capture block cycling between the free list and
// the write queue. All blocks are allocated up front so the callback
// path never allocates.
type block struct {
	planes [][]float32
	frames int
}

// MultichannelConfig sizes the multichannel backend.
type MultichannelConfig struct {
	// SampleRate is the negotiated device rate in Hz.
	SampleRate int

	// Channels is the negotiated channel count.
	Channels int

	// BlockFrames is the capture block size in frames
	// (default: device.DefaultBlockFrames).
	BlockFrames int
}

// Validate returns an error if the config is invalid.
func (c MultichannelConfig) Validate() error {
	if c.SampleRate <= 0 {
		return errors.New("sample rate must be positive")
	}

	if c.Channels <= 0 {
		return errors.New("channel count must be positive")
	}

	return nil
}

// WithDefaults returns a config with default values applied to zero fields.
func (c MultichannelConfig) WithDefaults() MultichannelConfig {
	if c.BlockFrames == 0 {
		c.BlockFrames = device.DefaultBlockFrames
	}

	return c
}

// MultichannelBackend records every input channel to a raw float WAV
// container. Each delivered buffer is deinterleaved into a planar
// block, run through the channel processor under the current snapshot
// and handed to the writer goroutine with a non-blocking send. Block
// exhaustion or a full queue drops the buffer and bumps a counter,
// never blocking the audio thread.
//
// The output writer is wrapped, not owned: the backend finalizes the
// container on Stop but closing the underlying file is the caller's
// job, as is releasing the stream.
type MultichannelBackend struct {
	config MultichannelConfig
	stream device.Stream
	out    io.WriteSeeker

	state atomic.Pointer[dsp.ChannelState]

	mu      sync.Mutex
	started bool

	sink       *wavfile.Writer
	free       chan *block
	writeQ     chan *block
	quit       chan struct{}
	writerDone chan struct{}

	peaks          []atomic.Uint32
	framesWritten  atomic.Int64
	dropped        atomic.Int64
	appendFailures atomic.Int64

	accepting atomic.Bool
}

// NewMultichannelBackend prepares a multichannel recording into out.
// The stream must be configured for F32 capture matching the config's
// rate and channel count.
func NewMultichannelBackend(
	config MultichannelConfig,
	stream device.Stream,
	out io.WriteSeeker,
) (*MultichannelBackend, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid multichannel config: %w", err)
	}

	b := &MultichannelBackend{
		config: config,
		stream: stream,
		out:    out,
		peaks:  make([]atomic.Uint32, config.Channels),
	}
	b.state.Store(dsp.NewChannelState(config.Channels))

	return b, nil
}

// UpdateChannelState publishes a new mute/gain snapshot to the
// callback path. The snapshot must not be mutated after this call.
func (b *MultichannelBackend) UpdateChannelState(state *dsp.ChannelState) {
	if state == nil {
		return
	}
	b.state.Store(state)
}

// ChannelState returns the snapshot currently applied to captured
// buffers.
func (b *MultichannelBackend) ChannelState() *dsp.ChannelState {
	return b.state.Load()
}

// Start arms the backend (device opened, sink attached, block pool
// built) and then begins the stream. Starting an already started
// backend is rejected.
func (b *MultichannelBackend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return ErrAlreadyStarted
	}

	if err := b.stream.Open(ctx, b.onData); err != nil {
		return fmt.Errorf("failed to open capture stream: %w", err)
	}

	sink, err := wavfile.NewWriter(b.out, b.config.SampleRate, b.config.Channels)
	if err != nil {
		b.stream.Dealloc(ctx)
		return fmt.Errorf("failed to prepare wav container: %w", err)
	}

	b.sink = sink
	b.free = make(chan *block, blockPoolSize)
	for i := 0; i < blockPoolSize; i++ {
		planes := make([][]float32, b.config.Channels)
		for ch := range planes {
			planes[ch] = make([]float32, b.config.BlockFrames)
		}
		b.free <- &block{planes: planes}
	}
	b.writeQ = make(chan *block, blockPoolSize)
	b.quit = make(chan struct{})
	b.writerDone = make(chan struct{})

	go b.writer()

	// Accept before the stream starts so the first blocks are kept.
	b.accepting.Store(true)

	if err := b.stream.Start(ctx); err != nil {
		b.accepting.Store(false)
		close(b.quit)
		<-b.writerDone
		b.stream.Dealloc(ctx)
		return fmt.Errorf("failed to start capture stream: %w", err)
	}

	b.started = true

	return nil
}

// Stop halts the stream, drains the write queue and finalizes the
// container header. Safe to call when the backend was never started
// and safe to call twice.
func (b *MultichannelBackend) Stop(ctx context.Context) error {
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
	<-b.writerDone

	if err := b.sink.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to finalize wav container: %w", err)
	}

	b.started = false

	return firstErr
}

// FramesWritten returns the number of frames appended to the container.
func (b *MultichannelBackend) FramesWritten() int64 {
	return b.framesWritten.Load()
}

// Dropped returns the number of capture blocks dropped because the
// free list was exhausted or the write queue was full.
func (b *MultichannelBackend) Dropped() int64 {
	return b.dropped.Load()
}

// AppendFailures returns the number of blocks lost to container write
// errors.
func (b *MultichannelBackend) AppendFailures() int64 {
	return b.appendFailures.Load()
}

// PeakLevels returns the post-processing peak of the most recent block
// per channel.
func (b *MultichannelBackend) PeakLevels() []float32 {
	levels := make([]float32, len(b.peaks))
	for ch := range b.peaks {
		levels[ch] = math.Float32frombits(b.peaks[ch].Load())
	}

	return levels
}

// onData runs on the device's audio thread: no allocation, no locks,
// no logging. The delivered buffer is deinterleaved into a pooled
// planar block, processed under the current snapshot and enqueued for
// the writer with a non-blocking send.
func (b *MultichannelBackend) onData(samples []byte, frames int) {
	if !b.accepting.Load() {
		return
	}

	var blk *block
	select {
	case blk = <-b.free:
	default:
		b.dropped.Add(1)
		return
	}

	n := dsp.DeinterleaveF32LE(samples, blk.planes, frames)
	blk.frames = n

	state := b.state.Load()
	dsp.Process(blk.planes, n, state.Enabled, state.Gains)

	for ch := 0; ch < len(blk.planes) && ch < len(b.peaks); ch++ {
		b.peaks[ch].Store(math.Float32bits(dsp.PeakAbs(blk.planes[ch], n)))
	}

	select {
	case b.writeQ <- blk:
	default:
		b.dropped.Add(1)
		b.recycle(blk)
	}
}

// writer appends queued blocks to the container. An append failure
// drops the block and keeps recording; logging is rate-limited so a
// persistently failing disk cannot flood the log.
func (b *MultichannelBackend) writer() {
	defer close(b.writerDone)

	for {
		select {
		case blk := <-b.writeQ:
			b.append(blk)
		case <-b.quit:
			for {
				select {
				case blk := <-b.writeQ:
					b.append(blk)
				default:
					return
				}
			}
		}
	}
}

func (b *MultichannelBackend) append(blk *block) {
	defer b.recycle(blk)

	if err := b.sink.WriteBlock(blk.planes, blk.frames); err != nil {
		failures := b.appendFailures.Add(1)
		if failures == 1 || failures%appendFailureLogEvery == 0 {
			slog.Warn("dropping capture block, failed to append to container",
				"error", err,
				"failures", failures)
		}
		return
	}

	b.framesWritten.Add(int64(blk.frames))
}

func (b *MultichannelBackend) recycle(blk *block) {
	select {
	case b.free <- blk:
	default:
	}
}
