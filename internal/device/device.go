package device

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gen2brain/malgo"
)

// DefaultSampleRate is used when a device reports no usable format.
const DefaultSampleRate = 48000

// DefaultBlockFrames is the capture block size requested from the
// hardware for callback delivery.
const DefaultBlockFrames = 4096

// DataCallback receives one interleaved sample block per delivery. It
// runs on the device's audio thread: the samples slice is only valid
// for the duration of the call and the callback must not block,
// allocate, or log.
type DataCallback func(samples []byte, frames int)

// StreamConfig describes the capture stream to open.
type StreamConfig struct {
	Format      malgo.FormatType
	Channels    int
	SampleRate  int
	BlockFrames int
	DeviceID    *malgo.DeviceID // nil selects the system default
}

// Stream is a capture stream bound to one hardware input.
//
// Open registers the data callback and allocates the underlying device
// without starting delivery; Start begins it. The split exists so a
// caller can finish preparing its sink between the two.
type Stream interface {
	// Open allocates the underlying device and registers the data callback.
	Open(ctx context.Context, onData DataCallback) error

	// Start starts buffer delivery. No-op if already started.
	Start(ctx context.Context) error

	// Stop halts buffer delivery. After Stop returns no further
	// callbacks fire. No-op if the device was never opened.
	Stop(ctx context.Context) error

	// IsStarted returns whether the stream is currently delivering.
	IsStarted() bool

	// Dealloc releases the underlying device and frees resources.
	Dealloc(ctx context.Context)
}

type stream struct {
	conf *StreamConfig

	mgCtx    *malgo.AllocatedContext
	mgDevice *malgo.Device
}

func NewStream(conf *StreamConfig) Stream {
	return &stream{conf: conf}
}

func (s *stream) Open(ctx context.Context, onData DataCallback) error {
	if onData == nil {
		return fmt.Errorf("data callback is nil. unable to allocate device")
	}
	if s.mgDevice != nil {
		return fmt.Errorf("stream already open")
	}

	mgCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		slog.Debug("miniaudio", "msg", msg)
	})
	if err != nil {
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	devCnf := malgo.DefaultDeviceConfig(malgo.Capture)
	devCnf.Capture.Format = s.conf.Format
	devCnf.Capture.Channels = uint32(s.conf.Channels)
	devCnf.SampleRate = uint32(s.conf.SampleRate)
	if s.conf.BlockFrames > 0 {
		devCnf.PeriodSizeInFrames = uint32(s.conf.BlockFrames)
	}
	if s.conf.DeviceID != nil {
		devCnf.Capture.DeviceID = s.conf.DeviceID.Pointer()
	}

	callBacks := malgo.DeviceCallbacks{
		Data: func(_, samples []byte, frameCount uint32) {
			onData(samples, int(frameCount))
		},
	}

	mgDevice, err := malgo.InitDevice(mgCtx.Context, devCnf, callBacks)
	if err != nil {
		uninitializeContext(mgCtx)
		return fmt.Errorf("failed to initialize malgo device: %w", err)
	}

	s.mgCtx = mgCtx
	s.mgDevice = mgDevice

	return nil
}

func (s *stream) Start(ctx context.Context) error {
	if s.mgDevice == nil {
		return fmt.Errorf("device nil. have you Open()ed the stream?")
	}

	if s.mgDevice.IsStarted() {
		// noop
		return nil
	}

	if err := s.mgDevice.Start(); err != nil {
		return fmt.Errorf("failed to start malgo device: %w", err)
	}

	return nil
}

func (s *stream) Stop(ctx context.Context) error {
	if s.mgDevice == nil {
		// noop
		return nil
	}

	if err := s.mgDevice.Stop(); err != nil {
		return fmt.Errorf("failed to stop malgo device: %w", err)
	}

	return nil
}

func (s *stream) IsStarted() bool {
	if s.mgDevice == nil {
		return false
	}

	return s.mgDevice.IsStarted()
}

func (s *stream) Dealloc(ctx context.Context) {
	if s.mgDevice == nil {
		return
	}

	s.mgDevice.Uninit()
	uninitializeContext(s.mgCtx)
	s.mgDevice = nil
	s.mgCtx = nil
}

func uninitializeContext(deviceCtx *malgo.AllocatedContext) {
	if deviceCtx == nil {
		return
	}

	if err := deviceCtx.Uninit(); err != nil {
		slog.Error("failed to uninitialize malgo context", "error", err)
	}
	deviceCtx.Free()
}
