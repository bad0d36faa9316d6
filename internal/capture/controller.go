package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/tapehead/tapehead/internal/device"
	"github.com/tapehead/tapehead/internal/dsp"
	"github.com/tapehead/tapehead/internal/workdir"
)

// Config is the transient per-recording configuration captured at
// start time. Enabled and Gains are index-aligned with hardware
// channel order; entries beyond the negotiated channel count are
// ignored, missing entries default to enabled at unity gain.
type Config struct {
	Multitrack bool
	Enabled    []bool
	Gains      []float32
}

// Status is a point-in-time view of the controller for status
// surfaces.
type Status struct {
	Recording      bool
	Mode           Mode
	ArtifactPath   string
	Device         string
	ChannelCount   int
	Peaks          []float32
	BytesCaptured  int64
	FramesWritten  int64
	DroppedBlocks  int64
	AppendFailures int64
}

// ApproxBytes estimates the payload captured so far: raw PCM bytes in
// simple mode, appended sample bytes in multichannel mode.
func (s Status) ApproxBytes() int64 {
	if s.Mode == ModeMultichannel {
		return s.FramesWritten * int64(s.ChannelCount) * 4
	}

	return s.BytesCaptured
}

// ControllerConfig configures the recording lifecycle controller.
type ControllerConfig struct {
	// RecordingsDir is where artifacts are created. Created on demand.
	RecordingsDir string

	// StreamFactory builds capture streams. Defaults to
	// device.NewStream; tests substitute fakes.
	StreamFactory func(conf *device.StreamConfig) device.Stream
}

// Controller is the recording lifecycle state machine: Idle or
// Recording, one recording at a time. It negotiates the device on
// every start, activates the backend matching the requested mode and
// owns the output file handle for multichannel recordings.
//
// The backend chosen at start time stays active until Stop regardless
// of configuration changes made mid-recording.
type Controller struct {
	negotiator    *device.Negotiator
	recordingsDir string

	// newStream builds capture streams; swapped in tests.
	newStream func(conf *device.StreamConfig) device.Stream

	recording atomic.Bool

	mu           sync.Mutex
	mode         Mode
	artifactPath string
	deviceName   string
	channelCount int
	stream       device.Stream
	file         *os.File
	simple       *SimpleBackend
	multi        *MultichannelBackend
}

// NewController creates an idle controller.
func NewController(conf ControllerConfig, negotiator *device.Negotiator) *Controller {
	newStream := conf.StreamFactory
	if newStream == nil {
		newStream = device.NewStream
	}

	return &Controller{
		negotiator:    negotiator,
		recordingsDir: conf.RecordingsDir,
		newStream:     newStream,
	}
}

// IsRecording reports whether a recording is active. The flag flips
// exactly at the Idle to Recording boundaries.
func (c *Controller) IsRecording() bool {
	return c.recording.Load()
}

// Start negotiates the capture input, activates the backend for the
// requested mode and transitions to Recording. It returns the artifact
// path. Starting while a recording is active returns
// ErrRecordingActive; a failed start leaves no artifact behind and the
// controller stays Idle.
func (c *Controller) Start(ctx context.Context, conf Config) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording.Load() {
		return "", ErrRecordingActive
	}

	desc, count, err := c.negotiator.Negotiate(ctx, conf.Multitrack)
	if err != nil {
		return "", fmt.Errorf("failed to negotiate capture input: %w", err)
	}

	if err := workdir.Prep(c.recordingsDir); err != nil {
		return "", err
	}

	mode := ModeFor(conf.Multitrack)
	path := workdir.ArtifactPath(c.recordingsDir, conf.Multitrack, time.Now())

	switch mode {
	case ModeMultichannel:
		err = c.startMultichannel(ctx, desc, count, conf, path)
	default:
		err = c.startSimple(ctx, desc, path)
	}
	if err != nil {
		return "", err
	}

	c.mode = mode
	c.artifactPath = path
	c.deviceName = desc.Name
	c.channelCount = count
	c.recording.Store(true)

	slog.Info("recording started",
		"mode", mode.String(),
		"device", desc.Name,
		"channels", count,
		"path", path)

	return path, nil
}

// Stop tears down the active recording: backend stop first so the
// container is finalized and the file handle closed, then device
// teardown, then the state flip. Stop while Idle is a no-op and a
// second Stop in a row changes nothing.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.recording.Load() {
		return nil
	}

	var firstErr error

	switch {
	case c.multi != nil:
		if err := c.multi.Stop(ctx); err != nil {
			firstErr = err
		}
		if err := c.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close output file: %w", err)
		}
		c.file = nil
	case c.simple != nil:
		if err := c.simple.Stop(ctx); err != nil {
			firstErr = err
		}
	}

	if c.stream != nil {
		c.stream.Dealloc(ctx)
		c.stream = nil
	}
	c.simple = nil
	c.multi = nil

	c.recording.Store(false)

	slog.Info("recording stopped", "path", c.artifactPath)

	return firstErr
}

// UpdateChannelState pushes a new mute/gain snapshot into an active
// multichannel backend. A no-op in simple mode or while Idle.
func (c *Controller) UpdateChannelState(state *dsp.ChannelState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.multi != nil {
		c.multi.UpdateChannelState(state)
	}
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		Recording:    c.recording.Load(),
		Mode:         c.mode,
		ArtifactPath: c.artifactPath,
		Device:       c.deviceName,
		ChannelCount: c.channelCount,
	}

	if c.multi != nil {
		s.Peaks = c.multi.PeakLevels()
		s.FramesWritten = c.multi.FramesWritten()
		s.DroppedBlocks = c.multi.Dropped()
		s.AppendFailures = c.multi.AppendFailures()
	}
	if c.simple != nil {
		s.BytesCaptured = c.simple.BytesCaptured()
		s.DroppedBlocks = c.simple.Dropped()
	}

	return s
}

// RecentSamples returns recent mono samples from an active simple
// recording, or nil.
func (c *Controller) RecentSamples(n int) []int16 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.simple == nil {
		return nil
	}

	return c.simple.RecentSamples(n)
}

func (c *Controller) startSimple(ctx context.Context, desc device.Descriptor, path string) error {
	stream := c.newStream(&device.StreamConfig{
		Format:     malgo.FormatS16,
		Channels:   1,
		SampleRate: SimpleSampleRate,
		DeviceID:   &desc.ID,
	})

	backend := NewSimpleBackend(stream, path, SimpleSampleRate)
	if err := backend.Start(ctx); err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}

	c.stream = stream
	c.simple = backend

	return nil
}

func (c *Controller) startMultichannel(
	ctx context.Context,
	desc device.Descriptor,
	count int,
	conf Config,
	path string,
) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", path, err)
	}

	stream := c.newStream(&device.StreamConfig{
		Format:      malgo.FormatF32,
		Channels:    count,
		SampleRate:  desc.SampleRate,
		BlockFrames: device.DefaultBlockFrames,
		DeviceID:    &desc.ID,
	})

	backend, err := NewMultichannelBackend(MultichannelConfig{
		SampleRate: desc.SampleRate,
		Channels:   count,
	}, stream, file)
	if err != nil {
		c.removePartial(file, path)
		return err
	}

	state := dsp.NewChannelState(count)
	copy(state.Enabled, conf.Enabled)
	copy(state.Gains, conf.Gains)
	backend.UpdateChannelState(state)

	if err := backend.Start(ctx); err != nil {
		c.removePartial(file, path)
		return fmt.Errorf("failed to start recording: %w", err)
	}

	c.stream = stream
	c.file = file
	c.multi = backend

	return nil
}

func (c *Controller) removePartial(file *os.File, path string) {
	if err := file.Close(); err != nil {
		slog.Warn("failed to close partial recording", "path", path, "error", err)
	}
	if err := os.Remove(path); err != nil {
		slog.Warn("failed to remove partial recording", "path", path, "error", err)
	}
}
