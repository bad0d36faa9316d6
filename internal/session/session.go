// Package session exposes the process-wide capture session: an
// asynchronous start/stop surface over the recording lifecycle
// controller, live channel settings and the event stream front ends
// subscribe to.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tapehead/tapehead/internal/capture"
	"github.com/tapehead/tapehead/internal/device"
	"github.com/tapehead/tapehead/internal/dsp"
	"github.com/tapehead/tapehead/pkg/channels"
)

const (
	opQueueSize    = 16
	eventQueueSize = 16

	// waveformSamples is how much recent audio the waveform control
	// reads per call.
	waveformSamples = 1024
)

// EventKind tags session events.
type EventKind string

const (
	EventRecordingStarted    EventKind = "recording_started"
	EventRecordingStopped    EventKind = "recording_stopped"
	EventError               EventKind = "error"
	EventChannelCountChanged EventKind = "channel_count_changed"
)

// Event is one entry on the session event stream. Recording events
// carry the artifact path; count-changed events carry the new count.
// Only the Idle to Recording boundaries emit recording events, never
// intermediate states.
type Event struct {
	Kind         EventKind
	ArtifactPath string
	ChannelCount int
	Err          error
}

// Status combines the controller snapshot with the session's
// configured settings.
type Status struct {
	capture.Status

	// Multitrack is the configured mode flag for the next start; the
	// embedded Mode is the mode of the active or last recording.
	Multitrack bool
	Enabled    []bool
	Gains      []float32
}

// Session is the process-wide capture session, constructed once in
// main and passed by reference. Start and stop return immediately and
// run on an internal worker goroutine; outcomes surface on the event
// stream and in the log, not as return values.
type Session struct {
	controller  *capture.Controller
	negotiator  *device.Negotiator
	broadcaster *channels.Broadcaster[Event]

	ops    chan func(ctx context.Context)
	events chan<- Event

	running atomic.Bool

	mu         sync.Mutex
	multitrack bool
	state      *dsp.ChannelState
}

// New creates a session over the given controller and negotiator.
// Subscribe front ends before calling Run.
func New(controller *capture.Controller, negotiator *device.Negotiator) *Session {
	s := &Session{
		controller:  controller,
		negotiator:  negotiator,
		broadcaster: channels.NewBroadcaster[Event](),
		ops:         make(chan func(ctx context.Context), opQueueSize),
		state:       dsp.NewChannelState(0),
	}

	negotiator.OnChannelCountChanged(s.onChannelCountChanged)

	return s
}

// Subscribe adds a non-blocking subscriber to the event stream. Must
// be called before Run.
func (s *Session) Subscribe(ch chan<- Event) error {
	if s.running.Load() {
		return errors.New("subscribers must be added before the session runs")
	}

	return s.broadcaster.Subscribe(ch)
}

// SubscribeWithTimeout adds a subscriber whose sends may block up to
// timeout. Must be called before Run.
func (s *Session) SubscribeWithTimeout(ch chan<- Event, timeout time.Duration) error {
	if s.running.Load() {
		return errors.New("subscribers must be added before the session runs")
	}

	return s.broadcaster.SubscribeWithTimeout(ch, timeout)
}

// Run starts the worker and the event broadcaster. The session runs
// until ctx is cancelled; an active recording is stopped on the way
// out.
func (s *Session) Run(ctx context.Context) error {
	if s.running.Load() {
		return errors.New("session already running")
	}

	// The session always logs its own events, which also guarantees
	// the broadcaster has a subscriber.
	logC := make(chan Event, eventQueueSize)
	if err := s.broadcaster.Subscribe(logC); err != nil {
		return fmt.Errorf("failed to attach event log: %w", err)
	}

	events, err := s.broadcaster.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to start event broadcaster: %w", err)
	}
	s.events = events

	go s.logEvents(ctx, logC)
	go s.worker(ctx)

	s.running.Store(true)

	return nil
}

// StartRecording dispatches a recording start and returns immediately.
// The configured mode and channel settings are captured at dispatch
// time; the outcome arrives as a recording_started or error event.
func (s *Session) StartRecording() {
	s.dispatch("start recording", s.startRecording)
}

// StopRecording dispatches a recording stop and returns immediately.
// Stopping an idle session does nothing.
func (s *Session) StopRecording() {
	s.dispatch("stop recording", s.stopRecording)
}

// IsRecording reports whether a recording is active.
func (s *Session) IsRecording() bool {
	return s.controller.IsRecording()
}

// Multitrack returns the configured mode flag for the next start.
func (s *Session) Multitrack() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.multitrack
}

// SetMultitrack flips the mode flag. The change applies to the next
// start; an active recording keeps its backend.
func (s *Session) SetMultitrack(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.multitrack = on
}

// SetChannelEnabled updates one channel's mute setting. An active
// multichannel recording picks the change up on its next buffer.
func (s *Session) SetChannelEnabled(index int, enabled bool) error {
	next, err := s.updateState(index, func(state *dsp.ChannelState) {
		state.Enabled[index] = enabled
	})
	if err != nil {
		return err
	}

	s.controller.UpdateChannelState(next)

	return nil
}

// SetChannelGain updates one channel's gain multiplier. 1.0 is unity;
// an active multichannel recording picks the change up on its next
// buffer.
func (s *Session) SetChannelGain(index int, gain float32) error {
	if gain < 0 || math.IsNaN(float64(gain)) || math.IsInf(float64(gain), 0) {
		return fmt.Errorf("gain must be a non-negative finite number, got %v", gain)
	}

	next, err := s.updateState(index, func(state *dsp.ChannelState) {
		state.Gains[index] = gain
	})
	if err != nil {
		return err
	}

	s.controller.UpdateChannelState(next)

	return nil
}

// Renegotiate re-resolves the capture device and channel count, the
// entry point for hardware route changes. Dispatched like start/stop;
// a changed channel count resizes the session's channel settings and
// fires a channel_count_changed event.
func (s *Session) Renegotiate() {
	s.dispatch("renegotiate", s.renegotiate)
}

// Devices lists the currently available capture devices.
func (s *Session) Devices(ctx context.Context) ([]device.Descriptor, error) {
	return s.negotiator.Devices(ctx)
}

// Status returns a point-in-time view of the session and controller.
func (s *Session) Status() Status {
	controllerStatus := s.controller.Status()

	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		Status:     controllerStatus,
		Multitrack: s.multitrack,
		Enabled:    append([]bool(nil), s.state.Enabled...),
		Gains:      append([]float32(nil), s.state.Gains...),
	}
}

func (s *Session) dispatch(name string, op func(ctx context.Context)) {
	if err := channels.SendNonBlock(s.ops, op); err != nil {
		slog.Warn("session operation dropped", "op", name, "error", err)
	}
}

func (s *Session) worker(ctx context.Context) {
	for {
		select {
		case op := <-s.ops:
			op(ctx)
		case <-ctx.Done():
			if err := s.controller.Stop(context.Background()); err != nil {
				slog.Warn("failed to stop recording during shutdown", "error", err)
			}
			return
		}
	}
}

func (s *Session) startRecording(ctx context.Context) {
	s.mu.Lock()
	conf := capture.Config{
		Multitrack: s.multitrack,
		Enabled:    append([]bool(nil), s.state.Enabled...),
		Gains:      append([]float32(nil), s.state.Gains...),
	}
	s.mu.Unlock()

	path, err := s.controller.Start(ctx, conf)
	if err != nil {
		slog.Error("failed to start recording", "error", err)
		s.publish(Event{Kind: EventError, Err: err})
		return
	}

	// First negotiation sizes the settings vectors; later changes come
	// through the count-changed hook.
	s.ensureChannelCount(s.controller.Status().ChannelCount)

	s.publish(Event{Kind: EventRecordingStarted, ArtifactPath: path})
}

func (s *Session) stopRecording(ctx context.Context) {
	if !s.controller.IsRecording() {
		return
	}

	path := s.controller.Status().ArtifactPath

	if err := s.controller.Stop(ctx); err != nil {
		slog.Error("failed to stop recording cleanly", "error", err)
		s.publish(Event{Kind: EventError, Err: err})
	}

	// The transition to Idle happened even if teardown reported an
	// error, so the stopped event still fires.
	s.publish(Event{Kind: EventRecordingStopped, ArtifactPath: path})
}

func (s *Session) renegotiate(ctx context.Context) {
	s.mu.Lock()
	multitrack := s.multitrack
	s.mu.Unlock()

	desc, count, err := s.negotiator.Negotiate(ctx, multitrack)
	if err != nil {
		slog.Error("failed to renegotiate capture input", "error", err)
		s.publish(Event{Kind: EventError, Err: err})
		return
	}

	s.ensureChannelCount(count)

	slog.Info("renegotiated capture input",
		"device", desc.Name,
		"kind", desc.Kind.String(),
		"channels", count)
}

// onChannelCountChanged fires from inside Negotiate when the resolved
// count differs from the previous resolution. The session resizes its
// settings vectors, preserving existing entries; an active recording
// keeps the channel count of its own stream.
func (s *Session) onChannelCountChanged(count int) {
	s.mu.Lock()
	s.state = s.state.Resize(count)
	s.mu.Unlock()

	s.publish(Event{Kind: EventChannelCountChanged, ChannelCount: count})
}

func (s *Session) ensureChannelCount(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if count > 0 && len(s.state.Enabled) != count {
		s.state = s.state.Resize(count)
	}
}

// updateState clones the settings snapshot, applies mutate and stores
// the result. Published snapshots are never mutated in place.
func (s *Session) updateState(index int, mutate func(state *dsp.ChannelState)) (*dsp.ChannelState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.state.Enabled) {
		return nil, fmt.Errorf("channel index %d out of range, have %d channels",
			index, len(s.state.Enabled))
	}

	next := s.state.Clone()
	mutate(next)
	s.state = next

	return next, nil
}

func (s *Session) publish(ev Event) {
	if s.events == nil {
		return
	}

	if err := channels.SendNonBlock(s.events, ev); err != nil {
		slog.Warn("session event dropped", "kind", string(ev.Kind), "error", err)
	}
}

func (s *Session) logEvents(ctx context.Context, logC <-chan Event) {
	for {
		select {
		case ev := <-logC:
			switch ev.Kind {
			case EventRecordingStarted:
				slog.Info("recording session started", "path", ev.ArtifactPath)
			case EventRecordingStopped:
				slog.Info("recording session stopped", "path", ev.ArtifactPath)
			case EventChannelCountChanged:
				slog.Info("input channel count changed", "channels", ev.ChannelCount)
			case EventError:
				slog.Error("recording session error", "error", ev.Err)
			}
		case <-ctx.Done():
			return
		}
	}
}
