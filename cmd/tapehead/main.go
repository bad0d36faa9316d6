package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/tapehead/tapehead/internal/capture"
	"github.com/tapehead/tapehead/internal/cli"
	"github.com/tapehead/tapehead/internal/device"
	"github.com/tapehead/tapehead/internal/logger"
	"github.com/tapehead/tapehead/internal/session"
	"github.com/tapehead/tapehead/internal/workdir"
)

// finalizeTimeout bounds the wait for the container to be closed after
// a stop request. Long takes can carry a sizeable encoder backlog.
const finalizeTimeout = 30 * time.Second

// CLI defines the tapehead command structure.
type CLI struct {
	LogLevel string `flag:"" default:"info" enum:"debug,info,warn,error" help:"Log level (debug, info, warn, error)"`

	// Default record command (runs when no subcommand given)
	Record RecordCmd `cmd:"" default:"withargs" help:"Record from the preferred capture device"`

	// Subcommands
	Devices DevicesCmd `cmd:"" help:"List available capture devices"`
}

// RecordCmd captures audio until a limit or an operator stop.
type RecordCmd struct {
	Multitrack    bool            `flag:"" help:"Record every input channel to a multichannel WAV file"`
	Disable       []int           `flag:"" help:"Channel indexes to mute, e.g. --disable 1,3 (multitrack only)"`
	Gain          map[int]float32 `flag:"" mapsep:"," help:"Per-channel gain as index=value pairs, e.g. --gain 2=0.5 (multitrack only)"`
	Output        string          `flag:"" optional:"" help:"Recordings directory (default: $TAPEHEAD_DIR or ~/.tapehead/recordings)"`
	MaxDuration   time.Duration   `flag:"" default:"1h" help:"Max recording duration"`
	MaxBytes      int64           `flag:"" default:"268435456" help:"Max file size (256MB)"`
	DeviceTimeout time.Duration   `flag:"" default:"5s" help:"Max wait for device negotiation"`
}

// Run executes the record command.
func (c *RecordCmd) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !c.Multitrack && (len(c.Disable) > 0 || len(c.Gain) > 0) {
		return errors.New("--disable and --gain require --multitrack")
	}

	dir := c.Output
	if dir == "" {
		root, err := workdir.Root()
		if err != nil {
			return err
		}
		dir = root
	}

	negotiator := device.NewNegotiator(device.SystemEnumerator{})
	controller := capture.NewController(capture.ControllerConfig{RecordingsDir: dir}, negotiator)
	sess := session.New(controller, negotiator)

	events := make(chan session.Event, 16)
	if err := sess.Subscribe(events); err != nil {
		return fmt.Errorf("failed to subscribe to session events: %w", err)
	}
	if err := sess.Run(ctx); err != nil {
		return fmt.Errorf("failed to run session: %w", err)
	}

	sess.SetMultitrack(c.Multitrack)

	if c.Multitrack {
		if err := c.applyChannelSettings(ctx, sess, events); err != nil {
			return err
		}
	}

	sess.StartRecording()

	started, err := waitForEvent(ctx, events, c.DeviceTimeout, session.EventRecordingStarted)
	if err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}
	slog.Info("recording", "path", started.ArtifactPath, "multitrack", c.Multitrack)

	monitor, err := cli.NewMonitor(cli.MonitorConfig{
		MaxDuration:     c.MaxDuration,
		MaxBytes:        c.MaxBytes,
		DisplayProgress: true,
	}, func() int64 { return sess.Status().ApproxBytes() })
	if err != nil {
		return fmt.Errorf("failed to create recording monitor: %w", err)
	}

	if reason := monitor.Wait(ctx); reason != nil {
		// A limit ending the recording is a normal outcome.
		if !errors.Is(reason, cli.ErrMaxDurationReached) && !errors.Is(reason, cli.ErrMaxBytesReached) {
			return reason
		}
	}

	sess.StopRecording()

	stopped, err := waitForEvent(ctx, events, finalizeTimeout, session.EventRecordingStopped)
	if err != nil {
		return fmt.Errorf("failed to finalize recording: %w", err)
	}

	fmt.Printf("\nSaved %s\n", stopped.ArtifactPath) //nolint:forbidigo // CLI output

	return nil
}

// applyChannelSettings sizes the channel vectors through an explicit
// negotiation, then applies the mute and gain flags, so the settings
// are live before the first captured block.
func (c *RecordCmd) applyChannelSettings(ctx context.Context, sess *session.Session, events <-chan session.Event) error {
	sess.Renegotiate()

	deadline := time.Now().Add(c.DeviceTimeout)
	for len(sess.Status().Enabled) == 0 {
		if time.Now().After(deadline) {
			return errors.New("timed out waiting for device negotiation")
		}

		select {
		case ev := <-events:
			if ev.Kind == session.EventError {
				return fmt.Errorf("device negotiation failed: %w", ev.Err)
			}
		case <-time.After(20 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, index := range c.Disable {
		if err := sess.SetChannelEnabled(index, false); err != nil {
			return fmt.Errorf("--disable %d: %w", index, err)
		}
	}
	for index, gain := range c.Gain {
		if err := sess.SetChannelGain(index, gain); err != nil {
			return fmt.Errorf("--gain %d=%v: %w", index, gain, err)
		}
	}

	return nil
}

// waitForEvent consumes session events until kind arrives. Error events
// fail the wait; other kinds are informational here.
func waitForEvent(ctx context.Context, events <-chan session.Event, timeout time.Duration, kind session.EventKind) (session.Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev := <-events:
			switch ev.Kind {
			case kind:
				return ev, nil
			case session.EventError:
				return session.Event{}, ev.Err
			}
		case <-timer.C:
			return session.Event{}, fmt.Errorf("timed out waiting for %s", kind)
		case <-ctx.Done():
			return session.Event{}, ctx.Err()
		}
	}
}

// DevicesCmd lists available capture devices.
type DevicesCmd struct{}

// Run executes the devices command.
func (dcmd *DevicesCmd) Run() error {
	slog.Info("Enumerating capture devices...")

	devices, err := device.SystemEnumerator{}.EnumerateDevices(context.Background())
	if err != nil {
		return fmt.Errorf("failed to enumerate capture devices: %w", err)
	}

	for _, dev := range devices {
		slog.Info("Capture Device",
			"name", dev.Name,
			"kind", dev.Kind,
			"isDefault", dev.IsDefault,
			"maxChannels", dev.MaxChannels,
			"sampleRate", dev.SampleRate,
			"formats", dev.Formats,
		)
	}

	return nil
}

func main() {
	app := &CLI{} //nolint:exhaustruct // Kong fills in command fields
	ctx := kong.Parse(app)

	// Set up text-based logger for CLI output
	//nolint:exhaustruct // Using default values for other HandlerOptions fields
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logger.ParseLevel(app.LogLevel),
	})
	slog.SetDefault(slog.New(handler))

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
	os.Exit(0)
}
