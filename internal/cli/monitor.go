// Package cli carries the terminal side of a recording: progress
// display, duration and size limits, and operator stop signals. The
// recording itself is owned by the session; this package only decides
// when it should end.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Sentinel errors for limit detection.
var (
	ErrMaxDurationReached = errors.New("max duration reached")
	ErrMaxBytesReached    = errors.New("max bytes reached")
)

const (
	// limitPollInterval is how often the monitor re-checks the limits.
	limitPollInterval = 250 * time.Millisecond

	// progressInterval is how often the progress line is printed.
	progressInterval = 3 * time.Second

	// warnPercent is the usage level at which progress turns bold.
	warnPercent = 90
)

type MonitorConfig struct {
	MaxDuration       time.Duration
	MaxBytes          int64
	IgnoreStopSignals bool
	DisplayProgress   bool
}

// Monitor watches an active recording from the terminal.
type Monitor struct {
	config MonitorConfig
	bytes  func() int64
}

// NewMonitor creates a recording monitor. bytes reports the live size
// estimate of the active artifact.
func NewMonitor(conf MonitorConfig, bytes func() int64) (*Monitor, error) {
	if conf.MaxDuration <= 0 {
		return nil, errors.New("MaxDuration must be positive")
	}
	if conf.MaxBytes <= 0 {
		return nil, errors.New("MaxBytes must be positive")
	}
	if bytes == nil {
		return nil, errors.New("bytes reader must not be nil")
	}

	return &Monitor{
		config: conf,
		bytes:  bytes,
	}, nil
}

// Wait blocks until the recording should stop. It returns
// ErrMaxDurationReached or ErrMaxBytesReached when a limit ended the
// recording, and nil when the operator or the context did.
func (m *Monitor) Wait(ctx context.Context) error {
	var cancel context.CancelFunc
	ctx, cancel = context.WithCancel(ctx)
	defer cancel()

	started := time.Now()

	// Holds the sentinel for whichever limit fired first, if any.
	var limit atomic.Value

	wg := new(sync.WaitGroup)

	// Limit polling. The first limit hit cancels every other watcher.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()

		ticker := time.NewTicker(limitPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := m.limitHit(time.Since(started), m.bytes()); err != nil {
					limit.Store(err)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if m.config.DisplayProgress {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ticker := time.NewTicker(progressInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					fmt.Printf("\rRecording: %s\n", //nolint:forbidigo // CLI progress
						m.progressLine(time.Since(started), m.bytes()))
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	if !m.config.IgnoreStopSignals {
		wg.Add(1)
		go func() {
			defer wg.Done()

			<-catchStopSignals(ctx)
			slog.Info("received stop signal")
			cancel()
		}()
	}

	wg.Wait()

	if err := limit.Load(); err != nil {
		return err.(error)
	}

	return nil
}

// limitHit reports which configured limit, if any, the recording has
// crossed.
func (m *Monitor) limitHit(elapsed time.Duration, bytes int64) error {
	if bytes >= m.config.MaxBytes {
		slog.Info("recording stopped", "reason", "max_bytes_reached",
			"bytes", bytes)
		return ErrMaxBytesReached
	}
	if elapsed >= m.config.MaxDuration {
		slog.Info("recording stopped", "reason", "max_duration_reached",
			"duration", elapsed)
		return ErrMaxDurationReached
	}

	return nil
}

// progressLine renders elapsed time and written bytes against their
// limits, emboldening whichever side is near its cap.
func (m *Monitor) progressLine(elapsed time.Duration, bytes int64) string {
	timePct := percentOf(int64(elapsed), int64(m.config.MaxDuration))
	bytesPct := percentOf(bytes, m.config.MaxBytes)

	return fmt.Sprintf("%s | %s",
		formatDuration(elapsed, m.config.MaxDuration, timePct >= warnPercent),
		formatBytes(bytes, m.config.MaxBytes, bytesPct >= warnPercent))
}

func percentOf(current, max int64) int {
	return int(float64(current) / float64(max) * 100)
}

// boldIf wraps text in ANSI bold codes when on is true.
func boldIf(text string, on bool) string {
	if on {
		return fmt.Sprintf("\033[1m%s\033[0m", text)
	}

	return text
}

// clockFormat renders a duration as HH:MM:SS.
func clockFormat(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatDuration renders "elapsed / max (pct%)" on a clock scale.
func formatDuration(elapsed, maxDuration time.Duration, bold bool) string {
	text := fmt.Sprintf("%s / %s (%d%%)",
		clockFormat(elapsed), clockFormat(maxDuration),
		percentOf(int64(elapsed), int64(maxDuration)))

	return boldIf(text, bold)
}

// formatBytes renders "current / max (pct%)" in megabytes.
func formatBytes(current, maxBytes int64, bold bool) string {
	const mb = 1024 * 1024
	text := fmt.Sprintf("%.1f MB / %.1f MB (%d%%)",
		float64(current)/mb, float64(maxBytes)/mb,
		percentOf(current, maxBytes))

	return boldIf(text, bold)
}

// catchStopSignals returns a channel that closes when any stop source
// fires: SIGINT or SIGTERM, context cancellation, or the operator
// pressing Enter or Space.
func catchStopSignals(ctx context.Context) <-chan struct{} {
	stopC := make(chan struct{})
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt, syscall.SIGTERM)

	stdinC := make(chan struct{})

	// os.Stdin.Read cannot be interrupted, so when another stop source
	// wins the race this goroutine stays parked until process exit.
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil || n == 0 {
				return
			}
			if buf[0] == '\n' || buf[0] == ' ' {
				close(stdinC)
				return
			}
		}
	}()

	go func() {
		defer close(stopC)
		defer signal.Stop(sigC)

		select {
		case <-ctx.Done():
		case <-sigC:
		case <-stdinC:
		}
	}()

	return stopC
}
