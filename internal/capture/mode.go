// Package capture holds the two recording backends and the lifecycle
// controller that owns which one is active.
package capture

import "errors"

// Mode selects the recording backend.
type Mode int

const (
	// ModeSimple records one compressed mono MP3 track.
	ModeSimple Mode = iota
	// ModeMultichannel records every input channel to a raw float WAV
	// container with per-channel mute and gain applied live.
	ModeMultichannel
)

func (m Mode) String() string {
	if m == ModeMultichannel {
		return "multichannel"
	}

	return "simple"
}

// Multitrack reports whether the mode records every input channel.
func (m Mode) Multitrack() bool {
	return m == ModeMultichannel
}

// ModeFor maps the session's multitrack flag to a backend mode.
func ModeFor(multitrack bool) Mode {
	if multitrack {
		return ModeMultichannel
	}

	return ModeSimple
}

// Sentinel errors for lifecycle violations.
var (
	// ErrRecordingActive rejects a start while a recording is active.
	ErrRecordingActive = errors.New("a recording is already active")
	// ErrAlreadyStarted rejects re-arming an already armed backend.
	ErrAlreadyStarted = errors.New("capture backend already started")
)
