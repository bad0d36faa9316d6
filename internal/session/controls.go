package session

import "github.com/tapehead/tapehead/pkg/uictl"

// Controls is the control surface front ends bind to without
// importing capture internals.
type Controls struct {
	// Recording starts and stops recording; Read reflects IsRecording.
	Recording uictl.Knob

	// Multitrack flips the mode flag for the next start.
	Multitrack uictl.Knob

	// Peaks reads per-channel post-processing peak levels of an active
	// multichannel recording.
	Peaks uictl.Levels[float32]

	// Waveform reads recent mono samples of an active simple recording.
	Waveform uictl.Levels[int16]
}

// Controls returns the session's control surface.
func (s *Session) Controls() Controls {
	return Controls{
		Recording: knob{
			read: s.IsRecording,
			on:   s.StartRecording,
			off:  s.StopRecording,
		},
		Multitrack: knob{
			read: s.Multitrack,
			on:   func() { s.SetMultitrack(true) },
			off:  func() { s.SetMultitrack(false) },
		},
		Peaks: levelsFunc[float32](func() []float32 {
			return s.controller.Status().Peaks
		}),
		Waveform: levelsFunc[int16](func() []int16 {
			return s.controller.RecentSamples(waveformSamples)
		}),
	}
}

type knob struct {
	read func() bool
	on   func()
	off  func()
}

func (k knob) Read() bool { return k.read() }
func (k knob) On()        { k.on() }
func (k knob) Off()       { k.off() }

func (k knob) Toggle() {
	if k.read() {
		k.off()
		return
	}
	k.on()
}

type levelsFunc[N uictl.Number] func() []N

func (f levelsFunc[N]) Read() []N { return f() }
