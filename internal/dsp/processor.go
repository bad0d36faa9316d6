package dsp

// ChannelState is an immutable snapshot of per-channel processing
// configuration. Enabled and Gains are index-aligned with hardware
// channel order. The capture side publishes whole snapshots through an
// atomic pointer so the audio callback never takes a lock; a snapshot
// must not be mutated after it has been published.
type ChannelState struct {
	Enabled []bool
	Gains   []float32
}

// NewChannelState returns a snapshot with count channels, all enabled
// at unity gain.
func NewChannelState(count int) *ChannelState {
	enabled := make([]bool, count)
	gains := make([]float32, count)
	for i := range enabled {
		enabled[i] = true
		gains[i] = 1.0
	}
	return &ChannelState{Enabled: enabled, Gains: gains}
}

// Clone returns a deep copy suitable for mutate-then-publish updates.
func (s *ChannelState) Clone() *ChannelState {
	c := &ChannelState{
		Enabled: make([]bool, len(s.Enabled)),
		Gains:   make([]float32, len(s.Gains)),
	}
	copy(c.Enabled, s.Enabled)
	copy(c.Gains, s.Gains)
	return c
}

// Resize returns a copy with exactly count channels. Existing entries
// are preserved; new channels come up enabled at unity gain.
func (s *ChannelState) Resize(count int) *ChannelState {
	c := NewChannelState(count)
	copy(c.Enabled, s.Enabled)
	copy(c.Gains, s.Gains)
	return c
}

// Process applies mute and gain to a planar sample block in place.
//
// For each channel plane: a channel with no entry in enabled passes
// through unchanged, a disabled channel has its first frames samples
// overwritten with 0.0, and an enabled channel is scaled by its gain
// unless the gain is exactly 1.0. A channel with no gain entry is
// treated as unity. Mute is applied before gain, so a disabled channel
// stays silent regardless of its configured gain.
//
// Process runs on the device callback and must not allocate, lock,
// or log.
func Process(planar [][]float32, frames int, enabled []bool, gains []float32) {
	for ch := 0; ch < len(planar); ch++ {
		if ch >= len(enabled) {
			// Length mismatch: pass through rather than guess.
			continue
		}

		samples := planar[ch]
		n := frames
		if n > len(samples) {
			n = len(samples)
		}

		if !enabled[ch] {
			for i := 0; i < n; i++ {
				samples[i] = 0.0
			}
			continue
		}

		if ch >= len(gains) {
			continue
		}
		if g := gains[ch]; g != 1.0 {
			for i := 0; i < n; i++ {
				samples[i] *= g
			}
		}
	}
}

// PeakAbs returns the largest absolute sample value among the first
// frames samples of the plane. Callback-safe: no allocation.
func PeakAbs(samples []float32, frames int) float32 {
	n := frames
	if n > len(samples) {
		n = len(samples)
	}

	var peak float32
	for i := 0; i < n; i++ {
		v := samples[i]
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}
