package dsp

import (
	"encoding/binary"
	"math"
)

// BytesToInt16 converts S16LE (signed 16-bit little-endian) bytes to int16 samples.
func BytesToInt16(data []byte) []int16 {
	numSamples := len(data) / 2
	if numSamples == 0 {
		return nil
	}

	samples := make([]int16, numSamples)

	for i := 0; i < numSamples; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}

	return samples
}

// DeinterleaveF32LE splits interleaved 32-bit little-endian float bytes
// into the per-channel planes of dst, writing up to frames frames. The
// channel count is len(dst). It returns the number of frames actually
// written, bounded by the data available in src and by the shortest
// plane, so an oversized delivery is truncated rather than overrun.
//
// dst is caller-owned preallocated memory: the function performs no
// allocation and is safe on the device callback.
func DeinterleaveF32LE(src []byte, dst [][]float32, frames int) int {
	channels := len(dst)
	if channels == 0 {
		return 0
	}

	avail := len(src) / (4 * channels)
	if frames > avail {
		frames = avail
	}
	for ch := 0; ch < channels; ch++ {
		if n := len(dst[ch]); frames > n {
			frames = n
		}
	}

	for f := 0; f < frames; f++ {
		base := f * channels * 4
		for ch := 0; ch < channels; ch++ {
			bits := binary.LittleEndian.Uint32(src[base+ch*4:])
			dst[ch][f] = math.Float32frombits(bits)
		}
	}

	return frames
}
