package dsp

import "sync"

// Sample constrains the element types the ring buffer carries: raw
// device samples (int16) or processed float planes.
type Sample interface {
	~int16 | ~float32
}

// SampleRing is a thread-safe circular buffer for audio samples.
// It keeps the most recent samples up to capacity and allows
// concurrent reads while writing.
type SampleRing[S Sample] struct {
	samples []S
	head    int // Next write position
	count   int // Number of valid samples (up to capacity)
	mu      sync.RWMutex
}

// NewSampleRing creates a ring buffer with the given capacity.
func NewSampleRing[S Sample](capacity int) *SampleRing[S] {
	return &SampleRing[S]{
		samples: make([]S, capacity),
		head:    0,
		count:   0,
		mu:      sync.RWMutex{},
	}
}

// Write appends samples to the buffer, overwriting oldest if full.
// This method is safe to call from a single writer goroutine.
func (b *SampleRing[S]) Write(samples []S) {
	if len(samples) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.samples)

	for _, sample := range samples {
		b.samples[b.head] = sample
		b.head = (b.head + 1) % capacity

		if b.count < capacity {
			b.count++
		}
	}
}

// ReadSamples returns up to n most recent samples in chronological order.
// Returns fewer samples if the buffer contains less than n.
// This method is safe to call concurrently from multiple goroutines.
func (b *SampleRing[S]) ReadSamples(n int) []S {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 || n <= 0 {
		return nil
	}

	// Limit n to available samples
	if n > b.count {
		n = b.count
	}

	result := make([]S, n)
	capacity := len(b.samples)

	// Calculate start position (oldest sample to return)
	// head points to next write position, so oldest is at (head - count)
	// We want the last n samples, so start at (head - n)
	start := (b.head - n + capacity) % capacity

	for i := 0; i < n; i++ {
		result[i] = b.samples[(start+i)%capacity]
	}

	return result
}

// Count returns the number of valid samples in the buffer.
func (b *SampleRing[S]) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.count
}
