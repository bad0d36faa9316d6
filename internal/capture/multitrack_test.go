package capture

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapehead/tapehead/internal/dsp"
)

func createWavOutput(t *testing.T) *os.File {
	t.Helper()

	file, err := os.Create(tempArtifact(t, "take.wav"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = file.Close() })

	return file
}

func newStereoBackend(t *testing.T, stream *fakeStream, out io.WriteSeeker) *MultichannelBackend {
	t.Helper()

	backend, err := NewMultichannelBackend(MultichannelConfig{
		SampleRate: 48000,
		Channels:   2,
	}, stream, out)
	require.NoError(t, err)

	return backend
}

func TestMultichannelConfig_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  MultichannelConfig
		wantErr string
	}{
		{
			name:    "zero sample rate",
			config:  MultichannelConfig{Channels: 2},
			wantErr: "sample rate",
		},
		{
			name:    "zero channels",
			config:  MultichannelConfig{SampleRate: 48000},
			wantErr: "channel count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewMultichannelBackend(tt.config, &fakeStream{}, createWavOutput(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMultichannelConfig_WithDefaults(t *testing.T) {
	t.Parallel()

	config := MultichannelConfig{SampleRate: 48000, Channels: 2}.WithDefaults()
	assert.Equal(t, 4096, config.BlockFrames)
}

func TestMultichannelBackend_ProcessesAndAppends(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	stream := &fakeStream{}
	file := createWavOutput(t)
	backend := newStereoBackend(t, stream, file)

	state := dsp.NewChannelState(2)
	state.Enabled[1] = false
	state.Gains[0] = 2.0
	backend.UpdateChannelState(state)

	require.NoError(t, backend.Start(ctx))

	input := [][]float32{
		{0.1, 0.2, 0.3},
		{0.5, 0.5, 0.5},
	}
	stream.push(interleaveF32LE(input, 3), 3)

	require.Eventually(t, func() bool {
		return backend.FramesWritten() == 3
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, backend.Stop(ctx))

	samples := wavPayloadFloats(t, file.Name())
	require.Len(t, samples, 6)

	for f := 0; f < 3; f++ {
		assert.Equal(t, input[0][f]*2.0, samples[f*2], "channel 0 should be doubled")
		assert.Zero(t, samples[f*2+1], "channel 1 is muted")
	}

	peaks := backend.PeakLevels()
	require.Len(t, peaks, 2)
	assert.Equal(t, input[0][2]*2.0, peaks[0], "peak reflects the processed block")
	assert.Zero(t, peaks[1], "muted channel peaks at zero")
}

func TestMultichannelBackend_LiveSnapshotSwap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	stream := &fakeStream{}
	file := createWavOutput(t)
	backend := newStereoBackend(t, stream, file)

	require.NoError(t, backend.Start(ctx))

	input := [][]float32{
		{0.25, 0.25},
		{0.75, 0.75},
	}
	stream.push(interleaveF32LE(input, 2), 2)

	// Mute channel 0 between blocks; the next block picks it up.
	next := backend.ChannelState().Clone()
	next.Enabled[0] = false
	backend.UpdateChannelState(next)

	stream.push(interleaveF32LE(input, 2), 2)

	require.Eventually(t, func() bool {
		return backend.FramesWritten() == 4
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, backend.Stop(ctx))

	samples := wavPayloadFloats(t, file.Name())
	require.Len(t, samples, 8)

	// First block untouched.
	assert.Equal(t, []float32{0.25, 0.75, 0.25, 0.75}, samples[:4])
	// Second block has channel 0 muted.
	assert.Equal(t, []float32{0, 0.75, 0, 0.75}, samples[4:])
}

func TestMultichannelBackend_RejectsDoubleStart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newStereoBackend(t, &fakeStream{}, createWavOutput(t))

	require.NoError(t, backend.Start(ctx))
	require.ErrorIs(t, backend.Start(ctx), ErrAlreadyStarted)
	require.NoError(t, backend.Stop(ctx))
}

func TestMultichannelBackend_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newStereoBackend(t, &fakeStream{}, createWavOutput(t))

	require.NoError(t, backend.Stop(ctx), "stop before start is a no-op")

	require.NoError(t, backend.Start(ctx))
	require.NoError(t, backend.Stop(ctx))
	require.NoError(t, backend.Stop(ctx))
}

func TestMultichannelBackend_ZeroBlockSessionClosesValidContainer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	file := createWavOutput(t)
	backend := newStereoBackend(t, &fakeStream{}, file)

	require.NoError(t, backend.Start(ctx))
	require.NoError(t, backend.Stop(ctx))

	samples := wavPayloadFloats(t, file.Name())
	assert.Equal(t, []float32{0, 0}, samples, "empty session closes with one silent frame")
}

// failingWriteSeeker rejects every write so append failures can be
// driven deterministically.
type failingWriteSeeker struct{}

func (failingWriteSeeker) Write([]byte) (int, error) { return 0, assert.AnError }
func (failingWriteSeeker) Seek(int64, int) (int64, error) { return 0, nil }

func TestMultichannelBackend_AppendFailuresDropWithoutAborting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	stream := &fakeStream{}
	backend := newStereoBackend(t, stream, failingWriteSeeker{})

	require.NoError(t, backend.Start(ctx))

	input := [][]float32{
		{0.1, 0.1},
		{0.1, 0.1},
	}
	stream.push(interleaveF32LE(input, 2), 2)

	require.Eventually(t, func() bool {
		return backend.AppendFailures() == 1
	}, time.Second, 5*time.Millisecond)

	// Recording keeps going: the next block is still consumed.
	stream.push(interleaveF32LE(input, 2), 2)

	require.Eventually(t, func() bool {
		return backend.AppendFailures() == 2
	}, time.Second, 5*time.Millisecond)

	assert.True(t, stream.IsStarted(), "write failures must not stop the stream")
	assert.Zero(t, backend.FramesWritten())

	// Finalizing on a dead writer surfaces the error, but the backend
	// still winds down and a second stop is a clean no-op.
	require.Error(t, backend.Stop(ctx))
	require.NoError(t, backend.Stop(ctx))
}

func TestMultichannelBackend_IgnoresDeliveriesAfterStop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	stream := &fakeStream{}
	backend := newStereoBackend(t, stream, createWavOutput(t))

	require.NoError(t, backend.Start(ctx))
	require.NoError(t, backend.Stop(ctx))

	stream.push(interleaveF32LE([][]float32{{0.1}, {0.1}}, 1), 1)
	assert.Zero(t, backend.FramesWritten())
	assert.Zero(t, backend.Dropped())
}
