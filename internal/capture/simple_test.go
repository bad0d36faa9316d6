package capture

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempArtifact(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

func TestSimpleBackend_EncodesPushedPackets(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	stream := &fakeStream{}
	path := tempArtifact(t, "take.mp3")

	backend := NewSimpleBackend(stream, path, SimpleSampleRate)
	require.NoError(t, backend.Start(ctx))
	assert.True(t, stream.IsStarted())

	stream.push(make([]byte, 1000), 250)
	stream.push(make([]byte, 1000), 250)
	stream.push(make([]byte, 1000), 250)

	require.Eventually(t, func() bool {
		return backend.BytesCaptured() == 3000
	}, time.Second, 5*time.Millisecond, "pump should count every captured byte")

	require.NoError(t, backend.Stop(ctx))

	assert.Equal(t, int64(3000), backend.BytesCaptured())
	assert.Zero(t, backend.Dropped())
	assertMP3Frames(t, path)
}

func TestSimpleBackend_StopWithoutStartIsNoOp(t *testing.T) {
	t.Parallel()

	backend := NewSimpleBackend(&fakeStream{}, tempArtifact(t, "take.mp3"), SimpleSampleRate)
	require.NoError(t, backend.Stop(context.Background()))
}

func TestSimpleBackend_StopTwice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := NewSimpleBackend(&fakeStream{}, tempArtifact(t, "take.mp3"), SimpleSampleRate)

	require.NoError(t, backend.Start(ctx))
	require.NoError(t, backend.Stop(ctx))
	require.NoError(t, backend.Stop(ctx))
}

func TestSimpleBackend_ZeroPacketSessionProducesValidContainer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := tempArtifact(t, "empty.mp3")

	backend := NewSimpleBackend(&fakeStream{}, path, SimpleSampleRate)
	require.NoError(t, backend.Start(ctx))
	require.NoError(t, backend.Stop(ctx))

	assertMP3Frames(t, path)
}

func TestSimpleBackend_OpenFailureRemovesFile(t *testing.T) {
	t.Parallel()

	path := tempArtifact(t, "take.mp3")
	backend := NewSimpleBackend(&fakeStream{openErr: assert.AnError}, path, SimpleSampleRate)

	err := backend.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open capture stream")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "partial file should be removed")
}

func TestSimpleBackend_StreamStartFailureCleansUp(t *testing.T) {
	t.Parallel()

	path := tempArtifact(t, "take.mp3")
	stream := &fakeStream{startErr: assert.AnError}
	backend := NewSimpleBackend(stream, path, SimpleSampleRate)

	err := backend.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start capture stream")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "partial file should be removed")
	assert.Equal(t, 1, stream.deallocCount(), "opened device should be released")

	// A failed start leaves the backend stoppable as a no-op.
	require.NoError(t, backend.Stop(context.Background()))
}

func TestSimpleBackend_RecentSamplesTrackCapture(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	stream := &fakeStream{}
	backend := NewSimpleBackend(stream, tempArtifact(t, "take.mp3"), SimpleSampleRate)
	require.NoError(t, backend.Start(ctx))

	samples := []int16{100, -200, 300, -400}
	packet := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(packet[i*2:], uint16(s))
	}
	stream.push(packet, len(samples))

	require.Eventually(t, func() bool {
		return len(backend.RecentSamples(len(samples))) == len(samples)
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, samples, backend.RecentSamples(len(samples)))

	require.NoError(t, backend.Stop(ctx))
}

func TestSimpleBackend_DropsWhenNotAccepting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	stream := &fakeStream{}
	backend := NewSimpleBackend(stream, tempArtifact(t, "take.mp3"), SimpleSampleRate)
	require.NoError(t, backend.Start(ctx))
	require.NoError(t, backend.Stop(ctx))

	// Deliveries after stop are ignored, not queued and not counted.
	stream.push(make([]byte, 100), 25)
	assert.Zero(t, backend.BytesCaptured())
	assert.Zero(t, backend.Dropped())
}
