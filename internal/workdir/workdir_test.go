package workdir_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapehead/tapehead/internal/workdir"
)

func TestArtifactName(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	tests := []struct {
		name       string
		multitrack bool
		want       string
	}{
		{
			name:       "simple mode uses mp3 extension",
			multitrack: false,
			want:       "Recording_2025-03-14_09-26-53.mp3",
		},
		{
			name:       "multichannel mode uses wav extension",
			multitrack: true,
			want:       "Multichannel_Recording_2025-03-14_09-26-53.wav",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, workdir.ArtifactName(tt.multitrack, ts))
		})
	}
}

func TestArtifactName_SecondResolutionIsCollisionResistant(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	first := workdir.ArtifactName(false, base)
	second := workdir.ArtifactName(false, base.Add(time.Second))

	assert.NotEqual(t, first, second)
}

func TestArtifactPath(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	got := workdir.ArtifactPath("/tmp/recordings", true, ts)
	assert.Equal(t, filepath.Join("/tmp/recordings", "Multichannel_Recording_2025-03-14_09-26-53.wav"), got)
}

func TestRoot_EnvOverride(t *testing.T) {
	t.Setenv(workdir.EnvDir, "/srv/captures")

	root, err := workdir.Root()
	require.NoError(t, err)
	assert.Equal(t, "/srv/captures", root)
}

func TestRoot_DefaultsUnderHome(t *testing.T) {
	t.Setenv(workdir.EnvDir, "")

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	root, err := workdir.Root()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".tapehead", "recordings"), root)
}

func TestPrep_CreatesNestedDirectories(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "recordings")
	require.NoError(t, workdir.Prep(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// A second call on an existing directory is fine.
	require.NoError(t, workdir.Prep(dir))
}
